package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	bookingDomain "github.com/vielimo/service-booking/internal/domain/booking"
	"github.com/vielimo/service-booking/internal/domain/payment"
	"github.com/vielimo/service-booking/internal/repository"
	"github.com/vielimo/service-booking/pkg/domain"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func newBooking(t *testing.T) *bookingDomain.Booking {
	t.Helper()
	in := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)
	b, err := bookingDomain.NewBooking("VLABCD1234", uuid.New(), bookingDomain.Customer{
		Name:  "Nguyen Van A",
		Email: "guest@example.com",
		Phone: "0900000000",
	}, in, in.AddDate(0, 0, 2), 2, 1000000)
	require.NoError(t, err)
	return b
}

var bookingColumns = []string{
	"id", "code", "room_id", "customer_name", "customer_email", "customer_phone",
	"check_in", "check_out", "guests", "subtotal", "coupon_code", "discount", "total",
	"paid_amount", "payment_status", "status", "notes", "version", "created_at", "updated_at",
}

func TestBookingRepository_Save(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBookingRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "bookings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(context.Background(), newBooking(t)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_Reserve(t *testing.T) {
	tests := []struct {
		name     string
		units    int
		taken    int64
		wantFull bool
	}{
		{"unit free", 2, 1, false},
		{"sold out", 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock := setupMockDB(t)
			repo := repository.NewBookingRepository(gormDB)
			b := newBooking(t)

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT "id","total_units" FROM "rooms" WHERE id = \$1 .*FOR UPDATE`).
				WillReturnRows(sqlmock.NewRows([]string{"id", "total_units"}).AddRow(b.RoomID(), tt.units))
			mock.ExpectQuery(regexp.QuoteMeta(
				`SELECT count(*) FROM "bookings" WHERE room_id = $1 AND status <> $2 AND check_in < $3 AND check_out > $4`)).
				WithArgs(b.RoomID(), "cancelled", b.CheckOut(), b.CheckIn()).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.taken))
			if tt.wantFull {
				mock.ExpectRollback()
			} else {
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "bookings"`)).
					WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
				mock.ExpectCommit()
			}

			err := repo.Reserve(context.Background(), b)
			if tt.wantFull {
				assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBookingRepository_Reserve_RoomNotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBookingRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id","total_units" FROM "rooms"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total_units"}))
	mock.ExpectRollback()

	err := repo.Reserve(context.Background(), newBooking(t))
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_FindByCode(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBookingRepository(gormDB)

	id, roomID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	in := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(bookingColumns).AddRow(
		id, "VLABCD1234", roomID, "Nguyen Van A", "guest@example.com", "0900000000",
		in, in.AddDate(0, 0, 2), 2, int64(1000000), "SAVE10", int64(100000), int64(900000),
		int64(300000), "partial", "pending", "[note]", int64(3), now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bookings" WHERE code = $1`)).
		WillReturnRows(rows)

	b, err := repo.FindByCode(context.Background(), "vlabcd1234")
	require.NoError(t, err)
	assert.Equal(t, id, b.ID())
	assert.Equal(t, roomID, b.RoomID())
	assert.Equal(t, "SAVE10", b.CouponCode())
	assert.Equal(t, int64(600000), b.Outstanding())
	assert.Equal(t, bookingDomain.PaymentPartial, b.PaymentStatus())
	assert.Equal(t, int64(3), b.Version())
	assert.Equal(t, 2, b.Nights())
}

func TestBookingRepository_FindByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBookingRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bookings"`)).
		WillReturnRows(sqlmock.NewRows(bookingColumns))

	b, err := repo.FindByID(context.Background(), uuid.New())
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestBookingRepository_Update_OptimisticLock(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		wantConflict bool
	}{
		{"version matches", 1, false},
		{"stale version", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock := setupMockDB(t)
			repo := repository.NewBookingRepository(gormDB)

			b := newBooking(t)
			require.NoError(t, b.ApplyDiscount("SAVE10", 100000))
			b.IncrementVersion()

			mock.ExpectBegin()
			mock.ExpectExec(`UPDATE "bookings" SET .* WHERE \(?id = \$\d+ AND version = \$\d+\)?`).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))
			mock.ExpectCommit()

			err := repo.Update(context.Background(), b)
			if tt.wantConflict {
				assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBookingRepository_RecordPayment(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBookingRepository(gormDB)

	b := newBooking(t)
	_, err := b.ApplyPayment(1000000, "501")
	require.NoError(t, err)
	b.IncrementVersion()
	txn := payment.NewTransaction(b.ID(), payment.ProviderSePay, "501", 1000000, "FT501", time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payment_transactions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "bookings" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RecordPayment(context.Background(), b, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_RecordPayment_RollsBackOnConflict(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBookingRepository(gormDB)

	b := newBooking(t)
	_, err := b.ApplyPayment(200000, "502")
	require.NoError(t, err)
	b.IncrementVersion()
	txn := payment.NewTransaction(b.ID(), payment.ProviderSePay, "502", 200000, "", time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payment_transactions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "bookings" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.RecordPayment(context.Background(), b, txn)
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_CountOverlapping(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBookingRepository(gormDB)

	roomID := uuid.New()
	in := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)
	out := in.AddDate(0, 0, 2)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT count(*) FROM "bookings" WHERE room_id = $1 AND status <> $2 AND check_in < $3 AND check_out > $4`)).
		WithArgs(roomID, "cancelled", out, in).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountOverlapping(context.Background(), roomID, in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTransactionRepository_Exists(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewTransactionRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "payment_transactions"`)).
		WithArgs(payment.ProviderSePay, "777").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.Exists(context.Background(), payment.ProviderSePay, "777")
	require.NoError(t, err)
	assert.True(t, ok)
}
