//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vielimo/service-booking/internal/adapter"
	"github.com/vielimo/service-booking/internal/application"
	"github.com/vielimo/service-booking/internal/cache"
	bookingEvents "github.com/vielimo/service-booking/internal/events"
	"github.com/vielimo/service-booking/internal/lock"
	"github.com/vielimo/service-booking/internal/notification"
	"github.com/vielimo/service-booking/internal/ratelimit"
	"github.com/vielimo/service-booking/internal/repository"
	"github.com/vielimo/service-booking/internal/saga"
	"github.com/vielimo/service-booking/pkg/database"
	pkgevents "github.com/vielimo/service-booking/pkg/events"
	"github.com/vielimo/service-booking/pkg/kafka"
)

const sepayKey = "integration-key"

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	Redis        *redis.Client
	KafkaBrokers []string
	Cleanup      func()
}

// bookingStack holds wired-up booking service components.
type bookingStack struct {
	Rooms    *application.RoomService
	Bookings *application.BookingService
	Coupons  *application.CouponService
	Webhooks *application.WebhookService
	Sheet    *adapter.MockSheetAdapter
	Mailbox  *mailbox
	Consumer *bookingEvents.BookingEventConsumer
	Cleanup  func()
}

// setupContainers starts PostgreSQL, Redis and Kafka and applies the migrations.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("test_booking"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pgConfig := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_booking",
		SSLMode:  "disable",
	}

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		db, err = database.Connect(pgConfig, logger)
		return err == nil
	}, 30*time.Second, time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(pgConfig.DatabaseURL(), "migrations", logger))

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")
	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	rdb, err := database.ConnectRedis(ctx, redisURL, logger)
	require.NoError(t, err)

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, pkgevents.TopicBookingEvents)

	cleanup := func() {
		_ = rdb.Close()
		for _, c := range []testcontainers.Container{kafkaContainer, redisContainer, pgContainer} {
			if err := c.Terminate(ctx); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		}
	}

	return &testInfra{
		DB:           db,
		Redis:        rdb,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupBookingStack wires the booking service the way cmd/server does, with the
// in-memory coupon sheet and a recording email sender.
func setupBookingStack(t *testing.T, infra *testInfra, couponRows [][]interface{}) *bookingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	sheet := adapter.NewMockSheetAdapter(couponRows, 2, logger)
	cacheManager := cache.NewCacheManager(infra.Redis, sheet, time.Minute, logger)
	locker := lock.NewLocker(infra.Redis, "coupon_lock:", 5*time.Second)
	limiter := ratelimit.NewLimiter(infra.Redis, "coupon_rate:"+uuid.NewString()[:8]+":", 100, time.Minute)

	roomRepo := repository.NewGormRoomRepository(infra.DB)
	bookingRepo := repository.NewBookingRepository(infra.DB)
	txnRepo := repository.NewTransactionRepository(infra.DB)
	producer := kafka.NewProducer(infra.KafkaBrokers, logger)

	couponSvc := application.NewCouponService(sheet, cacheManager, locker, limiter, logger)
	roomSvc := application.NewRoomService(roomRepo, bookingRepo, logger)
	checkout := saga.NewCheckoutSagaService(bookingRepo, couponSvc, producer, logger)
	bookingSvc := application.NewBookingService(bookingRepo, txnRepo, roomRepo, roomSvc, checkout, producer,
		application.BankAccount{BankName: "VCB", AccountNumber: "0123456789", AccountName: "VIELIMO"}, logger)
	webhookSvc := application.NewWebhookService(bookingRepo, txnRepo, producer, sepayKey, logger)

	box := &mailbox{}
	notifier, err := notification.NewNotifier(box, "admin@vielimo.test", notification.BankDetails{}, logger)
	require.NoError(t, err)

	groupID := fmt.Sprintf("test-notification-%s", uuid.New().String()[:8])
	consumer := bookingEvents.NewBookingEventConsumer(infra.KafkaBrokers, groupID, notifier, logger)

	return &bookingStack{
		Rooms:    roomSvc,
		Bookings: bookingSvc,
		Coupons:  couponSvc,
		Webhooks: webhookSvc,
		Sheet:    sheet,
		Mailbox:  box,
		Consumer: consumer,
		Cleanup: func() {
			_ = consumer.Close()
			_ = producer.Close()
		},
	}
}

// seedRoom creates an active room type priced at basePrice per night.
func seedRoom(t *testing.T, stack *bookingStack, basePrice int64, units int) uuid.UUID {
	t.Helper()
	room, err := stack.Rooms.CreateRoom(context.Background(), application.RoomRequest{
		Name:       "Garden Villa " + uuid.NewString()[:6],
		Capacity:   4,
		BasePrice:  basePrice,
		TotalUnits: units,
	})
	require.NoError(t, err, "failed to seed room")
	return room.ID
}

// stayDates returns check-in/check-out strings starting daysAhead from today.
func stayDates(daysAhead, nights int) (string, string) {
	in := time.Now().UTC().AddDate(0, 0, daysAhead)
	return in.Format("2006-01-02"), in.AddDate(0, 0, nights).Format("2006-01-02")
}

// transfer builds an incoming SePay notification.
func transfer(id int64, amount int64, content string) application.SePayWebhookRequest {
	return application.SePayWebhookRequest{
		ID:              id,
		Gateway:         "Vietcombank",
		TransactionDate: time.Now().Format("2006-01-02 15:04:05"),
		AccountNumber:   "0123456789",
		Content:         content,
		TransferType:    "in",
		TransferAmount:  amount,
		ReferenceCode:   fmt.Sprintf("FT%d", id),
	}
}

// waitForBooking polls the bookings table until the status matches.
func waitForBooking(t *testing.T, db *gorm.DB, code, expectedStatus string, timeout time.Duration) repository.BookingModel {
	t.Helper()
	var result repository.BookingModel
	require.Eventually(t, func() bool {
		var model repository.BookingModel
		if err := db.Where("code = ?", code).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type for subject.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType, subject string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType && ce.Subject == subject {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}

// mailbox records every email the notifier sends.
type mailbox struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (m *mailbox) SendEmail(_ context.Context, to, subject, body string) (notification.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return notification.SendResult{MessageID: uuid.NewString(), SentAt: time.Now()}, nil
}

func (m *mailbox) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Subject
	}
	return out
}
