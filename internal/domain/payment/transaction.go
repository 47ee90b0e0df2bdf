package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ProviderSePay identifies bank transfers reported by the SePay webhook.
const ProviderSePay = "sepay"

// ErrDuplicateTransaction is returned when a provider transaction id is stored twice.
var ErrDuplicateTransaction = errors.New("transaction already processed")

// Transaction is one incoming bank transfer matched to a booking. The provider
// transaction id is unique, which makes webhook redelivery idempotent.
type Transaction struct {
	id            uuid.UUID
	bookingID     uuid.UUID
	provider      string
	providerTxnID string
	amount        int64
	reference     string
	receivedAt    time.Time
	createdAt     time.Time
}

// NewTransaction records a transfer for bookingID.
func NewTransaction(bookingID uuid.UUID, provider, providerTxnID string, amount int64, reference string, receivedAt time.Time) *Transaction {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return &Transaction{
		id:            uuid.New(),
		bookingID:     bookingID,
		provider:      provider,
		providerTxnID: providerTxnID,
		amount:        amount,
		reference:     reference,
		receivedAt:    receivedAt,
		createdAt:     time.Now().UTC(),
	}
}

func (t *Transaction) ID() uuid.UUID         { return t.id }
func (t *Transaction) BookingID() uuid.UUID  { return t.bookingID }
func (t *Transaction) Provider() string      { return t.provider }
func (t *Transaction) ProviderTxnID() string { return t.providerTxnID }
func (t *Transaction) Amount() int64         { return t.amount }
func (t *Transaction) Reference() string     { return t.reference }
func (t *Transaction) ReceivedAt() time.Time { return t.receivedAt }
func (t *Transaction) CreatedAt() time.Time  { return t.createdAt }

// Reconstitute rebuilds a Transaction from persisted data.
func Reconstitute(id, bookingID uuid.UUID, provider, providerTxnID string, amount int64, reference string, receivedAt, createdAt time.Time) *Transaction {
	return &Transaction{
		id:            id,
		bookingID:     bookingID,
		provider:      provider,
		providerTxnID: providerTxnID,
		amount:        amount,
		reference:     reference,
		receivedAt:    receivedAt,
		createdAt:     createdAt,
	}
}
