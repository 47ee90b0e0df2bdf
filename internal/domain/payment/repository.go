package payment

import (
	"context"

	"github.com/google/uuid"
)

// TransactionRepository defines the persistence contract for received transfers.
type TransactionRepository interface {
	// Exists reports whether the provider already delivered this transaction.
	Exists(ctx context.Context, provider, providerTxnID string) (bool, error)

	// ListByBooking returns the transfers of a booking, oldest first.
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*Transaction, error)
}
