package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"stablepay.backend/internal/domain/entities"
)

// PaymentRecordRepository defines payment record data operations
type PaymentRecordRepository interface {
	Create(ctx context.Context, record *entities.PaymentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentRecord, error)
	// GetByUserID lists records where the user is payer or payee, newest first.
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.PaymentRecord, int, error)
	// SetTransactionID stores the provider transaction id of an executed intent.
	SetTransactionID(ctx context.Context, id uuid.UUID, transactionID string) error
	// UpdateStatus applies one status write atomically. It returns
	// ErrTerminalStatus without writing when the record is already confirmed or failed.
	UpdateStatus(ctx context.Context, id uuid.UUID, update entities.PaymentStatusUpdate) error
	// ListStale returns executed records (transaction id set) still pending or
	// monitoring that were last updated before cutoff, oldest first.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*entities.PaymentRecord, error)
}
