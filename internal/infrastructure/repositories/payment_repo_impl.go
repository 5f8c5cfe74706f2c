package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/infrastructure/models"
	"stablepay.backend/pkg/utils"
)

var terminalStatuses = []string{
	string(entities.PaymentStatusConfirmed),
	string(entities.PaymentStatusFailed),
}

var unsettledStatuses = []string{
	string(entities.PaymentStatusPending),
	string(entities.PaymentStatusMonitoring),
}

// PaymentRecordRepository implements payment record data operations
type PaymentRecordRepository struct {
	db *gorm.DB
}

// NewPaymentRecordRepository creates a new payment record repository
func NewPaymentRecordRepository(db *gorm.DB) *PaymentRecordRepository {
	return &PaymentRecordRepository{db: db}
}

// Create inserts a new record. Status is forced to pending.
func (r *PaymentRecordRepository) Create(ctx context.Context, record *entities.PaymentRecord) error {
	now := time.Now()
	if record.ID == uuid.Nil {
		record.ID = utils.GenerateUUIDv7()
	}
	record.Status = entities.PaymentStatusPending
	record.TransactionHash = null.String{}
	record.ConfirmedAt = nil
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	m := &models.PaymentRecord{
		ID:            record.ID,
		PayerID:       record.PayerID,
		PayeeID:       record.PayeeID,
		PayerAddress:  record.PayerAddress,
		PayeeAddress:  record.PayeeAddress,
		Amount:        record.Amount,
		TokenContract: record.TokenContract,
		TokenSymbol:   record.TokenSymbol,
		ChainID:       record.ChainID,
		TransactionID: record.TransactionID.Ptr(),
		Message:       record.Message,
		Status:        string(record.Status),
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}

	return r.db.WithContext(ctx).Create(m).Error
}

// GetByID gets a payment record by ID
func (r *PaymentRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentRecord, error) {
	var m models.PaymentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toEntity(&m), nil
}

// GetByUserID gets sent and received payment records with pagination
func (r *PaymentRecordRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.PaymentRecord, int, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("payer_id = ? OR payee_id = ?", userID, userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("payer_id = ? OR payee_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	records := make([]*entities.PaymentRecord, 0, len(ms))
	for i := range ms {
		records = append(records, toEntity(&ms[i]))
	}
	return records, int(total), nil
}

// SetTransactionID stores the provider transaction id on a non-terminal record.
func (r *PaymentRecordRepository) SetTransactionID(ctx context.Context, id uuid.UUID, transactionID string) error {
	result := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"transaction_id": transactionID,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

// UpdateStatus writes a status in a single guarded UPDATE so a terminal
// record is never overwritten, even by concurrent writers.
func (r *PaymentRecordRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update entities.PaymentStatusUpdate) error {
	if !update.Status.IsValid() {
		return domainerrors.ErrInvalidInput
	}

	now := time.Now()
	values := map[string]interface{}{
		"status":     string(update.Status),
		"updated_at": now,
	}
	if update.Status == entities.PaymentStatusConfirmed {
		values["confirmed_at"] = now
		if update.TransactionHash.Valid {
			values["transaction_hash"] = update.TransactionHash.String
		}
	}
	if update.FailureReason.Valid {
		values["failure_reason"] = update.FailureReason.String
	}

	result := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

// ListStale finds executed records nobody settled, e.g. because their session
// died with the process before or after the first poll.
func (r *PaymentRecordRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*entities.PaymentRecord, error) {
	var ms []models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND transaction_id IS NOT NULL AND updated_at < ?", unsettledStatuses, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}

	records := make([]*entities.PaymentRecord, 0, len(ms))
	for i := range ms {
		records = append(records, toEntity(&ms[i]))
	}
	return records, nil
}

func (r *PaymentRecordRepository) missOrTerminal(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domainerrors.ErrNotFound
	}
	return domainerrors.ErrTerminalStatus
}

func toEntity(m *models.PaymentRecord) *entities.PaymentRecord {
	return &entities.PaymentRecord{
		ID:              m.ID,
		PayerID:         m.PayerID,
		PayeeID:         m.PayeeID,
		PayerAddress:    m.PayerAddress,
		PayeeAddress:    m.PayeeAddress,
		Amount:          m.Amount,
		TokenContract:   m.TokenContract,
		TokenSymbol:     m.TokenSymbol,
		ChainID:         m.ChainID,
		TransactionID:   null.StringFromPtr(m.TransactionID),
		TransactionHash: null.StringFromPtr(m.TransactionHash),
		Message:         m.Message,
		Status:          entities.PaymentStatus(m.Status),
		FailureReason:   null.StringFromPtr(m.FailureReason),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		ConfirmedAt:     m.ConfirmedAt,
	}
}
