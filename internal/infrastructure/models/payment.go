package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	PayerID         uuid.UUID `gorm:"type:uuid;not null;index"`
	PayeeID         uuid.UUID `gorm:"type:uuid;not null;index"`
	PayerAddress    string    `gorm:"type:varchar(64);not null"`
	PayeeAddress    string    `gorm:"type:varchar(64);not null"`
	Amount          string    `gorm:"type:varchar(100);not null"` // base units
	TokenContract   string    `gorm:"type:varchar(64);not null"`
	TokenSymbol     string    `gorm:"type:varchar(16);not null"`
	ChainID         string    `gorm:"type:varchar(32);not null"`
	TransactionID   *string   `gorm:"type:varchar(255);index"`
	TransactionHash *string   `gorm:"type:varchar(80)"`
	Message         string    `gorm:"type:text"`
	Status          string    `gorm:"type:varchar(20);not null;index"`
	FailureReason   *string   `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}
