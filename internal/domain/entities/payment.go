package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// PaymentStatus represents payment record status
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusMonitoring PaymentStatus = "monitoring"
	PaymentStatusConfirmed  PaymentStatus = "confirmed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusMonitoring, PaymentStatusConfirmed, PaymentStatusFailed:
		return true
	}
	return false
}

// PaymentRecord is the locally persisted record of one payment attempt.
type PaymentRecord struct {
	ID              uuid.UUID     `json:"id"`
	PayerID         uuid.UUID     `json:"payerId"`
	PayeeID         uuid.UUID     `json:"payeeId"`
	PayerAddress    string        `json:"payerAddress"`
	PayeeAddress    string        `json:"payeeAddress"`
	Amount          string        `json:"amount"`
	TokenContract   string        `json:"tokenContract"`
	TokenSymbol     string        `json:"tokenSymbol"`
	ChainID         string        `json:"chainId"`
	TransactionID   null.String   `json:"transactionId"`
	TransactionHash null.String   `json:"transactionHash"`
	Message         string        `json:"message"`
	Status          PaymentStatus `json:"status"`
	FailureReason   null.String   `json:"failureReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty"`
}

// PaymentStatusUpdate is a single atomic status write for one record.
// TransactionHash is only honoured together with PaymentStatusConfirmed.
type PaymentStatusUpdate struct {
	Status          PaymentStatus
	TransactionHash null.String
	FailureReason   null.String
}

// PaymentIntent is the payment provider's representation of a proposed transfer.
type PaymentIntent struct {
	ID            string `json:"id"`
	PayerAddress  string `json:"payerAddress"`
	PayeeAddress  string `json:"payeeAddress"`
	TokenContract string `json:"tokenContract"`
	ChainID       string `json:"chainId"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	FundingLink   string `json:"fundingLink,omitempty"`
}

// CreateIntentInput carries the fields needed to request a PaymentIntent.
type CreateIntentInput struct {
	Name          string
	Description   string
	PayerAddress  string
	PayeeAddress  string
	TokenContract string
	Amount        string
	ChainID       string
}

// ExecutionOutcome tags the variant held by an ExecutionResult.
type ExecutionOutcome int

const (
	ExecutionSucceeded ExecutionOutcome = iota + 1
	ExecutionFundingRequired
)

// ExecutionResult is the non-error outcome of executing an intent.
// Provider failures are returned as errors next to a nil result.
type ExecutionResult struct {
	Outcome       ExecutionOutcome
	TransactionID string
	Status        string
	FundingLink   string
}

// TransactionStatus is the provider's view of an on-chain transaction.
type TransactionStatus struct {
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash,omitempty"`
	BlockNumber     int64  `json:"blockNumber,omitempty"`
}

// SubmitPaymentInput represents input for submitting a payment
type SubmitPaymentInput struct {
	PayeeID      string `json:"payeeId" binding:"required"`
	PayerAddress string `json:"payerAddress" binding:"required"`
	PayeeAddress string `json:"payeeAddress" binding:"required"`
	TokenAddress string `json:"tokenAddress" binding:"required"`
	ChainID      string `json:"chainId" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Message      string `json:"message"`
}

// ProviderCredentials are attached to every payment provider call.
type ProviderCredentials struct {
	AuthToken string
	ClientID  string
}

// PaymentEventKind names a workflow event streamed to the caller.
type PaymentEventKind string

const (
	PaymentEventSending       PaymentEventKind = "sending"
	PaymentEventAwaitingFunds PaymentEventKind = "awaiting-funds"
	PaymentEventMonitoring    PaymentEventKind = "monitoring"
	PaymentEventConfirmed     PaymentEventKind = "confirmed"
	PaymentEventFailed        PaymentEventKind = "failed"
)

// PaymentEvent is one step of a payment session as seen by the caller.
type PaymentEvent struct {
	Kind            PaymentEventKind `json:"kind"`
	PaymentID       uuid.UUID        `json:"paymentId"`
	FundingLink     string           `json:"fundingLink,omitempty"`
	TransactionHash string           `json:"transactionHash,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	// TimedOut marks a failure where the on-chain outcome is still unknown.
	TimedOut bool `json:"timedOut,omitempty"`
	// Degraded marks an event whose status could not be written to the database.
	Degraded  bool      `json:"degraded,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal reports whether the event closes a session.
func (e PaymentEvent) IsTerminal() bool {
	return e.Kind == PaymentEventConfirmed || e.Kind == PaymentEventFailed
}
