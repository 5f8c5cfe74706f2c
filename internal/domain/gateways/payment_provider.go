package gateways

import (
	"context"

	"stablepay.backend/internal/domain/entities"
)

// PaymentProvider is the external wallet/payment API that owns every
// on-chain operation.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, creds entities.ProviderCredentials, input entities.CreateIntentInput) (*entities.PaymentIntent, error)
	// ExecutePayment returns a FundingRequired result, not an error, when the
	// payer's wallet cannot cover the intent.
	ExecutePayment(ctx context.Context, creds entities.ProviderCredentials, intentID, payerAddress string) (*entities.ExecutionResult, error)
	GetTransactionStatus(ctx context.Context, creds entities.ProviderCredentials, transactionID string) (*entities.TransactionStatus, error)
}
