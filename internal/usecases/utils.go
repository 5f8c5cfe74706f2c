package usecases

import (
	"strings"

	"github.com/volatiletech/null/v8"
	"stablepay.backend/internal/domain/entities"
	"stablepay.backend/pkg/amount"
)

func nullString(s string) null.String {
	return null.NewString(s, strings.TrimSpace(s) != "")
}

// DisplayAmount renders a record's base-unit amount for its token, e.g.
// "1000000" USDC -> "1.00". Unknown tokens fall back to the raw amount.
func DisplayAmount(record *entities.PaymentRecord) string {
	token, ok := entities.FindToken(record.ChainID, record.TokenContract)
	if !ok {
		return record.Amount
	}
	formatted, err := amount.FormatUnits(record.Amount, token.Decimals)
	if err != nil {
		return record.Amount
	}
	return formatted
}
