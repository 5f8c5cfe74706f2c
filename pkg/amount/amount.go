// Package amount converts token amounts between integer base units and
// human-readable decimal strings.
package amount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of fractional digits shown to users.
const DisplayPlaces = 2

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrTooManyDecimal = errors.New("amount has more fractional digits than the token supports")
)

// ParseBaseUnits validates a positive integer string of token base units.
func ParseBaseUnits(baseUnits string) (decimal.Decimal, error) {
	s := strings.TrimSpace(baseUnits)
	if s == "" || strings.ContainsAny(s, ".eE+-") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, baseUnits)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, baseUnits)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return d, nil
}

// FormatUnits renders base units as a display amount with DisplayPlaces
// fractional digits, e.g. ("1000000", 6) -> "1.00".
func FormatUnits(baseUnits string, decimals int) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(baseUnits))
	if err != nil || !d.Equal(d.Truncate(0)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, baseUnits)
	}
	return d.Shift(-int32(decimals)).StringFixed(DisplayPlaces), nil
}

// ParseUnits converts a display amount into base units, e.g. ("1.00", 6) -> "1000000".
func ParseUnits(display string, decimals int) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(display))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return "", fmt.Errorf("%w: %q with %d decimals", ErrTooManyDecimal, display, decimals)
	}
	return scaled.Truncate(0).String(), nil
}
