package types

import (
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/shopspring/decimal"
)

// ParseNumeric parses a decimal string from the wire into a decimal.Decimal.
// Amounts and balances travel as strings so no precision is lost in transit.
func ParseNumeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("Amount must be a valid decimal string").
			WithReportableDetails(map[string]interface{}{
				"value": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return d, nil
}

// FormatNumeric renders a decimal into its wire string form. The output parses
// back to the exact same decimal value.
func FormatNumeric(d decimal.Decimal) string {
	return d.String()
}
