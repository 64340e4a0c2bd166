// Package amounts turns a rule's amount source into a monetary amount.
package amounts

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const (
	// Scale is the number of fractional digits stored for an amount.
	Scale = 4
	// IntegerDigits is the number of digits stored left of the decimal point,
	// matching the NUMERIC(20,4) amount columns.
	IntegerDigits = 16
	// minExponent bounds the work of the scale check on hostile inputs such as
	// "1e-1000000000".
	minExponent = -64
)

// Resolve reads key from ctx as a non-negative amount that fits the ledger's
// amount columns. Numeric strings are accepted; anything else fails with
// shared.ErrMissingAmountSource.
func Resolve(ctx event.Context, key string) (decimal.Decimal, error) {
	v, ok := ctx.Get(key)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q absent", shared.ErrMissingAmountSource, key)
	}
	amount, ok := v.Decimal()
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not numeric (%s)", shared.ErrMissingAmountSource, key, v.Kind())
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is negative", shared.ErrMissingAmountSource, key)
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	// a coefficient of n digits times 10^exp is below 10^(n+exp)
	if int64(amount.NumDigits())+int64(amount.Exponent()) > IntegerDigits {
		return decimal.Decimal{}, fmt.Errorf("%w: %q exceeds %d integer digits", shared.ErrMissingAmountSource, key, IntegerDigits)
	}
	if amount.Exponent() < minExponent || !amount.Equal(amount.Truncate(Scale)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q has more than %d decimal places", shared.ErrMissingAmountSource, key, Scale)
	}
	return amount, nil
}
