// Package amount converts between merchant-facing decimal amounts and on-ledger raw units.
package amount

import (
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// MaxDecimals bounds token precision; a uint256 holds at most 77 decimal digits.
const MaxDecimals = 77

var (
	decimalPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
	rawPattern     = regexp.MustCompile(`^\d+$`)
)

// Parse validates a non-negative decimal string such as "10.00".
func Parse(s string) (decimal.Decimal, error) {
	if !decimalPattern.MatchString(s) {
		return decimal.Decimal{}, domain.NewError(domain.KindInvalidAmount,
			"not a non-negative decimal", map[string]any{"amount": s})
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, domain.NewError(domain.KindInvalidAmount, err.Error(),
			map[string]any{"amount": s})
	}
	return d, nil
}

// ToRawUnits returns amount * 10^decimals as a base-10 integer string.
//
// Amounts that would lose precision (non-zero digits beyond the token's precision) are
// rejected with InvalidAmount rather than truncated or rounded. Trailing zeros are fine:
// "10.00" with 0 decimals is "10".
func ToRawUnits(amount string, decimals int32) (string, error) {
	if err := checkDecimals(decimals); err != nil {
		return "", err
	}
	d, err := Parse(amount)
	if err != nil {
		return "", err
	}

	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", domain.NewError(domain.KindInvalidAmount, "more fractional digits than token precision",
			map[string]any{"amount": amount, "decimals": decimals})
	}
	return shifted.BigInt().String(), nil
}

// FromRawUnits is the inverse of ToRawUnits.
func FromRawUnits(raw string, decimals int32) (decimal.Decimal, error) {
	if err := checkDecimals(decimals); err != nil {
		return decimal.Decimal{}, err
	}
	n, ok := ParseRaw(raw)
	if !ok {
		return decimal.Decimal{}, domain.NewError(domain.KindInvalidAmount, "raw amount is not an unsigned integer",
			map[string]any{"raw": raw})
	}
	return decimal.NewFromBigInt(n, -decimals), nil
}

// ParseRaw parses an unsigned base-10 integer.
func ParseRaw(raw string) (*big.Int, bool) {
	if !rawPattern.MatchString(raw) {
		return nil, false
	}
	return new(big.Int).SetString(raw, 10)
}

// Sum adds decimal amounts exactly.
func Sum(amounts []string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range amounts {
		d, err := Parse(a)
		if err != nil {
			return decimal.Decimal{}, err
		}
		total = total.Add(d)
	}
	return total, nil
}

func checkDecimals(decimals int32) error {
	if decimals < 0 || decimals > MaxDecimals {
		return domain.NewError(domain.KindInvalidAmount, "token decimals out of range",
			map[string]any{"decimals": decimals})
	}
	return nil
}
