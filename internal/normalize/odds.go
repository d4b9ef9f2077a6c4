// Package normalize converts raw provider payloads into canonical OddsQuote
// values. Odds from any provider format (American, Decimal, Fractional) are
// converted to decimal odds — the stake-inclusive payout multiplier — at the
// boundary, using exact decimal arithmetic throughout.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// OddsFormat names a provider's odds notation.
type OddsFormat string

const (
	FormatDecimal    OddsFormat = "decimal"
	FormatAmerican   OddsFormat = "american"
	FormatFractional OddsFormat = "fractional"
)

// divScale is the precision used for odds divisions. Conversions that divide
// (American negative, fractional) round to this many places; it is far beyond
// any book's quoting precision, so round-trips recover the original value.
const divScale = 12

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// AmericanToDecimal converts American odds to decimal odds.
// +150 -> 2.5, -200 -> 1.5. Values in (-100, 100) are not valid American odds.
func AmericanToDecimal(american int64) (decimal.Decimal, error) {
	if american >= -99 && american <= 99 {
		return decimal.Zero, fmt.Errorf("american odds %d out of range", american)
	}
	a := decimal.NewFromInt(american)
	if american > 0 {
		return a.Div(hundred).Add(one), nil
	}
	return hundred.DivRound(a.Neg(), divScale).Add(one), nil
}

// DecimalToAmerican converts decimal odds back to American. Used by the
// provider-facing formatters and the round-trip tests.
func DecimalToAmerican(dec decimal.Decimal) (int64, error) {
	if dec.LessThanOrEqual(one) {
		return 0, fmt.Errorf("decimal odds %s must be > 1", dec)
	}
	if dec.GreaterThanOrEqual(decimal.NewFromInt(2)) {
		return dec.Sub(one).Mul(hundred).Round(0).IntPart(), nil
	}
	return hundred.DivRound(dec.Sub(one), 0).Neg().IntPart(), nil
}

// FractionalToDecimal converts fractional odds to decimal odds.
// 3/2 -> 2.5, 1/4 -> 1.25.
func FractionalToDecimal(num, den int64) (decimal.Decimal, error) {
	if num <= 0 || den <= 0 {
		return decimal.Zero, fmt.Errorf("fractional odds %d/%d must be positive", num, den)
	}
	return decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), divScale).Add(one), nil
}

// ParseOdds converts a raw odds string in the given format to decimal odds.
func ParseOdds(format OddsFormat, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty odds value")
	}

	switch format {
	case FormatDecimal, "":
		dec, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("decimal odds %q: %w", raw, err)
		}
		if dec.LessThanOrEqual(one) {
			return decimal.Zero, fmt.Errorf("decimal odds %s must be > 1", dec)
		}
		return dec, nil

	case FormatAmerican:
		raw = strings.TrimPrefix(raw, "+")
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return decimal.Zero, fmt.Errorf("american odds %q: %w", raw, err)
		}
		return AmericanToDecimal(n)

	case FormatFractional:
		num, den, err := splitFraction(raw)
		if err != nil {
			return decimal.Zero, err
		}
		return FractionalToDecimal(num, den)

	default:
		return decimal.Zero, fmt.Errorf("unknown odds format %q", format)
	}
}

func splitFraction(raw string) (int64, int64, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("fractional odds %q: want num/den", raw)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("fractional odds %q: %w", raw, err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("fractional odds %q: %w", raw, err)
	}
	return num, den, nil
}
