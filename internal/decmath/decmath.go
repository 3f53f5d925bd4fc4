// Package decmath implements exact decimal arithmetic on strings.
//
// Monetary amounts and allocation fractions travel through the system as
// decimal strings so repeated additions over an unbounded asset count never
// accumulate binary floating-point error. Every function returns a canonical
// string (no trailing fractional zeros, no negative zero) so outputs compare
// and serialize predictably. Division by zero returns "0" instead of failing,
// which keeps allocation math total.
package decmath

import (
	"strings"

	"github.com/shopspring/decimal"
)

// divPrecision is the internal scale used for divisions and roots.
const divPrecision = 24

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

func parse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return zero
	}
	return d
}

func canonical(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" || s == "" {
		s = "0"
	}
	return s
}

func Add(a, b string) string {
	return canonical(parse(a).Add(parse(b)))
}

func Sub(a, b string) string {
	return canonical(parse(a).Sub(parse(b)))
}

func Mul(a, b string) string {
	return canonical(parse(a).Mul(parse(b)))
}

// Div divides a by b at divPrecision fractional digits. b == 0 yields "0".
func Div(a, b string) string {
	den := parse(b)
	if den.IsZero() {
		return "0"
	}
	return canonical(parse(a).DivRound(den, divPrecision))
}

// FloorTo truncates v toward negative infinity at the given number of
// fractional digits.
func FloorTo(v string, places int32) string {
	return canonical(parse(v).RoundFloor(places))
}

// CeilTo rounds v toward positive infinity at the given number of
// fractional digits.
func CeilTo(v string, places int32) string {
	return canonical(parse(v).RoundCeil(places))
}

// MinOf returns the numerically smallest operand, or "0" when called with
// no operands.
func MinOf(vals ...string) string {
	if len(vals) == 0 {
		return "0"
	}
	min := parse(vals[0])
	for _, v := range vals[1:] {
		if d := parse(v); d.LessThan(min) {
			min = d
		}
	}
	return canonical(min)
}

// MaxOf returns the numerically largest operand, or "0" when called with
// no operands.
func MaxOf(vals ...string) string {
	if len(vals) == 0 {
		return "0"
	}
	max := parse(vals[0])
	for _, v := range vals[1:] {
		if d := parse(v); d.GreaterThan(max) {
			max = d
		}
	}
	return canonical(max)
}

// Allocation returns portion/total as a fraction, "0" when total is zero.
func Allocation(portion, total string) string {
	return Div(portion, total)
}

// Percentage returns 100*portion/total rounded to the given number of
// fractional digits, "0" when total is zero.
func Percentage(portion, total string, places int32) string {
	den := parse(total)
	if den.IsZero() {
		return "0"
	}
	pct := parse(portion).DivRound(den, divPrecision).Mul(hundred)
	return canonical(pct.Round(places))
}

// GainPercentage returns 100*(result/original - 1) rounded to the given
// number of fractional digits, "0" when original is zero.
func GainPercentage(result, original string, places int32) string {
	den := parse(original)
	if den.IsZero() {
		return "0"
	}
	gain := parse(result).DivRound(den, divPrecision).Sub(decimal.NewFromInt(1)).Mul(hundred)
	return canonical(gain.Round(places))
}

// StdDev returns the population standard deviation of the values.
func StdDev(vals []string) string {
	n := int64(len(vals))
	if n == 0 {
		return "0"
	}
	count := decimal.NewFromInt(n)
	sum := zero
	parsed := make([]decimal.Decimal, 0, len(vals))
	for _, v := range vals {
		d := parse(v)
		parsed = append(parsed, d)
		sum = sum.Add(d)
	}
	mean := sum.DivRound(count, divPrecision)
	variance := zero
	for _, d := range parsed {
		diff := d.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.DivRound(count, divPrecision)
	if variance.IsZero() {
		return "0"
	}
	root, err := variance.PowWithPrecision(half, divPrecision)
	if err != nil {
		return "0"
	}
	return canonical(root)
}
