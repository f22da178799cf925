// Package scoredecimal provides fixed-precision arithmetic for scoring
// values: ICPC penalty minutes and Hackathon points earned. Plain float64
// is not good enough here; 0.1 + 0.2 != 0.3, and summing many small
// partial-credit fractions across a contest accumulates that error.
package scoredecimal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Points represents a Hackathon partial-credit score component, rounded to
// two decimal places for display and storage.
type Points struct {
	value decimal.Decimal
}

// PenaltyMinutes represents an ICPC penalty-minute total.
type PenaltyMinutes struct {
	value decimal.Decimal
}

// NewPoints creates Points from a string, e.g. "37.50".
func NewPoints(s string) (Points, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Points{}, fmt.Errorf("invalid points: %w", err)
	}
	return Points{value: d}, nil
}

// NewPointsFromFloat creates Points from a float64 fraction (0.0-1.0) times
// a maximum value, rounded to two decimal places.
func NewPointsFromFloat(fraction, maxPoints float64) Points {
	f := decimal.NewFromFloat(fraction)
	m := decimal.NewFromFloat(maxPoints)
	return Points{value: f.Mul(m).Round(2)}
}

// ZeroPoints returns a zero Points value.
func ZeroPoints() Points {
	return Points{value: decimal.Zero}
}

// NewPenaltyMinutesFromInt creates PenaltyMinutes from a whole number of
// minutes, as ICPC style scoring always deals in.
func NewPenaltyMinutesFromInt(minutes int64) PenaltyMinutes {
	return PenaltyMinutes{value: decimal.NewFromInt(minutes)}
}

// ZeroPenaltyMinutes returns a zero PenaltyMinutes value.
func ZeroPenaltyMinutes() PenaltyMinutes {
	return PenaltyMinutes{value: decimal.Zero}
}

// Add adds two Points values.
func (p Points) Add(other Points) Points {
	return Points{value: p.value.Add(other.value).Round(2)}
}

// Cmp compares two Points values, same semantics as decimal.Decimal.Cmp.
func (p Points) Cmp(other Points) int {
	return p.value.Cmp(other.value)
}

// IsZero reports whether the value is zero.
func (p Points) IsZero() bool {
	return p.value.IsZero()
}

// Float64 returns the float64 representation, for JSON responses and test
// assertions only; never feed it back into scoring arithmetic.
func (p Points) Float64() float64 {
	f, _ := p.value.Float64()
	return f
}

// String returns the fixed two-decimal string representation.
func (p Points) String() string {
	return p.value.StringFixed(2)
}

// MarshalJSON renders Points as a JSON number, matching the precision of
// String.
func (p Points) MarshalJSON() ([]byte, error) {
	return []byte(p.value.StringFixed(2)), nil
}

// UnmarshalJSON parses Points from a JSON number or string.
func (p *Points) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	p.value = d.Round(2)
	return nil
}

// Add adds two PenaltyMinutes values.
func (pm PenaltyMinutes) Add(other PenaltyMinutes) PenaltyMinutes {
	return PenaltyMinutes{value: pm.value.Add(other.value)}
}

// Cmp compares two PenaltyMinutes values.
func (pm PenaltyMinutes) Cmp(other PenaltyMinutes) int {
	return pm.value.Cmp(other.value)
}

// Int64 returns the whole-minute integer value.
func (pm PenaltyMinutes) Int64() int64 {
	return pm.value.IntPart()
}

// String returns the integer string representation.
func (pm PenaltyMinutes) String() string {
	return pm.value.String()
}

// MarshalJSON renders PenaltyMinutes as a JSON integer.
func (pm PenaltyMinutes) MarshalJSON() ([]byte, error) {
	return []byte(pm.value.StringFixed(0)), nil
}

// UnmarshalJSON parses PenaltyMinutes from a JSON number.
func (pm *PenaltyMinutes) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	pm.value = d
	return nil
}

// MinutesBetween converts the seconds elapsed between a contest's start
// and a submission into whole penalty minutes, truncating any partial
// minute, which is the standard ICPC rounding rule.
func MinutesBetween(elapsedSeconds int64) PenaltyMinutes {
	return PenaltyMinutes{value: decimal.NewFromInt(elapsedSeconds / 60)}
}
