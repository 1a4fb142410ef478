// Package odds converts between American and decimal odds and sizes
// stakes with a bounded fractional Kelly criterion.
package odds

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// AmericanToDecimal converts American odds to decimal odds.
// +150 pays 2.50, -110 pays 1.9091.
func AmericanToDecimal(american int) (float64, error) {
	if american > -100 && american < 100 {
		return 0, fmt.Errorf("invalid american odds %d: magnitude must be >= 100", american)
	}
	if american > 0 {
		return float64(american)/100.0 + 1.0, nil
	}
	return 100.0/float64(-american) + 1.0, nil
}

// DecimalToAmerican converts decimal odds to the nearest American odds.
func DecimalToAmerican(dec float64) (int, error) {
	if dec <= 1.0 {
		return 0, fmt.Errorf("invalid decimal odds %.4f: must be > 1.0", dec)
	}
	if dec >= 2.0 {
		return int(math.Round((dec - 1.0) * 100.0)), nil
	}
	return int(math.Round(-100.0 / (dec - 1.0))), nil
}

// ImpliedProbability returns the bookmaker's implied win probability for
// American odds, vig included.
func ImpliedProbability(american int) (float64, error) {
	dec, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}
	return 1.0 / dec, nil
}

// NoVigPair strips the vig from a two-way market by proportional
// normalization and returns the fair probabilities for both sides.
func NoVigPair(american1, american2 int) (fair1, fair2 float64, err error) {
	p1, err := ImpliedProbability(american1)
	if err != nil {
		return 0, 0, err
	}
	p2, err := ImpliedProbability(american2)
	if err != nil {
		return 0, 0, err
	}
	total := p1 + p2
	if total <= 1.0 {
		return 0, 0, fmt.Errorf("market %d/%d carries no vig", american1, american2)
	}
	return p1 / total, p2 / total, nil
}

// CLV returns the closing line value as a percentage: how much better the
// entry price was than the closing price. Positive CLV means the market
// moved toward the bet after entry.
func CLV(entryAmerican, closeAmerican int) (float64, error) {
	entry, err := AmericanToDecimal(entryAmerican)
	if err != nil {
		return 0, err
	}
	closing, err := AmericanToDecimal(closeAmerican)
	if err != nil {
		return 0, err
	}
	return (entry/closing - 1.0) * 100.0, nil
}

// ProfitUnits returns the profit in units for a winning stake at the given
// American odds. A losing stake forfeits the stake itself.
func ProfitUnits(stakeUnits float64, american int) (float64, error) {
	dec, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}
	profit := decimal.NewFromFloat(stakeUnits).Mul(decimal.NewFromFloat(dec - 1.0))
	f, _ := profit.Round(2).Float64()
	return f, nil
}

// Sizer sizes stakes with a fractional Kelly criterion. Stakes are
// expressed in units, one unit being 1% of bankroll.
type Sizer struct {
	kellyFrac decimal.Decimal
	minUnits  decimal.Decimal
	maxUnits  decimal.Decimal
}

// SizerConfig configures a Sizer.
type SizerConfig struct {
	KellyFrac float64 // fraction of full Kelly, default 0.25
	MinUnits  float64 // smallest stake, default 0.5
	MaxUnits  float64 // largest stake, default 3.0
}

// DefaultSizerConfig returns the quarter-Kelly defaults.
func DefaultSizerConfig() *SizerConfig {
	return &SizerConfig{
		KellyFrac: 0.25,
		MinUnits:  0.5,
		MaxUnits:  3.0,
	}
}

// NewSizer creates a Sizer, falling back to defaults for unset values.
func NewSizer(config *SizerConfig) *Sizer {
	if config == nil {
		config = DefaultSizerConfig()
	}

	defaults := DefaultSizerConfig()
	if config.KellyFrac == 0 {
		config.KellyFrac = defaults.KellyFrac
	}
	if config.MinUnits == 0 {
		config.MinUnits = defaults.MinUnits
	}
	if config.MaxUnits == 0 {
		config.MaxUnits = defaults.MaxUnits
	}

	return &Sizer{
		kellyFrac: decimal.NewFromFloat(config.KellyFrac),
		minUnits:  decimal.NewFromFloat(config.MinUnits),
		maxUnits:  decimal.NewFromFloat(config.MaxUnits),
	}
}

// Units returns the stake for a bet with model win probability winProb at
// the given American odds.
//
// The full Kelly fraction for decimal odds d is
//
//	f* = (q*d - 1) / (d - 1)
//
// scaled by the configured Kelly fraction, converted to units and clamped
// to [MinUnits, MaxUnits]. A zero or negative Kelly fraction returns 0:
// the bet has no edge at this price.
func (s *Sizer) Units(winProb float64, american int) (float64, error) {
	if winProb <= 0 || winProb >= 1 {
		return 0, fmt.Errorf("win probability %.4f out of range (0, 1)", winProb)
	}

	dec, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}

	d := decimal.NewFromFloat(dec)
	q := decimal.NewFromFloat(winProb)
	one := decimal.NewFromInt(1)

	numer := q.Mul(d).Sub(one)
	if !numer.IsPositive() {
		return 0, nil
	}
	kelly := numer.Div(d.Sub(one))

	units := s.kellyFrac.Mul(kelly).Mul(decimal.NewFromInt(100))
	if units.LessThan(s.minUnits) {
		units = s.minUnits
	}
	if units.GreaterThan(s.maxUnits) {
		units = s.maxUnits
	}

	f, _ := units.Round(1).Float64()
	return f, nil
}
