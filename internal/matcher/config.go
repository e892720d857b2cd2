// Package matcher implements the candidate scoring, match selection and
// discrepancy detection stages of the trade reconciliation pipeline.
//
// Scoring is a weighted sum over field agreements between one confirmation
// candidate and one open trade, subject to two gates:
//
//  1. Currency gate: a pair whose currency pair neither matches exactly nor
//     in reversed form is rejected outright. Currency identity is a
//     precondition of candidacy, not a scoring dimension, because a
//     currency-blind false match is unacceptable.
//  2. Critical-fields gate: at least two of {counterparty match, trade-date
//     match, currency match} must hold regardless of total score.
//
// Trade date and currency dominate the weights because they are hard to
// counterfeit by coincidence; the principal amount carries a tolerance band
// because minor rounding or fee-inclusion differences are expected and must
// not block a true match.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trade-reconciliation-engine/internal/models"
)

// Weights defines the points each field agreement contributes to the score.
type Weights struct {
	// CounterpartyExact is awarded when the identified counterparty equals
	// the trade's counterparty name.
	CounterpartyExact int `json:"counterparty_exact" mapstructure:"counterparty_exact"`
	// CounterpartyPartial is awarded when one name contains the other.
	CounterpartyPartial int `json:"counterparty_partial" mapstructure:"counterparty_partial"`
	// TradeDateExact is awarded when the normalized trade dates agree.
	TradeDateExact int `json:"trade_date_exact" mapstructure:"trade_date_exact"`
	// CurrencyPairExact is awarded when both currencies agree in order.
	CurrencyPairExact int `json:"currency_pair_exact" mapstructure:"currency_pair_exact"`
	// CurrencyPairReversed is awarded when the currencies agree swapped.
	CurrencyPairReversed int `json:"currency_pair_reversed" mapstructure:"currency_pair_reversed"`
	// AmountExact is awarded on an exact principal amount match.
	AmountExact int `json:"amount_exact" mapstructure:"amount_exact"`
	// AmountClose is awarded when the principal amounts differ by at most
	// the configured relative tolerance.
	AmountClose int `json:"amount_close" mapstructure:"amount_close"`
}

// Config holds the scoring weights and thresholds of the matching stage.
// The thresholds are named parameters, not hard-coded business law; an
// invalid configuration is fatal at engine construction.
type Config struct {
	Weights Weights `json:"weights" mapstructure:"weights"`

	// MatchThreshold is the minimum score for a candidate to be matchable
	// at all. Below it the confirmation ends Unrecognized.
	MatchThreshold int `json:"match_threshold" mapstructure:"match_threshold"`

	// ConfirmThreshold is the minimum score to auto-classify a match as
	// ConfirmationOK or Difference rather than NeedsReview.
	ConfirmThreshold int `json:"confirm_threshold" mapstructure:"confirm_threshold"`

	// AmountClosePercent is the relative tolerance (percent) of the
	// close-amount band, applied to both the AmountClose weight and to
	// principal-amount discrepancy detection.
	AmountClosePercent decimal.Decimal `json:"amount_close_percent" mapstructure:"amount_close_percent"`

	// CriticalFieldsRequired is how many of the three critical dimensions
	// (counterparty, trade date, currency) must match for a pair to remain
	// a candidate.
	CriticalFieldsRequired int `json:"critical_fields_required" mapstructure:"critical_fields_required"`
}

// DefaultConfig returns the production scoring configuration.
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			CounterpartyExact:    20,
			CounterpartyPartial:  15,
			TradeDateExact:       25,
			CurrencyPairExact:    30,
			CurrencyPairReversed: 25,
			AmountExact:          15,
			AmountClose:          10,
		},
		MatchThreshold:         60,
		ConfirmThreshold:       70,
		AmountClosePercent:     decimal.NewFromFloat(0.1),
		CriticalFieldsRequired: 2,
	}
}

// MaxScore is the highest attainable score: every dimension at its exact
// weight. Confidence percentages are derived against it.
func (c *Config) MaxScore() int {
	return c.Weights.CounterpartyExact +
		c.Weights.TradeDateExact +
		c.Weights.CurrencyPairExact +
		c.Weights.AmountExact
}

// Validate checks the configuration. The engine refuses to score with an
// invalid one.
func (c *Config) Validate() error {
	w := c.Weights
	for name, weight := range map[string]int{
		"counterparty_exact":     w.CounterpartyExact,
		"counterparty_partial":   w.CounterpartyPartial,
		"trade_date_exact":       w.TradeDateExact,
		"currency_pair_exact":    w.CurrencyPairExact,
		"currency_pair_reversed": w.CurrencyPairReversed,
		"amount_exact":           w.AmountExact,
		"amount_close":           w.AmountClose,
	} {
		if weight < 0 {
			return fmt.Errorf("weight %s cannot be negative: %d", name, weight)
		}
	}
	if w.CounterpartyPartial > w.CounterpartyExact {
		return fmt.Errorf("counterparty partial weight (%d) cannot exceed exact weight (%d)", w.CounterpartyPartial, w.CounterpartyExact)
	}
	if w.CurrencyPairReversed > w.CurrencyPairExact {
		return fmt.Errorf("reversed currency weight (%d) cannot exceed exact weight (%d)", w.CurrencyPairReversed, w.CurrencyPairExact)
	}
	if w.AmountClose > w.AmountExact {
		return fmt.Errorf("close amount weight (%d) cannot exceed exact weight (%d)", w.AmountClose, w.AmountExact)
	}

	if c.MatchThreshold <= 0 {
		return fmt.Errorf("match threshold must be positive: %d", c.MatchThreshold)
	}
	if c.ConfirmThreshold < c.MatchThreshold {
		return fmt.Errorf("confirm threshold (%d) cannot be below match threshold (%d)", c.ConfirmThreshold, c.MatchThreshold)
	}
	if c.ConfirmThreshold > c.MaxScore() {
		return fmt.Errorf("confirm threshold (%d) exceeds maximum attainable score (%d)", c.ConfirmThreshold, c.MaxScore())
	}
	if c.AmountClosePercent.IsNegative() {
		return fmt.Errorf("amount close tolerance cannot be negative: %s", c.AmountClosePercent)
	}
	if c.CriticalFieldsRequired < 1 || c.CriticalFieldsRequired > 3 {
		return fmt.Errorf("critical fields required must be between 1 and 3: %d", c.CriticalFieldsRequired)
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Classify derives the lifecycle status of a selected match from its score
// and discrepancy count. Callers only invoke it for pairs that already
// cleared the match threshold.
func (c *Config) Classify(score, discrepancies int) models.Status {
	if score < c.ConfirmThreshold {
		return models.StatusNeedsReview
	}
	if discrepancies == 0 {
		return models.StatusConfirmationOK
	}
	return models.StatusDifference
}

// String returns a human-readable description of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("matcher.Config{MatchThreshold: %d, ConfirmThreshold: %d, MaxScore: %d, AmountTolerance: %s%%}",
		c.MatchThreshold, c.ConfirmThreshold, c.MaxScore(), c.AmountClosePercent)
}
