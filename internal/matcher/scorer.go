package matcher

import (
	"fmt"
	"sort"
	"strings"

	"trade-reconciliation-engine/internal/models"
	"trade-reconciliation-engine/internal/normalize"
	"trade-reconciliation-engine/pkg/errors"
	"trade-reconciliation-engine/pkg/logger"
)

// PairScore is the scored comparison of one confirmation candidate against
// one open trade. Rejected pairs never compete for selection; the rejection
// reason is kept for audit.
type PairScore struct {
	Trade     *models.TradeRecord
	Candidate *models.ConfirmationCandidate

	Score   int
	Reasons []string

	CounterpartyMatched bool
	TradeDateMatched    bool
	CurrencyMatched     bool
	AmountMatched       bool

	Rejected     bool
	RejectReason string
}

// Eligible reports whether the pair passed both gates and cleared the
// given match threshold.
func (p *PairScore) Eligible(matchThreshold int) bool {
	return !p.Rejected && p.Score >= matchThreshold
}

// Scorer computes weighted similarity scores between confirmation
// candidates and open trades.
type Scorer struct {
	config *Config
	log    logger.Logger
}

// NewScorer creates a scorer, validating the configuration first. An
// invalid configuration is fatal: the scorer refuses to run with undefined
// weights.
func NewScorer(config *Config, log logger.Logger) (*Scorer, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "matcher config", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matcher config", err)
	}
	if log == nil {
		log = logger.Global()
	}
	return &Scorer{
		config: config.Clone(),
		log:    log.WithComponent("scorer"),
	}, nil
}

// Config returns a copy of the scorer's configuration.
func (s *Scorer) Config() *Config {
	return s.config.Clone()
}

// Score compares one candidate against one open trade. identifiedCpty is
// the canonical counterparty name resolved from the sender, or empty when
// identification failed; an unidentified counterparty earns no counterparty
// points but does not abort scoring.
func (s *Scorer) Score(candidate *models.ConfirmationCandidate, trade *models.TradeRecord, identifiedCpty string) *PairScore {
	pair := &PairScore{
		Trade:     trade,
		Candidate: candidate,
	}

	candidateFields := candidate.ComparableFields()
	tradeFields := trade.ComparableFields()

	// Currency gate first: without currency identity the pair is not a
	// candidate at all and no score is computed.
	exact, reversed := currencyPairMatch(
		candidateFields[models.FieldCurrency1], candidateFields[models.FieldCurrency2],
		tradeFields[models.FieldCurrency1], tradeFields[models.FieldCurrency2],
	)
	if !exact && !reversed {
		pair.Rejected = true
		pair.RejectReason = fmt.Sprintf("currency pair mismatch: %s/%s vs %s/%s",
			candidate.Currency1, candidate.Currency2, trade.Currency1, trade.Currency2)
		s.log.WithFields(logger.Fields{
			"trade_id":  trade.ID,
			"candidate": candidate.ExternalReference,
			"reason":    pair.RejectReason,
		}).Debug("pair rejected by currency gate")
		return pair
	}

	pair.CurrencyMatched = true
	if exact {
		pair.Score += s.config.Weights.CurrencyPairExact
		pair.Reasons = append(pair.Reasons, fmt.Sprintf("currency pair exact match (+%d)", s.config.Weights.CurrencyPairExact))
	} else {
		pair.Score += s.config.Weights.CurrencyPairReversed
		pair.Reasons = append(pair.Reasons, fmt.Sprintf("currency pair reversed match (+%d)", s.config.Weights.CurrencyPairReversed))
	}

	// Counterparty dimension, driven by sender identification.
	if identifiedCpty != "" {
		identified := normalize.String(identifiedCpty)
		tradeCpty := tradeFields[models.FieldCounterpartyName]
		switch {
		case identified.Equal(tradeCpty):
			pair.CounterpartyMatched = true
			pair.Score += s.config.Weights.CounterpartyExact
			pair.Reasons = append(pair.Reasons, fmt.Sprintf("counterparty exact match (+%d)", s.config.Weights.CounterpartyExact))
		case counterpartyPartialMatch(identified, tradeCpty):
			pair.CounterpartyMatched = true
			pair.Score += s.config.Weights.CounterpartyPartial
			pair.Reasons = append(pair.Reasons, fmt.Sprintf("counterparty partial match (+%d)", s.config.Weights.CounterpartyPartial))
		}
	}

	// Trade date dimension.
	if candidateFields[models.FieldTradeDate].Equal(tradeFields[models.FieldTradeDate]) {
		pair.TradeDateMatched = true
		pair.Score += s.config.Weights.TradeDateExact
		pair.Reasons = append(pair.Reasons, fmt.Sprintf("trade date exact match (+%d)", s.config.Weights.TradeDateExact))
	}

	// Principal amount dimension, with the close-match tolerance band.
	candidateAmount := candidateFields[models.FieldPrincipalAmount]
	tradeAmount := tradeFields[models.FieldPrincipalAmount]
	switch {
	case candidateAmount.Equal(tradeAmount):
		pair.AmountMatched = true
		pair.Score += s.config.Weights.AmountExact
		pair.Reasons = append(pair.Reasons, fmt.Sprintf("principal amount exact match (+%d)", s.config.Weights.AmountExact))
	case candidateAmount.WithinRelativeTolerance(tradeAmount, s.config.AmountClosePercent):
		pair.AmountMatched = true
		pair.Score += s.config.Weights.AmountClose
		pair.Reasons = append(pair.Reasons, fmt.Sprintf("principal amount within %s%% tolerance (+%d)", s.config.AmountClosePercent, s.config.Weights.AmountClose))
	}

	// Critical-fields gate: enough independent evidence must agree.
	critical := 0
	for _, matched := range []bool{pair.CounterpartyMatched, pair.TradeDateMatched, pair.CurrencyMatched} {
		if matched {
			critical++
		}
	}
	if critical < s.config.CriticalFieldsRequired {
		pair.Rejected = true
		pair.RejectReason = fmt.Sprintf("critical fields gate: only %d of %d required dimensions matched", critical, s.config.CriticalFieldsRequired)
		s.log.WithFields(logger.Fields{
			"trade_id":  trade.ID,
			"candidate": candidate.ExternalReference,
			"score":     pair.Score,
			"reason":    pair.RejectReason,
		}).Debug("pair rejected by critical fields gate")
		return pair
	}

	return pair
}

// ScoreAll scores a candidate against every trade in the open-trade
// snapshot, returning eligible and rejected pairs with eligible pairs
// sorted best-first (deterministic tie order: oldest trade, then trade ID).
func (s *Scorer) ScoreAll(candidate *models.ConfirmationCandidate, trades []*models.TradeRecord, identifiedCpty string) []*PairScore {
	pairs := make([]*PairScore, 0, len(trades))
	for _, trade := range trades {
		pairs = append(pairs, s.Score(candidate, trade, identifiedCpty))
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Rejected != b.Rejected {
			return !a.Rejected
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Trade.CreatedAt.Equal(b.Trade.CreatedAt) {
			return a.Trade.CreatedAt.Before(b.Trade.CreatedAt)
		}
		return a.Trade.ID < b.Trade.ID
	})

	return pairs
}

// currencyPairMatch compares two normalized currency pairs, reporting
// exact and reversed agreement. Absent currencies never match.
func currencyPairMatch(c1, c2, t1, t2 normalize.Value) (exact, reversed bool) {
	exact = c1.Equal(t1) && c2.Equal(t2)
	reversed = !exact && c1.Equal(t2) && c2.Equal(t1)
	return exact, reversed
}

// counterpartyPartialMatch reports whether one normalized name contains the
// other, in either direction.
func counterpartyPartialMatch(a, b normalize.Value) bool {
	if a.IsAbsent() || b.IsAbsent() {
		return false
	}
	left := strings.ToLower(a.Display)
	right := strings.ToLower(b.Display)
	return strings.Contains(left, right) || strings.Contains(right, left)
}
