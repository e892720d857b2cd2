// Package engine orchestrates the trade reconciliation pipeline: it takes
// one extraction result (one incoming confirmation, possibly several trade
// mentions), identifies the counterparty, scores every candidate against a
// consistent snapshot of open trades, selects and commits matches, detects
// discrepancies, and emits status-change intents for downstream automation.
//
// Each confirmation batch is an independent unit of work. Batches may run
// in parallel; claiming a trade is an optimistic check-and-set against the
// ledger, retried once against a refreshed snapshot before a conflict is
// surfaced. The alias book and scoring configuration are read-only during a
// batch and reloadable only between batches.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade-reconciliation-engine/internal/counterparty"
	"trade-reconciliation-engine/internal/ledger"
	"trade-reconciliation-engine/internal/matcher"
	"trade-reconciliation-engine/internal/models"
	"trade-reconciliation-engine/internal/notify"
	"trade-reconciliation-engine/pkg/errors"
	"trade-reconciliation-engine/pkg/logger"
)

// Disposition is the batch-level outcome of processing one confirmation.
type Disposition string

const (
	// DispositionNotRelevant means the extraction collaborator decided the
	// input is not a trade confirmation; no scoring was attempted.
	DispositionNotRelevant Disposition = "NotRelevant"
	// DispositionNeedsReview means the input is a confirmation but no
	// candidate records could be extracted from it.
	DispositionNeedsReview Disposition = "NeedsReview"
	// DispositionProcessed means every candidate was reconciled.
	DispositionProcessed Disposition = "Processed"
)

// CandidateOutcome is the result of reconciling one candidate of the batch.
type CandidateOutcome struct {
	Candidate *models.ConfirmationCandidate `json:"candidate"`
	Match     *models.MatchResult           `json:"match"`
	// Trade is the snapshot of the matched trade, nil for unrecognized
	// candidates.
	Trade *models.TradeRecord `json:"trade,omitempty"`
	// AuditReasons records why scored pairs were excluded (gate failures),
	// kept for audit rather than raised as errors.
	AuditReasons []string `json:"auditReasons,omitempty"`
}

// BatchResult is the outcome of one confirmation batch.
type BatchResult struct {
	Disposition  Disposition                 `json:"disposition"`
	Reason       string                      `json:"reason,omitempty"`
	Counterparty counterparty.Identification `json:"-"`
	Outcomes     []*CandidateOutcome         `json:"outcomes,omitempty"`
	Events       []models.StatusChangeEvent  `json:"events,omitempty"`
	ProcessedAt  time.Time                   `json:"processedAt"`
	Elapsed      time.Duration               `json:"elapsed"`
}

// Engine is the trade reconciliation engine.
type Engine struct {
	mu        sync.RWMutex
	config    *matcher.Config
	book      *counterparty.Book
	scorer    *matcher.Scorer
	detector  *matcher.Detector
	ledger    ledger.TradeLedger
	scheduler notify.Scheduler
	log       logger.Logger
}

// New constructs an engine. Missing or invalid configuration and alias
// books are fatal here: the engine refuses to score rather than apply
// undefined weights.
func New(config *matcher.Config, book *counterparty.Book, tradeLedger ledger.TradeLedger, scheduler notify.Scheduler, log logger.Logger) (*Engine, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "matcher config", nil)
	}
	if book == nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidAliasBook, "counterparty alias book", nil)
	}
	if tradeLedger == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "trade ledger", nil)
	}
	if log == nil {
		log = logger.Global()
	}
	if scheduler == nil {
		scheduler = notify.NewLogScheduler(log)
	}

	scorer, err := matcher.NewScorer(config, log)
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:    config.Clone(),
		book:      book,
		scorer:    scorer,
		detector:  matcher.NewDetector(config),
		ledger:    tradeLedger,
		scheduler: scheduler,
		log:       log.WithComponent("engine"),
	}, nil
}

// Reload replaces the scoring configuration and alias book. It blocks until
// no batch is in flight: configuration never changes mid-batch.
func (e *Engine) Reload(config *matcher.Config, book *counterparty.Book) error {
	if config == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "matcher config", nil)
	}
	if book == nil {
		return errors.ConfigurationError(errors.CodeInvalidAliasBook, "counterparty alias book", nil)
	}
	scorer, err := matcher.NewScorer(config, e.log)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = config.Clone()
	e.book = book
	e.scorer = scorer
	e.detector = matcher.NewDetector(config)
	e.log.Info("engine configuration reloaded")
	return nil
}

// ProcessConfirmation reconciles one incoming confirmation against the
// ledger's open trades. It never blocks on network or disk inside scoring:
// the open-trade snapshot is read once up front and all writes happen at
// commit time.
func (e *Engine) ProcessConfirmation(ctx context.Context, extraction *models.ExtractionResult) (*BatchResult, error) {
	if extraction == nil {
		return nil, errors.ExtractionError("extraction result is nil", nil)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	started := time.Now()
	result := &BatchResult{ProcessedAt: started.UTC()}
	defer func() { result.Elapsed = time.Since(started) }()

	if !extraction.IsConfirmation {
		result.Disposition = DispositionNotRelevant
		result.Reason = "extraction collaborator classified the input as not a trade confirmation"
		e.log.WithField("sender", extraction.SenderAddress).Info("confirmation not relevant, no scoring attempted")
		return result, nil
	}

	if len(extraction.Candidates) == 0 {
		result.Disposition = DispositionNeedsReview
		result.Reason = "confirmation recognized but no trade candidates could be extracted"
		e.log.WithField("sender", extraction.SenderAddress).Warn("confirmation with zero candidates needs review")
		return result, nil
	}

	snapshot, err := e.ledger.OpenTrades(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected, "reading open-trade snapshot")
	}

	identification := e.book.Identify(extraction.SenderAddress, extraction.Subject, extraction.BodyText)
	result.Counterparty = identification
	e.log.WithFields(logger.Fields{
		"sender":       extraction.SenderAddress,
		"counterparty": identification.Name,
		"confidence":   identification.Confidence,
		"open_trades":  len(snapshot),
		"candidates":   len(extraction.Candidates),
	}).Info("processing confirmation batch")

	claimed := make(map[string]bool)
	for _, candidate := range extraction.Candidates {
		// A batch either completes or is abandoned wholesale.
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpected, "confirmation batch abandoned")
		}

		outcome, err := e.reconcileCandidate(ctx, candidate, identification, available(snapshot, claimed), claimed, true)
		if err != nil {
			return nil, err
		}
		result.Outcomes = append(result.Outcomes, outcome)

		event := models.StatusChangeEvent{
			TradeID:       outcome.Match.TradeID,
			MatchID:       outcome.Match.ID,
			From:          models.StatusUnmatched,
			To:            outcome.Match.Status,
			Discrepancies: outcome.Match.Discrepancies,
		}
		result.Events = append(result.Events, event)
		if err := e.scheduler.Schedule(ctx, notify.Intent{Kind: notify.KindForStatus(outcome.Match.Status), Event: event}); err != nil {
			e.log.WithError(err).Warn("failed to schedule notification intent")
		}
	}

	result.Disposition = DispositionProcessed
	return result, nil
}

// Rerun re-scores a previously unrecognized confirmation against the
// current open-trade pool. Unrecognized confirmations are never retried in
// the background; this is the explicit on-demand path.
func (e *Engine) Rerun(ctx context.Context, extraction *models.ExtractionResult) (*BatchResult, error) {
	e.log.Info("explicit re-run of confirmation requested")
	return e.ProcessConfirmation(ctx, extraction)
}

// reconcileCandidate scores one candidate against the available open
// trades, selects at most one match, and commits it. On an optimistic
// commit conflict it refreshes the snapshot and retries exactly once.
func (e *Engine) reconcileCandidate(
	ctx context.Context,
	candidate *models.ConfirmationCandidate,
	identification counterparty.Identification,
	open []*models.TradeRecord,
	claimed map[string]bool,
	allowRetry bool,
) (*CandidateOutcome, error) {

	pairs := e.scorer.ScoreAll(candidate, open, identification.Name)

	outcome := &CandidateOutcome{Candidate: candidate}
	for _, pair := range pairs {
		if pair.Rejected {
			outcome.AuditReasons = append(outcome.AuditReasons,
				fmt.Sprintf("trade %s excluded: %s", pair.Trade.ID, pair.RejectReason))
		}
	}

	best := matcher.SelectBest(pairs, e.config.MatchThreshold)
	if best == nil {
		outcome.Match = e.unrecognizedResult(candidate, pairs)
		if err := e.ledger.SaveMatchResult(ctx, outcome.Match); err != nil {
			return nil, errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected, "persisting unrecognized match result")
		}
		e.log.WithFields(logger.Fields{
			"candidate": candidate.ExternalReference,
			"match_id":  outcome.Match.ID,
		}).Info("no open trade cleared the match threshold; confirmation unrecognized")
		return outcome, nil
	}

	discrepancies := e.detector.Detect(best.Trade, candidate)
	status := e.config.Classify(best.Score, len(discrepancies))
	match := models.NewMatchResult(best.Trade.ID, candidate, best.Score, e.config.MaxScore(), best.Reasons, status, discrepancies)

	// Optimistic claim: the trade must still be Unmatched at commit time.
	if err := e.ledger.CompareAndSetStatus(ctx, best.Trade.ID, models.StatusUnmatched, status); err != nil {
		if errors.IsRetryableConflict(err) && allowRetry {
			e.log.WithFields(logger.Fields{
				"trade_id":  best.Trade.ID,
				"candidate": candidate.ExternalReference,
			}).Warn("commit conflict, retrying against refreshed open-trade snapshot")

			refreshed, refreshErr := e.ledger.OpenTrades(ctx)
			if refreshErr != nil {
				return nil, errors.Wrap(refreshErr, errors.CategoryLedger, errors.CodeUnexpected, "refreshing open-trade snapshot after conflict")
			}
			return e.reconcileCandidate(ctx, candidate, identification, available(refreshed, claimed), claimed, false)
		}
		return nil, err
	}

	claimed[best.Trade.ID] = true
	outcome.Match = match
	outcome.Trade = best.Trade

	if err := e.ledger.SaveMatchResult(ctx, match); err != nil {
		return nil, errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected, "persisting match result")
	}

	e.log.WithFields(logger.Fields{
		"trade_id":   best.Trade.ID,
		"candidate":  candidate.ExternalReference,
		"match_id":   match.ID,
		"score":      match.Score,
		"confidence": match.Confidence,
		"status":     match.Status.String(),
	}).Info("candidate matched and committed")

	return outcome, nil
}

// unrecognizedResult builds the terminal match result for a candidate that
// cleared no open trade. The best ineligible score is kept for audit.
func (e *Engine) unrecognizedResult(candidate *models.ConfirmationCandidate, pairs []*matcher.PairScore) *models.MatchResult {
	score := 0
	reasons := []string{"no open trade cleared the match threshold"}
	for _, pair := range pairs {
		if !pair.Rejected {
			// ScoreAll sorts eligible-then-score, so the first unrejected
			// pair carries the highest score seen.
			score = pair.Score
			reasons = append(reasons, pair.Reasons...)
			break
		}
	}
	return models.NewMatchResult("", candidate, score, e.config.MaxScore(), reasons, models.StatusUnrecognized, nil)
}

// available filters a snapshot down to trades not yet claimed by this batch.
func available(snapshot []*models.TradeRecord, claimed map[string]bool) []*models.TradeRecord {
	if len(claimed) == 0 {
		return snapshot
	}
	out := make([]*models.TradeRecord, 0, len(snapshot))
	for _, trade := range snapshot {
		if !claimed[trade.ID] {
			out = append(out, trade)
		}
	}
	return out
}
