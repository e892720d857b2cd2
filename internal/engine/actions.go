package engine

import (
	"context"

	"trade-reconciliation-engine/internal/models"
	"trade-reconciliation-engine/internal/notify"
	"trade-reconciliation-engine/pkg/errors"
	"trade-reconciliation-engine/pkg/logger"
)

// Tag applies the user action "tag" to a match. Legal only from
// ConfirmationOK or Difference.
func (e *Engine) Tag(ctx context.Context, matchID string) (*models.StatusChangeEvent, error) {
	return e.applyAction(ctx, matchID, "tag", func(m *models.MatchResult) (models.Status, error) {
		return m.Status.Tag()
	}, func(m *models.MatchResult) error {
		return m.Tag()
	})
}

// Resolve applies the user action "resolve" to a match. Legal only from
// Tagged; Resolved is terminal and releases nothing further.
func (e *Engine) Resolve(ctx context.Context, matchID string) (*models.StatusChangeEvent, error) {
	return e.applyAction(ctx, matchID, "resolve", func(m *models.MatchResult) (models.Status, error) {
		return m.Status.Resolve()
	}, func(m *models.MatchResult) error {
		return m.Resolve()
	})
}

// Undo reverts a match's last status transition. A single level of history
// is kept; undoing the initial classification restores the trade to
// Unmatched, releasing it back into the open pool.
func (e *Engine) Undo(ctx context.Context, matchID string) (*models.StatusChangeEvent, error) {
	return e.applyAction(ctx, matchID, "undo", func(m *models.MatchResult) (models.Status, error) {
		restored, ok := m.PreviousStatus()
		if !ok {
			return m.Status, &models.TransitionError{From: m.Status, Action: "undo"}
		}
		return restored, nil
	}, func(m *models.MatchResult) error {
		_, err := m.Undo()
		return err
	})
}

// applyAction runs one user action against a match: validate the transition,
// commit the trade's status change through the ledger's check-and-set, then
// mutate and persist the match. The ledger commit goes first so a conflict
// with a concurrent action leaves the match untouched.
func (e *Engine) applyAction(
	ctx context.Context,
	matchID, action string,
	next func(*models.MatchResult) (models.Status, error),
	apply func(*models.MatchResult) error,
) (*models.StatusChangeEvent, error) {

	e.mu.RLock()
	defer e.mu.RUnlock()

	match, err := e.ledger.GetMatchResult(ctx, matchID)
	if err != nil {
		return nil, err
	}

	from := match.Status
	to, err := next(match)
	if err != nil {
		return nil, err
	}

	if match.TradeID != "" {
		if err := e.ledger.CompareAndSetStatus(ctx, match.TradeID, from, to); err != nil {
			return nil, err
		}
	}

	if err := apply(match); err != nil {
		// The transition was validated above; failing here means the match
		// changed underneath us after the ledger commit.
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpected, "match transition failed after ledger commit")
	}
	if err := e.ledger.SaveMatchResult(ctx, match); err != nil {
		return nil, errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected, "persisting match result after user action")
	}

	event := &models.StatusChangeEvent{
		TradeID:       match.TradeID,
		MatchID:       match.ID,
		From:          from,
		To:            to,
		Discrepancies: match.Discrepancies,
	}

	// User actions never re-trigger confirmation or dispute messages, even
	// when an undo restores a status that originally did.
	if err := e.scheduler.Schedule(ctx, notify.Intent{Kind: notify.IntentNone, Event: *event}); err != nil {
		e.log.WithError(err).Warn("failed to schedule user-action event")
	}

	e.log.WithFields(logger.Fields{
		"action":   action,
		"match_id": match.ID,
		"trade_id": match.TradeID,
		"from":     from.String(),
		"to":       to.String(),
	}).Info("user action applied")

	return event, nil
}
