// Package ledger defines the trade ledger interface the reconciliation
// engine depends on, plus an in-memory implementation used by tests and the
// CLI driver. The engine reads open trades from a consistent snapshot and
// writes status changes back through an optimistic check-and-set; the
// persistence technology behind a production ledger is out of scope.
package ledger

import (
	"context"

	"trade-reconciliation-engine/internal/models"
)

// TradeLedger is the store of the client's self-reported trades and of the
// match results reconciliation produces.
type TradeLedger interface {
	// OpenTrades returns a snapshot of all trades currently in
	// StatusUnmatched. The snapshot is a deep copy: concurrent commits by
	// other batches never mutate it.
	OpenTrades(ctx context.Context) ([]*models.TradeRecord, error)

	// GetTrade returns a copy of the trade with the given ID.
	GetTrade(ctx context.Context, tradeID string) (*models.TradeRecord, error)

	// CompareAndSetStatus atomically moves a trade from one status to
	// another. It fails with a retryable conflict error when the trade's
	// current status is no longer the expected one, which is how two
	// concurrent confirmations are prevented from claiming the same trade.
	CompareAndSetStatus(ctx context.Context, tradeID string, from, to models.Status) error

	// SaveMatchResult persists a match result (insert or update).
	SaveMatchResult(ctx context.Context, match *models.MatchResult) error

	// GetMatchResult returns the stored match result with the given ID.
	GetMatchResult(ctx context.Context, matchID string) (*models.MatchResult, error)

	// ActiveMatchForTrade returns the active (non-terminal) match result
	// holding a claim on the trade, or nil when there is none.
	ActiveMatchForTrade(ctx context.Context, tradeID string) (*models.MatchResult, error)
}
