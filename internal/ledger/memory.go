package ledger

import (
	"context"
	"sort"
	"sync"

	"trade-reconciliation-engine/internal/models"
	"trade-reconciliation-engine/pkg/errors"
)

// MemoryLedger is a mutex-guarded in-memory TradeLedger. It implements the
// same optimistic concurrency contract a database-backed ledger would:
// CompareAndSetStatus is atomic with respect to every other ledger call.
type MemoryLedger struct {
	mu      sync.RWMutex
	trades  map[string]*models.TradeRecord
	matches map[string]*models.MatchResult
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		trades:  make(map[string]*models.TradeRecord),
		matches: make(map[string]*models.MatchResult),
	}
}

// AddTrade uploads a trade into the ledger. Uploaded trades start
// Unmatched unless the caller set another valid status.
func (l *MemoryLedger) AddTrade(trade *models.TradeRecord) error {
	if err := trade.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected, "invalid trade upload")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades[trade.ID] = trade.Clone()
	return nil
}

// OpenTrades returns a snapshot of all Unmatched trades, oldest first.
func (l *MemoryLedger) OpenTrades(ctx context.Context) ([]*models.TradeRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var open []*models.TradeRecord
	for _, trade := range l.trades {
		if trade.Status == models.StatusUnmatched {
			open = append(open, trade.Clone())
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	return open, nil
}

// GetTrade returns a copy of the trade with the given ID.
func (l *MemoryLedger) GetTrade(ctx context.Context, tradeID string) (*models.TradeRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trade, ok := l.trades[tradeID]
	if !ok {
		return nil, errors.TradeNotFoundError(tradeID)
	}
	return trade.Clone(), nil
}

// CompareAndSetStatus atomically moves a trade from one status to another.
func (l *MemoryLedger) CompareAndSetStatus(ctx context.Context, tradeID string, from, to models.Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, ok := l.trades[tradeID]
	if !ok {
		return errors.TradeNotFoundError(tradeID)
	}
	if trade.Status != from {
		return errors.ConflictError(tradeID).
			WithContext("expected_status", from.String()).
			WithContext("actual_status", trade.Status.String())
	}
	trade.Status = to
	return nil
}

// SaveMatchResult persists a match result.
func (l *MemoryLedger) SaveMatchResult(ctx context.Context, match *models.MatchResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.matches[match.ID] = match
	return nil
}

// GetMatchResult returns the stored match result with the given ID.
func (l *MemoryLedger) GetMatchResult(ctx context.Context, matchID string) (*models.MatchResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	match, ok := l.matches[matchID]
	if !ok {
		return nil, errors.MatchNotFoundError(matchID)
	}
	return match, nil
}

// ActiveMatchForTrade returns the active match holding a claim on the
// trade, or nil when there is none.
func (l *MemoryLedger) ActiveMatchForTrade(ctx context.Context, tradeID string) (*models.MatchResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, match := range l.matches {
		if match.TradeID == tradeID && match.IsActive() {
			return match, nil
		}
	}
	return nil, nil
}

// ActiveMatchCount reports how many non-terminal match results reference
// the trade. The engine's invariant is that this never exceeds one.
func (l *MemoryLedger) ActiveMatchCount(tradeID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, match := range l.matches {
		if match.TradeID == tradeID && match.IsActive() {
			count++
		}
	}
	return count
}

// Trades returns a copy of every trade in the ledger, for reporting.
func (l *MemoryLedger) Trades() []*models.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.TradeRecord, 0, len(l.trades))
	for _, trade := range l.trades {
		out = append(out, trade.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
