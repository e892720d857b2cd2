// Package notify carries the engine's notification intents. The engine
// decides that a confirmation or dispute email should be scheduled; message
// composition and delivery belong to the surrounding application and are
// out of scope here.
package notify

import (
	"context"
	"sync"

	"trade-reconciliation-engine/internal/models"
	"trade-reconciliation-engine/pkg/logger"
)

// IntentKind classifies what downstream automation should schedule.
type IntentKind string

const (
	// IntentConfirmationEmail follows a match classified ConfirmationOK.
	IntentConfirmationEmail IntentKind = "confirmation_email"
	// IntentDisputeEmail follows a match classified Difference.
	IntentDisputeEmail IntentKind = "dispute_email"
	// IntentNone accompanies status changes that trigger no message; the
	// event is still delivered for audit.
	IntentNone IntentKind = "none"
)

// Intent is one scheduling request emitted by the engine.
type Intent struct {
	Kind  IntentKind               `json:"kind"`
	Event models.StatusChangeEvent `json:"event"`
}

// KindForStatus maps a committed status to the intent it triggers.
func KindForStatus(status models.Status) IntentKind {
	switch status {
	case models.StatusConfirmationOK:
		return IntentConfirmationEmail
	case models.StatusDifference:
		return IntentDisputeEmail
	default:
		return IntentNone
	}
}

// Scheduler consumes the engine's notification intents.
type Scheduler interface {
	Schedule(ctx context.Context, intent Intent) error
}

// MemoryScheduler records intents in memory; tests and dry runs use it.
type MemoryScheduler struct {
	mu      sync.Mutex
	intents []Intent
}

// NewMemoryScheduler creates an empty recording scheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{}
}

// Schedule records the intent.
func (s *MemoryScheduler) Schedule(ctx context.Context, intent Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, intent)
	return nil
}

// Intents returns a copy of everything scheduled so far.
func (s *MemoryScheduler) Intents() []Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Intent, len(s.intents))
	copy(out, s.intents)
	return out
}

// LogScheduler logs intents instead of delivering them; the CLI driver
// uses it so reconciliation runs are observable without a message backend.
type LogScheduler struct {
	log logger.Logger
}

// NewLogScheduler creates a scheduler that logs every intent.
func NewLogScheduler(log logger.Logger) *LogScheduler {
	if log == nil {
		log = logger.Global()
	}
	return &LogScheduler{log: log.WithComponent("scheduler")}
}

// Schedule logs the intent.
func (s *LogScheduler) Schedule(ctx context.Context, intent Intent) error {
	s.log.WithFields(logger.Fields{
		"kind":     intent.Kind,
		"trade_id": intent.Event.TradeID,
		"match_id": intent.Event.MatchID,
		"from":     intent.Event.From.String(),
		"to":       intent.Event.To.String(),
	}).Info("notification intent scheduled")
	return nil
}
