package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// DiscrepancyEntry records one field on which both sides asserted a valid
// value and the normalized values differ. Absent values never appear here:
// a field that was never asserted cannot contradict anything.
type DiscrepancyEntry struct {
	Field             string `json:"field"`
	TradeValue        string `json:"tradeValue"`
	ConfirmationValue string `json:"confirmationValue"`
}

// String returns a human-readable form of the discrepancy.
func (d DiscrepancyEntry) String() string {
	return fmt.Sprintf("%s: %q vs %q", d.Field, d.TradeValue, d.ConfirmationValue)
}

// MatchResult is the outcome of reconciling one confirmation candidate.
// Exactly one is created per candidate. TradeID is empty when no open trade
// cleared the match threshold, in which case the result is Unrecognized and
// no trade was touched.
type MatchResult struct {
	ID                string             `json:"id"`
	TradeID           string             `json:"tradeId,omitempty"`
	ExternalReference string             `json:"externalReference"`
	SenderAddress     string             `json:"senderAddress,omitempty"`
	Score             int                `json:"score"`
	Confidence        int                `json:"confidence"`
	Reasons           []string           `json:"reasons"`
	Status            Status             `json:"status"`
	Discrepancies     []DiscrepancyEntry `json:"discrepancies,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`

	// Single-level undo: the state before the last transition, if any.
	previous *Status
}

// NewMatchResult creates a match result with a generated unique identifier.
// A matched result remembers Unmatched as its prior state, so undoing the
// initial classification releases the trade back into the open pool.
func NewMatchResult(tradeID string, candidate *ConfirmationCandidate, score, maxScore int, reasons []string, status Status, discrepancies []DiscrepancyEntry) *MatchResult {
	var previous *Status
	if tradeID != "" {
		unmatched := StatusUnmatched
		previous = &unmatched
	}
	return &MatchResult{
		ID:                uuid.NewString(),
		TradeID:           tradeID,
		ExternalReference: candidate.ExternalReference,
		SenderAddress:     candidate.SenderAddress,
		Score:             score,
		Confidence:        ConfidencePercent(score, maxScore),
		Reasons:           reasons,
		Status:            status,
		Discrepancies:     discrepancies,
		CreatedAt:         time.Now().UTC(),
		previous:          previous,
	}
}

// ConfidencePercent derives a 0-100 confidence percentage from a raw score
// against the maximum attainable score.
func ConfidencePercent(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	pct := int(math.Round(float64(score) / float64(maxScore) * 100))
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// IsActive reports whether the result still holds a claim on its trade.
// A result undone back to Unmatched, or in a terminal state, holds none.
func (m *MatchResult) IsActive() bool {
	return m.TradeID != "" && m.Status.IsMatched() && !m.Status.IsTerminal()
}

// HasDiscrepancies reports whether any field mismatched.
func (m *MatchResult) HasDiscrepancies() bool {
	return len(m.Discrepancies) > 0
}

// transitionTo moves the match to a new status, remembering the prior one
// for single-level undo.
func (m *MatchResult) transitionTo(next Status) {
	prev := m.Status
	m.previous = &prev
	m.Status = next
}

// Tag applies the user action "tag".
func (m *MatchResult) Tag() error {
	next, err := m.Status.Tag()
	if err != nil {
		return err
	}
	m.transitionTo(next)
	return nil
}

// Resolve applies the user action "resolve".
func (m *MatchResult) Resolve() error {
	next, err := m.Status.Resolve()
	if err != nil {
		return err
	}
	m.transitionTo(next)
	return nil
}

// PreviousStatus returns the status the last transition came from, when
// undo history exists. It lets callers validate an undo against the ledger
// before mutating the match.
func (m *MatchResult) PreviousStatus() (Status, bool) {
	if m.previous == nil {
		return m.Status, false
	}
	return *m.previous, true
}

// Undo reverts the last transition and returns the restored status. Only a
// single level of history is kept; undoing twice in a row is an error.
func (m *MatchResult) Undo() (Status, error) {
	if m.previous == nil {
		return m.Status, &TransitionError{From: m.Status, Action: "undo"}
	}
	m.Status = *m.previous
	m.previous = nil
	return m.Status, nil
}

// StatusChangeEvent is emitted to the notification scheduler whenever a
// reconciliation outcome is committed or a user action transitions a match.
// TradeID is empty for unrecognized confirmations.
type StatusChangeEvent struct {
	TradeID       string             `json:"tradeId,omitempty"`
	MatchID       string             `json:"matchId"`
	From          Status             `json:"fromStatus"`
	To            Status             `json:"toStatus"`
	Discrepancies []DiscrepancyEntry `json:"discrepancies,omitempty"`
}

// String returns a short representation for logs.
func (e StatusChangeEvent) String() string {
	return fmt.Sprintf("StatusChange{trade: %s, match: %s, %s -> %s, discrepancies: %d}",
		e.TradeID, e.MatchID, e.From, e.To, len(e.Discrepancies))
}
