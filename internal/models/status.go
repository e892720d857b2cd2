package models

import "fmt"

// Status is the lifecycle state of a trade (and of the match that claimed
// it). It is a closed enumeration with exhaustive transition handling:
// illegal transitions are errors at the call site, never silent string
// mutations.
type Status int

const (
	// StatusUnmatched is the initial state of an uploaded trade; no
	// confirmation has claimed it and it has no associated match result.
	StatusUnmatched Status = iota

	// StatusUnrecognized marks a confirmation candidate that cleared no
	// open trade at the match threshold. It is a property of the candidate,
	// not of any trade, and is terminal for that candidate.
	StatusUnrecognized

	// StatusNeedsReview marks a match that cleared the match threshold but
	// not the confirm threshold; a human must progress it.
	StatusNeedsReview

	// StatusConfirmationOK marks a match at or above the confirm threshold
	// with zero discrepancies.
	StatusConfirmationOK

	// StatusDifference marks a match at or above the confirm threshold with
	// at least one discrepancy.
	StatusDifference

	// StatusTagged marks a match a user has tagged for follow-up.
	StatusTagged

	// StatusResolved marks a tagged match a user has closed out. Terminal.
	StatusResolved
)

var statusNames = map[Status]string{
	StatusUnmatched:      "Unmatched",
	StatusUnrecognized:   "Unrecognized",
	StatusNeedsReview:    "NeedsReview",
	StatusConfirmationOK: "ConfirmationOK",
	StatusDifference:     "Difference",
	StatusTagged:         "Tagged",
	StatusResolved:       "Resolved",
}

// String returns the string representation of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus parses a status name as produced by String.
func ParseStatus(name string) (Status, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return StatusUnmatched, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler so statuses serialize as
// names rather than bare integers.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsValid reports whether the status is a known enumeration member.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether the status ends the lifecycle. Terminal match
// results no longer hold a claim on their trade.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusUnrecognized
}

// IsMatched reports whether the status implies an associated match result
// holding a claim on a trade.
func (s Status) IsMatched() bool {
	switch s {
	case StatusNeedsReview, StatusConfirmationOK, StatusDifference, StatusTagged, StatusResolved:
		return true
	default:
		return false
	}
}

// CanTag reports whether the user action "tag" is legal from this state.
func (s Status) CanTag() bool {
	return s == StatusConfirmationOK || s == StatusDifference
}

// CanResolve reports whether the user action "resolve" is legal from this state.
func (s Status) CanResolve() bool {
	return s == StatusTagged
}

// TransitionError describes a rejected state transition.
type TransitionError struct {
	From   Status
	Action string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a match in status %s", e.Action, e.From)
}

// Tag applies the user action "tag" and returns the new status.
func (s Status) Tag() (Status, error) {
	if !s.CanTag() {
		return s, &TransitionError{From: s, Action: "tag"}
	}
	return StatusTagged, nil
}

// Resolve applies the user action "resolve" and returns the new status.
func (s Status) Resolve() (Status, error) {
	if !s.CanResolve() {
		return s, &TransitionError{From: s, Action: "resolve"}
	}
	return StatusResolved, nil
}
