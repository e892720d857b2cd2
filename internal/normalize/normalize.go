// Package normalize produces canonical comparable values for fields pulled
// from either side of a reconciliation: the client's trade record or the
// counterparty's confirmation candidate.
//
// Both sides arrive with inconsistent formatting (thousand separators,
// regional date formats, placeholder tokens like "N/A"), so every comparison
// in the engine goes through this package first. All functions are pure and
// idempotent: normalizing an already-normalized value yields the same value.
//
// A field that is empty, a literal `""` token, or any casing of "N/A"
// normalizes to an absent Value. Absent values never contribute to a match
// and never produce a discrepancy; they represent "nothing was asserted".
package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a normalized value.
type Kind int

const (
	// KindAbsent marks a field with no usable value (empty, "N/A", unparsable).
	KindAbsent Kind = iota
	// KindText is a trimmed string compared case-insensitively.
	KindText
	// KindNumber is a decimal amount or price.
	KindNumber
	// KindDate is a calendar date (time component discarded, UTC).
	KindDate
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Value is the canonical comparable representation of a single field.
// Display preserves the original casing for reporting; comparisons use
// the kind-specific canonical forms.
type Value struct {
	Kind    Kind
	Display string
	folded  string
	number  decimal.Decimal
	date    time.Time
}

// Absent is the canonical absent value.
var Absent = Value{Kind: KindAbsent}

// absentTokens are literal field contents that mean "no value asserted".
var absentTokens = map[string]bool{
	"":     true,
	`""`:   true,
	"n/a":  true,
	"na":   true,
	"null": true,
	"-":    true,
}

// isAbsentToken reports whether the trimmed raw field carries no value.
func isAbsentToken(s string) bool {
	return absentTokens[strings.ToLower(strings.TrimSpace(s))]
}

// String normalizes a free-text field. The original (trimmed) casing is kept
// for display; comparison uses the case-folded form.
func String(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if isAbsentToken(trimmed) {
		return Absent
	}
	return Value{
		Kind:    KindText,
		Display: trimmed,
		folded:  strings.ToLower(trimmed),
	}
}

// Currency normalizes a currency code to its uppercase ISO form. No
// validation against a code list is performed; rejecting unknown codes is a
// policy decision for the caller.
func Currency(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if isAbsentToken(trimmed) {
		return Absent
	}
	code := strings.ToUpper(trimmed)
	return Value{
		Kind:    KindText,
		Display: code,
		folded:  strings.ToLower(code),
	}
}

// Number normalizes a numeric field, accepting both decimal-point and
// decimal-comma conventions with optional thousand separators. Unparsable
// input is absent, never zero: zero is a valid, distinguishable amount.
func Number(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if isAbsentToken(trimmed) {
		return Absent
	}

	cleaned := cleanNumeric(trimmed)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Absent
	}
	return FromDecimal(d)
}

// FromDecimal wraps an already-parsed decimal as a normalized number.
func FromDecimal(d decimal.Decimal) Value {
	return Value{
		Kind:    KindNumber,
		Display: d.String(),
		number:  d,
	}
}

// cleanNumeric rewrites a human-formatted number into decimal syntax.
// When both separators appear, the rightmost one is the decimal point.
// A lone comma followed by exactly three digits is read as a thousands
// separator; any other lone comma is a decimal comma.
func cleanNumeric(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "$")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			// 1,234,567.89
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// 1.234.567,89
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 3 {
			// 1,000 style grouping
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// 1234,56 decimal comma
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		// 1.234.567 grouping with no decimal part
		s = strings.ReplaceAll(s, ".", "")
	}

	return s
}

// dateLayouts lists the calendar formats accepted from either side,
// most specific first. Day-first layouts come before month-first because
// confirmations observed in the wild use day-first ("29-09-2025").
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Date normalizes a date field to a date-only UTC representation.
// Absent or unparsable input is absent.
func Date(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if isAbsentToken(trimmed) {
		return Absent
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return FromTime(t)
		}
	}
	return Absent
}

// FromTime wraps an already-parsed time as a normalized date. The time
// component is discarded; only the calendar day is comparable.
func FromTime(t time.Time) Value {
	if t.IsZero() {
		return Absent
	}
	year, month, day := t.Date()
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Value{
		Kind:    KindDate,
		Display: d.Format("2006-01-02"),
		date:    d,
	}
}

// IsAbsent reports whether no value was asserted for the field.
func (v Value) IsAbsent() bool {
	return v.Kind == KindAbsent
}

// Decimal returns the numeric value. Only meaningful for KindNumber.
func (v Value) Decimal() decimal.Decimal {
	return v.number
}

// Time returns the date value. Only meaningful for KindDate.
func (v Value) Time() time.Time {
	return v.date
}

// Canonical returns the canonical string form of the value. Feeding it back
// through the matching constructor reproduces the value exactly, which is
// the idempotence guarantee the engine relies on.
func (v Value) Canonical() string {
	return v.Display
}

// Equal reports whether two normalized values are semantically equal.
// Absent compares equal to nothing, including another absent value: a field
// nobody asserted can neither confirm nor contradict.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindAbsent:
		return false
	case KindText:
		return v.folded == other.folded
	case KindNumber:
		return v.number.Equal(other.number)
	case KindDate:
		return v.date.Equal(other.date)
	default:
		return false
	}
}

// WithinRelativeTolerance reports whether two numeric values differ by at
// most tolerancePercent relative to the larger magnitude. Used for the
// close-amount scoring band where rounding or fee-inclusion differences are
// expected. Absent or non-numeric values are never within tolerance.
func (v Value) WithinRelativeTolerance(other Value, tolerancePercent decimal.Decimal) bool {
	if v.Kind != KindNumber || other.Kind != KindNumber {
		return false
	}
	diff := v.number.Sub(other.number).Abs()
	if diff.IsZero() {
		return true
	}

	base := v.number.Abs()
	if other.number.Abs().GreaterThan(base) {
		base = other.number.Abs()
	}
	if base.IsZero() {
		return false
	}

	limit := base.Mul(tolerancePercent).Div(decimal.NewFromInt(100))
	return diff.LessThanOrEqual(limit)
}
