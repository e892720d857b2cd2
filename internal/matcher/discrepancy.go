package matcher

import (
	"trade-reconciliation-engine/internal/models"
)

// Detector performs the field-by-field comparison between a matched trade
// and confirmation candidate.
type Detector struct {
	config *Config
}

// NewDetector creates a discrepancy detector sharing the matcher
// configuration (the principal-amount tolerance band also applies here, so
// a close-match amount that earned score points is not simultaneously
// reported as a mismatch).
func NewDetector(config *Config) *Detector {
	return &Detector{config: config.Clone()}
}

// Detect compares every comparable field of the pair after normalization
// and returns the mismatches in a stable field order. A mismatch requires
// both sides to hold a semantically valid value: an absent value cannot
// contradict what was never asserted. Identifiers are excluded.
func (d *Detector) Detect(trade *models.TradeRecord, candidate *models.ConfirmationCandidate) []models.DiscrepancyEntry {
	tradeFields := trade.ComparableFields()
	candidateFields := candidate.ComparableFields()

	var discrepancies []models.DiscrepancyEntry
	for _, field := range models.ComparableFieldNames() {
		tv := tradeFields[field]
		cv := candidateFields[field]
		if tv.IsAbsent() || cv.IsAbsent() {
			continue
		}
		if tv.Equal(cv) {
			continue
		}
		if field == models.FieldPrincipalAmount &&
			tv.WithinRelativeTolerance(cv, d.config.AmountClosePercent) {
			continue
		}
		discrepancies = append(discrepancies, models.DiscrepancyEntry{
			Field:             field,
			TradeValue:        tv.Canonical(),
			ConfirmationValue: cv.Canonical(),
		})
	}
	return discrepancies
}
