package matcher

// SelectBest picks at most one trade to match against from a scored set of
// pairs for a single candidate. The highest eligible score wins; ties are
// broken by the earliest trade creation timestamp (oldest open trade wins),
// then by trade ID, so selection is deterministic and auditable. Nil means
// no pair cleared both gates and the match threshold, in which case the
// confirmation candidate ends Unrecognized and no trade is touched.
//
// Trades already claimed by an active match never appear here: the caller
// feeds only the open-trade snapshot, minus trades claimed earlier in the
// same batch.
func SelectBest(pairs []*PairScore, matchThreshold int) *PairScore {
	var best *PairScore
	for _, pair := range pairs {
		if !pair.Eligible(matchThreshold) {
			continue
		}
		if best == nil || betterThan(pair, best) {
			best = pair
		}
	}
	return best
}

// betterThan implements the selection ordering between two eligible pairs.
func betterThan(a, b *PairScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Trade.CreatedAt.Equal(b.Trade.CreatedAt) {
		return a.Trade.CreatedAt.Before(b.Trade.CreatedAt)
	}
	return a.Trade.ID < b.Trade.ID
}
