package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trade-reconciliation-engine/internal/counterparty"
	"trade-reconciliation-engine/internal/ledger"
	"trade-reconciliation-engine/internal/matcher"
	"trade-reconciliation-engine/internal/models"
	"trade-reconciliation-engine/internal/notify"
	"trade-reconciliation-engine/pkg/errors"
	"trade-reconciliation-engine/pkg/logger"
)

func testBook(t *testing.T) *counterparty.Book {
	t.Helper()
	book, err := counterparty.NewBook(map[string]counterparty.Entry{
		"Banco ABC": {
			Addresses: []string{"confirmaciones@bancoabc.cl"},
			Domains:   []string{"bancoabc.cl"},
			Aliases:   []string{"Banco ABC"},
		},
	})
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	return book
}

func testTrade(id string, created time.Time) *models.TradeRecord {
	return &models.TradeRecord{
		ID:               id,
		CounterpartyName: "Banco ABC",
		Product:          "FX Forward",
		Direction:        models.DirectionBuy,
		Currency1:        "USD",
		Currency2:        "CLP",
		PrincipalAmount:  decimal.NewFromInt(1000000),
		TradeDate:        time.Date(2025, time.September, 29, 0, 0, 0, 0, time.UTC),
		SettlementType:   "Cash",
		Status:           models.StatusUnmatched,
		CreatedAt:        created,
	}
}

func testCandidate(ref string) *models.ConfirmationCandidate {
	return &models.ConfirmationCandidate{
		ExternalReference: ref,
		CounterpartyName:  "Banco ABC",
		Product:           "FX Forward",
		Direction:         "Buy",
		Currency1:         "USD",
		Currency2:         "CLP",
		PrincipalAmount:   "1,000,000",
		TradeDate:         "29-09-2025",
		SettlementType:    "Cash",
		SenderAddress:     "confirmaciones@bancoabc.cl",
	}
}

func testExtraction(candidates ...*models.ConfirmationCandidate) *models.ExtractionResult {
	return &models.ExtractionResult{
		IsConfirmation: true,
		Candidates:     candidates,
		SenderAddress:  "confirmaciones@bancoabc.cl",
		Subject:        "FX Forward confirmation",
		ReceivedAt:     time.Now().UTC(),
	}
}

type testEnv struct {
	engine    *Engine
	ledger    *ledger.MemoryLedger
	scheduler *notify.MemoryScheduler
}

func newTestEnv(t *testing.T, trades ...*models.TradeRecord) *testEnv {
	t.Helper()
	return newTestEnvWithLedger(t, ledger.NewMemoryLedger(), trades...)
}

func newTestEnvWithLedger(t *testing.T, mem *ledger.MemoryLedger, trades ...*models.TradeRecord) *testEnv {
	t.Helper()
	for _, trade := range trades {
		if err := mem.AddTrade(trade); err != nil {
			t.Fatalf("AddTrade(%s): %v", trade.ID, err)
		}
	}
	scheduler := notify.NewMemoryScheduler()
	eng, err := New(matcher.DefaultConfig(), testBook(t), mem, scheduler, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{engine: eng, ledger: mem, scheduler: scheduler}
}

func TestNewValidation(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	book := testBook(t)
	cfg := matcher.DefaultConfig()

	if _, err := New(nil, book, mem, nil, logger.Nop()); !errors.IsConfiguration(err) {
		t.Errorf("nil config: %v, want configuration error", err)
	}
	if _, err := New(cfg, nil, mem, nil, logger.Nop()); !errors.IsConfiguration(err) {
		t.Errorf("nil book: %v, want configuration error", err)
	}
	if _, err := New(cfg, book, nil, nil, logger.Nop()); !errors.IsConfiguration(err) {
		t.Errorf("nil ledger: %v, want configuration error", err)
	}

	bad := matcher.DefaultConfig()
	bad.ConfirmThreshold = 500
	if _, err := New(bad, book, mem, nil, logger.Nop()); !errors.IsConfiguration(err) {
		t.Errorf("invalid config: %v, want configuration error", err)
	}
}

func TestProcessConfirmationNotRelevant(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))

	result, err := env.engine.ProcessConfirmation(context.Background(), &models.ExtractionResult{
		IsConfirmation: false,
		SenderAddress:  "newsletter@example.com",
	})
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	if result.Disposition != DispositionNotRelevant {
		t.Errorf("disposition = %s, want NotRelevant", result.Disposition)
	}
	if len(result.Outcomes) != 0 || len(env.scheduler.Intents()) != 0 {
		t.Error("irrelevant input must produce no outcomes or intents")
	}
}

func TestProcessConfirmationZeroCandidates(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))

	result, err := env.engine.ProcessConfirmation(context.Background(), testExtraction())
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	if result.Disposition != DispositionNeedsReview {
		t.Errorf("disposition = %s, want NeedsReview", result.Disposition)
	}
	if result.Reason == "" {
		t.Error("a review disposition must carry a reason")
	}
}

func TestProcessConfirmationNilExtraction(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.ProcessConfirmation(context.Background(), nil); err == nil {
		t.Error("expected error for nil extraction")
	}
}

func TestProcessConfirmationFullMatch(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	ctx := context.Background()

	result, err := env.engine.ProcessConfirmation(ctx, testExtraction(testCandidate("32013")))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	if result.Disposition != DispositionProcessed {
		t.Fatalf("disposition = %s, want Processed", result.Disposition)
	}
	if result.Counterparty.Name != "Banco ABC" {
		t.Errorf("counterparty = %+v, want Banco ABC", result.Counterparty)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(result.Outcomes))
	}

	match := result.Outcomes[0].Match
	if match.Status != models.StatusConfirmationOK {
		t.Errorf("status = %s, want ConfirmationOK", match.Status)
	}
	if match.Score != 90 || match.Confidence != 100 {
		t.Errorf("score/confidence = %d/%d, want 90/100", match.Score, match.Confidence)
	}
	if len(match.Discrepancies) != 0 {
		t.Errorf("discrepancies = %v, want none", match.Discrepancies)
	}

	trade, err := env.ledger.GetTrade(ctx, "T-1")
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if trade.Status != models.StatusConfirmationOK {
		t.Errorf("trade status = %s, want ConfirmationOK committed", trade.Status)
	}
	if count := env.ledger.ActiveMatchCount("T-1"); count != 1 {
		t.Errorf("active matches = %d, want exactly 1", count)
	}

	intents := env.scheduler.Intents()
	if len(intents) != 1 || intents[0].Kind != notify.IntentConfirmationEmail {
		t.Errorf("intents = %+v, want one confirmation email intent", intents)
	}
}

func TestProcessConfirmationDifference(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	candidate := testCandidate("32013")
	candidate.SettlementType = "Delivery"

	result, err := env.engine.ProcessConfirmation(context.Background(), testExtraction(candidate))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}

	match := result.Outcomes[0].Match
	if match.Status != models.StatusDifference {
		t.Fatalf("status = %s, want Difference", match.Status)
	}
	if len(match.Discrepancies) != 1 || match.Discrepancies[0].Field != models.FieldSettlementType {
		t.Errorf("discrepancies = %v, want settlement_type only", match.Discrepancies)
	}

	intents := env.scheduler.Intents()
	if len(intents) != 1 || intents[0].Kind != notify.IntentDisputeEmail {
		t.Errorf("intents = %+v, want one dispute email intent", intents)
	}
	if len(intents) == 1 && len(intents[0].Event.Discrepancies) != 1 {
		t.Error("the dispute intent must carry the discrepancy list")
	}
}

func TestProcessConfirmationNeedsReview(t *testing.T) {
	// Unidentifiable sender: only currency (30), date (25), close amount
	// (10) contribute, landing between the match and confirm thresholds.
	trade := testTrade("T-1", time.Now())
	env := newTestEnv(t, trade)

	candidate := testCandidate("32013")
	candidate.PrincipalAmount = "1,000,500"
	extraction := testExtraction(candidate)
	extraction.SenderAddress = "stranger@nowhere.org"
	extraction.Subject = "confirmation"

	result, err := env.engine.ProcessConfirmation(context.Background(), extraction)
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}

	match := result.Outcomes[0].Match
	if match.Score != 65 {
		t.Errorf("score = %d, want 65", match.Score)
	}
	if match.Status != models.StatusNeedsReview {
		t.Errorf("status = %s, want NeedsReview", match.Status)
	}

	intents := env.scheduler.Intents()
	if len(intents) != 1 || intents[0].Kind != notify.IntentNone {
		t.Errorf("intents = %+v, want a single audit-only intent", intents)
	}
}

func TestProcessConfirmationUnrecognized(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	candidate := testCandidate("32013")
	candidate.Currency1 = "EUR"

	result, err := env.engine.ProcessConfirmation(context.Background(), testExtraction(candidate))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}

	outcome := result.Outcomes[0]
	if outcome.Match.Status != models.StatusUnrecognized {
		t.Fatalf("status = %s, want Unrecognized", outcome.Match.Status)
	}
	if outcome.Match.TradeID != "" {
		t.Errorf("unrecognized match claims trade %s, want none", outcome.Match.TradeID)
	}
	if len(outcome.AuditReasons) == 0 {
		t.Error("the currency-gate rejection must be kept for audit")
	}

	// No trade was touched.
	trade, _ := env.ledger.GetTrade(context.Background(), "T-1")
	if trade.Status != models.StatusUnmatched {
		t.Errorf("trade status = %s, want Unmatched untouched", trade.Status)
	}

	// The unrecognized result is persisted for later re-runs.
	stored, err := env.ledger.GetMatchResult(context.Background(), outcome.Match.ID)
	if err != nil || stored.Status != models.StatusUnrecognized {
		t.Errorf("stored match = %v (%v), want persisted Unrecognized", stored, err)
	}
}

func TestProcessConfirmationBatchClaimsDistinctTrades(t *testing.T) {
	base := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, testTrade("T-1", base), testTrade("T-2", base.AddDate(0, 0, 1)))

	// Two identical candidates in one batch: each must claim its own trade.
	result, err := env.engine.ProcessConfirmation(context.Background(),
		testExtraction(testCandidate("32013"), testCandidate("32014")))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(result.Outcomes))
	}

	first := result.Outcomes[0].Match.TradeID
	second := result.Outcomes[1].Match.TradeID
	if first == second {
		t.Fatalf("both candidates claimed %s; claims must be distinct", first)
	}
	// Selection is deterministic: the oldest open trade goes first.
	if first != "T-1" || second != "T-2" {
		t.Errorf("claims = [%s, %s], want [T-1, T-2]", first, second)
	}
}

// conflictLedger wraps the in-memory ledger and fails the first n commits
// with a claim conflict, optionally claiming the trade for real first, the
// way a concurrent batch would.
type conflictLedger struct {
	*ledger.MemoryLedger
	failures   int
	stealTrade bool
}

func (c *conflictLedger) CompareAndSetStatus(ctx context.Context, tradeID string, from, to models.Status) error {
	if c.failures > 0 {
		c.failures--
		if c.stealTrade {
			if err := c.MemoryLedger.CompareAndSetStatus(ctx, tradeID, from, models.StatusNeedsReview); err != nil {
				return err
			}
		}
		return errors.ConflictError(tradeID)
	}
	return c.MemoryLedger.CompareAndSetStatus(ctx, tradeID, from, to)
}

func TestProcessConfirmationConflictRetrySucceeds(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	wrapped := &conflictLedger{MemoryLedger: mem, failures: 1}
	if err := mem.AddTrade(testTrade("T-1", time.Now())); err != nil {
		t.Fatalf("AddTrade: %v", err)
	}

	eng, err := New(matcher.DefaultConfig(), testBook(t), wrapped, notify.NewMemoryScheduler(), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.ProcessConfirmation(context.Background(), testExtraction(testCandidate("32013")))
	if err != nil {
		t.Fatalf("ProcessConfirmation after one conflict: %v", err)
	}
	if result.Outcomes[0].Match.Status != models.StatusConfirmationOK {
		t.Errorf("status = %s, want ConfirmationOK on the retried snapshot", result.Outcomes[0].Match.Status)
	}
}

func TestProcessConfirmationConflictTradeStolen(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	wrapped := &conflictLedger{MemoryLedger: mem, failures: 1, stealTrade: true}
	if err := mem.AddTrade(testTrade("T-1", time.Now())); err != nil {
		t.Fatalf("AddTrade: %v", err)
	}

	eng, err := New(matcher.DefaultConfig(), testBook(t), wrapped, notify.NewMemoryScheduler(), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The concurrent batch actually claimed the only open trade, so the
	// refreshed snapshot is empty and the candidate ends Unrecognized.
	result, err := eng.ProcessConfirmation(context.Background(), testExtraction(testCandidate("32013")))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	if result.Outcomes[0].Match.Status != models.StatusUnrecognized {
		t.Errorf("status = %s, want Unrecognized after losing the trade", result.Outcomes[0].Match.Status)
	}
}

func TestProcessConfirmationConflictPersists(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	wrapped := &conflictLedger{MemoryLedger: mem, failures: 2}
	if err := mem.AddTrade(testTrade("T-1", time.Now())); err != nil {
		t.Fatalf("AddTrade: %v", err)
	}

	eng, err := New(matcher.DefaultConfig(), testBook(t), wrapped, notify.NewMemoryScheduler(), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = eng.ProcessConfirmation(context.Background(), testExtraction(testCandidate("32013")))
	if err == nil {
		t.Fatal("expected conflict error after the single retry")
	}
	if !errors.IsRetryableConflict(err) {
		t.Errorf("error = %v, want a retryable conflict", err)
	}
}

func TestProcessConfirmationCancelled(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.engine.ProcessConfirmation(ctx, testExtraction(testCandidate("32013"))); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestTagResolveFlow(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	ctx := context.Background()

	result, err := env.engine.ProcessConfirmation(ctx, testExtraction(testCandidate("32013")))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	matchID := result.Outcomes[0].Match.ID

	event, err := env.engine.Tag(ctx, matchID)
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if event.From != models.StatusConfirmationOK || event.To != models.StatusTagged {
		t.Errorf("event = %+v, want ConfirmationOK -> Tagged", event)
	}
	trade, _ := env.ledger.GetTrade(ctx, "T-1")
	if trade.Status != models.StatusTagged {
		t.Errorf("trade status = %s, want Tagged", trade.Status)
	}

	if _, err := env.engine.Resolve(ctx, matchID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	trade, _ = env.ledger.GetTrade(ctx, "T-1")
	if trade.Status != models.StatusResolved {
		t.Errorf("trade status = %s, want Resolved", trade.Status)
	}
	if count := env.ledger.ActiveMatchCount("T-1"); count != 0 {
		t.Errorf("active matches = %d, want 0 after resolution", count)
	}
}

func TestTagIllegalFromNeedsReview(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	ctx := context.Background()

	candidate := testCandidate("32013")
	candidate.PrincipalAmount = "1,000,500"
	extraction := testExtraction(candidate)
	extraction.SenderAddress = "stranger@nowhere.org"
	extraction.Subject = "confirmation"

	result, err := env.engine.ProcessConfirmation(ctx, extraction)
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	match := result.Outcomes[0].Match
	if match.Status != models.StatusNeedsReview {
		t.Fatalf("precondition: status = %s, want NeedsReview", match.Status)
	}

	if _, err := env.engine.Tag(ctx, match.ID); err == nil {
		t.Error("tagging a NeedsReview match must fail")
	}
	trade, _ := env.ledger.GetTrade(ctx, "T-1")
	if trade.Status != models.StatusNeedsReview {
		t.Errorf("rejected action mutated the trade to %s", trade.Status)
	}
}

func TestUndoReleasesTrade(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	ctx := context.Background()

	result, err := env.engine.ProcessConfirmation(ctx, testExtraction(testCandidate("32013")))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	matchID := result.Outcomes[0].Match.ID

	event, err := env.engine.Undo(ctx, matchID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if event.To != models.StatusUnmatched {
		t.Errorf("undo restored %s, want Unmatched", event.To)
	}

	trade, _ := env.ledger.GetTrade(ctx, "T-1")
	if trade.Status != models.StatusUnmatched {
		t.Errorf("trade status = %s, want released to Unmatched", trade.Status)
	}
	if count := env.ledger.ActiveMatchCount("T-1"); count != 0 {
		t.Errorf("active matches = %d, want 0 after undo", count)
	}

	// The released trade is matchable again.
	again, err := env.engine.ProcessConfirmation(ctx, testExtraction(testCandidate("32099")))
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if again.Outcomes[0].Match.TradeID != "T-1" {
		t.Errorf("released trade not rematched: %+v", again.Outcomes[0].Match)
	}
}

func TestUndoTwiceFails(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	ctx := context.Background()

	result, err := env.engine.ProcessConfirmation(ctx, testExtraction(testCandidate("32013")))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	matchID := result.Outcomes[0].Match.ID

	if _, err := env.engine.Undo(ctx, matchID); err != nil {
		t.Fatalf("first undo: %v", err)
	}
	if _, err := env.engine.Undo(ctx, matchID); err == nil {
		t.Error("second consecutive undo must fail")
	}
}

func TestRerunAfterTradeUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	extraction := testExtraction(testCandidate("32013"))

	// No open trades yet: the candidate ends Unrecognized.
	first, err := env.engine.ProcessConfirmation(ctx, extraction)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Outcomes[0].Match.Status != models.StatusUnrecognized {
		t.Fatalf("status = %s, want Unrecognized with an empty pool", first.Outcomes[0].Match.Status)
	}

	// The trade arrives later; unrecognized confirmations are only ever
	// retried on explicit demand.
	if err := env.ledger.AddTrade(testTrade("T-1", time.Now())); err != nil {
		t.Fatalf("AddTrade: %v", err)
	}
	second, err := env.engine.Rerun(ctx, extraction)
	if err != nil {
		t.Fatalf("Rerun: %v", err)
	}
	if second.Outcomes[0].Match.Status != models.StatusConfirmationOK {
		t.Errorf("status = %s, want ConfirmationOK after the upload", second.Outcomes[0].Match.Status)
	}
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, testTrade("T-1", time.Now()))
	ctx := context.Background()

	bad := matcher.DefaultConfig()
	bad.MatchThreshold = 0
	if err := env.engine.Reload(bad, testBook(t)); err == nil {
		t.Error("invalid config must be rejected at reload")
	}

	// Raising the confirm threshold between batches demotes a clean full
	// match to NeedsReview.
	strict := matcher.DefaultConfig()
	strict.MatchThreshold = 85
	strict.ConfirmThreshold = 90
	if err := env.engine.Reload(strict, testBook(t)); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	candidate := testCandidate("32013")
	candidate.PrincipalAmount = "1,000,500" // close amount: score 85
	result, err := env.engine.ProcessConfirmation(ctx, testExtraction(candidate))
	if err != nil {
		t.Fatalf("ProcessConfirmation: %v", err)
	}
	if result.Outcomes[0].Match.Status != models.StatusNeedsReview {
		t.Errorf("status = %s, want NeedsReview under the stricter thresholds", result.Outcomes[0].Match.Status)
	}
}
