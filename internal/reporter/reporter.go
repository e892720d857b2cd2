// Package reporter renders reconciliation outcomes for human and
// programmatic consumers: a console table for operators, JSON for
// downstream tooling, CSV for spreadsheets.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"trade-reconciliation-engine/internal/engine"
	"trade-reconciliation-engine/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseFormat parses an output format name.
func ParseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !format.IsValid() {
		return "", fmt.Errorf("unsupported output format %q: use console, json or csv", s)
	}
	return format, nil
}

// Reporter writes reconciliation reports to a single output stream.
type Reporter struct {
	w io.Writer
}

// New creates a reporter writing to w.
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// WriteBatch renders the outcome of one confirmation batch.
func (r *Reporter) WriteBatch(result *engine.BatchResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return r.writeJSON(result)
	case FormatCSV:
		return r.writeBatchCSV(result)
	case FormatConsole:
		return r.writeBatchConsole(result)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteLedgerSummary renders a status breakdown of the whole trade ledger.
func (r *Reporter) WriteLedgerSummary(trades []*models.TradeRecord, format OutputFormat) error {
	summary := summarize(trades)
	switch format {
	case FormatJSON:
		return r.writeJSON(summary)
	case FormatCSV:
		return r.writeSummaryCSV(summary)
	case FormatConsole:
		return r.writeSummaryConsole(summary)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func (r *Reporter) writeJSON(v interface{}) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Reporter) writeBatchConsole(result *engine.BatchResult) error {
	fmt.Fprintf(r.w, "Disposition: %s\n", result.Disposition)
	if result.Reason != "" {
		fmt.Fprintf(r.w, "Reason: %s\n", result.Reason)
	}
	if result.Counterparty.Name != "" {
		fmt.Fprintf(r.w, "Counterparty: %s (confidence %d)\n",
			result.Counterparty.Name, result.Counterparty.Confidence)
	}
	if len(result.Outcomes) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(r.w)
	table.SetHeader([]string{"Candidate Ref", "Trade ID", "Score", "Confidence", "Status", "Discrepancies"})
	for _, outcome := range result.Outcomes {
		match := outcome.Match
		tradeID := match.TradeID
		if tradeID == "" {
			tradeID = "-"
		}
		table.Append([]string{
			match.ExternalReference,
			tradeID,
			strconv.Itoa(match.Score),
			fmt.Sprintf("%d%%", match.Confidence),
			match.Status.String(),
			formatDiscrepancies(match.Discrepancies),
		})
	}
	table.Render()
	return nil
}

func (r *Reporter) writeBatchCSV(result *engine.BatchResult) error {
	w := csv.NewWriter(r.w)
	if err := w.Write([]string{"candidate_ref", "trade_id", "score", "confidence", "status", "discrepancies"}); err != nil {
		return err
	}
	for _, outcome := range result.Outcomes {
		match := outcome.Match
		record := []string{
			match.ExternalReference,
			match.TradeID,
			strconv.Itoa(match.Score),
			strconv.Itoa(match.Confidence),
			match.Status.String(),
			formatDiscrepancies(match.Discrepancies),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// LedgerSummary is a status breakdown of the trade ledger.
type LedgerSummary struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

func summarize(trades []*models.TradeRecord) *LedgerSummary {
	summary := &LedgerSummary{ByStatus: make(map[string]int)}
	for _, trade := range trades {
		summary.Total++
		summary.ByStatus[trade.Status.String()]++
	}
	return summary
}

// statusOrder walks the summary in lifecycle order instead of map order.
var statusOrder = []models.Status{
	models.StatusUnmatched,
	models.StatusNeedsReview,
	models.StatusConfirmationOK,
	models.StatusDifference,
	models.StatusTagged,
	models.StatusResolved,
}

func (r *Reporter) writeSummaryConsole(summary *LedgerSummary) error {
	table := tablewriter.NewWriter(r.w)
	table.SetHeader([]string{"Status", "Trades"})
	for _, status := range statusOrder {
		if count, ok := summary.ByStatus[status.String()]; ok {
			table.Append([]string{status.String(), strconv.Itoa(count)})
		}
	}
	table.SetFooter([]string{"Total", strconv.Itoa(summary.Total)})
	table.Render()
	return nil
}

func (r *Reporter) writeSummaryCSV(summary *LedgerSummary) error {
	w := csv.NewWriter(r.w)
	if err := w.Write([]string{"status", "trades"}); err != nil {
		return err
	}
	for _, status := range statusOrder {
		if count, ok := summary.ByStatus[status.String()]; ok {
			if err := w.Write([]string{status.String(), strconv.Itoa(count)}); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func formatDiscrepancies(entries []models.DiscrepancyEntry) string {
	if len(entries) == 0 {
		return "-"
	}
	parts := make([]string, len(entries))
	for i, entry := range entries {
		parts[i] = entry.Field
	}
	return strings.Join(parts, ", ")
}
