// Package loader reads the engine's file-based inputs: trade ledger
// uploads, extraction collaborator output, and the counterparty alias book.
// All inputs are JSON; malformed files surface as structured errors with
// the offending path in context.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"trade-reconciliation-engine/internal/counterparty"
	"trade-reconciliation-engine/internal/models"
	"trade-reconciliation-engine/pkg/errors"
)

// LoadTrades reads a JSON array of trade records and validates each one.
// Records with no status start Unmatched.
func LoadTrades(path string) ([]*models.TradeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected,
			fmt.Sprintf("reading trade file %s", path)).WithContext("path", path)
	}

	var trades []*models.TradeRecord
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected,
			fmt.Sprintf("parsing trade file %s", path)).
			WithSuggestion("the trade file must be a JSON array of trade records").
			WithContext("path", path)
	}

	for i, trade := range trades {
		if err := trade.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryLedger, errors.CodeUnexpected,
				fmt.Sprintf("invalid trade at index %d in %s", i, path)).
				WithContext("path", path).
				WithContext("index", i)
		}
	}
	return trades, nil
}

// LoadExtraction reads one extraction collaborator result. A result the
// collaborator marked as not-a-confirmation is still valid input; the
// engine reports it as not relevant.
func LoadExtraction(path string) (*models.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ExtractionError(fmt.Sprintf("reading extraction file %s", path), err).
			WithContext("path", path)
	}

	var extraction models.ExtractionResult
	if err := json.Unmarshal(data, &extraction); err != nil {
		return nil, errors.ExtractionError(fmt.Sprintf("parsing extraction file %s", path), err).
			WithContext("path", path)
	}
	return &extraction, nil
}

// LoadAliasBook reads the counterparty alias book, a JSON object mapping
// canonical counterparty names to their known addresses, domains and
// aliases. An invalid book is a fatal configuration error.
func LoadAliasBook(path string) (*counterparty.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidAliasBook,
			fmt.Sprintf("counterparty alias book %s", path), err).
			WithContext("path", path)
	}

	var entries map[string]counterparty.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidAliasBook,
			fmt.Sprintf("counterparty alias book %s", path), err).
			WithContext("path", path)
	}
	book, err := counterparty.NewBook(entries)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidAliasBook,
			fmt.Sprintf("counterparty alias book %s", path), err).
			WithContext("path", path)
	}
	return book, nil
}
