package counterparty

import (
	"strings"
	"testing"
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	book, err := NewBook(map[string]Entry{
		"Banco ABC": {
			Addresses: []string{"confirmaciones@bancoabc.cl"},
			Domains:   []string{"bancoabc.cl"},
			Aliases:   []string{"Banco ABC", "Banco ABC Chile", "ABC"},
		},
		"Global Trade Bank": {
			Addresses: []string{"ops@gtb.com"},
			Domains:   []string{"gtb.com"},
			Aliases:   []string{"GTB"},
		},
	})
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	return book
}

func TestNewBookValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]Entry
	}{
		{"empty book", map[string]Entry{}},
		{"nil book", nil},
		{"empty canonical name", map[string]Entry{"  ": {Aliases: []string{"x"}}}},
		{"address without at sign", map[string]Entry{"A": {Addresses: []string{"not-an-address"}}}},
		{"empty domain", map[string]Entry{"A": {Domains: []string{"  "}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBook(tt.entries); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestIdentifyExactAddress(t *testing.T) {
	book := newTestBook(t)

	id := book.Identify("Confirmaciones@BancoABC.cl", "", "")
	if id.Name != "Banco ABC" || id.Confidence != ConfidenceExactAddress {
		t.Errorf("got %+v, want Banco ABC at %d", id, ConfidenceExactAddress)
	}
}

func TestIdentifyDomainSuffix(t *testing.T) {
	book := newTestBook(t)

	tests := []struct {
		name    string
		address string
	}{
		{"registered domain", "someone@bancoabc.cl"},
		{"subdomain", "noreply@confirmations.bancoabc.cl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := book.Identify(tt.address, "", "")
			if id.Name != "Banco ABC" || id.Confidence != ConfidenceDomain {
				t.Errorf("Identify(%s) = %+v, want Banco ABC at %d", tt.address, id, ConfidenceDomain)
			}
		})
	}
}

func TestIdentifySuffixIsLabelBounded(t *testing.T) {
	book := newTestBook(t)

	// "notbancoabc.cl" must not match the "bancoabc.cl" suffix.
	id := book.Identify("x@notbancoabc.cl", "", "")
	if id.Confidence == ConfidenceDomain {
		t.Errorf("domain suffix matched across a label boundary: %+v", id)
	}
}

func TestIdentifyNameMention(t *testing.T) {
	book := newTestBook(t)

	id := book.Identify("unknown@example.com", "FW: Confirmation", "Trade with Banco ABC attached")
	if id.Name != "Banco ABC" || id.Confidence != ConfidenceNameMention {
		t.Errorf("got %+v, want Banco ABC at %d", id, ConfidenceNameMention)
	}
}

func TestIdentifyAliasMentionLongestFirst(t *testing.T) {
	// Two counterparties with overlapping aliases: the longer, more specific
	// alias must win even though the shorter one also appears in the text.
	book, err := NewBook(map[string]Entry{
		"First Commercial":       {Aliases: []string{"FC Bank"}},
		"First Commercial Intl.": {Aliases: []string{"FC Bank International"}},
	})
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}

	id := book.Identify("unknown@example.com", "", "settlement via fc bank international desk")
	if id.Name != "First Commercial Intl." || id.Confidence != ConfidenceAliasMention {
		t.Errorf("got %+v, want the longest-alias owner", id)
	}
}

func TestIdentifyAliasOnly(t *testing.T) {
	book := newTestBook(t)

	id := book.Identify("unknown@example.com", "GTB confirmation 32013", "")
	if id.Name != "Global Trade Bank" || id.Confidence != ConfidenceAliasMention {
		t.Errorf("got %+v, want Global Trade Bank at %d", id, ConfidenceAliasMention)
	}
}

func TestIdentifyNothing(t *testing.T) {
	book := newTestBook(t)

	id := book.Identify("stranger@nowhere.org", "lunch?", "see you at noon")
	if id.Identified() {
		t.Errorf("got %+v, want no identification", id)
	}
	if id.Confidence != 0 {
		t.Errorf("unidentified confidence = %d, want 0", id.Confidence)
	}
}

func TestIdentifyPrecedence(t *testing.T) {
	book := newTestBook(t)

	// The sender address belongs to GTB while the body mentions Banco ABC;
	// the registered address must win.
	id := book.Identify("ops@gtb.com", "", "per our call with Banco ABC")
	if id.Name != "Global Trade Bank" || id.Confidence != ConfidenceExactAddress {
		t.Errorf("got %+v, want address evidence to dominate text mentions", id)
	}
}

func TestNamesSorted(t *testing.T) {
	book := newTestBook(t)

	names := book.Names()
	if len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}
	if !sortedStrings(names) {
		t.Errorf("Names() = %v, want sorted order", names)
	}
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if strings.Compare(s[i-1], s[i]) > 0 {
			return false
		}
	}
	return true
}
