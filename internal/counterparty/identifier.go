// Package counterparty resolves the free-text sender identity of an
// incoming confirmation (address, subject, body mentions) to a canonical
// counterparty name using a per-tenant alias book.
//
// Identification is best-effort: a confirmation with no identifiable
// counterparty still flows through scoring, it simply earns no counterparty
// points. The alias book is read-only during a batch and reloaded only
// between batches.
package counterparty

import (
	"fmt"
	"sort"
	"strings"
)

// Confidence levels returned by Identify, in strictly decreasing order of
// evidence strength. An exact registered address is the strongest signal; a
// free-text alias mention is the weakest accepted one.
const (
	ConfidenceExactAddress = 100
	ConfidenceDomain       = 90
	ConfidenceNameMention  = 85
	ConfidenceAliasMention = 80
)

// Entry is the registered identity surface of one counterparty.
type Entry struct {
	// Addresses are fully-qualified sender addresses registered for the
	// counterparty, matched exactly (case-insensitive).
	Addresses []string `json:"addresses" mapstructure:"addresses"`
	// Domains are sender-domain suffixes, e.g. "bancoabc.cl" also matches
	// "confirmations.bancoabc.cl".
	Domains []string `json:"domains" mapstructure:"domains"`
	// Aliases are free-text names the counterparty is known by in
	// confirmation subjects and bodies.
	Aliases []string `json:"aliases" mapstructure:"aliases"`
}

// Book is a validated, immutable alias table mapping canonical counterparty
// names to their registered identity surfaces.
type Book struct {
	names     []string            // canonical names, sorted for determinism
	entries   map[string]Entry    // canonical name -> normalized entry
	addresses map[string]string   // lowercased address -> canonical name
	aliases   []aliasBinding      // all aliases, longest first
}

type aliasBinding struct {
	alias string // lowercased
	owner string // canonical name
}

// Identification is the result of resolving a sender to a counterparty.
// A zero Identification means nothing matched, which is not an error.
type Identification struct {
	Name       string
	Confidence int
}

// Identified reports whether any counterparty matched.
func (id Identification) Identified() bool {
	return id.Name != ""
}

// NewBook validates and indexes an alias table. An empty or malformed book
// is an error: the engine must refuse to score rather than silently run
// with no counterparty evidence.
func NewBook(entries map[string]Entry) (*Book, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("counterparty book cannot be empty")
	}

	book := &Book{
		entries:   make(map[string]Entry, len(entries)),
		addresses: make(map[string]string),
	}

	for name, entry := range entries {
		canonical := strings.TrimSpace(name)
		if canonical == "" {
			return nil, fmt.Errorf("counterparty book contains an entry with an empty canonical name")
		}

		normalized := Entry{}
		for _, addr := range entry.Addresses {
			addr = strings.ToLower(strings.TrimSpace(addr))
			if addr == "" || !strings.Contains(addr, "@") {
				return nil, fmt.Errorf("counterparty %q: invalid registered address %q", canonical, addr)
			}
			normalized.Addresses = append(normalized.Addresses, addr)
			book.addresses[addr] = canonical
		}
		for _, domain := range entry.Domains {
			domain = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(domain, "@")))
			if domain == "" {
				return nil, fmt.Errorf("counterparty %q: empty registered domain", canonical)
			}
			normalized.Domains = append(normalized.Domains, domain)
		}
		for _, alias := range entry.Aliases {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias == "" {
				continue
			}
			normalized.Aliases = append(normalized.Aliases, alias)
			book.aliases = append(book.aliases, aliasBinding{alias: alias, owner: canonical})
		}

		book.entries[canonical] = normalized
		book.names = append(book.names, canonical)
	}

	sort.Strings(book.names)

	// Longest alias first, so "banco abc chile" wins over "banco abc" and a
	// partial alias never shadows a more specific one.
	sort.SliceStable(book.aliases, func(i, j int) bool {
		if len(book.aliases[i].alias) != len(book.aliases[j].alias) {
			return len(book.aliases[i].alias) > len(book.aliases[j].alias)
		}
		return book.aliases[i].alias < book.aliases[j].alias
	})

	return book, nil
}

// Names returns the canonical counterparty names in sorted order.
func (b *Book) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Identify resolves sender text to the best-matching canonical counterparty
// name. Evidence is checked in strictly decreasing confidence order and the
// first exact address or domain hit wins outright; name and alias mentions
// scan every counterparty and keep the highest-scoring hit.
func (b *Book) Identify(senderAddress, subject, body string) Identification {
	address := strings.ToLower(strings.TrimSpace(senderAddress))

	// Step 1: exact registered address.
	if owner, ok := b.addresses[address]; ok {
		return Identification{Name: owner, Confidence: ConfidenceExactAddress}
	}

	// Step 2: registered domain suffix.
	if domain := addressDomain(address); domain != "" {
		for _, name := range b.names {
			for _, registered := range b.entries[name].Domains {
				if domain == registered || strings.HasSuffix(domain, "."+registered) {
					return Identification{Name: name, Confidence: ConfidenceDomain}
				}
			}
		}
	}

	text := strings.ToLower(subject + " " + body)
	var best Identification

	// Step 3: canonical name mentioned in the combined text.
	for _, name := range b.names {
		if strings.Contains(text, strings.ToLower(name)) && ConfidenceNameMention > best.Confidence {
			best = Identification{Name: name, Confidence: ConfidenceNameMention}
		}
	}

	// Step 4: registered alias mentioned, longest alias first.
	if best.Confidence < ConfidenceAliasMention {
		for _, binding := range b.aliases {
			if strings.Contains(text, binding.alias) {
				best = Identification{Name: binding.owner, Confidence: ConfidenceAliasMention}
				break
			}
		}
	}

	return best
}

// addressDomain extracts the domain part of a sender address.
func addressDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return address[at+1:]
}
