// Package models defines the data model of the trade reconciliation engine:
// the client's self-reported TradeRecord, the counterparty's
// ConfirmationCandidate extracted from an incoming confirmation, the
// MatchResult produced by reconciling the two, and the Status lifecycle
// connecting them.
package models

import (
	"fmt"
	"strings"
	"time"

	"trade-reconciliation-engine/internal/normalize"

	"github.com/shopspring/decimal"
)

// Direction is the trade direction from the client's perspective.
type Direction string

const (
	// DirectionBuy means the client bought Currency1.
	DirectionBuy Direction = "BUY"
	// DirectionSell means the client sold Currency1.
	DirectionSell Direction = "SELL"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// ParseDirection parses and validates a trade direction from free text.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B", "BOUGHT", "COMPRA":
		return DirectionBuy, nil
	case "SELL", "S", "SOLD", "VENTA":
		return DirectionSell, nil
	default:
		return "", fmt.Errorf("invalid trade direction %q: must be BUY or SELL", s)
	}
}

// TradeRecord is the client's self-reported trade, owned by the trade
// ledger. It is created on upload and immutable afterwards except for the
// Status field, which only the reconciliation state machine mutates.
type TradeRecord struct {
	ID                 string              `json:"id"`
	CounterpartyName   string              `json:"counterpartyName"`
	Product            string              `json:"product"`
	Direction          Direction           `json:"direction"`
	Currency1          string              `json:"currency1"`
	Currency2          string              `json:"currency2"`
	PrincipalAmount    decimal.Decimal     `json:"principalAmount"`
	ForwardPrice       decimal.NullDecimal `json:"forwardPrice"`
	TradeDate          time.Time           `json:"tradeDate"`
	ValueDate          time.Time           `json:"valueDate"`
	MaturityDate       time.Time           `json:"maturityDate"`
	PaymentDate        time.Time           `json:"paymentDate"`
	SettlementType     string              `json:"settlementType"`
	SettlementCurrency string              `json:"settlementCurrency"`
	FixingReference    string              `json:"fixingReference"`
	PaymentMethod1     string              `json:"paymentMethod1"`
	PaymentMethod2     string              `json:"paymentMethod2"`
	Status             Status              `json:"status"`
	CreatedAt          time.Time           `json:"createdAt"`
}

// Validate performs basic validation on the TradeRecord.
func (t *TradeRecord) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("trade ID cannot be empty")
	}
	if !t.Direction.IsValid() {
		return fmt.Errorf("invalid trade direction: %s", t.Direction)
	}
	if strings.TrimSpace(t.Currency1) == "" || strings.TrimSpace(t.Currency2) == "" {
		return fmt.Errorf("trade %s: both currencies are required", t.ID)
	}
	if t.TradeDate.IsZero() {
		return fmt.Errorf("trade %s: trade date cannot be zero", t.ID)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("trade %s: invalid status %d", t.ID, int(t.Status))
	}
	return nil
}

// Clone returns a copy of the trade. Batch snapshots clone records so that
// scoring never observes a status another in-flight batch has changed.
func (t *TradeRecord) Clone() *TradeRecord {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// String returns a short representation for logs.
func (t *TradeRecord) String() string {
	return fmt.Sprintf("TradeRecord{ID: %s, Cpty: %s, Pair: %s/%s, Amount: %s, Status: %s}",
		t.ID, t.CounterpartyName, t.Currency1, t.Currency2, t.PrincipalAmount.String(), t.Status)
}

// ConfirmationCandidate is one trade mentioned inside one incoming
// confirmation, as structured by the external extraction step. Every field
// arrives as raw text and is normalized on demand; the candidate itself is
// ephemeral and never persisted beyond the match result it produces.
type ConfirmationCandidate struct {
	ExternalReference  string    `json:"externalReference"`
	CounterpartyName   string    `json:"counterpartyName"`
	Product            string    `json:"product"`
	Direction          string    `json:"direction"`
	Currency1          string    `json:"currency1"`
	Currency2          string    `json:"currency2"`
	PrincipalAmount    string    `json:"principalAmount"`
	ForwardPrice       string    `json:"forwardPrice"`
	TradeDate          string    `json:"tradeDate"`
	ValueDate          string    `json:"valueDate"`
	MaturityDate       string    `json:"maturityDate"`
	PaymentDate        string    `json:"paymentDate"`
	SettlementType     string    `json:"settlementType"`
	SettlementCurrency string    `json:"settlementCurrency"`
	FixingReference    string    `json:"fixingReference"`
	PaymentMethod1     string    `json:"paymentMethod1"`
	PaymentMethod2     string    `json:"paymentMethod2"`
	SenderAddress      string    `json:"senderAddress"`
	ReceivedAt         time.Time `json:"receivedAt"`
}

// String returns a short representation for logs.
func (c *ConfirmationCandidate) String() string {
	return fmt.Sprintf("ConfirmationCandidate{Ref: %s, Cpty: %s, Pair: %s/%s, Amount: %s}",
		c.ExternalReference, c.CounterpartyName, c.Currency1, c.Currency2, c.PrincipalAmount)
}

// ExtractionResult is the output of the external extraction collaborator
// for one incoming confirmation (one email, possibly several trade
// mentions). Extraction failures arrive here as data, not as engine errors.
type ExtractionResult struct {
	IsConfirmation bool                     `json:"isConfirmation"`
	Candidates     []*ConfirmationCandidate `json:"candidates"`
	SenderAddress  string                   `json:"senderAddress"`
	Subject        string                   `json:"subject"`
	BodyText       string                   `json:"bodyText"`
	ReceivedAt     time.Time                `json:"receivedAt"`
}

// Comparable field names, shared between both sides so the discrepancy
// detector walks the same list for trade and candidate. Identifiers are
// deliberately excluded.
const (
	FieldCounterpartyName   = "counterparty_name"
	FieldProduct            = "product"
	FieldDirection          = "direction"
	FieldCurrency1          = "currency_1"
	FieldCurrency2          = "currency_2"
	FieldPrincipalAmount    = "principal_amount"
	FieldForwardPrice       = "forward_price"
	FieldTradeDate          = "trade_date"
	FieldValueDate          = "value_date"
	FieldMaturityDate       = "maturity_date"
	FieldPaymentDate        = "payment_date"
	FieldSettlementType     = "settlement_type"
	FieldSettlementCurrency = "settlement_currency"
	FieldFixingReference    = "fixing_reference"
	FieldPaymentMethod1     = "payment_method_1"
	FieldPaymentMethod2     = "payment_method_2"
)

// ComparableFieldNames lists every comparable field in a stable order, so
// discrepancy output is deterministic.
func ComparableFieldNames() []string {
	return []string{
		FieldCounterpartyName,
		FieldProduct,
		FieldDirection,
		FieldCurrency1,
		FieldCurrency2,
		FieldPrincipalAmount,
		FieldForwardPrice,
		FieldTradeDate,
		FieldValueDate,
		FieldMaturityDate,
		FieldPaymentDate,
		FieldSettlementType,
		FieldSettlementCurrency,
		FieldFixingReference,
		FieldPaymentMethod1,
		FieldPaymentMethod2,
	}
}

// ComparableFields returns the trade's normalized field values keyed by
// field name.
func (t *TradeRecord) ComparableFields() map[string]normalize.Value {
	forward := normalize.Absent
	if t.ForwardPrice.Valid {
		forward = normalize.FromDecimal(t.ForwardPrice.Decimal)
	}
	return map[string]normalize.Value{
		FieldCounterpartyName:   normalize.String(t.CounterpartyName),
		FieldProduct:            normalize.String(t.Product),
		FieldDirection:          normalize.String(string(t.Direction)),
		FieldCurrency1:          normalize.Currency(t.Currency1),
		FieldCurrency2:          normalize.Currency(t.Currency2),
		FieldPrincipalAmount:    normalize.FromDecimal(t.PrincipalAmount),
		FieldForwardPrice:       forward,
		FieldTradeDate:          normalize.FromTime(t.TradeDate),
		FieldValueDate:          normalize.FromTime(t.ValueDate),
		FieldMaturityDate:       normalize.FromTime(t.MaturityDate),
		FieldPaymentDate:        normalize.FromTime(t.PaymentDate),
		FieldSettlementType:     normalize.String(t.SettlementType),
		FieldSettlementCurrency: normalize.Currency(t.SettlementCurrency),
		FieldFixingReference:    normalize.String(t.FixingReference),
		FieldPaymentMethod1:     normalize.String(t.PaymentMethod1),
		FieldPaymentMethod2:     normalize.String(t.PaymentMethod2),
	}
}

// ComparableFields returns the candidate's normalized field values keyed by
// field name. Malformed numbers and dates normalize to absent and degrade
// the candidate's score contribution without aborting it.
func (c *ConfirmationCandidate) ComparableFields() map[string]normalize.Value {
	direction := normalize.Absent
	if parsed, err := ParseDirection(c.Direction); err == nil {
		direction = normalize.String(string(parsed))
	}
	return map[string]normalize.Value{
		FieldCounterpartyName:   normalize.String(c.CounterpartyName),
		FieldProduct:            normalize.String(c.Product),
		FieldDirection:          direction,
		FieldCurrency1:          normalize.Currency(c.Currency1),
		FieldCurrency2:          normalize.Currency(c.Currency2),
		FieldPrincipalAmount:    normalize.Number(c.PrincipalAmount),
		FieldForwardPrice:       normalize.Number(c.ForwardPrice),
		FieldTradeDate:          normalize.Date(c.TradeDate),
		FieldValueDate:          normalize.Date(c.ValueDate),
		FieldMaturityDate:       normalize.Date(c.MaturityDate),
		FieldPaymentDate:        normalize.Date(c.PaymentDate),
		FieldSettlementType:     normalize.String(c.SettlementType),
		FieldSettlementCurrency: normalize.Currency(c.SettlementCurrency),
		FieldFixingReference:    normalize.String(c.FixingReference),
		FieldPaymentMethod1:     normalize.String(c.PaymentMethod1),
		FieldPaymentMethod2:     normalize.String(c.PaymentMethod2),
	}
}
