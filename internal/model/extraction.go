package model

import "github.com/shopspring/decimal"

// Extraction field names used by the confidence scorer's weight table and the
// LLM prompt schema.
const (
	FieldVendor        = "vendor"
	FieldAmount        = "amount"
	FieldDate          = "date"
	FieldDescription   = "description"
	FieldCategory      = "category"
	FieldPaymentMethod = "payment_method"
	FieldRecipientID   = "recipient_id"
)

// LineItem is one itemized row extracted from a receipt or invoice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    float64         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// ExtractedRecord is the structured output of one LLM extraction. Fields the
// model could not produce are nil; FieldConfidence carries the model's own
// per-field confidence in [0,1].
type ExtractedRecord struct {
	Vendor          *string            `json:"vendor"`
	Amount          *decimal.Decimal   `json:"amount"`
	Date            *string            `json:"date"` // YYYY-MM-DD
	Description     *string            `json:"description"`
	Category        *string            `json:"category"`
	PaymentMethod   *string            `json:"payment_method"`
	RecipientID     *string            `json:"recipient_id"`
	Currency        *string            `json:"currency"`
	IsIncome        bool               `json:"is_income"`
	LineItems       []LineItem         `json:"line_items,omitempty"`
	FieldConfidence map[string]float64 `json:"field_confidence"`
	ExtractionError string             `json:"extraction_error,omitempty"`
}

// Field returns the extracted value for a named field, or nil when the field
// is absent or empty.
func (r *ExtractedRecord) Field(name string) any {
	strField := func(p *string) any {
		if p == nil || *p == "" {
			return nil
		}
		return *p
	}
	switch name {
	case FieldVendor:
		return strField(r.Vendor)
	case FieldAmount:
		if r.Amount == nil {
			return nil
		}
		return *r.Amount
	case FieldDate:
		return strField(r.Date)
	case FieldDescription:
		return strField(r.Description)
	case FieldCategory:
		return strField(r.Category)
	case FieldPaymentMethod:
		return strField(r.PaymentMethod)
	case FieldRecipientID:
		return strField(r.RecipientID)
	}
	return nil
}

// HasCriticalFields reports whether vendor, amount and date are all present.
func (r *ExtractedRecord) HasCriticalFields() bool {
	return r.Field(FieldVendor) != nil && r.Field(FieldAmount) != nil && r.Field(FieldDate) != nil
}

// MultiTransactionResult aggregates the per-transaction records extracted
// from a multi-transaction document, in document order.
type MultiTransactionResult struct {
	Transactions         []*ExtractedRecord `json:"transactions"`
	TotalRawTransactions int                `json:"total_raw_transactions,omitempty"`
	ValidTransactions    int                `json:"valid_transactions,omitempty"`
}

// ExtractionOutcome is the merged result of all chunk extractions for one
// document: exactly one of Record or Multi is set.
type ExtractionOutcome struct {
	Record *ExtractedRecord
	Multi  *MultiTransactionResult
}

// IsMulti reports whether the outcome carries multiple transactions.
func (o *ExtractionOutcome) IsMulti() bool {
	return o.Multi != nil
}
