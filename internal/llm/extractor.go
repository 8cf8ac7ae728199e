package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
)

// maxChunkChars bounds how much document text goes into one prompt.
const maxChunkChars = 8000

const (
	extractionMaxTokens     = 2000
	classificationMaxTokens = 200
	defaultTemperature      = 0.3
)

const systemPrompt = "You are a financial document extraction engine. " +
	"Reply with JSON only. Amounts are plain numbers with no currency symbols or thousands separators. Dates are YYYY-MM-DD."

const recordSchema = `{
  "vendor": "string or null",
  "amount": number or null,
  "date": "YYYY-MM-DD or null",
  "description": "string or null",
  "category": "one of the listed categories, or null",
  "payment_method": "string or null",
  "recipient_id": "string or null",
  "currency": "ISO 4217 code or null",
  "is_income": true or false,
  "line_items": [{"description": "string", "quantity": number, "unit_price": number, "total": number}],
  "field_confidence": {"vendor": 0.0-1.0, "amount": 0.0-1.0, "date": 0.0-1.0, "description": 0.0-1.0, "category": 0.0-1.0, "payment_method": 0.0-1.0}
}`

// promptTemplates carries document-type-specific extraction instructions.
// Types without an entry fall back to genericTemplate.
var promptTemplates = map[string]string{
	"receipt": "This is a point-of-sale receipt. Extract the merchant name as vendor, the final total " +
		"(after tax) as amount, the purchase date, and the payment method including any card suffix. " +
		"Itemize line items when legible.",
	"invoice": "This is an invoice. Extract the issuing company as vendor, the amount due as amount, " +
		"the invoice date (not the due date) as date, and reference numbers into description.",
	"utility_bill": "This is a utility bill. Extract the utility provider as vendor, the total amount due " +
		"as amount, the bill date as date, and the service/billing period into description.",
	"paystub": "This is a pay stub. Extract the employer as vendor, the NET pay as amount, the pay date " +
		"as date, and set is_income to true.",
	"bank_statement": "This is a bank statement. Extract EVERY transaction line. Negative or debit " +
		"amounts are expenses; positive or credit amounts are income (set is_income accordingly, amount always positive).",
	"expense_report": "This is an expense report. Extract every expense row with its vendor, amount and date.",
	"credit_card_statement": "This is a credit card statement. Extract every purchase and payment line. " +
		"Purchases are expenses; payments and credits are income.",
}

const genericTemplate = "Extract the financial transaction(s) from this document. Identify the vendor, " +
	"total amount, transaction date, payment method and a fitting category."

const multiInstruction = "\nThis document contains MULTIPLE transactions. Return " +
	`{"extraction_type": "multi_transaction", "transactions": [<record>, ...]} ` +
	"with one record per transaction, in document order. Never merge transactions."

// ChunkResult is what one chunk extraction produced: a single record or an
// ordered batch.
type ChunkResult struct {
	Record *model.ExtractedRecord
	Multi  []*model.ExtractedRecord
}

// Extractor drives per-chunk structured extraction through a Client.
type Extractor struct {
	client Client

	// Retry governs transport/parse retries per chunk.
	Retry RetryConfig
}

func NewExtractor(client Client) *Extractor {
	return &Extractor{client: client, Retry: DefaultRetryConfig}
}

// ExtractChunk extracts one chunk. Exhausted retries return a
// zero-confidence record with ExtractionError set rather than an error, so
// scoring downstream still runs.
func (e *Extractor) ExtractChunk(ctx context.Context, text, docType, categoryListing string, forceMulti bool) *ChunkResult {
	prompt := e.buildPrompt(text, docType, categoryListing, forceMulti)

	result, err := WithRetry(ctx, e.Retry, func(ctx context.Context) (*ChunkResult, error) {
		raw, err := e.client.ChatJSON(ctx, Request{
			System:      systemPrompt,
			Prompt:      prompt,
			MaxTokens:   extractionMaxTokens,
			Temperature: defaultTemperature,
			JSONMode:    true,
		})
		if err != nil {
			return nil, err
		}
		return parseChunkResponse(raw, forceMulti)
	})
	if err != nil {
		log.Printf("[llm] chunk extraction failed after retries: %v", err)
		return &ChunkResult{Record: &model.ExtractedRecord{
			FieldConfidence: map[string]float64{},
			ExtractionError: err.Error(),
		}}
	}
	return result
}

// ConfirmDocumentType asks the model for a short classification confirmation.
// Failures fall back to the heuristic type.
func (e *Extractor) ConfirmDocumentType(ctx context.Context, text, heuristicType string) string {
	prompt := fmt.Sprintf(
		"What kind of financial document is this? Answer with JSON {\"document_type\": \"...\"} using one of: receipt, invoice, utility_bill, paystub, bank_statement, expense_report, credit_card_statement, unknown.\n\nDocument:\n%s",
		truncate(text, 2000))

	raw, err := e.client.ChatJSON(ctx, Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   classificationMaxTokens,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return heuristicType
	}
	var resp struct {
		DocumentType string `json:"document_type"`
	}
	if err := ParseJSON(raw, &resp); err != nil || resp.DocumentType == "" {
		return heuristicType
	}
	return resp.DocumentType
}

func (e *Extractor) buildPrompt(text, docType, categoryListing string, forceMulti bool) string {
	template, ok := promptTemplates[strings.TrimSuffix(docType, "_multi")]
	if !ok {
		template = genericTemplate
	}

	var sb strings.Builder
	sb.WriteString(template)
	if forceMulti || strings.HasSuffix(docType, "_multi") {
		sb.WriteString(multiInstruction)
	}
	sb.WriteString("\n\nOutput schema per transaction:\n")
	sb.WriteString(recordSchema)
	if categoryListing != "" {
		sb.WriteString("\n\nAvailable categories:\n")
		sb.WriteString(categoryListing)
	}
	sb.WriteString("\n\nDocument text:\n")
	sb.WriteString(truncate(text, maxChunkChars))
	return sb.String()
}

// parseChunkResponse decodes one completion into records, coercing lenient
// field types. A single object under force-multi is wrapped into a
// one-element batch.
func parseChunkResponse(raw string, forceMulti bool) (*ChunkResult, error) {
	var payload map[string]any
	if err := ParseJSON(raw, &payload); err != nil {
		return nil, err
	}

	if txs, ok := payload["transactions"].([]any); ok {
		records := make([]*model.ExtractedRecord, 0, len(txs))
		for _, tx := range txs {
			if m, ok := tx.(map[string]any); ok {
				records = append(records, coerceRecord(m))
			}
		}
		if len(records) == 0 {
			return nil, newError(ErrParseFailure, "multi-transaction response with no usable records")
		}
		return &ChunkResult{Multi: records}, nil
	}

	record := coerceRecord(payload)
	if forceMulti {
		return &ChunkResult{Multi: []*model.ExtractedRecord{record}}, nil
	}
	return &ChunkResult{Record: record}, nil
}

// coerceRecord converts an untyped decoded object into an ExtractedRecord.
// Invalid numerics become null with confidence 0.5.
func coerceRecord(m map[string]any) *model.ExtractedRecord {
	rec := &model.ExtractedRecord{FieldConfidence: map[string]float64{}}

	if fc, ok := m["field_confidence"].(map[string]any); ok {
		for field, v := range fc {
			if f, ok := asFloat(v); ok {
				rec.FieldConfidence[field] = clamp01(f)
			}
		}
	}

	rec.Vendor = asStringPtr(m["vendor"])
	rec.Date = asStringPtr(m["date"])
	rec.Description = asStringPtr(m["description"])
	rec.Category = asStringPtr(m["category"])
	rec.PaymentMethod = asStringPtr(m["payment_method"])
	rec.RecipientID = asStringPtr(m["recipient_id"])
	rec.Currency = asStringPtr(m["currency"])
	if b, ok := m["is_income"].(bool); ok {
		rec.IsIncome = b
	}

	if amount, ok := asDecimal(m["amount"]); ok {
		rec.Amount = &amount
		if amount.IsNegative() {
			positive := amount.Neg()
			rec.Amount = &positive
		}
	} else if m["amount"] != nil {
		// Present but unusable: null it and mark the uncertainty.
		rec.FieldConfidence[model.FieldAmount] = 0.5
	}

	if items, ok := m["line_items"].([]any); ok {
		for _, item := range items {
			im, ok := item.(map[string]any)
			if !ok {
				continue
			}
			li := model.LineItem{}
			if s := asStringPtr(im["description"]); s != nil {
				li.Description = *s
			}
			if q, ok := asFloat(im["quantity"]); ok {
				li.Quantity = q
			}
			if d, ok := asDecimal(im["unit_price"]); ok {
				li.UnitPrice = d
			}
			if d, ok := asDecimal(im["total"]); ok {
				li.Total = d
			}
			rec.LineItems = append(rec.LineItems, li)
		}
	}

	return rec
}

func asStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return nil
	}
	return &s
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		f, _ := d.Float64()
		return f, true
	}
	return 0, false
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(n)
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
