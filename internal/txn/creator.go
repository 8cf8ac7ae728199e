// Package txn materializes extracted records into persisted transactions:
// required-field validation, category resolution, status routing, and
// document linking.
package txn

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/category"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/extract"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/scoring"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
)

const (
	// Confidence bands for status routing, applied only after the
	// required-field gate passes.
	approveThreshold = 0.95
	pendingThreshold = 0.85

	// multiRecordThreshold filters low-confidence rows out of a
	// multi-transaction batch.
	multiRecordThreshold = 0.85
)

// Creator builds transactions from extraction outcomes.
type Creator struct {
	store    store.Store
	resolver *category.Resolver

	// ConfidenceThreshold gates auto-creation (ShouldCreate).
	ConfidenceThreshold float64
}

func NewCreator(s store.Store, r *category.Resolver, confidenceThreshold float64) *Creator {
	return &Creator{store: s, resolver: r, ConfidenceThreshold: confidenceThreshold}
}

// ShouldCreate reports whether a record is worth materializing at all:
// confidence at threshold and all critical fields present.
func (c *Creator) ShouldCreate(rec *model.ExtractedRecord, confidence float64) bool {
	return confidence >= c.ConfidenceThreshold && rec != nil && rec.HasCriticalFields()
}

// missingRequiredFields returns the gate failures for a record, upper-cased
// for the notes line. Vendor is excused for transfers and deposits.
func missingRequiredFields(rec *model.ExtractedRecord) []string {
	var missing []string
	if rec.Field(model.FieldCategory) == nil {
		missing = append(missing, "CATEGORY")
	}
	if rec.Field(model.FieldPaymentMethod) == nil {
		missing = append(missing, "PAYMENT_METHOD")
	}
	desc := ""
	if rec.Description != nil {
		desc = strings.ToLower(*rec.Description)
	}
	if rec.Field(model.FieldVendor) == nil && !strings.Contains(desc, "transfer") && !strings.Contains(desc, "deposit") {
		missing = append(missing, "VENDOR")
	}
	if rec.Amount == nil || !rec.Amount.IsPositive() {
		missing = append(missing, "AMOUNT")
	}
	return missing
}

func decideStatus(missing []string, confidence float64) (model.TransactionStatus, string) {
	if len(missing) > 0 {
		return model.TransactionPending, "MISSING REQUIRED FIELDS: " + strings.Join(missing, ", ")
	}
	switch {
	case confidence >= approveThreshold:
		return model.TransactionApproved, ""
	case confidence >= pendingThreshold:
		return model.TransactionPending, ""
	default:
		return model.TransactionDraft, ""
	}
}

// CreateFromRecord persists one transaction for a single-record extraction
// and links it to the source document.
func (c *Creator) CreateFromRecord(ctx context.Context, doc *model.Document, rec *model.ExtractedRecord, accountID string, confidence float64) (*model.Transaction, error) {
	tx, err := c.build(ctx, doc, rec, accountID, confidence, nil, "")
	if err != nil {
		return nil, err
	}
	if err := c.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	patch := store.DocumentPatch{
		TransactionID:          &tx.ID,
		AutoCreatedTransaction: boolPtr(true),
	}
	if err := c.store.PatchDocument(ctx, doc.ID, patch); err != nil {
		return nil, fmt.Errorf("link document %s: %w", doc.ID, err)
	}
	return tx, nil
}

// CreateFromMulti persists one transaction per qualifying record of a
// multi-transaction extraction, preserving document order, then links the
// batch to the source document.
func (c *Creator) CreateFromMulti(ctx context.Context, doc *model.Document, multi *model.MultiTransactionResult, accountID string) ([]*model.Transaction, error) {
	var created []*model.Transaction
	for i, rec := range multi.Transactions {
		confidence := scoring.ScoreRecord(rec)
		if confidence < multiRecordThreshold {
			log.Printf("[creator] document %s: skipping transaction %d (confidence %.2f)", doc.ID, i, confidence)
			continue
		}
		idx := i
		note := fmt.Sprintf("Transaction #%d from multi-transaction document", i+1)
		tx, err := c.build(ctx, doc, rec, accountID, confidence, &idx, note)
		if err != nil {
			log.Printf("[creator] document %s: transaction %d invalid: %v", doc.ID, i, err)
			continue
		}
		if err := c.store.CreateTransaction(ctx, tx); err != nil {
			return created, fmt.Errorf("create transaction %d: %w", i, err)
		}
		created = append(created, tx)
	}

	if len(created) == 0 {
		return nil, nil
	}

	ids := make([]string, len(created))
	for i, tx := range created {
		ids[i] = tx.ID
	}
	patch := store.DocumentPatch{
		TransactionID:          &created[0].ID,
		LinkedTransactionIDs:   ids,
		MultiTransactionCount:  intPtr(len(created)),
		AutoCreatedTransaction: boolPtr(true),
	}
	if err := c.store.PatchDocument(ctx, doc.ID, patch); err != nil {
		return created, fmt.Errorf("link document %s: %w", doc.ID, err)
	}
	return created, nil
}

// build assembles an unpersisted transaction from a record: normalized
// vendor, resolved category, ISO date, routed status.
func (c *Creator) build(ctx context.Context, doc *model.Document, rec *model.ExtractedRecord, accountID string, confidence float64, index *int, extraNote string) (*model.Transaction, error) {
	if rec.Amount == nil {
		return nil, fmt.Errorf("record has no amount")
	}

	var categoryID *string
	if rec.Category != nil {
		id, err := c.resolver.Resolve(ctx, doc.BusinessID, *rec.Category)
		if err != nil {
			return nil, err
		}
		if id != "" {
			categoryID = &id
		} else {
			// Unresolvable category counts as missing for the gate.
			rec = shallowWithoutCategory(rec)
		}
	}

	missing := missingRequiredFields(rec)
	status, gateNote := decideStatus(missing, confidence)

	notes := gateNote
	if extraNote != "" {
		if notes != "" {
			notes = extraNote + "; " + notes
		} else {
			notes = extraNote
		}
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if rec.Date != nil {
		if parsed := extract.ParseFlexibleDate(*rec.Date); !parsed.IsZero() {
			date = parsed
		}
	}

	vendor := ""
	if rec.Vendor != nil {
		vendor = NormalizeVendor(*rec.Vendor)
	}
	description := ""
	if rec.Description != nil {
		description = *rec.Description
	}
	paymentMethod := ""
	if rec.PaymentMethod != nil {
		paymentMethod = *rec.PaymentMethod
	}
	currency := "USD"
	if rec.Currency != nil {
		currency = *rec.Currency
	}

	now := time.Now().UTC()
	tx := &model.Transaction{
		ID:               uuid.New().String(),
		BusinessID:       doc.BusinessID,
		AccountID:        accountID,
		CategoryID:       categoryID,
		UserID:           doc.UserID,
		Amount:           rec.Amount.Round(2),
		Currency:         currency,
		Date:             date,
		Description:      description,
		Vendor:           vendor,
		PaymentMethod:    paymentMethod,
		IsIncome:         rec.IsIncome,
		Status:           status,
		Notes:            notes,
		SourceDocumentID: &doc.ID,
		TransactionIndex: index,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if status == model.TransactionApproved {
		tx.ApprovedBy = "system"
		tx.ApprovedAt = &now
	}
	return tx, nil
}

func shallowWithoutCategory(rec *model.ExtractedRecord) *model.ExtractedRecord {
	clone := *rec
	clone.Category = nil
	return &clone
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
