// Package pipeline drives a document from stored file to ledgered
// transactions: extraction, classification, chunking, LLM extraction,
// scoring, creation and approval routing.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/category"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/chunk"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/classify"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/extract"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/ledger"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/llm"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/scoring"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/storage"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/txn"
)

// Orchestrator processes one document end to end. Safe for concurrent use by
// multiple pool workers; each invocation touches a single document.
type Orchestrator struct {
	Store      store.Store
	Objects    storage.ObjectStore
	Bucket     string
	Processor  *extract.Processor
	Classifier *classify.Classifier
	Chunker    *chunk.Chunker
	Resolver   *category.Resolver
	Extractor  *llm.Extractor
	Creator    *txn.Creator
	Ledger     *ledger.Service

	// DocumentTimeout is the per-document budget; exceeding it marks the
	// document failed with processing_error "timeout".
	DocumentTimeout time.Duration

	// ClassifierConfidenceThreshold asks the model to confirm the document
	// type when the heuristic verdict scores below it. Zero disables the
	// confirmation call.
	ClassifierConfidenceThreshold float64
}

// Process runs the full pipeline for one document id. The document always
// reaches a terminal status: completed, or failed with a processing_error.
func (o *Orchestrator) Process(ctx context.Context, documentID string) error {
	timeout := o.DocumentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := o.Store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	if err := o.setStatus(ctx, doc.ID, model.ExtractionProcessing, ""); err != nil {
		return err
	}

	err = o.process(ctx, doc)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(err, context.Canceled) {
			reason = "canceled"
		}
		// A cancelled context cannot write the failure; use a fresh one so
		// the document does not stay stuck in processing.
		failCtx, failCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer failCancel()
		if ferr := o.setStatus(failCtx, doc.ID, model.ExtractionFailed, reason); ferr != nil {
			log.Printf("[orchestrator] document %s: failed to record failure: %v", doc.ID, ferr)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, doc *model.Document) error {
	// Fetch the stored file into a temp path for the extractors. The temp
	// file is removed on every exit path.
	data, err := o.Objects.Download(ctx, o.Bucket, doc.FilePath)
	if err != nil {
		return fmt.Errorf("download %s: %w", doc.FilePath, err)
	}
	tmp, err := os.CreateTemp("", "ingest-*"+filepath.Ext(doc.FilePath))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	dispatch := o.Processor.Process(ctx, tmpPath)
	if dispatch.Err != nil {
		return fmt.Errorf("extraction: %w", dispatch.Err)
	}
	raw := dispatch.Result

	verdict := o.Classifier.Classify(doc.FilePath, raw.RawText, raw.Structured)
	log.Printf("[orchestrator] document %s: type=%s confidence=%.2f multi=%v",
		doc.ID, verdict.DocumentType, verdict.Confidence, verdict.IsMultiTransaction)

	if o.ClassifierConfidenceThreshold > 0 && verdict.Confidence < o.ClassifierConfidenceThreshold {
		confirmed := o.Extractor.ConfirmDocumentType(ctx, raw.RawText, verdict.DocumentType)
		if confirmed != verdict.DocumentType {
			log.Printf("[orchestrator] document %s: classifier unsure (%.2f), model confirmed type %s",
				doc.ID, verdict.Confidence, confirmed)
			if strings.HasSuffix(verdict.DocumentType, "_multi") {
				confirmed += "_multi"
			}
			verdict.DocumentType = confirmed
		}
	}

	outcome, err := o.extractAll(ctx, doc, raw, verdict)
	if err != nil {
		return err
	}

	assessment := scoring.Score(outcome)
	log.Printf("[orchestrator] document %s: score=%.2f action=%s", doc.ID, assessment.Score, assessment.Action)

	if err := o.createTransactions(ctx, doc, outcome, assessment); err != nil {
		return err
	}

	now := time.Now().UTC()
	completed := model.ExtractionCompleted
	patch := store.DocumentPatch{
		ExtractionStatus: &completed,
		DocumentType:     &verdict.DocumentType,
		RawText:          &raw.RawText,
		StructuredData:   raw.Structured,
		ConfidenceScore:  &assessment.Score,
		ProcessedAt:      &now,
	}
	if err := o.Store.PatchDocument(ctx, doc.ID, patch); err != nil {
		return fmt.Errorf("complete document %s: %w", doc.ID, err)
	}
	return nil
}

// extractAll runs the chunk decision and the per-chunk LLM extraction,
// merging results into one outcome. Chunks run strictly in order so that
// multi-transaction indices follow document order.
func (o *Orchestrator) extractAll(ctx context.Context, doc *model.Document, raw *extract.RawExtraction, verdict classify.Result) (*model.ExtractionOutcome, error) {
	categoryListing, err := o.Resolver.ListForPrompt(ctx, doc.BusinessID)
	if err != nil {
		return nil, err
	}

	txCount := 0
	if raw.Structured != nil {
		if txs, ok := raw.Structured["transactions"].([]map[string]any); ok {
			txCount = len(txs)
		}
	}
	if txCount == 0 {
		// Text-only extractions (PDF, OCR) carry no structured rows; count
		// transaction-shaped lines so dense statements still chunk.
		txCount = extract.CountTransactionLines(raw.RawText)
	}

	var chunks []chunk.Chunk
	if o.Chunker.ShouldChunk(raw.RawText, txCount) {
		chunks, err = o.Chunker.Split(raw.RawText, raw.Structured)
		if err != nil {
			return nil, fmt.Errorf("chunking: %w", err)
		}
		log.Printf("[orchestrator] document %s: %d chunks (%s), est %s",
			doc.ID, len(chunks), chunks[0].Type, chunk.EstimateProcessingTime(chunks))
	} else {
		chunks = []chunk.Chunk{{ID: "single_0", Type: "single", Text: raw.RawText, CharCount: len(raw.RawText)}}
	}

	forceMulti := verdict.IsMultiTransaction || len(chunks) > 1

	var merged []*model.ExtractedRecord
	var single *model.ExtractedRecord
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := ch.Text
		if ch.Type == chunk.StrategyTransactions {
			rendered, err := json.MarshalIndent(ch.Transactions, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("render transaction chunk: %w", err)
			}
			text = string(rendered)
		}

		result := o.Extractor.ExtractChunk(ctx, text, verdict.DocumentType, categoryListing, forceMulti)
		switch {
		case result.Multi != nil:
			merged = append(merged, result.Multi...)
		case result.Record != nil:
			if forceMulti {
				merged = append(merged, result.Record)
			} else {
				single = result.Record
			}
		}
	}

	if single != nil {
		return &model.ExtractionOutcome{Record: single}, nil
	}
	multi := &model.MultiTransactionResult{
		Transactions:         merged,
		TotalRawTransactions: txCount,
		ValidTransactions:    len(merged),
	}
	return &model.ExtractionOutcome{Multi: multi}, nil
}

// createTransactions materializes and, for auto-approvals, ledgers the
// extracted transactions. Re-runs of an already linked document route
// approvals again (the ledger is idempotent) without creating duplicates.
func (o *Orchestrator) createTransactions(ctx context.Context, doc *model.Document, outcome *model.ExtractionOutcome, assessment scoring.Assessment) error {
	existing, err := o.Store.ListTransactions(ctx, store.TransactionFilter{SourceDocumentID: doc.ID})
	if err != nil {
		return fmt.Errorf("list existing transactions: %w", err)
	}
	if len(existing) > 0 {
		log.Printf("[orchestrator] document %s: %d transactions already created, skipping creation", doc.ID, len(existing))
		return o.routeApprovals(ctx, existing)
	}

	account, err := o.primaryAccount(ctx, doc.BusinessID)
	if err != nil {
		return err
	}

	var created []*model.Transaction
	if outcome.IsMulti() {
		created, err = o.Creator.CreateFromMulti(ctx, doc, outcome.Multi, account.ID)
	} else {
		rec := outcome.Record
		if !o.Creator.ShouldCreate(rec, assessment.Score) {
			log.Printf("[orchestrator] document %s: extraction below auto-create bar", doc.ID)
			return nil
		}
		var tx *model.Transaction
		tx, err = o.Creator.CreateFromRecord(ctx, doc, rec, account.ID, assessment.Score)
		if tx != nil {
			created = append(created, tx)
		}
	}
	if err != nil {
		return fmt.Errorf("create transactions: %w", err)
	}
	return o.routeApprovals(ctx, created)
}

// primaryAccount resolves the business's primary active account: highest
// is_primary wins, then the first active one.
func (o *Orchestrator) primaryAccount(ctx context.Context, businessID string) (*model.Account, error) {
	accounts, err := o.Store.ListAccounts(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for business %s: %w", businessID, err)
	}
	var fallback *model.Account
	for _, a := range accounts {
		if !a.IsActive {
			continue
		}
		if a.IsPrimary {
			return a, nil
		}
		if fallback == nil {
			fallback = a
		}
	}
	if fallback == nil {
		return nil, fmt.Errorf("business %s has no active account", businessID)
	}
	return fallback, nil
}

// routeApprovals posts every approved transaction to the ledger.
func (o *Orchestrator) routeApprovals(ctx context.Context, txs []*model.Transaction) error {
	for _, tx := range txs {
		if tx.Status != model.TransactionApproved {
			continue
		}
		desc := fmt.Sprintf("Auto-approved from document extraction: %s", tx.Vendor)
		if err := o.Ledger.Append(ctx, tx, "system", desc); err != nil {
			if errors.Is(err, ledger.ErrInvariantViolation) {
				// The approval must not stand without its ledger effect.
				log.Printf("[orchestrator] transaction %s: ledger invariant violation, demoting to pending", tx.ID)
				tx.Status = model.TransactionPending
				tx.Notes = appendNote(tx.Notes, "LEDGER POSTING FAILED: manual review required")
				if uerr := o.Store.UpdateTransaction(ctx, tx); uerr != nil {
					return fmt.Errorf("demote transaction %s: %w", tx.ID, uerr)
				}
				continue
			}
			return fmt.Errorf("ledger append for %s: %w", tx.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) setStatus(ctx context.Context, docID string, status model.ExtractionStatus, processingError string) error {
	patch := store.DocumentPatch{ExtractionStatus: &status}
	if processingError != "" {
		patch.ProcessingError = &processingError
	}
	if status == model.ExtractionFailed {
		now := time.Now().UTC()
		patch.ProcessedAt = &now
	}
	if err := o.Store.PatchDocument(ctx, docID, patch); err != nil {
		return fmt.Errorf("set document %s status %s: %w", docID, status, err)
	}
	return nil
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + "; " + extra
}
