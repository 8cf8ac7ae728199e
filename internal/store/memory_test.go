package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
)

func TestCompareAndSwapBalance(t *testing.T) {
	st := NewMemoryStore()
	st.PutAccount(&model.Account{ID: "acct1", BusinessID: "biz1", IsActive: true})
	ctx := context.Background()

	ten := decimal.NewFromInt(10)
	require.NoError(t, st.CompareAndSwapBalance(ctx, "acct1", decimal.Zero, ten))

	acct, err := st.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, acct.CurrentBalance.Equal(ten))
	require.NotNil(t, acct.AvailableBalance)
	assert.True(t, acct.AvailableBalance.Equal(ten))

	// A stale expectation must conflict, not overwrite.
	err = st.CompareAndSwapBalance(ctx, "acct1", decimal.Zero, decimal.NewFromInt(99))
	assert.ErrorIs(t, err, ErrConflict)

	err = st.CompareAndSwapBalance(ctx, "missing", decimal.Zero, ten)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateLedgerEntrySequence(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	entry := func(change string) *model.LedgerEntry {
		return &model.LedgerEntry{
			AccountID:     "acct1",
			TransactionID: "tx1",
			ChangeAmount:  decimal.RequireFromString(change),
		}
	}

	require.NoError(t, st.CreateLedgerEntry(ctx, entry("-10.00"), 0))
	// Re-inserting at an occupied sequence is rejected.
	assert.ErrorIs(t, st.CreateLedgerEntry(ctx, entry("-10.00"), 0), ErrDuplicateEntry)
	// Gaps are rejected too.
	assert.ErrorIs(t, st.CreateLedgerEntry(ctx, entry("10.00"), 5), ErrDuplicateEntry)
	require.NoError(t, st.CreateLedgerEntry(ctx, entry("10.00"), 1))

	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	sum, err := st.SumLedgerChanges(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestPatchDocumentPartialUpdate(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	doc := &model.Document{BusinessID: "biz1", UserID: "u1", FilePath: "biz1/a.pdf", DocumentName: "a.pdf", ExtractionStatus: model.ExtractionPending}
	require.NoError(t, st.CreateDocument(ctx, doc))

	docType := "receipt"
	score := 0.91
	require.NoError(t, st.PatchDocument(ctx, doc.ID, DocumentPatch{DocumentType: &docType, ConfidenceScore: &score}))

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "receipt", got.DocumentType)
	require.NotNil(t, got.ConfidenceScore)
	assert.Equal(t, 0.91, *got.ConfidenceScore)
	// Untouched fields survive the patch.
	assert.Equal(t, model.ExtractionPending, got.ExtractionStatus)
	assert.Equal(t, "a.pdf", got.DocumentName)

	assert.Error(t, st.PatchDocument(ctx, "missing", DocumentPatch{DocumentType: &docType}))
}

func TestListPendingDocuments(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		require.NoError(t, st.CreateDocument(ctx, &model.Document{ID: id, BusinessID: "biz1", UserID: "u1", FilePath: "biz1/" + id, ExtractionStatus: model.ExtractionPending}))
		time.Sleep(time.Millisecond)
	}
	completed := model.ExtractionCompleted
	require.NoError(t, st.PatchDocument(ctx, "d2", DocumentPatch{ExtractionStatus: &completed}))

	pending, err := st.ListPendingDocuments(ctx, 100)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest first.
	assert.Equal(t, "d1", pending[0].ID)
	assert.Equal(t, "d3", pending[1].ID)

	limited, err := st.ListPendingDocuments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "d1", limited[0].ID)
}

func TestListStuckDocuments(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.CreateDocument(ctx, &model.Document{ID: "d1", BusinessID: "biz1", UserID: "u1", FilePath: "biz1/d1", ExtractionStatus: model.ExtractionPending}))
	processing := model.ExtractionProcessing
	require.NoError(t, st.PatchDocument(ctx, "d1", DocumentPatch{ExtractionStatus: &processing}))

	time.Sleep(2 * time.Millisecond)

	stuck, err := st.ListStuckDocuments(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "d1", stuck[0].ID)

	// A cutoff in the past matches nothing.
	stuck, err = st.ListStuckDocuments(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestListTransactionsOrdersByIndex(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	docID := "doc1"
	idx2, idx0 := 2, 0
	require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{ID: "t-b", BusinessID: "biz1", SourceDocumentID: &docID, TransactionIndex: &idx2}))
	require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{ID: "t-a", BusinessID: "biz1", SourceDocumentID: &docID, TransactionIndex: &idx0}))

	txs, err := st.ListTransactions(ctx, TransactionFilter{SourceDocumentID: docID})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t-a", txs[0].ID)
	assert.Equal(t, "t-b", txs[1].ID)
}
