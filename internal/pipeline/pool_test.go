package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/extract"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
)

func TestPoolProcessesEnqueuedDocuments(t *testing.T) {
	f := newFixture(t, receiptResponse)
	f.extractor.result = &extract.RawExtraction{RawText: receiptText}
	ctx := context.Background()

	docs := []*model.Document{
		f.addDocument(t, "receipt_jan.txt", receiptText),
		f.addDocument(t, "receipt_feb.txt", receiptText),
		f.addDocument(t, "receipt_mar.txt", receiptText),
	}

	pool := NewPool(f.orch, 2)
	pool.Start(ctx)
	for _, doc := range docs {
		require.True(t, pool.Enqueue(ctx, doc.ID))
	}
	pool.Stop()

	for _, doc := range docs {
		final, err := f.store.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExtractionCompleted, final.ExtractionStatus, "document %s", doc.ID)
	}

	txs, err := f.store.ListTransactions(ctx, store.TransactionFilter{BusinessID: "biz1"})
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestPoolEnqueueStopsOnCancel(t *testing.T) {
	f := newFixture(t, receiptResponse)
	pool := NewPool(f.orch, 1)

	// Never started, so the buffered queue eventually fills.
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < cap(pool.jobs); i++ {
		require.True(t, pool.Enqueue(ctx, "doc"))
	}

	done := make(chan bool, 1)
	go func() { done <- pool.Enqueue(ctx, "overflow") }()
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not return after cancel")
	}
}

func TestPoolStopIsIdempotent(t *testing.T) {
	f := newFixture(t, receiptResponse)
	pool := NewPool(f.orch, 1)
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()
}
