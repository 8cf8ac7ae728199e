// Package store defines the persistence interface for the ingestion pipeline
// and provides in-memory and Postgres implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEntry is returned when a uniqueness constraint is violated.
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrConflict is returned when a compare-and-swap balance update loses a race.
	ErrConflict = errors.New("balance conflict")
)

// DocumentPatch is a partial update applied to a document. Nil fields are
// left untouched.
type DocumentPatch struct {
	ExtractionStatus       *model.ExtractionStatus
	DocumentType           *string
	RawText                *string
	StructuredData         map[string]any
	ConfidenceScore        *float64
	ProcessingError        *string
	ProcessedAt            *time.Time
	TransactionID          *string
	AutoCreatedTransaction *bool
	LinkedTransactionIDs   []string
	MultiTransactionCount  *int
}

// TransactionFilter selects transactions. Empty fields match everything.
type TransactionFilter struct {
	BusinessID       string
	AccountID        string
	SourceDocumentID string
	Status           model.TransactionStatus
}

// Store is the persistence surface consumed by the pipeline. Every method is
// scoped by id; callers enforce business ownership.
type Store interface {
	// Businesses
	GetBusiness(ctx context.Context, id string) (*model.Business, error)

	// Accounts
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccounts(ctx context.Context, businessID string) ([]*model.Account, error)
	// CompareAndSwapBalance atomically replaces both balances when the stored
	// current_balance still equals expected. Returns ErrConflict when a
	// concurrent writer got there first.
	CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) error

	// Categories
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context, businessID string, activeOnly bool) ([]*model.Category, error)

	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	PatchDocument(ctx context.Context, id string, patch DocumentPatch) error
	// ListStuckDocuments returns documents still in processing state whose
	// last update is older than the cutoff. Used by the stale-status sweeper.
	ListStuckDocuments(ctx context.Context, cutoff time.Time) ([]*model.Document, error)
	// ListPendingDocuments returns up to limit documents awaiting processing,
	// oldest first. Used by the worker poll loop.
	ListPendingDocuments(ctx context.Context, limit int) ([]*model.Document, error)

	// Transactions
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *model.Transaction) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]*model.Transaction, error)

	// Ledger. Entries are append-only; (transaction_id, sequence) is unique.
	CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry, sequence int) error
	ListLedgerEntries(ctx context.Context, transactionID string) ([]*model.LedgerEntry, error)
	SumLedgerChanges(ctx context.Context, accountID string) (decimal.Decimal, error)
}
