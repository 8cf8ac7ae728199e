package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
)

// MemoryStore implements Store with in-memory maps. It is used by tests and
// local development.
type MemoryStore struct {
	mu sync.RWMutex

	businesses   map[string]*model.Business
	accounts     map[string]*model.Account
	categories   map[string]*model.Category
	documents    map[string]*model.Document
	transactions map[string]*model.Transaction
	ledger       map[string][]*model.LedgerEntry // keyed by transaction ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses:   make(map[string]*model.Business),
		accounts:     make(map[string]*model.Account),
		categories:   make(map[string]*model.Category),
		documents:    make(map[string]*model.Document),
		transactions: make(map[string]*model.Transaction),
		ledger:       make(map[string][]*model.LedgerEntry),
	}
}

// Seed helpers used by tests and local seeding.

func (m *MemoryStore) PutBusiness(b *model.Business) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	cp := *b
	m.businesses[b.ID] = &cp
}

func (m *MemoryStore) PutAccount(a *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	cp := *a
	m.accounts[a.ID] = &cp
}

func (m *MemoryStore) PutCategory(c *model.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cp := *c
	m.categories[c.ID] = &cp
}

// Businesses

func (m *MemoryStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[id]
	if !ok {
		return nil, fmt.Errorf("business %s: %w", id, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// Accounts

func (m *MemoryStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, businessID string) ([]*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Account
	for _, a := range m.accounts {
		if a.BusinessID == businessID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if !a.CurrentBalance.Equal(expected) {
		return ErrConflict
	}
	a.CurrentBalance = next
	avail := next
	a.AvailableBalance = &avail
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Categories

func (m *MemoryStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCategories(ctx context.Context, businessID string, activeOnly bool) ([]*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Category
	for _, c := range m.categories {
		if c.BusinessID != businessID {
			continue
		}
		if activeOnly && !c.IsActive {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Documents

func (m *MemoryStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if _, exists := m.documents[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, ErrDuplicateEntry)
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	cp := *doc
	m.documents[doc.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	cp := *d
	cp.LinkedTransactionIDs = append([]string(nil), d.LinkedTransactionIDs...)
	return &cp, nil
}

func (m *MemoryStore) PatchDocument(ctx context.Context, id string, patch DocumentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	applyDocumentPatch(d, patch)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func applyDocumentPatch(d *model.Document, patch DocumentPatch) {
	if patch.ExtractionStatus != nil {
		d.ExtractionStatus = *patch.ExtractionStatus
	}
	if patch.DocumentType != nil {
		d.DocumentType = *patch.DocumentType
	}
	if patch.RawText != nil {
		d.RawText = *patch.RawText
	}
	if patch.StructuredData != nil {
		d.StructuredData = patch.StructuredData
	}
	if patch.ConfidenceScore != nil {
		d.ConfidenceScore = patch.ConfidenceScore
	}
	if patch.ProcessingError != nil {
		d.ProcessingError = *patch.ProcessingError
	}
	if patch.ProcessedAt != nil {
		d.ProcessedAt = patch.ProcessedAt
	}
	if patch.TransactionID != nil {
		d.TransactionID = patch.TransactionID
	}
	if patch.AutoCreatedTransaction != nil {
		d.AutoCreatedTransaction = *patch.AutoCreatedTransaction
	}
	if patch.LinkedTransactionIDs != nil {
		d.LinkedTransactionIDs = append([]string(nil), patch.LinkedTransactionIDs...)
	}
	if patch.MultiTransactionCount != nil {
		d.MultiTransactionCount = *patch.MultiTransactionCount
	}
}

func (m *MemoryStore) ListStuckDocuments(ctx context.Context, cutoff time.Time) ([]*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Document
	for _, d := range m.documents {
		if d.ExtractionStatus == model.ExtractionProcessing && d.UpdatedAt.Before(cutoff) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListPendingDocuments(ctx context.Context, limit int) ([]*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Document
	for _, d := range m.documents {
		if d.ExtractionStatus == model.ExtractionPending {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transactions

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if _, exists := m.transactions[tx.ID]; exists {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrDuplicateEntry)
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[tx.ID]; !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	tx.UpdatedAt = time.Now().UTC()
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range m.transactions {
		if f.BusinessID != "" && t.BusinessID != f.BusinessID {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if f.SourceDocumentID != "" && (t.SourceDocumentID == nil || *t.SourceDocumentID != f.SourceDocumentID) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		ii, jj := out[i], out[j]
		if ii.TransactionIndex != nil && jj.TransactionIndex != nil && *ii.TransactionIndex != *jj.TransactionIndex {
			return *ii.TransactionIndex < *jj.TransactionIndex
		}
		return ii.CreatedAt.Before(jj.CreatedAt)
	})
	return out, nil
}

// Ledger

func (m *MemoryStore) CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry, sequence int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.ledger[entry.TransactionID]
	if sequence != len(entries) {
		return fmt.Errorf("ledger entry for transaction %s sequence %d: %w", entry.TransactionID, sequence, ErrDuplicateEntry)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()
	cp := *entry
	m.ledger[entry.TransactionID] = append(entries, &cp)
	return nil
}

func (m *MemoryStore) ListLedgerEntries(ctx context.Context, transactionID string) ([]*model.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.ledger[transactionID]
	out := make([]*model.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SumLedgerChanges(ctx context.Context, accountID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, entries := range m.ledger {
		for _, e := range entries {
			if e.AccountID == accountID {
				sum = sum.Add(e.ChangeAmount)
			}
		}
	}
	return sum, nil
}
