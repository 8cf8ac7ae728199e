// Package category resolves LLM-suggested category names against a
// business's configured categories, with a short-lived per-business cache.
package category

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
)

// cacheTTL bounds how stale the per-business category list may get.
const cacheTTL = 60 * time.Second

type cacheEntry struct {
	categories []*model.Category
	loadedAt   time.Time
}

// Resolver caches active categories per business and matches free-form names
// against them. Safe for concurrent use.
type Resolver struct {
	store store.Store
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{
		store: s,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

func (r *Resolver) load(ctx context.Context, businessID string) ([]*model.Category, error) {
	r.mu.Lock()
	entry, ok := r.cache[businessID]
	r.mu.Unlock()
	if ok && r.now().Sub(entry.loadedAt) < cacheTTL {
		return entry.categories, nil
	}

	categories, err := r.store.ListCategories(ctx, businessID, true)
	if err != nil {
		return nil, fmt.Errorf("load categories for business %s: %w", businessID, err)
	}

	r.mu.Lock()
	r.cache[businessID] = cacheEntry{categories: categories, loadedAt: r.now()}
	r.mu.Unlock()
	return categories, nil
}

// ListForPrompt renders the business's active categories as a newline list
// for inclusion in an extraction prompt.
func (r *Resolver) ListForPrompt(ctx context.Context, businessID string) (string, error) {
	categories, err := r.load(ctx, businessID)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, c := range categories {
		sb.WriteString("- ")
		sb.WriteString(c.Name)
		if c.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(c.Description)
		}
		sb.WriteString(" (")
		sb.WriteString(string(c.Type))
		sb.WriteString(")\n")
	}
	return sb.String(), nil
}

// Resolve maps a name or alias to a category id within one business. Exact
// case-insensitive match wins; otherwise the first symmetric substring match
// (name contains alias, or alias contains name). Returns "" when nothing
// matches.
func (r *Resolver) Resolve(ctx context.Context, businessID, nameOrAlias string) (string, error) {
	alias := strings.ToLower(strings.TrimSpace(nameOrAlias))
	if alias == "" {
		return "", nil
	}
	categories, err := r.load(ctx, businessID)
	if err != nil {
		return "", err
	}

	for _, c := range categories {
		if strings.ToLower(c.Name) == alias {
			return c.ID, nil
		}
	}
	for _, c := range categories {
		name := strings.ToLower(c.Name)
		if strings.Contains(name, alias) || strings.Contains(alias, name) {
			return c.ID, nil
		}
	}
	return "", nil
}

// Invalidate drops the cached list for one business. Used after category
// edits in the same process.
func (r *Resolver) Invalidate(businessID string) {
	r.mu.Lock()
	delete(r.cache, businessID)
	r.mu.Unlock()
}
