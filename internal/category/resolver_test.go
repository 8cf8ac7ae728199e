package category

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
)

func seedCategories(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutCategory(&model.Category{ID: "c1", BusinessID: "biz1", Name: "Office Supplies", Type: model.CategoryExpense, IsActive: true})
	st.PutCategory(&model.Category{ID: "c2", BusinessID: "biz1", Name: "Meals", Description: "Restaurants and catering", Type: model.CategoryExpense, IsActive: true})
	st.PutCategory(&model.Category{ID: "c3", BusinessID: "biz1", Name: "Consulting Income", Type: model.CategoryIncome, IsActive: true})
	st.PutCategory(&model.Category{ID: "c4", BusinessID: "biz1", Name: "Old Category", Type: model.CategoryExpense, IsActive: false})
	st.PutCategory(&model.Category{ID: "c5", BusinessID: "biz2", Name: "Office Supplies", Type: model.CategoryExpense, IsActive: true})
	return st
}

func TestResolveExactCaseInsensitive(t *testing.T) {
	r := NewResolver(seedCategories(t))
	ctx := context.Background()

	id, err := r.Resolve(ctx, "biz1", "office supplies")
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	id, err = r.Resolve(ctx, "biz1", "  MEALS ")
	require.NoError(t, err)
	assert.Equal(t, "c2", id)
}

func TestResolveSymmetricSubstring(t *testing.T) {
	r := NewResolver(seedCategories(t))
	ctx := context.Background()

	// Alias contained in the name.
	id, err := r.Resolve(ctx, "biz1", "consulting")
	require.NoError(t, err)
	assert.Equal(t, "c3", id)

	// Name contained in the alias.
	id, err = r.Resolve(ctx, "biz1", "meals and entertainment")
	require.NoError(t, err)
	assert.Equal(t, "c2", id)
}

func TestResolveNoMatch(t *testing.T) {
	r := NewResolver(seedCategories(t))
	id, err := r.Resolve(context.Background(), "biz1", "cryptocurrency")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = r.Resolve(context.Background(), "biz1", "")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestResolveExcludesInactive(t *testing.T) {
	r := NewResolver(seedCategories(t))
	id, err := r.Resolve(context.Background(), "biz1", "Old Category")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestResolveNeverCrossesBusinesses(t *testing.T) {
	r := NewResolver(seedCategories(t))

	id, err := r.Resolve(context.Background(), "biz2", "office supplies")
	require.NoError(t, err)
	assert.Equal(t, "c5", id)

	id, err = r.Resolve(context.Background(), "biz3", "office supplies")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestListForPrompt(t *testing.T) {
	r := NewResolver(seedCategories(t))
	listing, err := r.ListForPrompt(context.Background(), "biz1")
	require.NoError(t, err)

	assert.Contains(t, listing, "- Office Supplies (expense)")
	assert.Contains(t, listing, "- Meals: Restaurants and catering (expense)")
	assert.Contains(t, listing, "- Consulting Income (income)")
	assert.NotContains(t, listing, "Old Category")
}

func TestCacheRespectsTTL(t *testing.T) {
	st := seedCategories(t)
	r := NewResolver(st)

	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "biz1", "meals")
	require.NoError(t, err)

	// A category added after the load is invisible until the TTL lapses.
	st.PutCategory(&model.Category{ID: "c6", BusinessID: "biz1", Name: "Travel", Type: model.CategoryExpense, IsActive: true})

	id, err := r.Resolve(context.Background(), "biz1", "travel")
	require.NoError(t, err)
	assert.Empty(t, id)

	now = now.Add(cacheTTL + time.Second)
	id, err = r.Resolve(context.Background(), "biz1", "travel")
	require.NoError(t, err)
	assert.Equal(t, "c6", id)
}

func TestInvalidateDropsCache(t *testing.T) {
	st := seedCategories(t)
	r := NewResolver(st)

	_, err := r.Resolve(context.Background(), "biz1", "meals")
	require.NoError(t, err)

	st.PutCategory(&model.Category{ID: "c7", BusinessID: "biz1", Name: "Software", Type: model.CategoryExpense, IsActive: true})
	r.Invalidate("biz1")

	id, err := r.Resolve(context.Background(), "biz1", "software")
	require.NoError(t, err)
	assert.Equal(t, "c7", id)
}
