package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
)

func newLedgerFixture(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutAccount(&model.Account{
		ID:         "acct1",
		BusinessID: "biz1",
		Name:       "Operating",
		Type:       model.AccountChecking,
		Currency:   "USD",
		IsActive:   true,
	})
	return NewService(st), st
}

func approvedTx(id, amount string, income bool) *model.Transaction {
	return &model.Transaction{
		ID:         id,
		BusinessID: "biz1",
		AccountID:  "acct1",
		Amount:     decimal.RequireFromString(amount),
		IsIncome:   income,
		Status:     model.TransactionApproved,
	}
}

func balance(t *testing.T, st *store.MemoryStore) decimal.Decimal {
	t.Helper()
	acct, err := st.GetAccount(context.Background(), "acct1")
	require.NoError(t, err)
	return acct.CurrentBalance
}

func TestAppendExpense(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, approvedTx("tx1", "113.03", false), "system", "AWS invoice"))

	assert.True(t, balance(t, st).Equal(decimal.RequireFromString("-113.03")))

	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.True(t, e.AmountBefore.IsZero())
	assert.True(t, e.ChangeAmount.Equal(decimal.RequireFromString("-113.03")))
	assert.True(t, e.AmountAfter.Equal(decimal.RequireFromString("-113.03")))
	assert.Equal(t, model.LedgerExpense, e.TransactionType)
	assert.Equal(t, "system", e.CreatedBy)

	assert.NoError(t, svc.Verify(ctx, "acct1"))
}

func TestAppendIncome(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, approvedTx("tx1", "2500.00", true), "system", "client payment"))

	assert.True(t, balance(t, st).Equal(decimal.RequireFromString("2500.00")))
	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerIncome, entries[0].TransactionType)
}

func TestAppendIsIdempotent(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()
	tx := approvedTx("tx1", "50.00", false)

	require.NoError(t, svc.Append(ctx, tx, "system", "first"))
	require.NoError(t, svc.Append(ctx, tx, "system", "re-run"))
	require.NoError(t, svc.Append(ctx, tx, "system", "re-run again"))

	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.True(t, balance(t, st).Equal(decimal.RequireFromString("-50.00")))
	assert.NoError(t, svc.Verify(ctx, "acct1"))
}

func TestAppendAccumulatesAcrossTransactions(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, approvedTx("tx1", "100.00", true), "system", ""))
	require.NoError(t, svc.Append(ctx, approvedTx("tx2", "30.00", false), "system", ""))
	require.NoError(t, svc.Append(ctx, approvedTx("tx3", "12.50", false), "system", ""))

	assert.True(t, balance(t, st).Equal(decimal.RequireFromString("57.50")))
	assert.NoError(t, svc.Verify(ctx, "acct1"))
}

func TestReverse(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()
	tx := approvedTx("tx1", "75.00", false)

	require.NoError(t, svc.Append(ctx, tx, "system", "posted"))
	require.NoError(t, svc.Reverse(ctx, tx, "admin1", "rejected after review"))

	assert.True(t, balance(t, st).IsZero())

	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Expense reversal posts as income.
	assert.Equal(t, model.LedgerIncome, entries[1].TransactionType)
	assert.True(t, entries[1].ChangeAmount.Equal(decimal.RequireFromString("75.00")))
	assert.Equal(t, "admin1", entries[1].CreatedBy)
	assert.NoError(t, svc.Verify(ctx, "acct1"))
}

func TestReverseIsIdempotent(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()
	tx := approvedTx("tx1", "75.00", false)

	require.NoError(t, svc.Append(ctx, tx, "system", "posted"))
	require.NoError(t, svc.Reverse(ctx, tx, "admin1", "rejected"))
	require.NoError(t, svc.Reverse(ctx, tx, "admin1", "rejected twice"))

	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.True(t, balance(t, st).IsZero())
}

func TestReverseWithoutPostingIsNoOp(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Reverse(ctx, approvedTx("tx1", "75.00", false), "admin1", "nothing posted"))

	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.True(t, balance(t, st).IsZero())
}

func TestReApproveAfterReversal(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()
	tx := approvedTx("tx1", "75.00", false)

	require.NoError(t, svc.Append(ctx, tx, "system", "posted"))
	require.NoError(t, svc.Reverse(ctx, tx, "admin1", "rejected"))
	require.NoError(t, svc.Append(ctx, tx, "system", "re-approved"))

	entries, err := st.ListLedgerEntries(ctx, "tx1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.True(t, balance(t, st).Equal(decimal.RequireFromString("-75.00")))
	assert.NoError(t, svc.Verify(ctx, "acct1"))
}

func TestVerifyDetectsDrift(t *testing.T) {
	svc, st := newLedgerFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, approvedTx("tx1", "10.00", true), "system", ""))

	// Someone writes the balance outside the ledger path.
	require.NoError(t, st.CompareAndSwapBalance(ctx, "acct1", decimal.RequireFromString("10.00"), decimal.RequireFromString("999.00")))

	err := svc.Verify(ctx, "acct1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

// racingStore simulates a concurrent balance writer slipping in between the
// entry insert and the balance swap.
type racingStore struct {
	*store.MemoryStore
	raced bool
}

func (r *racingStore) CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry, sequence int) error {
	if err := r.MemoryStore.CreateLedgerEntry(ctx, entry, sequence); err != nil {
		return err
	}
	if !r.raced {
		r.raced = true
		acct, err := r.MemoryStore.GetAccount(ctx, entry.AccountID)
		if err != nil {
			return err
		}
		return r.MemoryStore.CompareAndSwapBalance(ctx, entry.AccountID, acct.CurrentBalance, acct.CurrentBalance.Add(decimal.NewFromInt(999)))
	}
	return nil
}

// contestedStore loses every balance swap.
type contestedStore struct {
	*store.MemoryStore
}

func (c *contestedStore) CompareAndSwapBalance(context.Context, string, decimal.Decimal, decimal.Decimal) error {
	return store.ErrConflict
}

func TestAppendGivesUpWhenBalanceStaysContested(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutAccount(&model.Account{ID: "acct1", BusinessID: "biz1", Name: "Operating", Type: model.AccountChecking, Currency: "USD", IsActive: true})
	svc := NewService(&contestedStore{MemoryStore: st})

	err := svc.Append(context.Background(), approvedTx("tx1", "10.00", false), "system", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestAppendReconcilesAfterBalanceRace(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutAccount(&model.Account{ID: "acct1", BusinessID: "biz1", Name: "Operating", Type: model.AccountChecking, Currency: "USD", IsActive: true})
	svc := NewService(&racingStore{MemoryStore: st})
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, approvedTx("tx1", "113.03", false), "system", ""))

	// The balance settles on the ledger sum, not the raced write.
	acct, err := st.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, acct.CurrentBalance.Equal(decimal.RequireFromString("-113.03")))
	assert.NoError(t, svc.Verify(ctx, "acct1"))
}
