// Package ledger owns account balances. Every balance change flows through an
// append-only entry; the account's current_balance is only ever written here,
// via compare-and-swap against the previously observed value.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/store"
)

// ErrInvariantViolation is returned when the balance invariant cannot be
// restored: the CAS retry budget is exhausted or a post-check fails. The
// transaction involved must remain unapproved.
var ErrInvariantViolation = errors.New("ledger invariant violation")

// maxCASRetries bounds conflict retries on the balance swap.
const maxCASRetries = 5

// Service appends ledger entries and keeps account balances consistent with
// their entry sums.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Append records a balance change for an approved transaction. Idempotent:
// a transaction whose effect is already posted is a no-op. Re-posting after a
// reversal appends a fresh entry.
func (s *Service) Append(ctx context.Context, tx *model.Transaction, createdBy, description string) error {
	change := tx.BalanceChange()

	// Idempotency check: net effect already posted means nothing to do.
	entries, err := s.store.ListLedgerEntries(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("list ledger entries for %s: %w", tx.ID, err)
	}
	if netChange(entries).Equal(change) && len(entries) > 0 {
		return nil
	}

	return s.append(ctx, tx, change, tx.LedgerType(), createdBy, description, len(entries))
}

// Reverse appends a compensating entry for a previously posted transaction,
// returning the account to its pre-posting balance. Used on approved →
// rejected transitions. A transaction with no net posted effect is a no-op.
func (s *Service) Reverse(ctx context.Context, tx *model.Transaction, createdBy, reason string) error {
	entries, err := s.store.ListLedgerEntries(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("list ledger entries for %s: %w", tx.ID, err)
	}
	net := netChange(entries)
	if net.IsZero() {
		return nil
	}

	reversalType := model.LedgerExpense
	if net.IsNegative() {
		reversalType = model.LedgerIncome
	}
	return s.append(ctx, tx, net.Neg(), reversalType, createdBy, reason, len(entries))
}

func (s *Service) append(ctx context.Context, tx *model.Transaction, change decimal.Decimal, entryType model.LedgerType, createdBy, description string, sequence int) error {
	account, err := s.store.GetAccount(ctx, tx.AccountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", tx.AccountID, err)
	}

	amountBefore := account.CurrentBalance
	amountAfter := amountBefore.Add(change)

	entry := &model.LedgerEntry{
		ID:              uuid.New().String(),
		BusinessID:      tx.BusinessID,
		AccountID:       tx.AccountID,
		TransactionID:   tx.ID,
		AmountBefore:    amountBefore,
		ChangeAmount:    change,
		AmountAfter:     amountAfter,
		TransactionType: entryType,
		Description:     description,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.CreateLedgerEntry(ctx, entry, sequence); err != nil {
		if errors.Is(err, store.ErrDuplicateEntry) {
			// A concurrent append won the sequence slot. The effect for
			// this transaction is already posted.
			log.Printf("[ledger] duplicate entry for transaction %s, treating as posted", tx.ID)
			return nil
		}
		return fmt.Errorf("create ledger entry: %w", err)
	}

	err = s.store.CompareAndSwapBalance(ctx, tx.AccountID, amountBefore, amountAfter)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("update balance for account %s: %w", tx.AccountID, err)
	}
	// Lost the race on the balance. The entry above recorded a stale
	// amount_before; the authoritative datum is change_amount, so the balance
	// is re-derived from the entry sum. Conflict retries live in
	// reconcileBalance, which returns ErrInvariantViolation on exhaustion.
	return s.reconcileBalance(ctx, tx.AccountID)
}

// reconcileBalance forces current_balance to the sum of ledger changes,
// retrying CAS up to the budget.
func (s *Service) reconcileBalance(ctx context.Context, accountID string) error {
	for attempt := 0; attempt <= maxCASRetries; attempt++ {
		account, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load account %s: %w", accountID, err)
		}
		sum, err := s.store.SumLedgerChanges(ctx, accountID)
		if err != nil {
			return fmt.Errorf("sum ledger for account %s: %w", accountID, err)
		}
		if account.CurrentBalance.Equal(sum) {
			return nil
		}
		err = s.store.CompareAndSwapBalance(ctx, accountID, account.CurrentBalance, sum)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("update balance for account %s: %w", accountID, err)
		}
	}
	return fmt.Errorf("account %s: %w", accountID, ErrInvariantViolation)
}

// Verify checks the balance invariant for one account.
func (s *Service) Verify(ctx context.Context, accountID string) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	sum, err := s.store.SumLedgerChanges(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.CurrentBalance.Equal(sum) {
		return fmt.Errorf("account %s: balance %s != ledger sum %s: %w",
			accountID, account.CurrentBalance, sum, ErrInvariantViolation)
	}
	return nil
}

func netChange(entries []*model.LedgerEntry) decimal.Decimal {
	net := decimal.Zero
	for _, e := range entries {
		net = net.Add(e.ChangeAmount)
	}
	return net
}
