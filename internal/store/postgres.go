package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and returns a store.
func NewPostgresStore(ctx context.Context, databaseURL string, minConns, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MinConns = int32(minConns)
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Businesses

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, currency, status, fiscal_year_start, created_at, updated_at
		FROM businesses WHERE id = $1`, id)

	var b model.Business
	if err := row.Scan(&b.ID, &b.Name, &b.Currency, &b.Status, &b.FiscalYearStart, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("business %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

// Accounts

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a         model.Account
		current   string
		available *string
	)
	if err := row.Scan(&a.ID, &a.BusinessID, &a.Name, &a.Type, &a.Currency,
		&current, &available, &a.IsPrimary, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("parse current_balance: %w", err)
	}
	if available != nil {
		av, err := decimal.NewFromString(*available)
		if err != nil {
			return nil, fmt.Errorf("parse available_balance: %w", err)
		}
		a.AvailableBalance = &av
	}
	return &a, nil
}

const accountColumns = `id, business_id, name, type, currency,
	current_balance::text, available_balance::text, is_primary, is_active, created_at, updated_at`

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context, businessID string) ([]*model.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE business_id = $1 ORDER BY id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET current_balance = $3::numeric, available_balance = $3::numeric, updated_at = now()
		WHERE id = $1 AND current_balance = $2::numeric`,
		accountID, expected.String(), next.String())
	if err != nil {
		return fmt.Errorf("cas balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the account is gone or the guard failed; distinguish so the
		// caller can retry only real races.
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Categories

func (s *PostgresStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, business_id, name, COALESCE(description, ''), type, parent_id,
		       is_system, is_active, display_order, created_at
		FROM categories WHERE id = $1`, id)

	var c model.Category
	if err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Description, &c.Type,
		&c.ParentID, &c.IsSystem, &c.IsActive, &c.DisplayOrder, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, businessID string, activeOnly bool) ([]*model.Category, error) {
	query := `
		SELECT id, business_id, name, COALESCE(description, ''), type, parent_id,
		       is_system, is_active, display_order, created_at
		FROM categories WHERE business_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY display_order, name`

	rows, err := s.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []*model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Description, &c.Type,
			&c.ParentID, &c.IsSystem, &c.IsActive, &c.DisplayOrder, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Documents

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	structured, err := marshalStructured(doc.StructuredData)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, business_id, user_id, file_path, mime_type, document_name,
			extraction_status, document_type, raw_text, structured_data, confidence_score,
			processing_error, processed_at, transaction_id, auto_created_transaction,
			linked_transaction_ids, multi_transaction_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, now(), now())`,
		doc.ID, doc.BusinessID, doc.UserID, doc.FilePath, doc.MimeType, doc.DocumentName,
		doc.ExtractionStatus, doc.DocumentType, doc.RawText, structured, doc.ConfidenceScore,
		doc.ProcessingError, doc.ProcessedAt, doc.TransactionID, doc.AutoCreatedTransaction,
		doc.LinkedTransactionIDs, doc.MultiTransactionCount)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, ErrDuplicateEntry)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, business_id, user_id, file_path, mime_type, document_name,
		       extraction_status, COALESCE(document_type, ''), COALESCE(raw_text, ''),
		       structured_data, confidence_score, COALESCE(processing_error, ''),
		       processed_at, transaction_id, auto_created_transaction,
		       COALESCE(linked_transaction_ids, '{}'), multi_transaction_count,
		       created_at, updated_at
		FROM documents WHERE id = $1`, id)

	var (
		d          model.Document
		structured []byte
	)
	if err := row.Scan(&d.ID, &d.BusinessID, &d.UserID, &d.FilePath, &d.MimeType, &d.DocumentName,
		&d.ExtractionStatus, &d.DocumentType, &d.RawText, &structured, &d.ConfidenceScore,
		&d.ProcessingError, &d.ProcessedAt, &d.TransactionID, &d.AutoCreatedTransaction,
		&d.LinkedTransactionIDs, &d.MultiTransactionCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	if len(structured) > 0 {
		if err := json.Unmarshal(structured, &d.StructuredData); err != nil {
			return nil, fmt.Errorf("decode structured_data: %w", err)
		}
	}
	return &d, nil
}

func (s *PostgresStore) PatchDocument(ctx context.Context, id string, patch DocumentPatch) error {
	set := []string{"updated_at = now()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.ExtractionStatus != nil {
		add("extraction_status", *patch.ExtractionStatus)
	}
	if patch.DocumentType != nil {
		add("document_type", *patch.DocumentType)
	}
	if patch.RawText != nil {
		add("raw_text", *patch.RawText)
	}
	if patch.StructuredData != nil {
		structured, err := marshalStructured(patch.StructuredData)
		if err != nil {
			return err
		}
		add("structured_data", structured)
	}
	if patch.ConfidenceScore != nil {
		add("confidence_score", *patch.ConfidenceScore)
	}
	if patch.ProcessingError != nil {
		add("processing_error", *patch.ProcessingError)
	}
	if patch.ProcessedAt != nil {
		add("processed_at", *patch.ProcessedAt)
	}
	if patch.TransactionID != nil {
		add("transaction_id", *patch.TransactionID)
	}
	if patch.AutoCreatedTransaction != nil {
		add("auto_created_transaction", *patch.AutoCreatedTransaction)
	}
	if patch.LinkedTransactionIDs != nil {
		add("linked_transaction_ids", patch.LinkedTransactionIDs)
	}
	if patch.MultiTransactionCount != nil {
		add("multi_transaction_count", *patch.MultiTransactionCount)
	}

	query := "UPDATE documents SET " + joinSet(set) + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("patch document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListStuckDocuments(ctx context.Context, cutoff time.Time) ([]*model.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM documents
		WHERE extraction_status = $1 AND updated_at < $2
		ORDER BY id`, model.ExtractionProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.Document, 0, len(ids))
	for _, id := range ids {
		d, err := s.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *PostgresStore) ListPendingDocuments(ctx context.Context, limit int) ([]*model.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM documents
		WHERE extraction_status = $1
		ORDER BY created_at
		LIMIT $2`, model.ExtractionPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.Document, 0, len(ids))
	for _, id := range ids {
		d, err := s.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Transactions

const transactionColumns = `id, business_id, account_id, category_id, user_id,
	amount::text, currency, date, description, COALESCE(vendor, ''), COALESCE(payment_method, ''),
	is_income, status, COALESCE(notes, ''), source_document_id, transaction_index,
	COALESCE(approved_by, ''), approved_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t      model.Transaction
		amount string
	)
	if err := row.Scan(&t.ID, &t.BusinessID, &t.AccountID, &t.CategoryID, &t.UserID,
		&amount, &t.Currency, &t.Date, &t.Description, &t.Vendor, &t.PaymentMethod,
		&t.IsIncome, &t.Status, &t.Notes, &t.SourceDocumentID, &t.TransactionIndex,
		&t.ApprovedBy, &t.ApprovedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (id, business_id, account_id, category_id, user_id,
			amount, currency, date, description, vendor, payment_method, is_income,
			status, notes, source_document_id, transaction_index, approved_by, approved_at,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18, now(), now())`,
		tx.ID, tx.BusinessID, tx.AccountID, tx.CategoryID, tx.UserID,
		tx.Amount.String(), tx.Currency, tx.Date, tx.Description, tx.Vendor, tx.PaymentMethod,
		tx.IsIncome, tx.Status, tx.Notes, tx.SourceDocumentID, tx.TransactionIndex,
		tx.ApprovedBy, tx.ApprovedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", tx.ID, ErrDuplicateEntry)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions SET
			category_id = $2, amount = $3::numeric, currency = $4, date = $5,
			description = $6, vendor = $7, payment_method = $8, is_income = $9,
			status = $10, notes = $11, transaction_index = $12, approved_by = $13,
			approved_at = $14, updated_at = now()
		WHERE id = $1`,
		tx.ID, tx.CategoryID, tx.Amount.String(), tx.Currency, tx.Date,
		tx.Description, tx.Vendor, tx.PaymentMethod, tx.IsIncome,
		tx.Status, tx.Notes, tx.TransactionIndex, tx.ApprovedBy, tx.ApprovedAt)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}
	if f.BusinessID != "" {
		add("business_id", f.BusinessID)
	}
	if f.AccountID != "" {
		add("account_id", f.AccountID)
	}
	if f.SourceDocumentID != "" {
		add("source_document_id", f.SourceDocumentID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	query += ` ORDER BY transaction_index NULLS LAST, created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Ledger

func (s *PostgresStore) CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry, sequence int) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger (id, business_id, account_id, transaction_id, sequence,
			amount_before, change_amount, amount_after, transaction_type, description,
			created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9,$10,$11, now())`,
		entry.ID, entry.BusinessID, entry.AccountID, entry.TransactionID, sequence,
		entry.AmountBefore.String(), entry.ChangeAmount.String(), entry.AmountAfter.String(),
		entry.TransactionType, entry.Description, entry.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ledger entry for transaction %s: %w", entry.TransactionID, ErrDuplicateEntry)
		}
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, transactionID string) ([]*model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, business_id, account_id, transaction_id,
		       amount_before::text, change_amount::text, amount_after::text,
		       transaction_type, description, created_by, created_at
		FROM ledger WHERE transaction_id = $1 ORDER BY sequence`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*model.LedgerEntry
	for rows.Next() {
		var (
			e                     model.LedgerEntry
			before, change, after string
		)
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.AccountID, &e.TransactionID,
			&before, &change, &after, &e.TransactionType, &e.Description, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.AmountBefore, err = decimal.NewFromString(before); err != nil {
			return nil, err
		}
		if e.ChangeAmount, err = decimal.NewFromString(change); err != nil {
			return nil, err
		}
		if e.AmountAfter, err = decimal.NewFromString(after); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SumLedgerChanges(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(change_amount), 0)::text FROM ledger WHERE account_id = $1`,
		accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger changes: %w", err)
	}
	return decimal.NewFromString(sum)
}

func marshalStructured(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode structured_data: %w", err)
	}
	return b, nil
}

func joinSet(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
