// Package model holds the domain entities shared by the ingestion pipeline,
// the transaction creator and the ledger.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BusinessStatus is the lifecycle state of a business.
type BusinessStatus string

const (
	BusinessActive    BusinessStatus = "active"
	BusinessSuspended BusinessStatus = "suspended"
	BusinessClosed    BusinessStatus = "closed"
)

// AccountType enumerates the supported account kinds.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountCash       AccountType = "cash"
	AccountOther      AccountType = "other"
)

// CategoryType marks a category as income or expense.
type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

// ExtractionStatus is the document processing state. Terminal states are
// completed and failed; once terminal the status is immutable except via an
// explicit re-run.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// TransactionStatus is the transaction lifecycle state.
type TransactionStatus string

const (
	TransactionDraft    TransactionStatus = "draft"
	TransactionPending  TransactionStatus = "pending"
	TransactionApproved TransactionStatus = "approved"
	TransactionRejected TransactionStatus = "rejected"
)

// LedgerType is the direction of a ledger entry.
type LedgerType string

const (
	LedgerIncome  LedgerType = "income"
	LedgerExpense LedgerType = "expense"
)

// Role is a business membership role.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleMember     Role = "member"
	RoleViewer     Role = "viewer"
)

var roleHierarchy = map[Role]int{
	RoleOwner:      4,
	RoleAdmin:      3,
	RoleAccountant: 2,
	RoleMember:     2,
	RoleViewer:     1,
}

// RoleAtLeast reports whether have carries at least the privilege of want.
func RoleAtLeast(have, want Role) bool {
	return roleHierarchy[have] >= roleHierarchy[want]
}

// Business owns accounts, categories, documents and transactions. Its
// currency is immutable after the first transaction.
type Business struct {
	ID              string
	Name            string
	Currency        string
	Status          BusinessStatus
	FiscalYearStart int // month 1..12
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Account holds a balance that is mutated only through ledger appends.
type Account struct {
	ID               string
	BusinessID       string
	Name             string
	Type             AccountType
	Currency         string
	CurrentBalance   decimal.Decimal
	AvailableBalance *decimal.Decimal
	IsPrimary        bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Category is a node in a per-business category tree. System categories have
// immutable names and cannot be deleted.
type Category struct {
	ID           string
	BusinessID   string
	Name         string
	Description  string
	Type         CategoryType
	ParentID     *string
	IsSystem     bool
	IsActive     bool
	DisplayOrder int
	CreatedAt    time.Time
}

// Document is an uploaded file moving through the extraction pipeline.
type Document struct {
	ID                     string
	BusinessID             string
	UserID                 string
	FilePath               string
	MimeType               string
	DocumentName           string
	ExtractionStatus       ExtractionStatus
	DocumentType           string
	RawText                string
	StructuredData         map[string]any
	ConfidenceScore        *float64
	ProcessingError        string
	ProcessedAt            *time.Time
	TransactionID          *string
	AutoCreatedTransaction bool
	LinkedTransactionIDs   []string
	MultiTransactionCount  int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Terminal reports whether the document reached a final extraction state.
func (d *Document) Terminal() bool {
	return d.ExtractionStatus == ExtractionCompleted || d.ExtractionStatus == ExtractionFailed
}

// Transaction is a single money movement. Amount is always positive; the
// direction is carried by IsIncome.
type Transaction struct {
	ID               string
	BusinessID       string
	AccountID        string
	CategoryID       *string
	UserID           string
	Amount           decimal.Decimal
	Currency         string
	Date             time.Time
	Description      string
	Vendor           string
	PaymentMethod    string
	IsIncome         bool
	Status           TransactionStatus
	Notes            string
	SourceDocumentID *string
	TransactionIndex *int
	ApprovedBy       string
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BalanceChange returns the signed ledger change for this transaction:
// +amount for income, -amount for expense.
func (t *Transaction) BalanceChange() decimal.Decimal {
	if t.IsIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

// LedgerType returns the ledger direction for this transaction.
func (t *Transaction) LedgerType() LedgerType {
	if t.IsIncome {
		return LedgerIncome
	}
	return LedgerExpense
}

// Editable reports whether the transaction may still be modified by the given
// role. Approved transactions are frozen except for admins appending
// reversals through the ledger.
func (t *Transaction) Editable(role Role) bool {
	if t.Status != TransactionApproved {
		return true
	}
	return RoleAtLeast(role, RoleAdmin)
}

// LedgerEntry is the immutable record of one balance-changing event. It is
// append-only; a transaction may accumulate multiple entries only through
// explicit reversals.
type LedgerEntry struct {
	ID              string
	BusinessID      string
	AccountID       string
	TransactionID   string
	AmountBefore    decimal.Decimal
	ChangeAmount    decimal.Decimal
	AmountAfter     decimal.Decimal
	TransactionType LedgerType
	Description     string
	CreatedBy       string
	CreatedAt       time.Time
}
