package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransactionNotFound indicates that the ledger transaction is not found.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidAmount indicates invalid amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeAmount indicates negative amount.
	ErrNegativeAmount = errors.New("negative amount")
	// ErrInvalidEntryType indicates an entry type other than Credit or Debit.
	ErrInvalidEntryType = errors.New("invalid entry type")
	// ErrConcurrentModification indicates that the row is locked by another in-flight operation.
	ErrConcurrentModification = errors.New("transaction is being modified concurrently")
	// ErrInvalidDate indicates a date that is not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidDateRange indicates that the statement range is reversed.
	ErrInvalidDateRange = errors.New("start date is after end date")
)

// EntryType is the direction of a ledger transaction.
type EntryType string

// Entry types.
const (
	EntryTypeCredit EntryType = "Credit"
	EntryTypeDebit  EntryType = "Debit"
)

// Valid reports whether t is one of the declared entry types.
func (t EntryType) Valid() bool {
	return t == EntryTypeCredit || t == EntryTypeDebit
}

// Signed returns amount with the sign the entry type contributes to a balance.
func (t EntryType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == EntryTypeDebit {
		return amount.Neg()
	}

	return amount
}

// LedgerTransaction is one row of an account's ledger.
//
// BalanceAmount is derived: it always equals the running balance of the
// account at this row under the canonical order
// (transaction_date, created_at, id) ascending.
type LedgerTransaction struct {
	ID              int64           `json:"id"`
	AccountID       int32           `json:"account_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	Type            EntryType       `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceAmount   decimal.Decimal `json:"balance_amount"`
	Description     string          `json:"description,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// RecordTransactionParams is the input data to create a ledger transaction.
type RecordTransactionParams struct {
	AccountID       int32
	TransactionDate time.Time
	Type            EntryType
	Amount          decimal.Decimal
	Description     string
	Reference       string
}

// AmendTransactionParams is the input data to change a ledger transaction.
// Nil fields are left untouched.
type AmendTransactionParams struct {
	AccountID       *int32
	TransactionDate *time.Time
	Type            *EntryType
	Amount          *decimal.Decimal
	Description     *string
	Reference       *string
}

// Statement is an account's transaction history over a date range together
// with the balances at both edges of the range.
type Statement struct {
	AccountID      int32               `json:"account_id"`
	StartDate      time.Time           `json:"start_date"`
	EndDate        time.Time           `json:"end_date"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	ClosingBalance decimal.Decimal     `json:"closing_balance"`
	Transactions   []LedgerTransaction `json:"transactions"`
}
