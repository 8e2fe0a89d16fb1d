// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNotEmpty indicates that the account still has ledger transactions.
	ErrAccountNotEmpty = errors.New("account has ledger transactions")
	// ErrAccountAlreadyExists indicates that an account with the given name already exists.
	ErrAccountAlreadyExists = errors.New("account name already exists")
)

// Account partitions the ledger; every transaction belongs to exactly one account.
type Account struct {
	ID        int32     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
