// Package ledgerrepo manages repository layer of ledger transactions.
//
// Every ledger transaction carries its running balance under the canonical
// order (transaction_date, created_at, id). All mutating methods run in a
// single database transaction, serialize on the owning account row with
// SELECT ... FOR UPDATE, and sweep the affected suffix of the history so the
// stored balances stay consistent at commit.
package ledgerrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-petr/ledger-api/internal/domain"
	"github.com/go-petr/ledger-api/pkg/dbpkg"
	"github.com/go-petr/ledger-api/pkg/errorspkg"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// pq error code raised when a FOR UPDATE NOWAIT or lock_timeout read loses.
const pqLockNotAvailable = "55P03"

// RepoPGS facilitates ledger repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns ledger RepoPGS bound to an already running transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns ledger RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

const lockAccountQuery = `
SELECT id FROM accounts
WHERE id = $1
FOR UPDATE
`

// lockAccount acquires the exclusive per-account lock that serializes all
// balance-affecting operations on the account. Held until commit.
func lockAccount(ctx context.Context, db dbpkg.SQLInterface, accountID int32) error {
	l := zerolog.Ctx(ctx)

	var id int32
	if err := db.QueryRowContext(ctx, lockAccountQuery, accountID).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrAccountNotFound
		}

		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqLockNotAvailable {
			return domain.ErrConcurrentModification
		}

		if ctx.Err() != nil {
			return domain.ErrConcurrentModification
		}

		l.Error().Err(err).Send()

		return errorspkg.ErrInternal
	}

	return nil
}

// lockAccounts locks both accounts in ascending id order to avoid deadlocks
// between operations moving transactions in opposite directions.
func lockAccounts(ctx context.Context, db dbpkg.SQLInterface, id1, id2 int32) error {
	if id1 == id2 {
		return lockAccount(ctx, db, id1)
	}

	if id1 > id2 {
		id1, id2 = id2, id1
	}

	if err := lockAccount(ctx, db, id1); err != nil {
		return err
	}

	return lockAccount(ctx, db, id2)
}

// dateOnly strips the time of day so date parameters arrive as plain date
// literals. A time.Time would be sent as timestamptz and cast to date through
// the session TimeZone, shifting the day on non-UTC servers.
func dateOnly(t time.Time) string {
	return t.Format(time.DateOnly)
}

const seedBalanceQuery = `
SELECT balance_amount FROM ledger_transactions
WHERE account_id = $1 AND transaction_date <= $2
ORDER BY transaction_date DESC, created_at DESC, id DESC
LIMIT 1
`

const seedBalanceBeforeQuery = `
SELECT balance_amount FROM ledger_transactions
WHERE account_id = $1 AND transaction_date < $2
ORDER BY transaction_date DESC, created_at DESC, id DESC
LIMIT 1
`

// seedBalance returns the balance of the last transaction at or before date
// under the canonical order, or zero if the account has none.
func seedBalance(ctx context.Context, db dbpkg.SQLInterface, accountID int32, date time.Time, strict bool) (decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	query := seedBalanceQuery
	if strict {
		query = seedBalanceBeforeQuery
	}

	var seed decimal.Decimal

	err := db.QueryRowContext(ctx, query, accountID, dateOnly(date)).Scan(&seed)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, nil
		}

		l.Error().Err(err).Send()

		return seed, errorspkg.ErrInternal
	}

	return seed, nil
}

const sweepSelectQuery = `
SELECT id, transaction_type, amount, balance_amount FROM ledger_transactions
WHERE account_id = $1 AND transaction_date >= $2
ORDER BY transaction_date, created_at, id
FOR UPDATE
`

const sweepUpdateQuery = `
UPDATE ledger_transactions
SET balance_amount = $1
WHERE id = $2
`

type sweepRow struct {
	id      int64
	typ     domain.EntryType
	amount  decimal.Decimal
	balance decimal.Decimal
}

// recalc re-derives balance_amount for every transaction of the account with
// transaction_date >= fromDate, seeding from the last transaction strictly
// before fromDate. Rows whose stored balance already matches are not written.
// Callers must hold the account lock.
func recalc(ctx context.Context, db dbpkg.SQLInterface, accountID int32, fromDate time.Time) error {
	l := zerolog.Ctx(ctx)

	running, err := seedBalance(ctx, db, accountID, fromDate, true)
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, sweepSelectQuery, accountID, dateOnly(fromDate))
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}
	defer rows.Close()

	// The whole window is read before writing because the sweep shares one
	// connection with its updates.
	window := []sweepRow{}

	for rows.Next() {
		var r sweepRow
		if err := rows.Scan(&r.id, &r.typ, &r.amount, &r.balance); err != nil {
			l.Error().Err(err).Send()
			return errorspkg.ErrInternal
		}

		window = append(window, r)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	for _, r := range window {
		running = running.Add(r.typ.Signed(r.amount))

		if running.Equal(r.balance) {
			continue
		}

		if _, err := db.ExecContext(ctx, sweepUpdateQuery, running, r.id); err != nil {
			l.Error().Err(err).Send()
			return errorspkg.ErrInternal
		}
	}

	return nil
}

const hasSuccessorsQuery = `
SELECT EXISTS (
	SELECT 1 FROM ledger_transactions
	WHERE account_id = $1 AND transaction_date > $2
)
`

// created_at is the canonical-order tiebreak within a date, so it must follow
// the serialization order of the account lock. clock_timestamp() is taken when
// the insert runs, after the lock is held; now() would be the transaction start
// time, assigned before the writer queued on the lock.
const insertQuery = `
INSERT INTO
	ledger_transactions (account_id, transaction_date, transaction_type, amount, balance_amount, description, reference, created_at)
VALUES
	($1, $2, $3, $4, $5, $6, $7, clock_timestamp())
RETURNING id, account_id, transaction_date, transaction_type, amount, balance_amount, description, reference, created_at
`

// Record inserts a transaction with its running balance derived from the
// predecessor and rebases any later transactions of the account.
func (r *RepoPGS) Record(ctx context.Context, arg domain.RecordTransactionParams) (domain.LedgerTransaction, error) {
	l := zerolog.Ctx(ctx)

	var created domain.LedgerTransaction

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return created, errorspkg.ErrInternal
	}

	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			l.Error().Err(err).Send()
		}
	}()

	if err := lockAccount(ctx, tx, arg.AccountID); err != nil {
		return created, err
	}

	seed, err := seedBalance(ctx, tx, arg.AccountID, arg.TransactionDate, false)
	if err != nil {
		return created, err
	}

	balance := seed.Add(arg.Type.Signed(arg.Amount))

	row := tx.QueryRowContext(ctx, insertQuery,
		arg.AccountID,
		dateOnly(arg.TransactionDate),
		arg.Type,
		arg.Amount,
		balance,
		arg.Description,
		arg.Reference,
	)

	if err := scanTransaction(row, &created); err != nil {
		l.Error().Err(err).Msgf("Record(ctx, %+v)", arg)

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "ledger_transactions_account_id_fkey":
				return created, domain.ErrAccountNotFound
			case "ledger_transactions_amount_check":
				return created, domain.ErrNegativeAmount
			}
		}

		return created, errorspkg.ErrInternal
	}

	// A backdated insert leaves every later transaction one step behind.
	var stale bool
	if err := tx.QueryRowContext(ctx, hasSuccessorsQuery, arg.AccountID, dateOnly(arg.TransactionDate)).Scan(&stale); err != nil {
		l.Error().Err(err).Send()
		return created, errorspkg.ErrInternal
	}

	if stale {
		if err := recalc(ctx, tx, arg.AccountID, arg.TransactionDate); err != nil {
			return created, err
		}
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return created, errorspkg.ErrInternal
	}

	return created, nil
}

const getQuery = `
SELECT id, account_id, transaction_date, transaction_type, amount, balance_amount, description, reference, created_at
FROM ledger_transactions
WHERE id = $1
`

const getForUpdateQuery = getQuery + `
FOR UPDATE
`

// Get returns the ledger transaction with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.LedgerTransaction, error) {
	return getTransaction(ctx, r.db, id, false)
}

func getTransaction(ctx context.Context, db dbpkg.SQLInterface, id int64, forUpdate bool) (domain.LedgerTransaction, error) {
	l := zerolog.Ctx(ctx)

	query := getQuery
	if forUpdate {
		query = getForUpdateQuery
	}

	var t domain.LedgerTransaction

	err := scanTransaction(db.QueryRowContext(ctx, query, id), &t)
	if err != nil {
		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqLockNotAvailable {
			return t, domain.ErrConcurrentModification
		}

		l.Error().Err(err).Send()

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const amendQuery = `
UPDATE ledger_transactions
SET account_id = $1, transaction_date = $2, transaction_type = $3, amount = $4, description = $5, reference = $6
WHERE id = $7
`

// Amend applies the given field changes to a transaction and rebases every
// balance the change invalidates.
//
// When the transaction moves between accounts both histories are swept: the
// losing account from the old date, the gaining account from the new one.
// Otherwise a single sweep from min(old date, new date) covers both the
// "moved earlier" and "moved later" cases.
func (r *RepoPGS) Amend(ctx context.Context, id int64, arg domain.AmendTransactionParams) (domain.LedgerTransaction, error) {
	l := zerolog.Ctx(ctx)

	var amended domain.LedgerTransaction

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return amended, errorspkg.ErrInternal
	}

	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			l.Error().Err(err).Send()
		}
	}()

	// Plain read to learn the owning account; the authoritative locked read
	// happens after the account locks are held.
	current, err := getTransaction(ctx, tx, id, false)
	if err != nil {
		return amended, err
	}

	next := current
	if arg.AccountID != nil {
		next.AccountID = *arg.AccountID
	}
	if arg.TransactionDate != nil {
		next.TransactionDate = *arg.TransactionDate
	}
	if arg.Type != nil {
		next.Type = *arg.Type
	}
	if arg.Amount != nil {
		next.Amount = *arg.Amount
	}
	if arg.Description != nil {
		next.Description = *arg.Description
	}
	if arg.Reference != nil {
		next.Reference = *arg.Reference
	}

	if err := lockAccounts(ctx, tx, current.AccountID, next.AccountID); err != nil {
		return amended, err
	}

	locked, err := getTransaction(ctx, tx, id, true)
	if err != nil {
		return amended, err
	}

	if locked.AccountID != current.AccountID {
		// The row moved to another account between the plain read and the
		// account lock. The caller holds no lock on the new owner.
		return amended, domain.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, amendQuery,
		next.AccountID,
		dateOnly(next.TransactionDate),
		next.Type,
		next.Amount,
		next.Description,
		next.Reference,
		id,
	); err != nil {
		l.Error().Err(err).Msgf("Amend(ctx, %v, %+v)", id, arg)

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "ledger_transactions_account_id_fkey":
				return amended, domain.ErrAccountNotFound
			case "ledger_transactions_amount_check":
				return amended, domain.ErrNegativeAmount
			}
		}

		return amended, errorspkg.ErrInternal
	}

	accountChanged := next.AccountID != current.AccountID
	needsRecalc := accountChanged ||
		!next.TransactionDate.Equal(current.TransactionDate) ||
		next.Type != current.Type ||
		!next.Amount.Equal(current.Amount)

	if needsRecalc {
		if accountChanged {
			if err := recalc(ctx, tx, current.AccountID, current.TransactionDate); err != nil {
				return amended, err
			}
			if err := recalc(ctx, tx, next.AccountID, next.TransactionDate); err != nil {
				return amended, err
			}
		} else {
			from := current.TransactionDate
			if next.TransactionDate.Before(from) {
				from = next.TransactionDate
			}

			if err := recalc(ctx, tx, current.AccountID, from); err != nil {
				return amended, err
			}
		}
	}

	amended, err = getTransaction(ctx, tx, id, false)
	if err != nil {
		return amended, err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return amended, errorspkg.ErrInternal
	}

	return amended, nil
}

const deleteQuery = `
DELETE FROM ledger_transactions
WHERE id = $1
`

// Delete removes a transaction and rebases the account's later transactions.
func (r *RepoPGS) Delete(ctx context.Context, id int64) error {
	l := zerolog.Ctx(ctx)

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			l.Error().Err(err).Send()
		}
	}()

	current, err := getTransaction(ctx, tx, id, false)
	if err != nil {
		return err
	}

	if err := lockAccount(ctx, tx, current.AccountID); err != nil {
		return err
	}

	locked, err := getTransaction(ctx, tx, id, true)
	if err != nil {
		return err
	}

	if locked.AccountID != current.AccountID {
		return domain.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if err := recalc(ctx, tx, current.AccountID, current.TransactionDate); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	return nil
}

// RecalculateFrom re-derives the account's stored balances starting at
// fromDate. Safe to run repeatedly; intended for repair after bulk imports.
func (r *RepoPGS) RecalculateFrom(ctx context.Context, accountID int32, fromDate time.Time) error {
	l := zerolog.Ctx(ctx)

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			l.Error().Err(err).Send()
		}
	}()

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return err
	}

	if err := recalc(ctx, tx, accountID, fromDate); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	return nil
}

// BalanceAsOf returns the account's running balance after the last transaction
// dated at or before asOfDate, or zero if there is none.
func (r *RepoPGS) BalanceAsOf(ctx context.Context, accountID int32, asOfDate time.Time) (decimal.Decimal, error) {
	return seedBalance(ctx, r.db, accountID, asOfDate, false)
}

const statementQuery = `
SELECT id, account_id, transaction_date, transaction_type, amount, balance_amount, description, reference, created_at
FROM ledger_transactions
WHERE account_id = $1 AND transaction_date BETWEEN $2 AND $3
ORDER BY transaction_date, created_at, id
`

// Statement returns the account's transactions within [startDate, endDate]
// with the balances at both edges of the range. Pure read: stored balances
// are consistent as an invariant of the mutating methods.
func (r *RepoPGS) Statement(ctx context.Context, accountID int32, startDate, endDate time.Time) (domain.Statement, error) {
	l := zerolog.Ctx(ctx)

	s := domain.Statement{
		AccountID: accountID,
		StartDate: startDate,
		EndDate:   endDate,
	}

	opening, err := seedBalance(ctx, r.db, accountID, startDate, true)
	if err != nil {
		return s, err
	}

	s.OpeningBalance = opening
	s.ClosingBalance = opening

	rows, err := r.db.QueryContext(ctx, statementQuery, accountID, dateOnly(startDate), dateOnly(endDate))
	if err != nil {
		l.Error().Err(err).Send()
		return s, errorspkg.ErrInternal
	}
	defer rows.Close()

	s.Transactions = []domain.LedgerTransaction{}

	for rows.Next() {
		var t domain.LedgerTransaction
		if err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.TransactionDate,
			&t.Type,
			&t.Amount,
			&t.BalanceAmount,
			&t.Description,
			&t.Reference,
			&t.CreatedAt,
		); err != nil {
			l.Error().Err(err).Send()
			return s, errorspkg.ErrInternal
		}

		s.Transactions = append(s.Transactions, t)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return s, errorspkg.ErrInternal
	}

	if n := len(s.Transactions); n > 0 {
		s.ClosingBalance = s.Transactions[n-1].BalanceAmount
	}

	return s, nil
}

const listQuery = `
SELECT id, account_id, transaction_date, transaction_type, amount, balance_amount, description, reference, created_at
FROM ledger_transactions
WHERE account_id = $1
ORDER BY transaction_date, created_at, id
LIMIT $2 OFFSET $3
`

// List returns the specified number of the account's transactions in
// canonical order.
func (r *RepoPGS) List(ctx context.Context, accountID int32, limit, offset int32) ([]domain.LedgerTransaction, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, accountID, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.LedgerTransaction{}

	for rows.Next() {
		var t domain.LedgerTransaction
		if err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.TransactionDate,
			&t.Type,
			&t.Amount,
			&t.BalanceAmount,
			&t.Description,
			&t.Reference,
			&t.CreatedAt,
		); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, t)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

func scanTransaction(row *sql.Row, t *domain.LedgerTransaction) error {
	return row.Scan(
		&t.ID,
		&t.AccountID,
		&t.TransactionDate,
		&t.Type,
		&t.Amount,
		&t.BalanceAmount,
		&t.Description,
		&t.Reference,
		&t.CreatedAt,
	)
}
