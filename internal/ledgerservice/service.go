// Package ledgerservice manages business logic layer of ledger transactions.
package ledgerservice

import (
	"context"
	"time"

	"github.com/go-petr/ledger-api/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Topic is the destination of ledger change events.
const Topic = "ledger.transactions"

// Repo provides data access layer interface needed by ledger service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package ledgerservice
type Repo interface {
	Record(ctx context.Context, arg domain.RecordTransactionParams) (domain.LedgerTransaction, error)
	Get(ctx context.Context, id int64) (domain.LedgerTransaction, error)
	Amend(ctx context.Context, id int64, arg domain.AmendTransactionParams) (domain.LedgerTransaction, error)
	Delete(ctx context.Context, id int64) error
	RecalculateFrom(ctx context.Context, accountID int32, fromDate time.Time) error
	BalanceAsOf(ctx context.Context, accountID int32, asOfDate time.Time) (decimal.Decimal, error)
	Statement(ctx context.Context, accountID int32, startDate, endDate time.Time) (domain.Statement, error)
	List(ctx context.Context, accountID int32, limit, offset int32) ([]domain.LedgerTransaction, error)
}

// AccountService provides the account lookups needed by the ledger service layer.
type AccountService interface {
	Get(ctx context.Context, id int32) (domain.Account, error)
}

// Publisher sends ledger change events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// ChangeEvent is published after every committed ledger mutation.
type ChangeEvent struct {
	Action        string          `json:"action"`
	AccountID     int32           `json:"account_id"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	Balance       decimal.Decimal `json:"balance,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Service facilitates ledger service layer logic.
type Service struct {
	repo           Repo
	accountService AccountService
	publisher      Publisher
}

// New returns ledger service struct to manage ledger bussines logic.
func New(lr Repo, as AccountService, pub Publisher) *Service {
	return &Service{
		repo:           lr,
		accountService: as,
		publisher:      pub,
	}
}

// RecordInput is the raw input to record a ledger transaction.
type RecordInput struct {
	AccountID       int32
	TransactionDate string
	Type            string
	Amount          string
	Description     string
	Reference       string
}

// AmendInput is the raw input to amend a ledger transaction.
// Nil fields are left untouched.
type AmendInput struct {
	AccountID       *int32
	TransactionDate *string
	Type            *string
	Amount          *string
	Description     *string
	Reference       *string
}

func parseDate(s string) (time.Time, error) {
	date, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return date, domain.ErrInvalidDate
	}

	return date, nil
}

func parseAmount(ctx context.Context, s string) (decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	amount, err := decimal.NewFromString(s)
	if err != nil {
		l.Info().Err(err).Send()
		return amount, domain.ErrInvalidAmount
	}

	if amount.IsNegative() {
		return amount, domain.ErrNegativeAmount
	}

	return amount, nil
}

func parseEntryType(s string) (domain.EntryType, error) {
	t := domain.EntryType(s)
	if !t.Valid() {
		return t, domain.ErrInvalidEntryType
	}

	return t, nil
}

func (s *Service) publish(ctx context.Context, event ChangeEvent) {
	if s.publisher == nil {
		return
	}

	event.OccurredAt = time.Now().UTC()

	// Events are best effort; the mutation is already committed.
	if err := s.publisher.Publish(ctx, Topic, event); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("publish ledger event")
	}
}

// Record validates the input and appends a transaction to the account's ledger.
func (s *Service) Record(ctx context.Context, arg RecordInput) (domain.LedgerTransaction, error) {
	l := zerolog.Ctx(ctx)

	amount, err := parseAmount(ctx, arg.Amount)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}

	entryType, err := parseEntryType(arg.Type)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}

	date, err := parseDate(arg.TransactionDate)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.LedgerTransaction{}, err
	}

	created, err := s.repo.Record(ctx, domain.RecordTransactionParams{
		AccountID:       arg.AccountID,
		TransactionDate: date,
		Type:            entryType,
		Amount:          amount,
		Description:     arg.Description,
		Reference:       arg.Reference,
	})
	if err != nil {
		return created, err
	}

	s.publish(ctx, ChangeEvent{
		Action:        "recorded",
		AccountID:     created.AccountID,
		TransactionID: created.ID,
		Balance:       created.BalanceAmount,
	})

	return created, nil
}

// Get returns the transaction with the given id.
func (s *Service) Get(ctx context.Context, id int64) (domain.LedgerTransaction, error) {
	return s.repo.Get(ctx, id)
}

// Amend validates the changed fields and applies them; balances of the
// affected account histories are rebased transparently.
func (s *Service) Amend(ctx context.Context, id int64, arg AmendInput) (domain.LedgerTransaction, error) {
	l := zerolog.Ctx(ctx)

	params := domain.AmendTransactionParams{
		AccountID:   arg.AccountID,
		Description: arg.Description,
		Reference:   arg.Reference,
	}

	if arg.Amount != nil {
		amount, err := parseAmount(ctx, *arg.Amount)
		if err != nil {
			return domain.LedgerTransaction{}, err
		}

		params.Amount = &amount
	}

	if arg.Type != nil {
		entryType, err := parseEntryType(*arg.Type)
		if err != nil {
			return domain.LedgerTransaction{}, err
		}

		params.Type = &entryType
	}

	if arg.TransactionDate != nil {
		date, err := parseDate(*arg.TransactionDate)
		if err != nil {
			l.Info().Err(err).Send()
			return domain.LedgerTransaction{}, err
		}

		params.TransactionDate = &date
	}

	amended, err := s.repo.Amend(ctx, id, params)
	if err != nil {
		return amended, err
	}

	s.publish(ctx, ChangeEvent{
		Action:        "amended",
		AccountID:     amended.AccountID,
		TransactionID: amended.ID,
		Balance:       amended.BalanceAmount,
	})

	return amended, nil
}

// Delete removes the transaction; later balances are rebased transparently.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, ChangeEvent{
		Action:        "deleted",
		AccountID:     current.AccountID,
		TransactionID: id,
	})

	return nil
}

// RecalculateFrom re-derives the account's stored balances from the given
// date onward. Exposed for operator-triggered repair.
func (s *Service) RecalculateFrom(ctx context.Context, accountID int32, fromDate string) error {
	l := zerolog.Ctx(ctx)

	date, err := parseDate(fromDate)
	if err != nil {
		l.Info().Err(err).Send()
		return err
	}

	if err := s.repo.RecalculateFrom(ctx, accountID, date); err != nil {
		return err
	}

	s.publish(ctx, ChangeEvent{
		Action:    "recalculated",
		AccountID: accountID,
	})

	return nil
}

// BalanceAsOf returns the account's balance after the last transaction dated
// at or before asOfDate.
func (s *Service) BalanceAsOf(ctx context.Context, accountID int32, asOfDate string) (decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	date, err := parseDate(asOfDate)
	if err != nil {
		l.Info().Err(err).Send()
		return decimal.Zero, err
	}

	if _, err := s.accountService.Get(ctx, accountID); err != nil {
		return decimal.Zero, err
	}

	return s.repo.BalanceAsOf(ctx, accountID, date)
}

// Statement returns the account's transactions within the inclusive date
// range with opening and closing balances.
func (s *Service) Statement(ctx context.Context, accountID int32, startDate, endDate string) (domain.Statement, error) {
	l := zerolog.Ctx(ctx)

	start, err := parseDate(startDate)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.Statement{}, err
	}

	end, err := parseDate(endDate)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.Statement{}, err
	}

	if end.Before(start) {
		return domain.Statement{}, domain.ErrInvalidDateRange
	}

	if _, err := s.accountService.Get(ctx, accountID); err != nil {
		return domain.Statement{}, err
	}

	return s.repo.Statement(ctx, accountID, start, end)
}

// List returns a page of the account's transactions in canonical order.
func (s *Service) List(ctx context.Context, accountID int32, pageSize, pageID int32) ([]domain.LedgerTransaction, error) {
	if _, err := s.accountService.Get(ctx, accountID); err != nil {
		return nil, err
	}

	limit := pageSize
	offset := (pageID - 1) * pageSize

	return s.repo.List(ctx, accountID, limit, offset)
}
