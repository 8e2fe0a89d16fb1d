// Package ledgerdelivery manages delivery layer of ledger transactions.
package ledgerdelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/ledger-api/internal/domain"
	"github.com/go-petr/ledger-api/internal/ledgerservice"
	"github.com/go-petr/ledger-api/pkg/errorspkg"
	"github.com/go-petr/ledger-api/pkg/web"
)

// Service provides service layer interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	Record(ctx context.Context, arg ledgerservice.RecordInput) (domain.LedgerTransaction, error)
	Amend(ctx context.Context, id int64, arg ledgerservice.AmendInput) (domain.LedgerTransaction, error)
	Delete(ctx context.Context, id int64) error
	RecalculateFrom(ctx context.Context, accountID int32, fromDate string) error
	BalanceAsOf(ctx context.Context, accountID int32, asOfDate string) (decimal.Decimal, error)
	Statement(ctx context.Context, accountID int32, startDate, endDate string) (domain.Statement, error)
	List(ctx context.Context, accountID int32, pageSize, pageID int32) ([]domain.LedgerTransaction, error)
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns ledger handler.
func NewHandler(ls Service) Handler {
	return Handler{service: ls}
}

func bindError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx)

	var (
		ve     validator.ValidationErrors
		errMsg string
	)

	if errors.As(err, &ve) {
		field := ve[0]
		errMsg = field.Field() + web.GetErrorMsg(field)
	}

	l.Info().Err(err).Send()
	gctx.JSON(http.StatusBadRequest, web.Response{Error: web.JSONError{Error: errMsg}})
}

// serviceError maps domain errors to http statuses: missing rows to 404,
// invalid input to 400, lock contention to 409, the rest to 500.
func serviceError(gctx *gin.Context, err error) {
	switch err {
	case domain.ErrAccountNotFound, domain.ErrTransactionNotFound:
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case domain.ErrInvalidAmount, domain.ErrNegativeAmount,
		domain.ErrInvalidEntryType, domain.ErrInvalidDate, domain.ErrInvalidDateRange:
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case domain.ErrConcurrentModification:
		gctx.JSON(http.StatusConflict, web.Error(err))
	default:
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}

type accountURI struct {
	AccountID int32 `uri:"id" binding:"required,min=1"`
}

type transactionURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

type data struct {
	Transaction domain.LedgerTransaction `json:"transaction"`
}
type response struct {
	Data data `json:"data,omitempty"`
}

type recordRequest struct {
	TransactionDate string `json:"transaction_date" binding:"required"`
	TransactionType string `json:"transaction_type" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	Description     string `json:"description"`
	Reference       string `json:"reference"`
}

// Record handles http request to record a transaction on an account.
func (h *Handler) Record(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		bindError(gctx, err)
		return
	}

	var req recordRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		bindError(gctx, err)
		return
	}

	created, err := h.service.Record(ctx, ledgerservice.RecordInput{
		AccountID:       uri.AccountID,
		TransactionDate: req.TransactionDate,
		Type:            req.TransactionType,
		Amount:          req.Amount,
		Description:     req.Description,
		Reference:       req.Reference,
	})
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusCreated, response{Data: data{created}})
}

type amendRequest struct {
	AccountID       *int32  `json:"account_id" binding:"omitempty,min=1"`
	TransactionDate *string `json:"transaction_date"`
	TransactionType *string `json:"transaction_type"`
	Amount          *string `json:"amount"`
	Description     *string `json:"description"`
	Reference       *string `json:"reference"`
}

// Amend handles http request to change a transaction.
func (h *Handler) Amend(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var uri transactionURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		bindError(gctx, err)
		return
	}

	var req amendRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		bindError(gctx, err)
		return
	}

	amended, err := h.service.Amend(ctx, uri.ID, ledgerservice.AmendInput{
		AccountID:       req.AccountID,
		TransactionDate: req.TransactionDate,
		Type:            req.TransactionType,
		Amount:          req.Amount,
		Description:     req.Description,
		Reference:       req.Reference,
	})
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{amended}})
}

// Delete handles http request to delete a transaction.
func (h *Handler) Delete(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var uri transactionURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		bindError(gctx, err)
		return
	}

	if err := h.service.Delete(ctx, uri.ID); err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Message: "transaction deleted"})
}

type recalculateRequest struct {
	AccountID int32  `json:"account_id" binding:"required,min=1"`
	FromDate  string `json:"from_date" binding:"required"`
}

// Recalculate handles http request to re-derive stored balances of an account.
func (h *Handler) Recalculate(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req recalculateRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		bindError(gctx, err)
		return
	}

	if err := h.service.RecalculateFrom(ctx, req.AccountID, req.FromDate); err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Message: "balances recalculated"})
}

type balanceRequest struct {
	AsOfDate string `form:"as_of_date" binding:"required"`
}

type balanceResponse struct {
	AccountID int32           `json:"account_id"`
	AsOfDate  string          `json:"as_of_date"`
	Balance   decimal.Decimal `json:"balance"`
}

// Balance handles http request to get an account's balance as of a date.
func (h *Handler) Balance(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		bindError(gctx, err)
		return
	}

	var req balanceRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		bindError(gctx, err)
		return
	}

	balance, err := h.service.BalanceAsOf(ctx, uri.AccountID, req.AsOfDate)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, balanceResponse{
		AccountID: uri.AccountID,
		AsOfDate:  req.AsOfDate,
		Balance:   balance,
	})
}

type statementRequest struct {
	StartDate string `form:"start_date" binding:"required"`
	EndDate   string `form:"end_date" binding:"required"`
}

type statementResponse struct {
	AccountID      int32                      `json:"account_id"`
	StartDate      string                     `json:"start_date"`
	EndDate        string                     `json:"end_date"`
	OpeningBalance decimal.Decimal            `json:"opening_balance"`
	ClosingBalance decimal.Decimal            `json:"closing_balance"`
	Transactions   []domain.LedgerTransaction `json:"transactions"`
}

// Statement handles http request to get an account statement for a date range.
func (h *Handler) Statement(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		bindError(gctx, err)
		return
	}

	var req statementRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		bindError(gctx, err)
		return
	}

	statement, err := h.service.Statement(ctx, uri.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, statementResponse{
		AccountID:      statement.AccountID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		OpeningBalance: statement.OpeningBalance,
		ClosingBalance: statement.ClosingBalance,
		Transactions:   statement.Transactions,
	})
}

type listRequest struct {
	PageID   int32 `form:"page_id" binding:"required,min=1"`
	PageSize int32 `form:"page_size" binding:"required,min=1,max=100"`
}

type dataTransactions struct {
	Transactions []domain.LedgerTransaction `json:"transactions"`
}
type responseTransactions struct {
	Data dataTransactions `json:"data,omitempty"`
}

// List handles http request to list an account's transactions.
func (h *Handler) List(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		bindError(gctx, err)
		return
	}

	var req listRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		bindError(gctx, err)
		return
	}

	transactions, err := h.service.List(ctx, uri.AccountID, req.PageSize, req.PageID)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, responseTransactions{Data: dataTransactions{transactions}})
}
