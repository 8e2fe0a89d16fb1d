package ledgerservice

import (
	"context"
	"testing"
	"time"

	"github.com/go-petr/ledger-api/internal/domain"
	"github.com/go-petr/ledger-api/pkg/errorspkg"
	"github.com/go-petr/ledger-api/pkg/randompkg"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func randomTransaction(id int64, accountID int32) domain.LedgerTransaction {
	amount := randompkg.MoneyAmountBetween(1, 1_000)

	return domain.LedgerTransaction{
		ID:              id,
		AccountID:       accountID,
		TransactionDate: randompkg.DateBetween(1, 365),
		Type:            domain.EntryTypeCredit,
		Amount:          amount,
		BalanceAmount:   amount,
		CreatedAt:       time.Now().Truncate(time.Second).UTC(),
	}
}

func TestRecord(t *testing.T) {
	testTransaction := randomTransaction(1, 1)

	type input struct {
		arg RecordInput
	}

	testCases := []struct {
		name          string
		input         input
		buildStubs    func(repo *MockRepo, publisher *MockPublisher)
		checkResponse func(res domain.LedgerTransaction, err error)
	}{
		{
			name: "InvalidAmount",
			input: input{
				arg: RecordInput{
					AccountID:       1,
					TransactionDate: "2024-01-05",
					Type:            "Credit",
					Amount:          "!@#$",
				},
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.Empty(t, res)
				require.EqualError(t, err, domain.ErrInvalidAmount.Error())
			},
		},
		{
			name: "NegativeAmount",
			input: input{
				arg: RecordInput{
					AccountID:       1,
					TransactionDate: "2024-01-05",
					Type:            "Credit",
					Amount:          "-100",
				},
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.Empty(t, res)
				require.EqualError(t, err, domain.ErrNegativeAmount.Error())
			},
		},
		{
			name: "InvalidEntryType",
			input: input{
				arg: RecordInput{
					AccountID:       1,
					TransactionDate: "2024-01-05",
					Type:            "credit",
					Amount:          "100",
				},
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.Empty(t, res)
				require.EqualError(t, err, domain.ErrInvalidEntryType.Error())
			},
		},
		{
			name: "InvalidDate",
			input: input{
				arg: RecordInput{
					AccountID:       1,
					TransactionDate: "05/01/2024",
					Type:            "Credit",
					Amount:          "100",
				},
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.Empty(t, res)
				require.EqualError(t, err, domain.ErrInvalidDate.Error())
			},
		},
		{
			name: "RepoError",
			input: input{
				arg: RecordInput{
					AccountID:       1,
					TransactionDate: "2024-01-05",
					Type:            "Credit",
					Amount:          "100",
				},
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Record(gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.LedgerTransaction{}, errorspkg.ErrInternal)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.Empty(t, res)
				require.EqualError(t, err, errorspkg.ErrInternal.Error())
			},
		},
		{
			name: "OK",
			input: input{
				arg: RecordInput{
					AccountID:       1,
					TransactionDate: "2024-01-05",
					Type:            "Credit",
					Amount:          "100",
					Description:     "invoice 42",
				},
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Record(gomock.Any(), gomock.Eq(domain.RecordTransactionParams{
					AccountID:       1,
					TransactionDate: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
					Type:            domain.EntryTypeCredit,
					Amount:          decimal.NewFromInt(100),
					Description:     "invoice 42",
				})).
					Times(1).
					Return(testTransaction, nil)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(Topic), gomock.Any()).
					Times(1).
					Return(nil)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.NoError(t, err)
				require.Equal(t, testTransaction, res)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			accountService := NewMockAccountService(ctrl)
			publisher := NewMockPublisher(ctrl)
			service := New(repo, accountService, publisher)

			tc.buildStubs(repo, publisher)

			res, err := service.Record(context.Background(), tc.input.arg)
			tc.checkResponse(res, err)
		})
	}
}

func TestRecordPublishFailureDoesNotFailOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	accountService := NewMockAccountService(ctrl)
	publisher := NewMockPublisher(ctrl)
	service := New(repo, accountService, publisher)

	testTransaction := randomTransaction(1, 1)

	repo.EXPECT().Record(gomock.Any(), gomock.Any()).Times(1).Return(testTransaction, nil)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(Topic), gomock.Any()).
		Times(1).
		Return(errorspkg.ErrInternal)

	res, err := service.Record(context.Background(), RecordInput{
		AccountID:       1,
		TransactionDate: "2024-01-05",
		Type:            "Credit",
		Amount:          "100",
	})
	require.NoError(t, err)
	require.Equal(t, testTransaction, res)
}

func TestRecordWithoutPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	accountService := NewMockAccountService(ctrl)
	service := New(repo, accountService, nil)

	testTransaction := randomTransaction(1, 1)

	repo.EXPECT().Record(gomock.Any(), gomock.Any()).Times(1).Return(testTransaction, nil)

	res, err := service.Record(context.Background(), RecordInput{
		AccountID:       1,
		TransactionDate: "2024-01-05",
		Type:            "Credit",
		Amount:          "100",
	})
	require.NoError(t, err)
	require.Equal(t, testTransaction, res)
}

func TestAmend(t *testing.T) {
	testTransaction := randomTransaction(1, 1)

	amount := "50"
	badAmount := "abc"
	badType := "withdrawal"
	badDate := "garbage"

	testCases := []struct {
		name          string
		arg           AmendInput
		buildStubs    func(repo *MockRepo, publisher *MockPublisher)
		checkResponse func(res domain.LedgerTransaction, err error)
	}{
		{
			name: "InvalidAmount",
			arg:  AmendInput{Amount: &badAmount},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Amend(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.EqualError(t, err, domain.ErrInvalidAmount.Error())
			},
		},
		{
			name: "InvalidEntryType",
			arg:  AmendInput{Type: &badType},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Amend(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.EqualError(t, err, domain.ErrInvalidEntryType.Error())
			},
		},
		{
			name: "InvalidDate",
			arg:  AmendInput{TransactionDate: &badDate},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Amend(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.EqualError(t, err, domain.ErrInvalidDate.Error())
			},
		},
		{
			name: "OK",
			arg:  AmendInput{Amount: &amount},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Amend(gomock.Any(), gomock.Eq(testTransaction.ID), gomock.Any()).
					Times(1).
					Return(testTransaction, nil)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(Topic), gomock.Any()).
					Times(1).
					Return(nil)
			},
			checkResponse: func(res domain.LedgerTransaction, err error) {
				require.NoError(t, err)
				require.Equal(t, testTransaction, res)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			accountService := NewMockAccountService(ctrl)
			publisher := NewMockPublisher(ctrl)
			service := New(repo, accountService, publisher)

			tc.buildStubs(repo, publisher)

			res, err := service.Amend(context.Background(), testTransaction.ID, tc.arg)
			tc.checkResponse(res, err)
		})
	}
}

func TestDelete(t *testing.T) {
	testTransaction := randomTransaction(1, 1)

	testCases := []struct {
		name       string
		buildStubs func(repo *MockRepo, publisher *MockPublisher)
		wantErr    string
	}{
		{
			name: "NotFound",
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Get(gomock.Any(), gomock.Eq(testTransaction.ID)).
					Times(1).
					Return(domain.LedgerTransaction{}, domain.ErrTransactionNotFound)
				repo.EXPECT().Delete(gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrTransactionNotFound.Error(),
		},
		{
			name: "OK",
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Get(gomock.Any(), gomock.Eq(testTransaction.ID)).
					Times(1).
					Return(testTransaction, nil)
				repo.EXPECT().Delete(gomock.Any(), gomock.Eq(testTransaction.ID)).
					Times(1).
					Return(nil)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(Topic), gomock.Any()).
					Times(1).
					Return(nil)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			accountService := NewMockAccountService(ctrl)
			publisher := NewMockPublisher(ctrl)
			service := New(repo, accountService, publisher)

			tc.buildStubs(repo, publisher)

			err := service.Delete(context.Background(), testTransaction.ID)
			if tc.wantErr != "" {
				require.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBalanceAsOf(t *testing.T) {
	balance := decimal.NewFromInt(150)

	testCases := []struct {
		name       string
		asOfDate   string
		buildStubs func(repo *MockRepo, accountService *MockAccountService)
		wantErr    string
	}{
		{
			name:     "InvalidDate",
			asOfDate: "not-a-date",
			buildStubs: func(repo *MockRepo, accountService *MockAccountService) {
				accountService.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)
				repo.EXPECT().BalanceAsOf(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrInvalidDate.Error(),
		},
		{
			name:     "AccountNotFound",
			asOfDate: "2024-01-05",
			buildStubs: func(repo *MockRepo, accountService *MockAccountService) {
				accountService.EXPECT().Get(gomock.Any(), gomock.Eq(int32(1))).
					Times(1).
					Return(domain.Account{}, domain.ErrAccountNotFound)
				repo.EXPECT().BalanceAsOf(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrAccountNotFound.Error(),
		},
		{
			name:     "OK",
			asOfDate: "2024-01-05",
			buildStubs: func(repo *MockRepo, accountService *MockAccountService) {
				accountService.EXPECT().Get(gomock.Any(), gomock.Eq(int32(1))).
					Times(1).
					Return(domain.Account{ID: 1}, nil)
				repo.EXPECT().BalanceAsOf(gomock.Any(), gomock.Eq(int32(1)),
					gomock.Eq(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))).
					Times(1).
					Return(balance, nil)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			accountService := NewMockAccountService(ctrl)
			service := New(repo, accountService, nil)

			tc.buildStubs(repo, accountService)

			res, err := service.BalanceAsOf(context.Background(), 1, tc.asOfDate)
			if tc.wantErr != "" {
				require.EqualError(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.True(t, res.Equal(balance))
		})
	}
}

func TestStatement(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	accountService := NewMockAccountService(ctrl)
	service := New(repo, accountService, nil)

	t.Run("ReversedRange", func(t *testing.T) {
		_, err := service.Statement(context.Background(), 1, "2024-02-01", "2024-01-01")
		require.EqualError(t, err, domain.ErrInvalidDateRange.Error())
	})

	t.Run("OK", func(t *testing.T) {
		want := domain.Statement{AccountID: 1}

		accountService.EXPECT().Get(gomock.Any(), gomock.Eq(int32(1))).
			Times(1).
			Return(domain.Account{ID: 1}, nil)
		repo.EXPECT().Statement(gomock.Any(), gomock.Eq(int32(1)),
			gomock.Eq(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			gomock.Eq(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))).
			Times(1).
			Return(want, nil)

		res, err := service.Statement(context.Background(), 1, "2024-01-01", "2024-02-01")
		require.NoError(t, err)
		require.Equal(t, want, res)
	})
}

func TestList(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	accountService := NewMockAccountService(ctrl)
	service := New(repo, accountService, nil)

	want := []domain.LedgerTransaction{randomTransaction(1, 1)}

	accountService.EXPECT().Get(gomock.Any(), gomock.Eq(int32(1))).
		Times(1).
		Return(domain.Account{ID: 1}, nil)
	repo.EXPECT().List(gomock.Any(), gomock.Eq(int32(1)), gomock.Eq(int32(10)), gomock.Eq(int32(10))).
		Times(1).
		Return(want, nil)

	res, err := service.List(context.Background(), 1, 10, 2)
	require.NoError(t, err)
	require.Equal(t, want, res)
}
