package accountdelivery

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/ledger-api/internal/domain"
	"github.com/go-petr/ledger-api/pkg/errorspkg"
	"github.com/go-petr/ledger-api/pkg/randompkg"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newRouter(service Service) *gin.Engine {
	handler := NewHandler(service)

	router := gin.New()
	router.POST("/accounts", handler.Create)
	router.GET("/accounts", handler.List)
	router.GET("/accounts/:id", handler.Get)
	router.DELETE("/accounts/:id", handler.Delete)

	return router
}

func randomAccount() domain.Account {
	return domain.Account{
		ID:        int32(randompkg.Intn(1000) + 1),
		Name:      randompkg.AccountName(),
		CreatedAt: time.Now().Truncate(time.Second).UTC(),
	}
}

func TestCreate(t *testing.T) {
	account := randomAccount()

	type requestBody struct {
		Name string `json:"name"`
	}

	testCases := []struct {
		name           string
		requestBody    requestBody
		buildStubs     func(service *MockService)
		wantStatusCode int
		checkData      func(body *bytes.Buffer)
	}{
		{
			name:        "OK",
			requestBody: requestBody{Name: account.Name},
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Create(gomock.Any(), gomock.Eq(account.Name)).
					Times(1).
					Return(account, nil)
			},
			wantStatusCode: http.StatusCreated,
			checkData: func(body *bytes.Buffer) {
				var res response
				require.NoError(t, json.Unmarshal(body.Bytes(), &res))

				if diff := cmp.Diff(account, res.Data.Account, cmpopts.EquateApproxTime(time.Second)); diff != "" {
					t.Errorf("res.Data mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:        "MissingName",
			requestBody: requestBody{},
			buildStubs: func(service *MockService) {
				service.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:        "AlreadyExists",
			requestBody: requestBody{Name: account.Name},
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Create(gomock.Any(), gomock.Eq(account.Name)).
					Times(1).
					Return(domain.Account{}, domain.ErrAccountAlreadyExists)
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name:        "InternalServerError",
			requestBody: requestBody{Name: account.Name},
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Create(gomock.Any(), gomock.Eq(account.Name)).
					Times(1).
					Return(domain.Account{}, errorspkg.ErrInternal)
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			service := NewMockService(ctrl)
			tc.buildStubs(service)

			router := newRouter(service)

			body, err := json.Marshal(tc.requestBody)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewReader(body))
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			require.Equal(t, tc.wantStatusCode, recorder.Code)

			if tc.checkData != nil {
				tc.checkData(recorder.Body)
			}
		})
	}
}

func TestGet(t *testing.T) {
	account := randomAccount()

	testCases := []struct {
		name           string
		uri            string
		buildStubs     func(service *MockService)
		wantStatusCode int
	}{
		{
			name: "OK",
			uri:  "/accounts/1",
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Get(gomock.Any(), gomock.Eq(int32(1))).
					Times(1).
					Return(account, nil)
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "InvalidID",
			uri:  "/accounts/0",
			buildStubs: func(service *MockService) {
				service.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "NotFound",
			uri:  "/accounts/1",
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Get(gomock.Any(), gomock.Eq(int32(1))).
					Times(1).
					Return(domain.Account{}, domain.ErrAccountNotFound)
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			service := NewMockService(ctrl)
			tc.buildStubs(service)

			router := newRouter(service)

			req := httptest.NewRequest(http.MethodGet, tc.uri, nil)
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			require.Equal(t, tc.wantStatusCode, recorder.Code)
		})
	}
}

func TestDelete(t *testing.T) {
	testCases := []struct {
		name           string
		buildStubs     func(service *MockService)
		wantStatusCode int
	}{
		{
			name: "OK",
			buildStubs: func(service *MockService) {
				service.EXPECT().Delete(gomock.Any(), gomock.Eq(int32(1))).Times(1).Return(nil)
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "NotEmpty",
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Delete(gomock.Any(), gomock.Eq(int32(1))).
					Times(1).
					Return(domain.ErrAccountNotEmpty)
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name: "NotFound",
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Delete(gomock.Any(), gomock.Eq(int32(1))).
					Times(1).
					Return(domain.ErrAccountNotFound)
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			service := NewMockService(ctrl)
			tc.buildStubs(service)

			router := newRouter(service)

			req := httptest.NewRequest(http.MethodDelete, "/accounts/1", nil)
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			require.Equal(t, tc.wantStatusCode, recorder.Code)
		})
	}
}
