package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fastprodman/walletpay/internal/infra/metrics"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type fakeWallets struct {
	wallet  models.Wallet
	err     error
	funded  decimal.Decimal
	fundErr error
}

func (f *fakeWallets) Create(_ context.Context, userID uuid.UUID) (models.Wallet, error) {
	return models.Wallet{ID: uuid.New(), UserID: userID}, f.err
}

func (f *fakeWallets) GetWallet(context.Context, uuid.UUID) (models.Wallet, error) {
	return f.wallet, f.err
}

func (f *fakeWallets) Fund(_ context.Context, _ uuid.UUID, amount decimal.Decimal) (models.Transaction, error) {
	f.funded = amount
	return models.Transaction{ID: uuid.New(), Type: models.TransactionWalletFunding, Amount: amount, Status: models.TransactionCompleted}, f.fundErr
}

type fakeTransactions struct {
	lastPage models.PageRequest
	err      error
}

func (f *fakeTransactions) FindOneForUser(_ context.Context, id, _ uuid.UUID) (models.Transaction, error) {
	return models.Transaction{ID: id}, f.err
}

func (f *fakeTransactions) ListForUser(_ context.Context, _ uuid.UUID, page models.PageRequest) (models.Page[models.Transaction], error) {
	f.lastPage = page
	return models.Page[models.Transaction]{Items: []models.Transaction{}, Page: page.Page, Limit: page.Limit}, f.err
}

type fakeBills struct {
	got models.CreateBillPayment
	err error
}

func (f *fakeBills) Create(_ context.Context, userID uuid.UUID, req models.CreateBillPayment) (models.BillPayment, error) {
	f.got = req
	return models.BillPayment{ID: uuid.New(), UserID: userID, Status: models.BillPaymentPending, Amount: req.Amount}, f.err
}

func (f *fakeBills) FindOneForUser(_ context.Context, id, _ uuid.UUID) (models.BillPayment, error) {
	return models.BillPayment{ID: id}, f.err
}

func (f *fakeBills) FindAllForUser(context.Context, uuid.UUID) ([]models.BillPayment, error) {
	return []models.BillPayment{}, f.err
}

type env struct {
	handler http.Handler
	wallets *fakeWallets
	txns    *fakeTransactions
	bills   *fakeBills
	reg     *prometheus.Registry
}

func newEnv() *env {
	e := &env{
		wallets: &fakeWallets{wallet: models.Wallet{Balance: decimal.RequireFromString("700.00")}},
		txns:    &fakeTransactions{},
		bills:   &fakeBills{},
		reg:     prometheus.NewRegistry(),
	}

	e.handler = NewRouter(Deps{
		Wallets:      e.wallets,
		Transactions: e.txns,
		BillPayments: e.bills,
		Metrics:      metrics.New(e.reg),
		Gatherer:     e.reg,
	})

	return e
}

func (e *env) do(method, path, body string, user string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	return rec
}

func TestRouter_Identity(t *testing.T) {
	t.Parallel()

	e := newEnv()

	tests := []struct {
		name string
		user string
		want int
	}{
		{name: "missing", user: "", want: http.StatusUnauthorized},
		{name: "not_a_uuid", user: "42", want: http.StatusUnauthorized},
		{name: "valid", user: uuid.NewString(), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := e.do(http.MethodGet, "/wallet", "", tt.user)
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("x: %w", models.ErrNotFound), want: http.StatusNotFound},
		{err: fmt.Errorf("x: %w", models.ErrForbidden), want: http.StatusForbidden},
		{err: fmt.Errorf("x: %w", models.ErrInvalidArgument), want: http.StatusBadRequest},
		{err: fmt.Errorf("x: %w", models.ErrInsufficientBalance), want: http.StatusConflict},
		{err: models.ErrAlreadyReversed, want: http.StatusConflict},
		{err: fmt.Errorf("db exploded"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()

			e := newEnv()
			e.bills.err = tt.err

			rec := e.do(http.MethodGet, "/bill-payments/"+uuid.NewString(), "", uuid.NewString())
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestRouter_FundWallet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "ok_string", body: `{"amount":"100.50"}`, want: http.StatusCreated},
		{name: "ok_number", body: `{"amount":25}`, want: http.StatusCreated},
		{name: "below_minimum", body: `{"amount":"0.50"}`, want: http.StatusBadRequest},
		{name: "three_decimals", body: `{"amount":"10.555"}`, want: http.StatusBadRequest},
		{name: "unknown_field", body: `{"amount":"10","currency":"USD"}`, want: http.StatusBadRequest},
		{name: "empty", body: ``, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv()

			rec := e.do(http.MethodPost, "/wallet/fund", tt.body, uuid.NewString())
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}

			if tt.want != http.StatusCreated && !e.wallets.funded.IsZero() {
				t.Fatalf("rejected request reached the service")
			}
		})
	}
}

func TestRouter_CreateBillPayment(t *testing.T) {
	t.Parallel()

	e := newEnv()
	user := uuid.New()

	rec := e.do(http.MethodPost, "/bill-payments", `{
		"billType":"ELECTRICITY","billReference":"ACC-1","amount":"300",
		"customerName":"Ada","meterNumber":"M-1"}`, user.String())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("want 202, got %d: %s", rec.Code, rec.Body)
	}

	var got models.BillPayment

	err := json.Unmarshal(rec.Body.Bytes(), &got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Status != models.BillPaymentPending || got.UserID != user || !got.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected response: %+v", got)
	}

	if e.bills.got.BillType != models.BillElectricity || e.bills.got.MeterNumber != "M-1" {
		t.Fatalf("request not passed through: %+v", e.bills.got)
	}
}

func TestRouter_ListTransactions_Paging(t *testing.T) {
	t.Parallel()

	e := newEnv()

	rec := e.do(http.MethodGet, "/transactions?page=x", "", uuid.NewString())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for bad page, got %d", rec.Code)
	}

	rec = e.do(http.MethodGet, "/transactions?page=2&limit=500", "", uuid.NewString())
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body)
	}

	if e.txns.lastPage.Page != 2 || e.txns.lastPage.Limit != models.MaxPageLimit {
		t.Fatalf("page not normalized: %+v", e.txns.lastPage)
	}

	rec = e.do(http.MethodGet, "/transactions/not-a-uuid", "", uuid.NewString())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for bad id, got %d", rec.Code)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	e := newEnv()

	rec := e.do(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	_ = e.do(http.MethodGet, "/wallet", "", uuid.NewString())

	rec = e.do(http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), `walletpay_http_requests_total{code="200",method="GET",route="/wallet"}`) {
		t.Fatalf("expected request counter in exposition:\n%s", rec.Body)
	}
}
