package api

import (
	"net/http"

	"github.com/fastprodman/walletpay/internal/infra/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Wallets      WalletService
	Transactions TransactionService
	BillPayments BillPaymentService
	Metrics      *metrics.Metrics
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	if d.Metrics == nil {
		d.Metrics = metrics.New(nil)
	}

	h := NewHandler(d.Wallets, d.Transactions, d.BillPayments, d.Logger)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(instrument(d.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/wallet", h.GetWalletHandler)
		r.Post("/wallet", h.CreateWalletHandler)
		r.Post("/wallet/fund", h.FundWalletHandler)

		r.Get("/transactions", h.ListTransactionsHandler)
		r.Get("/transactions/{id}", h.GetTransactionHandler)

		r.Post("/bill-payments", h.CreateBillPaymentHandler)
		r.Get("/bill-payments", h.ListBillPaymentsHandler)
		r.Get("/bill-payments/{id}", h.GetBillPaymentHandler)
	})

	return r
}
