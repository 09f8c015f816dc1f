package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fastprodman/walletpay/internal/infra/logging"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletService interface {
	Create(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	Fund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Transaction, error)
}

type TransactionService interface {
	FindOneForUser(ctx context.Context, id, userID uuid.UUID) (models.Transaction, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page models.PageRequest) (models.Page[models.Transaction], error)
}

type BillPaymentService interface {
	Create(ctx context.Context, userID uuid.UUID, req models.CreateBillPayment) (models.BillPayment, error)
	FindOneForUser(ctx context.Context, id, userID uuid.UUID) (models.BillPayment, error)
	FindAllForUser(ctx context.Context, userID uuid.UUID) ([]models.BillPayment, error)
}

// HandlerProvider exposes the wallet, transaction and bill payment services
// as HTTP handlers.
type HandlerProvider struct {
	wallets WalletService
	txns    TransactionService
	bills   BillPaymentService
	logger  *zap.Logger
}

func NewHandler(wallets WalletService, txns TransactionService, bills BillPaymentService, logger *zap.Logger) *HandlerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HandlerProvider{wallets: wallets, txns: txns, bills: bills, logger: logger}
}

var minFunding = decimal.NewFromInt(1)

// --- Helpers ---

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logging.FromContext(r.Context(), nil).Error("failed to encode JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeServiceError maps the error taxonomy onto status codes.
func (h *HandlerProvider) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInsufficientBalance):
		writeError(w, r, http.StatusConflict, "insufficient balance")
	case errors.Is(err, models.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict")
	default:
		logging.FromContext(r.Context(), h.logger).Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON limits the body to 1MB and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	//nolint:errcheck
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

func parseIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return uuid.Nil, errors.New("missing id")
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}

	return id, nil
}

func parsePage(r *http.Request) (models.PageRequest, error) {
	var (
		page models.PageRequest
		err  error
	)

	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		page.Page, err = strconv.Atoi(raw)
		if err != nil {
			return page, errors.New("invalid page")
		}
	}

	if raw := q.Get("limit"); raw != "" {
		page.Limit, err = strconv.Atoi(raw)
		if err != nil {
			return page, errors.New("invalid limit")
		}
	}

	return page.Normalize(), nil
}

// --- Wallet ---

// CreateWalletHandler handles POST /wallet
func (h *HandlerProvider) CreateWalletHandler(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)

	wallet, err := h.wallets.Create(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, wallet)
}

// GetWalletHandler handles GET /wallet
func (h *HandlerProvider) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.wallets.GetWallet(r.Context(), mustUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, wallet)
}

type fundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// FundWalletHandler handles POST /wallet/fund
func (h *HandlerProvider) FundWalletHandler(w http.ResponseWriter, r *http.Request) {
	var req fundRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if req.Amount.LessThan(minFunding) {
		writeError(w, r, http.StatusBadRequest, "amount must be at least 1")
		return
	}

	err = models.ValidateAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	txn, err := h.wallets.Fund(r.Context(), mustUserID(r), req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, txn)
}

// --- Transactions ---

// ListTransactionsHandler handles GET /transactions?page=&limit=
func (h *HandlerProvider) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.txns.ListForUser(r.Context(), mustUserID(r), page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, res)
}

// GetTransactionHandler handles GET /transactions/{id}
func (h *HandlerProvider) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid id in path")
		return
	}

	txn, err := h.txns.FindOneForUser(r.Context(), id, mustUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, txn)
}

// --- Bill payments ---

// CreateBillPaymentHandler handles POST /bill-payments. The payment is
// settled asynchronously, so a PENDING resource is returned with 202.
func (h *HandlerProvider) CreateBillPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBillPayment

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	bp, err := h.bills.Create(r.Context(), mustUserID(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusAccepted, bp)
}

// ListBillPaymentsHandler handles GET /bill-payments
func (h *HandlerProvider) ListBillPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.bills.FindAllForUser(r.Context(), mustUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

// GetBillPaymentHandler handles GET /bill-payments/{id}
func (h *HandlerProvider) GetBillPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid id in path")
		return
	}

	bp, err := h.bills.FindOneForUser(r.Context(), id, mustUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, bp)
}
