// Package provider is the boundary to the external bill settlement service.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Request struct {
	BillType      models.BillType
	BillReference string
	Amount        decimal.Decimal
	CustomerName  string
	TransactionID uuid.UUID
	UserID        uuid.UUID
}

// Adapter settles one bill. A declined payment returns a *RejectedError;
// any other error means the outcome is unknown to the caller.
type Adapter interface {
	ProcessPayment(ctx context.Context, req Request) (models.ProviderResult, error)
}

// RejectedError is a definite decline reported by the provider.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected payment: %s", e.Message)
}

func (e *RejectedError) Unwrap() error { return models.ErrExternalService }

// FailureReason is the human readable reason stored on a failed payment.
func FailureReason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "Provider request timed out"
	}

	return "Service unavailable"
}
