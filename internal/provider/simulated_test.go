package provider

import (
	"context"
	"errors"
	"math/rand/v2"
	"regexp"
	"slices"
	"testing"
	"time"

	"github.com/fastprodman/walletpay/internal/config"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var tokenPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func request(bt models.BillType) Request {
	return Request{
		BillType:      bt,
		BillReference: "ACC-1",
		Amount:        decimal.NewFromInt(300),
		CustomerName:  "Ada",
		TransactionID: uuid.New(),
		UserID:        uuid.New(),
	}
}

func TestSimulated_Success(t *testing.T) {
	t.Parallel()

	fixed := time.UnixMilli(1700000000123)
	s := NewSimulated(config.ProviderConfig{SuccessRate: 1}, WithClock(func() time.Time { return fixed }))

	tests := []struct {
		name      string
		billType  models.BillType
		wantToken bool
	}{
		{name: "electricity_gets_token", billType: models.BillElectricity, wantToken: true},
		{name: "water_no_token", billType: models.BillWater, wantToken: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := s.ProcessPayment(t.Context(), request(tt.billType))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if res.Reference != "REF-1700000000123" {
				t.Fatalf("unexpected reference %q", res.Reference)
			}

			if tt.wantToken != tokenPattern.MatchString(res.Token) {
				t.Fatalf("token %q, wantToken=%v", res.Token, tt.wantToken)
			}
		})
	}
}

func TestSimulated_Decline(t *testing.T) {
	t.Parallel()

	s := NewSimulated(config.ProviderConfig{SuccessRate: 0}, WithRand(rand.New(rand.NewPCG(1, 2))))

	for range 10 {
		_, err := s.ProcessPayment(t.Context(), request(models.BillInternet))
		if !errors.Is(err, models.ErrExternalService) {
			t.Fatalf("expected ErrExternalService, got %v", err)
		}

		if !slices.Contains(declineMessages, FailureReason(err)) {
			t.Fatalf("unexpected decline reason %q", FailureReason(err))
		}
	}
}

func TestSimulated_HonoursContext(t *testing.T) {
	t.Parallel()

	s := NewSimulated(config.ProviderConfig{SuccessRate: 1, Latency: time.Minute})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	_, err := s.ProcessPayment(ctx, request(models.BillCableTV))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	if FailureReason(err) != "Provider request timed out" {
		t.Fatalf("unexpected reason %q", FailureReason(err))
	}
}
