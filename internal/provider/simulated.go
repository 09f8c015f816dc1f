package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/fastprodman/walletpay/internal/config"
	"github.com/fastprodman/walletpay/internal/models"
	"go.uber.org/zap"
)

var _ Adapter = (*Simulated)(nil)

var declineMessages = []string{
	"Invalid bill reference",
	"Service temporarily unavailable",
	"Payment rejected by service provider",
}

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Simulated stands in for a real provider: it sleeps for the configured
// latency and succeeds with the configured probability.
type Simulated struct {
	successRate float64
	latency     time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Simulated)

// WithRand replaces the random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulated) { s.rnd = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulated) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulated) { s.logger = logger }
}

func NewSimulated(cfg config.ProviderConfig, opts ...Option) *Simulated {
	s := &Simulated{
		successRate: cfg.SuccessRate,
		latency:     cfg.Latency,
		logger:      zap.NewNop(),
		now:         time.Now,
		rnd:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Simulated) ProcessPayment(ctx context.Context, req Request) (models.ProviderResult, error) {
	log := s.logger.With(
		zap.String("transaction_id", req.TransactionID.String()),
		zap.String("bill_type", string(req.BillType)),
	)

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.ProviderResult{}, fmt.Errorf("provider call: %w", ctx.Err())
		case <-timer.C:
		}
	}

	s.mu.Lock()
	ok := s.rnd.Float64() < s.successRate
	var (
		token   string
		decline string
	)
	if ok && req.BillType == models.BillElectricity {
		token = s.tokenLocked()
	}
	if !ok {
		decline = declineMessages[s.rnd.IntN(len(declineMessages))]
	}
	s.mu.Unlock()

	if !ok {
		log.Warn("provider declined payment", zap.String("reason", decline))
		return models.ProviderResult{}, &RejectedError{Message: decline}
	}

	res := models.ProviderResult{
		Reference: fmt.Sprintf("REF-%d", s.now().UnixMilli()),
		Token:     token,
		Data:      models.ProviderData{"message": "Payment processed successfully"},
	}

	log.Info("provider settled payment", zap.String("reference", res.Reference))

	return res, nil
}

// tokenLocked builds a XXXX-XXXX-XXXX-XXXX prepaid token.
func (s *Simulated) tokenLocked() string {
	groups := make([]string, 4)

	for i := range groups {
		var b strings.Builder
		for range 4 {
			b.WriteByte(tokenAlphabet[s.rnd.IntN(len(tokenAlphabet))])
		}
		groups[i] = b.String()
	}

	return strings.Join(groups, "-")
}
