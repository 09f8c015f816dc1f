// Package notify publishes settlement events and operator alerts.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventBillPaymentCompleted  EventType = "bill_payment.completed"
	EventBillPaymentFailed     EventType = "bill_payment.failed"
	EventTransactionReversed   EventType = "transaction.reversed"
	EventRollbackExhausted     EventType = "rollback.exhausted"
	EventPaymentOutcomeUnknown EventType = "payment.outcome_unknown"
)

// Alert reports whether the event needs an operator.
func (t EventType) Alert() bool {
	return t == EventRollbackExhausted || t == EventPaymentOutcomeUnknown
}

type Event struct {
	Type          EventType       `json:"type"`
	TransactionID uuid.UUID       `json:"transactionId"`
	BillPaymentID *uuid.UUID      `json:"billPaymentId,omitempty"`
	UserID        uuid.UUID       `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Memory keeps published events in order.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)

	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, len(m.events))
	copy(out, m.events)

	return out
}

// OfType returns the published events of type t.
func (m *Memory) OfType(t EventType) []Event {
	var out []Event

	for _, ev := range m.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}

	return out
}
