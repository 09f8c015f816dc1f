// Package queue defines the durable job contract between request handling
// and asynchronous settlement. Delivery is at least once; handlers must be
// idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindProcessBillPayment  Kind = "process-bill-payment"
	KindRollbackTransaction Kind = "rollback-transaction"
)

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Priority    Priority
}

// DefaultOptions returns the retry policy for kind. Rollbacks get more
// attempts and a higher lane because fund safety depends on them.
func DefaultOptions(kind Kind) Options {
	switch kind {
	case KindRollbackTransaction:
		return Options{MaxAttempts: 5, Backoff: 3 * time.Second, Priority: PriorityHigh}
	default:
		return Options{MaxAttempts: 3, Backoff: 5 * time.Second, Priority: PriorityNormal}
	}
}

// Job is the unit stored in a queue. Attempt counts claims, so the first
// delivery sees Attempt == 1.
type Job struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     time.Duration   `json:"backoff"`
	Priority    Priority        `json:"priority"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	LastError   string          `json:"lastError,omitempty"`
}

// NewJob encodes payload into a job of kind using its default options.
func NewJob(kind Kind, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}

	opts := DefaultOptions(kind)

	return Job{
		ID:          ulid.Make().String(),
		Kind:        kind,
		Payload:     raw,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		Priority:    opts.Priority,
		EnqueuedAt:  time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into dst.
func (j Job) Decode(dst any) error {
	err := json.Unmarshal(j.Payload, dst)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Kind, err)
	}

	return nil
}

// Exhausted reports whether the current attempt is the last one allowed.
func (j Job) Exhausted() bool {
	return j.Attempt >= j.MaxAttempts
}

// RetryDelay is Backoff * 2^(Attempt-1).
func (j Job) RetryDelay() time.Duration {
	n := j.Attempt
	if n < 1 {
		n = 1
	}

	return time.Duration(float64(j.Backoff) * math.Pow(2, float64(n-1)))
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

type Consumer interface {
	// Claim blocks until a job is available, wait elapses or ctx is done.
	// ok is false when nothing was claimed.
	Claim(ctx context.Context, wait time.Duration) (job Job, ok bool, err error)
	// Ack removes a finished job.
	Ack(ctx context.Context, job Job) error
	// Retry schedules job for redelivery after delay.
	Retry(ctx context.Context, job Job, delay time.Duration, cause error) error
	// Fail moves job to the failed set, keeping cause for inspection.
	Fail(ctx context.Context, job Job, cause error) error
}

type Queue interface {
	Enqueuer
	Consumer
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
