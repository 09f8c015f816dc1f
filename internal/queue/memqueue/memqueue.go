// Package memqueue is an in-process queue.Queue used by tests and local
// runs without Redis. Jobs do not survive a restart.
package memqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fastprodman/walletpay/internal/queue"
)

var _ queue.Queue = (*Queue)(nil)

type scheduled struct {
	job queue.Job
	due time.Time
}

type Queue struct {
	mu         sync.Mutex
	high       []queue.Job
	normal     []queue.Job
	delayed    []scheduled
	processing map[string]queue.Job
	failed     []queue.Job
	notify     chan struct{}
	now        func() time.Time
}

func New() *Queue {
	return &Queue{
		processing: make(map[string]queue.Job),
		notify:     make(chan struct{}, 1),
		now:        time.Now,
	}
}

func (q *Queue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	q.push(job)
	q.mu.Unlock()

	q.wake()

	return nil
}

func (q *Queue) Claim(ctx context.Context, wait time.Duration) (queue.Job, bool, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		q.promoteLocked()
		job, ok := q.popLocked()
		var nextDue time.Duration
		if !ok && len(q.delayed) > 0 {
			nextDue = q.delayed[0].due.Sub(q.now())
		}
		q.mu.Unlock()

		if ok {
			return job, true, nil
		}

		var (
			tick  <-chan time.Time
			timer *time.Timer
		)
		if nextDue > 0 {
			timer = time.NewTimer(nextDue)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return queue.Job{}, false, ctx.Err()
		case <-deadline.C:
			stopTimer(timer)
			return queue.Job{}, false, nil
		case <-q.notify:
		case <-tick:
		}

		stopTimer(timer)
	}
}

func (q *Queue) Ack(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, job.ID)

	return nil
}

func (q *Queue) Retry(_ context.Context, job queue.Job, delay time.Duration, cause error) error {
	q.mu.Lock()
	delete(q.processing, job.ID)
	if cause != nil {
		job.LastError = cause.Error()
	}
	q.delayed = append(q.delayed, scheduled{job: job, due: q.now().Add(delay)})
	sort.Slice(q.delayed, func(i, j int) bool { return q.delayed[i].due.Before(q.delayed[j].due) })
	q.mu.Unlock()

	q.wake()

	return nil
}

func (q *Queue) Fail(_ context.Context, job queue.Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, job.ID)
	if cause != nil {
		job.LastError = cause.Error()
	}
	q.failed = append(q.failed, job)

	return nil
}

// Failed returns a copy of the failed set.
func (q *Queue) Failed() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]queue.Job(nil), q.failed...)
}

// Pending counts jobs that are ready, delayed or in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.high) + len(q.normal) + len(q.delayed) + len(q.processing)
}

func (q *Queue) push(job queue.Job) {
	if job.Priority == queue.PriorityHigh {
		q.high = append(q.high, job)
		return
	}

	q.normal = append(q.normal, job)
}

func (q *Queue) popLocked() (queue.Job, bool) {
	var job queue.Job

	switch {
	case len(q.high) > 0:
		job, q.high = q.high[0], q.high[1:]
	case len(q.normal) > 0:
		job, q.normal = q.normal[0], q.normal[1:]
	default:
		return queue.Job{}, false
	}

	job.Attempt++
	q.processing[job.ID] = job

	return job, true
}

func (q *Queue) promoteLocked() {
	now := q.now()

	i := 0
	for ; i < len(q.delayed) && !q.delayed[i].due.After(now); i++ {
		q.push(q.delayed[i].job)
	}

	q.delayed = q.delayed[i:]
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
