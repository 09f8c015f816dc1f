// Package shutdownqueue provides a LIFO queue of cleanup tasks.
//
// A process builds one queue in main, registers tasks with Add as
// components start, and drains it explicitly at the end of main:
//
//	sq := shutdownqueue.New()
//	defer func() {
//		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//		defer cancel()
//		_ = sq.Shutdown(ctx)
//	}()
//
// Tasks run once, in reverse order of registration. Panics are recovered.
// Shutdown is idempotent and returns an aggregated error via errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish (or ctx is canceled).
type Task func(ctx context.Context) error

// Queue holds registered tasks. The zero value is ready to use.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	names  []string
	closed bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{tasks: make([]Task, 0, 8)}
}

// Add registers a named task to be run on Shutdown, in LIFO order.
// If t is nil or shutdown has already started, Add does nothing.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.tasks = append(q.tasks, t)
	q.names = append(q.names, name)
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown drains all registered tasks in LIFO order.
// After the first run, subsequent calls are no-ops.
//
// If ctx is canceled mid-drain, Shutdown stops early and returns an error
// that includes both the context error and any task errors so far.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed && len(q.tasks) == 0 {
		q.mu.Unlock()

		return nil
	}

	q.closed = true

	tasks, names := q.tasks, q.names

	q.tasks, q.names = nil, nil

	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown canceled before %q: %w", names[i], ctx.Err()))

			return errors.Join(errs...)
		default:
		}

		err := runTask(ctx, names[i], tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func runTask(ctx context.Context, name string, t Task) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %q: %v", name, r)
		}
	}()

	err = t(ctx)
	if err != nil {
		return fmt.Errorf("shutdown %s: %w", name, err)
	}

	return nil
}
