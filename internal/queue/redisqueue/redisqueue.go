// Package redisqueue implements queue.Queue on Redis.
//
// Each priority lane owns four keys under the configured prefix:
//
//	<prefix>:<lane>:ready       LIST of job ids, claimed from the right
//	<prefix>:<lane>:processing  LIST of claimed ids
//	<prefix>:<lane>:leases      ZSET id -> lease deadline (unix ms)
//	<prefix>:<lane>:scheduled   ZSET id -> due time of a retry (unix ms)
//
// Job bodies live in the <prefix>:data HASH and failed ids in <prefix>:failed.
// A claim atomically moves an id to processing and takes a lease; Maintain
// requeues expired leases and promotes due retries.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/queue"
	"github.com/redis/go-redis/v9"
)

var _ queue.Queue = (*Queue)(nil)

const (
	defaultLease        = time.Minute
	defaultPollInterval = 100 * time.Millisecond
	maintainBatch       = 100
)

type Options struct {
	Prefix       string
	Lease        time.Duration
	PollInterval time.Duration
	Now          func() time.Time
}

type lane struct {
	ready, processing, leases, scheduled string
}

type Queue struct {
	rdb    redis.UniversalClient
	data   string
	failed string
	lanes  map[queue.Priority]lane
	// claim order
	order        []queue.Priority
	lease        time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

func New(rdb redis.UniversalClient, opts Options) *Queue {
	if opts.Prefix == "" {
		opts.Prefix = "walletpay:jobs"
	}
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	mk := func(name string) lane {
		base := opts.Prefix + ":" + name
		return lane{
			ready:      base + ":ready",
			processing: base + ":processing",
			leases:     base + ":leases",
			scheduled:  base + ":scheduled",
		}
	}

	return &Queue{
		rdb:    rdb,
		data:   opts.Prefix + ":data",
		failed: opts.Prefix + ":failed",
		lanes: map[queue.Priority]lane{
			queue.PriorityHigh:   mk("high"),
			queue.PriorityNormal: mk("normal"),
		},
		order:        []queue.Priority{queue.PriorityHigh, queue.PriorityNormal},
		lease:        opts.Lease,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
	}
}

func (q *Queue) laneFor(p queue.Priority) lane {
	l, ok := q.lanes[p]
	if !ok {
		return q.lanes[queue.PriorityNormal]
	}
	return l
}

func (q *Queue) Enqueue(ctx context.Context, job queue.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	l := q.laneFor(job.Priority)

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.data, job.ID, body)
		p.LPush(ctx, l.ready, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Kind, err)
	}

	return nil
}

// claimScript pops the oldest ready id and leases it in one step.
var claimScript = redis.NewScript(`
local id = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if not id then
	return false
end
redis.call('ZADD', KEYS[3], ARGV[1], id)
return id
`)

func (q *Queue) Claim(ctx context.Context, wait time.Duration) (queue.Job, bool, error) {
	deadline := q.now().Add(wait)

	for {
		job, ok, err := q.tryClaim(ctx)
		if err != nil || ok {
			return job, ok, err
		}

		if !q.now().Before(deadline) {
			return queue.Job{}, false, nil
		}

		t := time.NewTimer(q.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return queue.Job{}, false, ctx.Err()
		case <-t.C:
		}
	}
}

func (q *Queue) tryClaim(ctx context.Context) (queue.Job, bool, error) {
	leaseUntil := q.now().Add(q.lease).UnixMilli()

	for _, p := range q.order {
		l := q.lanes[p]

		id, err := claimScript.Run(ctx, q.rdb, []string{l.ready, l.processing, l.leases}, leaseUntil).Text()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return queue.Job{}, false, fmt.Errorf("claim: %w", err)
		}

		job, err := q.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			// body vanished; drop the dangling id
			q.forget(ctx, l, id)
			continue
		}
		if err != nil {
			return queue.Job{}, false, err
		}

		job.Attempt++

		err = q.save(ctx, job)
		if err != nil {
			return queue.Job{}, false, err
		}

		return job, true, nil
	}

	return queue.Job{}, false, nil
}

func (q *Queue) Ack(ctx context.Context, job queue.Job) error {
	l := q.laneFor(job.Priority)

	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, l.processing, 1, job.ID)
		p.ZRem(ctx, l.leases, job.ID)
		p.HDel(ctx, q.data, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack %s: %w", job.ID, err)
	}

	return nil
}

func (q *Queue) Retry(ctx context.Context, job queue.Job, delay time.Duration, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	l := q.laneFor(job.Priority)
	due := q.now().Add(delay).UnixMilli()

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.data, job.ID, body)
		p.LRem(ctx, l.processing, 1, job.ID)
		p.ZRem(ctx, l.leases, job.ID)
		p.ZAdd(ctx, l.scheduled, redis.Z{Score: float64(due), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry %s: %w", job.ID, err)
	}

	return nil
}

func (q *Queue) Fail(ctx context.Context, job queue.Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	l := q.laneFor(job.Priority)

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.data, job.ID, body)
		p.LRem(ctx, l.processing, 1, job.ID)
		p.ZRem(ctx, l.leases, job.ID)
		p.LPush(ctx, q.failed, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail %s: %w", job.ID, err)
	}

	return nil
}

// Failed returns up to limit failed jobs, newest first.
func (q *Queue) Failed(ctx context.Context, limit int64) ([]queue.Job, error) {
	ids, err := q.rdb.LRange(ctx, q.failed, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}

	jobs := make([]queue.Job, 0, len(ids))

	for _, id := range ids {
		job, err := q.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (q *Queue) load(ctx context.Context, id string) (queue.Job, error) {
	body, err := q.rdb.HGet(ctx, q.data, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return queue.Job{}, err
		}
		return queue.Job{}, fmt.Errorf("load job %s: %w", id, err)
	}

	var job queue.Job

	err = json.Unmarshal(body, &job)
	if err != nil {
		return queue.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}

	return job, nil
}

func (q *Queue) save(ctx context.Context, job queue.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	err = q.rdb.HSet(ctx, q.data, job.ID, body).Err()
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}

	return nil
}

func (q *Queue) forget(ctx context.Context, l lane, id string) {
	_, _ = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, l.processing, 1, id)
		p.ZRem(ctx, l.leases, id)
		return nil
	})
}
