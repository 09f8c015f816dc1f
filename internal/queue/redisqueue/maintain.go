package redisqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// promoteScript moves due retries back to the ready list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// reapScript requeues claimed jobs whose lease expired. They go to the
// claiming end of the ready list so they run next.
var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local n = 0
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	if redis.call('LREM', KEYS[2], 1, id) > 0 then
		redis.call('RPUSH', KEYS[3], id)
		n = n + 1
	end
end
return n
`)

type MaintainResult struct {
	Promoted int
	Reaped   int
}

// Maintain runs one promotion and reaping pass over every lane.
func (q *Queue) Maintain(ctx context.Context) (MaintainResult, error) {
	var res MaintainResult

	now := q.now().UnixMilli()

	for _, p := range q.order {
		l := q.lanes[p]

		promoted, err := promoteScript.Run(ctx, q.rdb, []string{l.scheduled, l.ready}, now, maintainBatch).Int()
		if err != nil {
			return res, fmt.Errorf("promote scheduled: %w", err)
		}

		reaped, err := reapScript.Run(ctx, q.rdb, []string{l.leases, l.processing, l.ready}, now, maintainBatch).Int()
		if err != nil {
			return res, fmt.Errorf("reap leases: %w", err)
		}

		res.Promoted += promoted
		res.Reaped += reaped
	}

	return res, nil
}

// RunMaintenance calls Maintain every interval until ctx is done.
func (q *Queue) RunMaintenance(ctx context.Context, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		res, err := q.Maintain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			logger.Warn("queue maintenance failed", zap.Error(err))
			continue
		}

		if res.Reaped > 0 {
			logger.Warn("requeued jobs with expired leases", zap.Int("count", res.Reaped))
		}

		if res.Promoted > 0 {
			logger.Debug("promoted scheduled retries", zap.Int("count", res.Promoted))
		}
	}
}
