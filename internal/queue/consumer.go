package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

const (
	fetchBlock      = 5 * time.Second
	promoteInterval = 100 * time.Millisecond
	promoteBatch    = 64
)

// DeadLetterFunc receives a job whose delivery attempts are exhausted.
type DeadLetterFunc func(ctx context.Context, job model.ReviewJob, jobErr error)

// Consumer pulls jobs off the queue and runs them on a bounded worker pool.
// Failed jobs are retried with backoff; jobs that exhaust their attempts or
// stall past the limit go to the dead-letter callback.
type Consumer struct {
	queue   *Queue
	handler interfaces.JobHandler
	dead    DeadLetterFunc
	pool    *ants.Pool
	log     logze.Logger
	wg      sync.WaitGroup
}

// NewConsumer builds a consumer over an existing queue connection.
func NewConsumer(queue *Queue, handler interfaces.JobHandler, dead DeadLetterFunc) (*Consumer, error) {
	pool, err := ants.NewPool(queue.cfg.Concurrency)
	if err != nil {
		return nil, errm.Wrap(err, "failed to create ants pool")
	}

	return &Consumer{
		queue:   queue,
		handler: handler,
		dead:    dead,
		pool:    pool,
		log:     logze.With("component", "consumer", "topic", queue.cfg.Topic),
	}, nil
}

// Start launches the fetch, promote and stalled loops. They exit when ctx is
// cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(3)
	go func() { defer c.wg.Done(); c.fetchLoop(ctx) }()
	go func() { defer c.wg.Done(); c.promoteLoop(ctx) }()
	go func() { defer c.wg.Done(); c.stalledLoop(ctx) }()
	c.log.Info("consumer started", "concurrency", c.queue.cfg.Concurrency)
}

// Stop waits for the loops and in-flight jobs, then releases the pool.
func (c *Consumer) Stop(ctx context.Context) error {
	c.wg.Wait()
	c.pool.Release()
	return nil
}

func (c *Consumer) fetchLoop(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := c.queue.rdb.BLMove(ctx, c.queue.keys.wait, c.queue.keys.active, "RIGHT", "LEFT", fetchBlock).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			c.log.Error("fetch job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.dispatch(ctx, raw)
	}
}

func (c *Consumer) dispatch(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.log.Error("drop undecodable job", "error", err)
		c.queue.rdb.LRem(ctx, c.queue.keys.active, 1, raw)
		return
	}
	if env.Name != jobName {
		c.log.Warn("drop job with unknown name", "job_id", env.ID, "name", env.Name)
		c.queue.rdb.LRem(ctx, c.queue.keys.active, 1, raw)
		return
	}

	// The lock must exist before Submit: a saturated pool blocks here and the
	// stalled scanner only trusts jobs whose lock is alive.
	release := c.holdLock(ctx, env.ID)

	c.wg.Add(1)
	err := c.pool.Submit(func() {
		defer c.wg.Done()
		defer release()
		c.runJob(ctx, raw, env)
	})
	if err != nil {
		c.wg.Done()
		release()
		pipe := c.queue.rdb.TxPipeline()
		pipe.LPush(ctx, c.queue.keys.wait, raw)
		pipe.LRem(ctx, c.queue.keys.active, 1, raw)
		if _, perr := pipe.Exec(ctx); perr != nil {
			c.log.Error("requeue job after submit failure", "job_id", env.ID, "error", perr)
		}
	}
}

// holdLock takes the job lock and refreshes it until the returned release
// func is called. A job in the active list without a live lock is stalled.
func (c *Consumer) holdLock(ctx context.Context, jobID string) func() {
	key := c.queue.keys.lockFor(jobID)
	ttl := c.queue.cfg.LockDuration
	if err := c.queue.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		c.log.Error("take job lock", "job_id", jobID, "error", err)
	}

	done := make(chan struct{})
	var once sync.Once

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.queue.rdb.Expire(ctx, key, ttl).Err(); err != nil {
					c.log.Error("refresh job lock", "job_id", jobID, "error", err)
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (c *Consumer) runJob(ctx context.Context, raw string, env envelope) {
	attempt := env.Attempt + 1
	log := c.log.WithFields("job_id", env.ID, "review_id", env.Payload.ReviewID, "attempt", attempt)
	log.Info("processing job")

	err := c.handler.ProcessJob(ctx, env.Payload)
	if err == nil {
		c.ack(ctx, raw, env.ID)
		log.Info("job done")
		return
	}

	if attempt >= c.queue.cfg.MaxAttempts {
		log.Error("job failed, no attempts left", "error", err)
		c.bury(ctx, raw, env, err)
		return
	}

	delay := retryDelay(attempt, c.queue.cfg.BackoffStep, c.queue.cfg.BackoffCap)
	log.Warn("job failed, scheduling retry", "error", err, "delay", delay)
	c.requeueDelayed(ctx, raw, env, attempt, delay)
}

func (c *Consumer) ack(ctx context.Context, raw, jobID string) {
	pipe := c.queue.rdb.TxPipeline()
	pipe.LRem(ctx, c.queue.keys.active, 1, raw)
	pipe.Del(ctx, c.queue.keys.lockFor(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Error("ack job", "job_id", jobID, "error", err)
	}
}

func (c *Consumer) requeueDelayed(ctx context.Context, raw string, env envelope, attempt int, delay time.Duration) {
	env.Attempt = attempt
	next, err := json.Marshal(env)
	if err != nil {
		c.bury(ctx, raw, env, errm.Wrap(err, "marshal retry"))
		return
	}

	pipe := c.queue.rdb.TxPipeline()
	pipe.ZAdd(ctx, c.queue.keys.delayed, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: string(next),
	})
	pipe.LRem(ctx, c.queue.keys.active, 1, raw)
	pipe.Del(ctx, c.queue.keys.lockFor(env.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Error("schedule retry", "job_id", env.ID, "error", err)
	}
}

// bury removes the job for good and hands it to the dead-letter callback.
func (c *Consumer) bury(ctx context.Context, raw string, env envelope, jobErr error) {
	pipe := c.queue.rdb.TxPipeline()
	pipe.LRem(ctx, c.queue.keys.active, 1, raw)
	pipe.Del(ctx, c.queue.keys.lockFor(env.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Error("remove dead job", "job_id", env.ID, "error", err)
	}

	if c.dead != nil {
		c.dead(ctx, env.Payload, jobErr)
	}
}

func (c *Consumer) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.promoteDue(ctx); err != nil && ctx.Err() == nil {
				c.log.Error("promote delayed jobs", "error", err)
			}
		}
	}
}

// promoteDue moves delayed jobs whose retry time has come back to the wait
// list. Push and remove run in one MULTI so a job cannot be lost in between.
func (c *Consumer) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := c.queue.rdb.ZRangeByScore(ctx, c.queue.keys.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, raw := range due {
		pipe := c.queue.rdb.TxPipeline()
		pipe.LPush(ctx, c.queue.keys.wait, raw)
		pipe.ZRem(ctx, c.queue.keys.delayed, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) stalledLoop(ctx context.Context) {
	ticker := time.NewTicker(c.queue.cfg.StalledInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.scanStalled(ctx); err != nil && ctx.Err() == nil {
				c.log.Error("scan stalled jobs", "error", err)
			}
		}
	}
}

// scanStalled finds active jobs whose lock expired, meaning the owning worker
// died or lost its heartbeat.
func (c *Consumer) scanStalled(ctx context.Context) error {
	active, err := c.queue.rdb.LRange(ctx, c.queue.keys.active, 0, -1).Result()
	if err != nil {
		return err
	}

	for _, raw := range active {
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			c.queue.rdb.LRem(ctx, c.queue.keys.active, 1, raw)
			continue
		}
		locked, err := c.queue.rdb.Exists(ctx, c.queue.keys.lockFor(env.ID)).Result()
		if err != nil {
			return err
		}
		if locked > 0 {
			continue
		}
		c.reclaim(ctx, raw, env)
	}
	return nil
}

func (c *Consumer) reclaim(ctx context.Context, raw string, env envelope) {
	env.Stalled++
	if env.Stalled > c.queue.cfg.MaxStalled {
		c.bury(ctx, raw, env, errm.Errorf("job stalled %d times", env.Stalled))
		return
	}

	next, err := json.Marshal(env)
	if err != nil {
		c.bury(ctx, raw, env, errm.Wrap(err, "marshal stalled"))
		return
	}

	pipe := c.queue.rdb.TxPipeline()
	pipe.LPush(ctx, c.queue.keys.wait, string(next))
	pipe.LRem(ctx, c.queue.keys.active, 1, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Error("requeue stalled job", "job_id", env.ID, "error", err)
		return
	}
	c.log.Warn("requeued stalled job", "job_id", env.ID, "stalled", env.Stalled)
}

// retryDelay grows with the attempt number and never exceeds the cap.
func retryDelay(attempt int, step, max time.Duration) time.Duration {
	delay := step * time.Duration(attempt)
	if delay > max {
		return max
	}
	return delay
}
