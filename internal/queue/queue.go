package queue

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/redis/go-redis/v9"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jobName tags every envelope so a consumer can skip payloads it does not own.
const jobName = "process-review"

var _ interfaces.Queue = (*Queue)(nil)

// Queue is a Redis-backed job queue with at-least-once delivery. Jobs wait in
// a list, move to an active list while running under a refreshed lock, and
// park in a delayed zset between retry attempts.
type Queue struct {
	rdb  *redis.Client
	cfg  Config
	keys keys
	log  logze.Logger
}

// New connects to Redis and prepares the queue keys.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "validate config")
	}

	opts := &redis.Options{Addr: cfg.addr()}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errm.Wrap(err, "ping redis")
	}

	return &Queue{
		rdb:  rdb,
		cfg:  cfg,
		keys: newKeys(cfg.Topic),
		log:  logze.With("component", "queue", "topic", cfg.Topic),
	}, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Enqueue pushes a review job onto the wait list.
func (q *Queue) Enqueue(ctx context.Context, job model.ReviewJob) error {
	id, err := newJobID()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(envelope{
		ID:         id,
		Name:       jobName,
		Payload:    job,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return errm.Wrap(err, "marshal job")
	}

	if err := q.rdb.LPush(ctx, q.keys.wait, string(raw)).Err(); err != nil {
		return errm.Wrap(err, "push job")
	}

	q.log.Debug("job enqueued", "job_id", id, "review_id", job.ReviewID)
	return nil
}

// envelope wraps a job payload with delivery bookkeeping. Attempt counts
// finished tries, Stalled counts lock-expiry reclaims.
type envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    model.ReviewJob `json:"payload"`
	Attempt    int             `json:"attempt,omitempty"`
	Stalled    int             `json:"stalled,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

type keys struct {
	wait    string
	active  string
	delayed string
	lock    string
}

func newKeys(topic string) keys {
	base := "autobot:queue:" + topic
	return keys{
		wait:    base + ":wait",
		active:  base + ":active",
		delayed: base + ":delayed",
		lock:    base + ":lock:",
	}
}

func (k keys) lockFor(jobID string) string {
	return k.lock + jobID
}

func newJobID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", errm.Wrap(err, "failed to generate job id")
	}
	return hex.EncodeToString(buf), nil
}
