package queue

import (
	"net"
	"time"

	"github.com/maxbolgarin/lang"
)

const (
	defaultHost  = "localhost"
	defaultPort  = "6379"
	defaultTopic = "review-queue"

	defaultConcurrency     = 5
	defaultLockDuration    = 30 * time.Second
	defaultStalledInterval = 30 * time.Second
	defaultMaxStalled      = 1
	defaultMaxAttempts     = 3
	defaultBackoffStep     = 50 * time.Millisecond
	defaultBackoffCap      = 2 * time.Second
)

// Config is the Redis queue configuration.
type Config struct {
	Host string `yaml:"host" env:"QUEUE_HOST"`
	Port string `yaml:"port" env:"QUEUE_PORT"`
	TLS  bool   `yaml:"tls" env:"QUEUE_TLS"`

	// Topic names the job list; all queue keys derive from it.
	Topic string `yaml:"topic" env:"QUEUE_TOPIC"`

	// Concurrency caps how many jobs one consumer runs at a time.
	Concurrency int `yaml:"concurrency" env:"QUEUE_CONCURRENCY"`

	// LockDuration is the visibility timeout of a running job. A job whose
	// lock expires without a heartbeat counts as stalled.
	LockDuration    time.Duration `yaml:"lock_duration" env:"QUEUE_LOCK_DURATION"`
	StalledInterval time.Duration `yaml:"stalled_interval" env:"QUEUE_STALLED_INTERVAL"`
	MaxStalled      int           `yaml:"max_stalled" env:"QUEUE_MAX_STALLED"`

	MaxAttempts int           `yaml:"max_attempts" env:"QUEUE_MAX_ATTEMPTS"`
	BackoffStep time.Duration `yaml:"backoff_step" env:"QUEUE_BACKOFF_STEP"`
	BackoffCap  time.Duration `yaml:"backoff_cap" env:"QUEUE_BACKOFF_CAP"`
}

// PrepareAndValidate fills defaults.
func (c *Config) PrepareAndValidate() error {
	c.Host = lang.Check(c.Host, defaultHost)
	c.Port = lang.Check(c.Port, defaultPort)
	c.Topic = lang.Check(c.Topic, defaultTopic)
	c.Concurrency = lang.Check(c.Concurrency, defaultConcurrency)
	c.LockDuration = lang.Check(c.LockDuration, defaultLockDuration)
	c.StalledInterval = lang.Check(c.StalledInterval, defaultStalledInterval)
	c.MaxStalled = lang.Check(c.MaxStalled, defaultMaxStalled)
	c.MaxAttempts = lang.Check(c.MaxAttempts, defaultMaxAttempts)
	c.BackoffStep = lang.Check(c.BackoffStep, defaultBackoffStep)
	c.BackoffCap = lang.Check(c.BackoffCap, defaultBackoffCap)
	return nil
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
