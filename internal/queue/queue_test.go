package queue

import (
	"testing"
	"time"

	"github.com/binhmuc/autobot-review/internal/model"
)

func TestRetryDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 150 * time.Millisecond},
		{100, 2 * time.Second},
	}

	for _, tc := range cases {
		got := retryDelay(tc.attempt, defaultBackoffStep, defaultBackoffCap)
		if got != tc.want {
			t.Errorf("retryDelay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestKeysLayout(t *testing.T) {
	k := newKeys("review-queue")

	if k.wait != "autobot:queue:review-queue:wait" {
		t.Errorf("wait key = %s", k.wait)
	}
	if k.active != "autobot:queue:review-queue:active" {
		t.Errorf("active key = %s", k.active)
	}
	if k.delayed != "autobot:queue:review-queue:delayed" {
		t.Errorf("delayed key = %s", k.delayed)
	}
	if got := k.lockFor("abc123"); got != "autobot:queue:review-queue:lock:abc123" {
		t.Errorf("lock key = %s", got)
	}
}

func TestEnvelopeRoundtrip(t *testing.T) {
	env := envelope{
		ID:   "deadbeef01020304",
		Name: jobName,
		Payload: model.ReviewJob{
			ReviewID:        "rev-1",
			ProjectID:       42,
			MergeRequestIID: 12,
		},
		Attempt:    2,
		Stalled:    1,
		EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got envelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != env {
		t.Errorf("roundtrip mismatch: %+v != %+v", got, env)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.PrepareAndValidate(); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if cfg.addr() != "localhost:6379" {
		t.Errorf("addr = %s", cfg.addr())
	}
	if cfg.Topic != "review-queue" {
		t.Errorf("topic = %s", cfg.Topic)
	}
	if cfg.MaxAttempts != 3 || cfg.MaxStalled != 1 {
		t.Errorf("retry policy = %d attempts / %d stalls", cfg.MaxAttempts, cfg.MaxStalled)
	}
	if cfg.LockDuration != 30*time.Second || cfg.StalledInterval != 30*time.Second {
		t.Errorf("lock policy = %s / %s", cfg.LockDuration, cfg.StalledInterval)
	}
}

func TestNewJobID(t *testing.T) {
	a, err := newJobID()
	if err != nil {
		t.Fatalf("new job id: %v", err)
	}
	b, err := newJobID()
	if err != nil {
		t.Fatalf("new job id: %v", err)
	}

	if len(a) != 16 {
		t.Errorf("id length = %d, want 16", len(a))
	}
	if a == b {
		t.Error("expected distinct ids")
	}
}
