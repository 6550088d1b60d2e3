package webhook

import (
	"context"
	"strings"
	"testing"

	"github.com/maxbolgarin/errm"

	"github.com/binhmuc/autobot-review/internal/model"
)

type fakeStorage struct {
	result *model.IntakeResult
	err    error
	gotReq model.IntakeRequest
}

func (f *fakeStorage) IntakeEvent(_ context.Context, req model.IntakeRequest) (*model.IntakeResult, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeStorage) SetReviewStatus(context.Context, string, model.ReviewStatus) error {
	return nil
}

func (f *fakeStorage) CompleteReview(context.Context, string, model.ReviewCompletion) error {
	return nil
}

func (f *fakeStorage) GetReview(context.Context, string) (*model.Review, error) {
	return nil, errm.New("not implemented")
}

type fakeQueue struct {
	err  error
	jobs []model.ReviewJob
}

func (f *fakeQueue) Enqueue(_ context.Context, job model.ReviewJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func validEventBody() string {
	return `{
		"object_kind": "merge_request",
		"object_attributes": {
			"id": 1001, "iid": 12, "title": "Add retry helper",
			"source_branch": "feature/retry", "target_branch": "main",
			"url": "https://forge.example.com/backend/payments/-/merge_requests/12",
			"work_in_progress": false, "state": "opened", "action": "open"
		},
		"project": {"id": 42, "name": "payments", "namespace": "backend"},
		"user": {"id": 7, "username": "jdoe", "name": "Jane Doe"}
	}`
}

func TestAuthenticate(t *testing.T) {
	svc := New(Config{Secret: "hunter2"}, &fakeStorage{}, &fakeQueue{})

	cases := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid token", "hunter2", true},
		{"empty token", "", false},
		{"wrong token", "hunter3", false},
		{"prefix of secret", "hunter", false},
		{"secret plus suffix", "hunter22", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authenticate(tc.token)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestAuthenticateWithoutSecret(t *testing.T) {
	svc := New(Config{}, &fakeStorage{}, &fakeQueue{})

	if err := svc.Authenticate("anything"); err == nil {
		t.Error("expected rejection when no secret is configured")
	}
	if err := svc.Authenticate(""); err == nil {
		t.Error("expected rejection of empty token when no secret is configured")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"secret", "secret", true},
		{"", "", true},
		{"secret", "secreT", false},
		{"secret", "secre", false},
		{"secre", "secret", false},
		{"", "secret", false},
	}

	for _, tc := range cases {
		if got := constantTimeEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("constantTimeEqual(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParseEvent(t *testing.T) {
	svc := New(Config{Secret: "s"}, &fakeStorage{}, &fakeQueue{})

	event, err := svc.ParseEvent([]byte(validEventBody()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ObjectAttributes.IID != 12 {
		t.Errorf("iid = %d, want 12", event.ObjectAttributes.IID)
	}
	if event.Project.ID != 42 {
		t.Errorf("project id = %d, want 42", event.Project.ID)
	}
	if !event.ShouldReview() {
		t.Error("expected event to be reviewable")
	}
}

func TestParseEventInvalid(t *testing.T) {
	svc := New(Config{Secret: "s"}, &fakeStorage{}, &fakeQueue{})

	cases := []struct {
		name string
		body string
	}{
		{"not json", `{"object_kind":`},
		{"missing attributes", `{"project":{"id":1},"user":{"id":1,"username":"u"}}`},
		{"missing project", `{"object_attributes":{"id":1,"iid":1},"user":{"id":1,"username":"u"}}`},
		{"missing user", `{"object_attributes":{"id":1,"iid":1},"project":{"id":1}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ParseEvent([]byte(tc.body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseEventClampsStrings(t *testing.T) {
	svc := New(Config{Secret: "s"}, &fakeStorage{}, &fakeQueue{})

	long := strings.Repeat("x", 2*model.MaxTitleLen)
	body := `{
		"object_attributes": {"id": 1, "iid": 1, "title": "` + long + `", "action": "open"},
		"project": {"id": 1, "name": "p"},
		"user": {"id": 1, "username": "u"}
	}`

	event, err := svc.ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(event.ObjectAttributes.Title) > model.MaxTitleLen {
		t.Errorf("title length = %d, want <= %d", len(event.ObjectAttributes.Title), model.MaxTitleLen)
	}
}

func TestIntake(t *testing.T) {
	storage := &fakeStorage{result: &model.IntakeResult{
		ReviewID:  "rev-1",
		ProjectID: "proj-1",
		Status:    model.ReviewStatusPending,
		Created:   true,
	}}
	queue := &fakeQueue{}
	svc := New(Config{Secret: "hunter2"}, storage, queue)

	event, err := svc.ParseEvent([]byte(validEventBody()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	result, err := svc.Intake(context.Background(), event)
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if result.ReviewID != "rev-1" {
		t.Errorf("review id = %s", result.ReviewID)
	}

	if storage.gotReq.ForgeProjectID != 42 || storage.gotReq.Username != "jdoe" {
		t.Errorf("intake request = %+v", storage.gotReq)
	}
	if storage.gotReq.WebhookSecret != "hunter2" {
		t.Errorf("webhook secret = %q, want the configured one", storage.gotReq.WebhookSecret)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.ReviewID != "rev-1" || job.ProjectID != 42 || job.MergeRequestIID != 12 {
		t.Errorf("job = %+v", job)
	}
}

func TestIntakeEnqueueFailureIsNotFatal(t *testing.T) {
	storage := &fakeStorage{result: &model.IntakeResult{ReviewID: "rev-1", Status: model.ReviewStatusPending}}
	queue := &fakeQueue{err: errm.New("redis is down")}
	svc := New(Config{Secret: "s"}, storage, queue)

	event, err := svc.ParseEvent([]byte(validEventBody()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	result, err := svc.Intake(context.Background(), event)
	if err != nil {
		t.Fatalf("expected enqueue failure to be swallowed, got %v", err)
	}
	if result.ReviewID != "rev-1" {
		t.Errorf("review id = %s", result.ReviewID)
	}
}

func TestIntakeStorageFailure(t *testing.T) {
	storage := &fakeStorage{err: errm.New("database is down")}
	svc := New(Config{Secret: "s"}, storage, &fakeQueue{})

	event, err := svc.ParseEvent([]byte(validEventBody()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if _, err := svc.Intake(context.Background(), event); err == nil {
		t.Error("expected an error when the transaction fails")
	}
}
