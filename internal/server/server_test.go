package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/webhook"
)

type fakeStorage struct {
	result *model.IntakeResult
	err    error
	calls  int
}

func (f *fakeStorage) IntakeEvent(context.Context, model.IntakeRequest) (*model.IntakeResult, error) {
	f.calls++
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
	jobs []model.ReviewJob
}

func (f *fakeQueue) Enqueue(_ context.Context, job model.ReviewJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func testServer(storage *fakeStorage, queue *fakeQueue) *Server {
	return &Server{
		service: webhook.New(webhook.Config{Secret: "hunter2"}, storage, queue),
		log:     logze.Default(),
	}
}

func mrEventBody() string {
	return `{
		"object_kind": "merge_request",
		"object_attributes": {
			"id": 1001, "iid": 12, "title": "Add retry helper",
			"source_branch": "feature/retry", "target_branch": "main",
			"work_in_progress": false, "state": "opened", "action": "open"
		},
		"project": {"id": 42, "name": "payments", "namespace": "backend"},
		"user": {"id": 7, "username": "jdoe", "name": "Jane Doe"}
	}`
}

func webhookRequest(body, token, event string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, webhookRoute, strings.NewReader(body))
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	if event != "" {
		req.Header.Set(eventHeader, event)
	}
	return req
}

func TestHandleWebhookAccepted(t *testing.T) {
	storage := &fakeStorage{result: &model.IntakeResult{
		ReviewID:  "rev-1",
		ProjectID: "proj-1",
		Status:    model.ReviewStatusPending,
		Created:   true,
	}}
	queue := &fakeQueue{}
	srv := testServer(storage, queue)

	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, webhookRequest(mrEventBody(), "hunter2", webhook.MergeRequestEventType))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"success":true`) || !strings.Contains(body, "rev-1") {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(body, `"mergeRequestIid":12`) {
		t.Errorf("body = %s", body)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(queue.jobs))
	}
	if queue.jobs[0].ProjectID != 42 || queue.jobs[0].MergeRequestIID != 12 {
		t.Errorf("job = %+v", queue.jobs[0])
	}
}

func TestHandleWebhookUnauthorized(t *testing.T) {
	storage := &fakeStorage{}
	srv := testServer(storage, &fakeQueue{})

	for _, token := range []string{"", "wrong"} {
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, webhookRequest(mrEventBody(), token, webhook.MergeRequestEventType))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rec.Code)
		}
	}
	if storage.calls != 0 {
		t.Errorf("storage called %d times, want 0", storage.calls)
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	storage := &fakeStorage{}
	srv := testServer(storage, &fakeQueue{})

	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, webhookRequest(`{"object_kind":"push"}`, "hunter2", "Push Hook"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"processed":false`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if storage.calls != 0 {
		t.Errorf("storage called %d times, want 0", storage.calls)
	}
}

func TestHandleWebhookInvalidPayload(t *testing.T) {
	srv := testServer(&fakeStorage{}, &fakeQueue{})

	cases := []string{
		`{"object_kind":`,
		`{"project":{"id":1},"user":{"id":1,"username":"u"}}`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, webhookRequest(body, "hunter2", webhook.MergeRequestEventType))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHandleWebhookSkipsWorkInProgress(t *testing.T) {
	storage := &fakeStorage{}
	queue := &fakeQueue{}
	srv := testServer(storage, queue)

	body := strings.Replace(mrEventBody(), `"work_in_progress": false`, `"work_in_progress": true`, 1)

	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, webhookRequest(body, "hunter2", webhook.MergeRequestEventType))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"processed":false`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if storage.calls != 0 || len(queue.jobs) != 0 {
		t.Error("expected no intake for a WIP merge request")
	}
}

func TestHandleWebhookStorageFailure(t *testing.T) {
	storage := &fakeStorage{err: errm.New("database is down")}
	srv := testServer(storage, &fakeQueue{})

	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, webhookRequest(mrEventBody(), "hunter2", webhook.MergeRequestEventType))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(&fakeStorage{}, &fakeQueue{})

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodPost, healthRoute, nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
