package webhook

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MergeRequestEventType is the only forge event the pipeline consumes.
const MergeRequestEventType = "Merge Request Hook"

// ErrUnauthorized is returned on token mismatch or a missing secret.
var ErrUnauthorized = errm.New("invalid webhook token")

// Service performs webhook intake: token authentication, payload validation,
// the storage transaction and the job enqueue.
type Service struct {
	cfg     Config
	storage interfaces.Storage
	queue   interfaces.Queue
	log     logze.Logger
}

// New creates the intake service.
func New(cfg Config, storage interfaces.Storage, queue interfaces.Queue) *Service {
	return &Service{
		cfg:     cfg,
		storage: storage,
		queue:   queue,
		log:     logze.With("component", "webhook"),
	}
}

// Authenticate compares the header token against the configured secret in
// constant time. A missing secret rejects everything.
func (s *Service) Authenticate(token string) error {
	if s.cfg.Secret == "" {
		s.log.Error("webhook secret is not configured, rejecting request")
		return ErrUnauthorized
	}
	if token == "" || !constantTimeEqual(token, s.cfg.Secret) {
		return ErrUnauthorized
	}
	return nil
}

// ParseEvent decodes a merge-request hook payload, rejects payloads missing a
// required section and clamps oversized strings.
func (s *Service) ParseEvent(body []byte) (*model.MergeRequestEvent, error) {
	var event model.MergeRequestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errm.Wrap(err, "unmarshal event")
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	event.Normalize()
	return &event, nil
}

// Intake runs the storage transaction for the event and enqueues a job for
// the review. Enqueue failure is only logged: the review stays PENDING and
// is visible to operations.
func (s *Service) Intake(ctx context.Context, event *model.MergeRequestEvent) (*model.IntakeResult, error) {
	result, err := s.storage.IntakeEvent(ctx, intakeRequest(event, s.cfg.Secret))
	if err != nil {
		return nil, errm.Wrap(err, "intake event")
	}

	log := s.log.WithFields(
		"review_id", result.ReviewID,
		"project_id", event.Project.ID,
		"mr_iid", event.ObjectAttributes.IID,
		"created", result.Created,
	)

	job := model.ReviewJob{
		ReviewID:        result.ReviewID,
		ProjectID:       event.Project.ID,
		MergeRequestIID: event.ObjectAttributes.IID,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		log.Error("failed to enqueue review job", "error", err)
		return result, nil
	}

	log.Info("webhook intake done")
	return result, nil
}

func intakeRequest(event *model.MergeRequestEvent, secret string) model.IntakeRequest {
	return model.IntakeRequest{
		ForgeProjectID:   event.Project.ID,
		ProjectName:      event.Project.Name,
		ProjectNamespace: event.Project.Namespace,
		WebhookSecret:    secret,

		ForgeUserID: event.User.ID,
		Username:    event.User.Username,
		UserName:    event.User.Name,
		UserEmail:   event.User.Email,
		AvatarURL:   event.User.AvatarURL,

		MergeRequestID:  event.ObjectAttributes.ID,
		MergeRequestIID: event.ObjectAttributes.IID,
		Title:           event.ObjectAttributes.Title,
		Description:     event.ObjectAttributes.Description,
		SourceURL:       event.ObjectAttributes.URL,
		SourceBranch:    event.ObjectAttributes.SourceBranch,
		TargetBranch:    event.ObjectAttributes.TargetBranch,
	}
}
