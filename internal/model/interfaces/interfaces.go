package interfaces

import (
	"context"

	"github.com/binhmuc/autobot-review/internal/model"
)

// ForgeClient defines the forge REST surface the pipeline depends on.
type ForgeClient interface {
	// GetMergeRequest returns MR details including diff refs, when present.
	GetMergeRequest(ctx context.Context, projectID, mrIID int) (*model.MergeRequest, error)

	// CompareCommits returns per-file diffs between two commits.
	CompareCommits(ctx context.Context, projectID int, fromSHA, toSHA string) ([]*model.FileDiff, error)

	// GetFileContent returns the raw text of a file at a ref.
	GetFileContent(ctx context.Context, projectID int, path, ref string) (string, error)

	// CreateComment posts a plain note on a merge request and returns its id.
	CreateComment(ctx context.Context, projectID, mrIID int, body string) (string, error)

	// CreateInlineComment posts a positioned discussion and returns its id.
	CreateInlineComment(ctx context.Context, projectID, mrIID int, comment *model.InlineComment) (string, error)
}

// AgentAPI defines the interface for calling LLM models.
type AgentAPI interface {
	CallAPI(ctx context.Context, req model.APIRequest) (model.APIResponse, error)
}

// ReviewAgent drives review prompts against a model backend.
type ReviewAgent interface {
	// IsEnabled reports whether credentials are configured.
	IsEnabled() bool

	// ReviewChunk reviews a single diff chunk.
	ReviewChunk(ctx context.Context, chunk *model.DiffChunk) (*model.AIReview, error)

	// ReviewBatch reviews several chunks in one call; issues carry a file field.
	ReviewBatch(ctx context.Context, chunks []*model.DiffChunk) (*model.AIReview, error)

	// Usage returns accumulated token usage.
	Usage() model.LLMUsage
}

// Storage persists projects, developers and reviews.
type Storage interface {
	// IntakeEvent runs the webhook transaction: upsert project and developer,
	// find-or-create the PENDING review.
	IntakeEvent(ctx context.Context, req model.IntakeRequest) (*model.IntakeResult, error)

	// SetReviewStatus moves a review to the given status.
	SetReviewStatus(ctx context.Context, reviewID string, status model.ReviewStatus) error

	// CompleteReview finishes a review with score, counters and content.
	CompleteReview(ctx context.Context, reviewID string, completion model.ReviewCompletion) error

	// GetReview loads one review by id.
	GetReview(ctx context.Context, reviewID string) (*model.Review, error)
}

// Queue enqueues review jobs for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, job model.ReviewJob) error
}

// JobHandler processes one dequeued review job.
type JobHandler interface {
	ProcessJob(ctx context.Context, job model.ReviewJob) error
}
