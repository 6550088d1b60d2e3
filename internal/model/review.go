package model

import (
	"encoding/json"
	"time"
)

// ReviewStatus is the lifecycle state of a review record.
type ReviewStatus string

const (
	ReviewStatusPending    ReviewStatus = "PENDING"
	ReviewStatusProcessing ReviewStatus = "PROCESSING"
	ReviewStatusCompleted  ReviewStatus = "COMPLETED"
	ReviewStatusFailed     ReviewStatus = "FAILED"
	ReviewStatusSkipped    ReviewStatus = "SKIPPED"
)

// IsTerminal reports whether the status ends the review lifecycle.
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewStatusCompleted || s == ReviewStatusFailed || s == ReviewStatusSkipped
}

// Project represents a forge project known to the pipeline.
type Project struct {
	ID             string
	ForgeProjectID int
	Name           string
	Namespace      string
	WebhookSecret  string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Developer represents a forge user that authored a merge request.
type Developer struct {
	ID          string
	ForgeUserID int
	Username    string
	Name        string
	Email       string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Review is the persisted record of one merge-request review.
type Review struct {
	ID               string
	MergeRequestID   int64
	MergeRequestIID  int
	ProjectID        string
	DeveloperID      string
	Title            string
	Description      string
	SourceURL        string
	SourceBranch     string
	TargetBranch     string
	Status           ReviewStatus
	ReviewContent    json.RawMessage
	LLMUsage         *LLMUsage
	QualityScore     int
	IssuesFound      int
	SuggestionsCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReviewJob is the queue payload produced at webhook intake.
type ReviewJob struct {
	ReviewID        string `json:"reviewId"`
	ProjectID       int    `json:"projectId"`
	MergeRequestIID int    `json:"mergeRequestIid"`
}

// IntakeRequest carries everything the intake transaction upserts.
type IntakeRequest struct {
	ForgeProjectID   int
	ProjectName      string
	ProjectNamespace string
	WebhookSecret    string

	ForgeUserID int
	Username    string
	UserName    string
	UserEmail   string
	AvatarURL   string

	MergeRequestID  int64
	MergeRequestIID int
	Title           string
	Description     string
	SourceURL       string
	SourceBranch    string
	TargetBranch    string
}

// IntakeResult reports the outcome of the intake transaction.
type IntakeResult struct {
	ReviewID  string
	ProjectID string
	Status    ReviewStatus
	Created   bool
}

// ReviewCompletion is the terminal write for a successfully finished review.
type ReviewCompletion struct {
	QualityScore     int
	IssuesFound      int
	SuggestionsCount int
	Content          json.RawMessage
	Usage            *LLMUsage
}

// LLMUsage keeps token accounting for one review run.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Calls            int `json:"calls"`
}

// Add accumulates usage from a single model response.
func (u *LLMUsage) Add(prompt, completion, total int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += total
	u.Calls++
}
