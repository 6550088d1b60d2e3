package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"

	"github.com/binhmuc/autobot-review/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SetReviewStatus moves a review to the given lifecycle status. It is a plain
// update so a redelivered job can stamp a review that already finished.
func (s *Storage) SetReviewStatus(ctx context.Context, reviewID string, status model.ReviewStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), reviewID)
	if err != nil {
		return errm.Wrap(err, "update review status")
	}
	return ensureFound(res, reviewID)
}

// CompleteReview stamps the review COMPLETED together with its content,
// usage accounting and scoring in a single update.
func (s *Storage) CompleteReview(ctx context.Context, reviewID string, completion model.ReviewCompletion) error {
	content := "{}"
	if len(completion.Content) > 0 {
		content = string(completion.Content)
	}

	var usage any
	if completion.Usage != nil {
		raw, err := json.Marshal(completion.Usage)
		if err != nil {
			return errm.Wrap(err, "marshal llm usage")
		}
		usage = string(raw)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reviews
		 SET status = ?, review_content = ?, llm_usage = ?, quality_score = ?,
		     issues_found = ?, suggestions_count = ?, updated_at = ?
		 WHERE id = ?`,
		string(model.ReviewStatusCompleted), content, usage,
		completion.QualityScore, completion.IssuesFound, completion.SuggestionsCount,
		time.Now().UTC(), reviewID)
	if err != nil {
		return errm.Wrap(err, "update review")
	}
	return ensureFound(res, reviewID)
}

// GetReview loads a single review by its id.
func (s *Storage) GetReview(ctx context.Context, reviewID string) (*model.Review, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merge_request_id, merge_request_iid, project_id, developer_id,
		        title, description, source_url, source_branch, target_branch,
		        status, review_content, llm_usage, quality_score, issues_found,
		        suggestions_count, created_at, updated_at
		 FROM reviews WHERE id = ?`, reviewID)

	var (
		review  model.Review
		status  string
		content string
		usage   sql.NullString
	)
	err := row.Scan(
		&review.ID, &review.MergeRequestID, &review.MergeRequestIID, &review.ProjectID, &review.DeveloperID,
		&review.Title, &review.Description, &review.SourceURL, &review.SourceBranch, &review.TargetBranch,
		&status, &content, &usage, &review.QualityScore, &review.IssuesFound,
		&review.SuggestionsCount, &review.CreatedAt, &review.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errm.Errorf("review not found: %s", reviewID)
	}
	if err != nil {
		return nil, errm.Wrap(err, "select review")
	}

	review.Status = model.ReviewStatus(status)
	review.ReviewContent = []byte(content)
	if usage.Valid {
		var u model.LLMUsage
		if err := json.Unmarshal([]byte(usage.String), &u); err != nil {
			return nil, errm.Wrap(err, "unmarshal llm usage")
		}
		review.LLMUsage = &u
	}

	return &review, nil
}

func ensureFound(res sql.Result, reviewID string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return errm.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errm.Errorf("review not found: %s", reviewID)
	}
	return nil
}
