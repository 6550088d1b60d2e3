package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/maxbolgarin/errm"

	"github.com/binhmuc/autobot-review/internal/model"
)

// IntakeEvent performs the webhook intake writes in one transaction: upsert
// of the project and the developer plus find-or-create of the review row.
// Redelivered events land on the existing review instead of a duplicate.
func (s *Storage) IntakeEvent(ctx context.Context, req model.IntakeRequest) (*model.IntakeResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errm.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	projectID, err := upsertProject(ctx, tx, req, now)
	if err != nil {
		return nil, errm.Wrap(err, "upsert project")
	}

	developerID, err := upsertDeveloper(ctx, tx, req, now)
	if err != nil {
		return nil, errm.Wrap(err, "upsert developer")
	}

	result, err := findOrCreateReview(ctx, tx, req, projectID, developerID, now)
	if err != nil {
		return nil, errm.Wrap(err, "find or create review")
	}

	if err := tx.Commit(); err != nil {
		return nil, errm.Wrap(err, "commit transaction")
	}

	return result, nil
}

// upsertProject keys on the forge project id. The webhook secret is seeded
// only on create, updates never rotate it.
func upsertProject(ctx context.Context, tx *sql.Tx, req model.IntakeRequest, now time.Time) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE forge_project_id = ?`,
		req.ForgeProjectID,
	).Scan(&id)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE projects SET name = ?, namespace = ?, updated_at = ? WHERE id = ?`,
			req.ProjectName, req.ProjectNamespace, now, id)
		if err != nil {
			return "", errm.Wrap(err, "update project")
		}
		return id, nil

	case errors.Is(err, sql.ErrNoRows):
		id, err = newID()
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO projects (id, forge_project_id, name, namespace, webhook_secret, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			id, req.ForgeProjectID, req.ProjectName, req.ProjectNamespace, req.WebhookSecret, now, now)
		if err != nil {
			return "", errm.Wrap(err, "insert project")
		}
		return id, nil

	default:
		return "", errm.Wrap(err, "select project")
	}
}

// upsertDeveloper keys on the username; the forge user id is updatable.
func upsertDeveloper(ctx context.Context, tx *sql.Tx, req model.IntakeRequest, now time.Time) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM developers WHERE username = ?`,
		req.Username,
	).Scan(&id)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE developers SET forge_user_id = ?, name = ?, email = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
			req.ForgeUserID, req.UserName, req.UserEmail, req.AvatarURL, now, id)
		if err != nil {
			return "", errm.Wrap(err, "update developer")
		}
		return id, nil

	case errors.Is(err, sql.ErrNoRows):
		id, err = newID()
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO developers (id, forge_user_id, username, name, email, avatar_url, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, req.ForgeUserID, req.Username, req.UserName, req.UserEmail, req.AvatarURL, now, now)
		if err != nil {
			return "", errm.Wrap(err, "insert developer")
		}
		return id, nil

	default:
		return "", errm.Wrap(err, "select developer")
	}
}

func findOrCreateReview(ctx context.Context, tx *sql.Tx, req model.IntakeRequest, projectID, developerID string, now time.Time) (*model.IntakeResult, error) {
	var (
		id     string
		status string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, status FROM reviews WHERE merge_request_id = ? AND project_id = ?`,
		req.MergeRequestID, projectID,
	).Scan(&id, &status)

	switch {
	case err == nil:
		return &model.IntakeResult{
			ReviewID:  id,
			ProjectID: projectID,
			Status:    model.ReviewStatus(status),
			Created:   false,
		}, nil

	case errors.Is(err, sql.ErrNoRows):
		id, err = newID()
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reviews (id, merge_request_id, merge_request_iid, project_id, developer_id,
			                      title, description, source_url, source_branch, target_branch,
			                      status, review_content, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '{}', ?, ?)`,
			id, req.MergeRequestID, req.MergeRequestIID, projectID, developerID,
			req.Title, req.Description, req.SourceURL, req.SourceBranch, req.TargetBranch,
			string(model.ReviewStatusPending), now, now)
		if err != nil {
			return nil, errm.Wrap(err, "insert review")
		}
		return &model.IntakeResult{
			ReviewID:  id,
			ProjectID: projectID,
			Status:    model.ReviewStatusPending,
			Created:   true,
		}, nil

	default:
		return nil, errm.Wrap(err, "select review")
	}
}
