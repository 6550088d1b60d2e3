package gitlab

import (
	"context"
	"net/http"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

const defaultBaseURL = "https://gitlab.com"

var _ interfaces.ForgeClient = (*Client)(nil)

// Client implements the ForgeClient interface for GitLab.
type Client struct {
	api *gitlab.Client
	cfg model.ForgeConfig
	log logze.Logger
}

// New creates a new GitLab client.
func New(cfg model.ForgeConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errm.New("GitLab token is required")
	}

	baseURL := lang.Check(cfg.BaseURL, defaultBaseURL)
	api, err := gitlab.NewClient(cfg.Token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, errm.Wrap(err, "failed to create GitLab client")
	}

	return &Client{
		api: api,
		cfg: cfg,
		log: logze.With("component", "forge", "forge", "gitlab"),
	}, nil
}

// GetMergeRequest retrieves merge request details, including the diff refs
// needed to compare commits and position inline comments.
func (c *Client) GetMergeRequest(ctx context.Context, projectID, mrIID int) (*model.MergeRequest, error) {
	mr, resp, err := c.api.MergeRequests.GetMergeRequest(projectID, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, errm.Wrap(err, "failed to get merge request from GitLab")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errm.New("GitLab API returned status %d", resp.StatusCode)
	}

	out := &model.MergeRequest{
		ID:           int64(mr.ID),
		IID:          mr.IID,
		Title:        mr.Title,
		Description:  mr.Description,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		URL:          mr.WebURL,
		State:        mr.State,
		CreatedAt:    lang.Deref(mr.CreatedAt),
		UpdatedAt:    lang.Deref(mr.UpdatedAt),
	}
	if mr.Author != nil {
		out.Author = model.User{
			ID:       mr.Author.ID,
			Username: mr.Author.Username,
			Name:     mr.Author.Name,
		}
	}
	if mr.DiffRefs.BaseSha != "" && mr.DiffRefs.HeadSha != "" {
		out.DiffRefs = &model.DiffRefs{
			BaseSHA:  mr.DiffRefs.BaseSha,
			HeadSHA:  mr.DiffRefs.HeadSha,
			StartSHA: mr.DiffRefs.StartSha,
		}
	}

	return out, nil
}

// CompareCommits retrieves the file diffs between two commits.
func (c *Client) CompareCommits(ctx context.Context, projectID int, fromSHA, toSHA string) ([]*model.FileDiff, error) {
	compare, resp, err := c.api.Repositories.Compare(projectID, &gitlab.CompareOptions{
		From: &fromSHA,
		To:   &toSHA,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, errm.Wrap(err, "failed to compare commits in GitLab")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errm.New("GitLab API returned status %d", resp.StatusCode)
	}

	fileDiffs := make([]*model.FileDiff, 0, len(compare.Diffs))
	for _, diff := range compare.Diffs {
		fileDiffs = append(fileDiffs, &model.FileDiff{
			OldPath:   diff.OldPath,
			NewPath:   diff.NewPath,
			Diff:      diff.Diff,
			IsNew:     diff.NewFile,
			IsDeleted: diff.DeletedFile,
			IsRenamed: diff.RenamedFile,
			IsBinary:  diff.Diff == "" && !diff.DeletedFile && !diff.NewFile, // heuristic for binary files
		})
	}

	return fileDiffs, nil
}

// GetFileContent retrieves the raw content of a file at a specific ref.
func (c *Client) GetFileContent(ctx context.Context, projectID int, path, ref string) (string, error) {
	raw, resp, err := c.api.RepositoryFiles.GetRawFile(projectID, path, &gitlab.GetRawFileOptions{
		Ref: &ref,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", errm.Wrap(err, "failed to get file content from GitLab")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errm.New("GitLab API returned status %d", resp.StatusCode)
	}

	return string(raw), nil
}

// CreateComment creates a general discussion on a merge request.
func (c *Client) CreateComment(ctx context.Context, projectID, mrIID int, body string) (string, error) {
	discussion, _, err := c.api.Discussions.CreateMergeRequestDiscussion(projectID, mrIID, &gitlab.CreateMergeRequestDiscussionOptions{
		Body: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", errm.Wrap(err, "failed to create merge request discussion")
	}

	return discussion.ID, nil
}

// CreateInlineComment creates a positioned discussion on a new-file line.
func (c *Client) CreateInlineComment(ctx context.Context, projectID, mrIID int, comment *model.InlineComment) (string, error) {
	positionType := "text"
	position := &gitlab.PositionOptions{
		BaseSHA:      &comment.BaseSHA,
		StartSHA:     &comment.StartSHA,
		HeadSHA:      &comment.HeadSHA,
		PositionType: &positionType,
		NewPath:      &comment.NewPath,
		NewLine:      &comment.NewLine,
	}
	if comment.OldPath != "" {
		position.OldPath = &comment.OldPath
	}

	discussion, _, err := c.api.Discussions.CreateMergeRequestDiscussion(projectID, mrIID, &gitlab.CreateMergeRequestDiscussionOptions{
		Body:     &comment.Body,
		Position: position,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", errm.Wrap(err, "failed to create positioned discussion")
	}

	return discussion.ID, nil
}
