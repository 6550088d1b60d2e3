package github

import (
	"context"
	"strconv"

	"github.com/google/go-github/v57/github"
	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"golang.org/x/oauth2"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

var _ interfaces.ForgeClient = (*Client)(nil)

// repoRef is the owner/name pair a numeric repository id resolves to.
type repoRef struct {
	Owner string
	Name  string
}

// Client implements the ForgeClient interface for GitHub. The pipeline
// addresses projects by numeric id, so every call resolves the id to an
// owner/name pair first and caches the result.
type Client struct {
	api   *github.Client
	cfg   model.ForgeConfig
	log   logze.Logger
	repos *abstract.SafeMap[int, repoRef]
}

// New creates a new GitHub client.
func New(cfg model.ForgeConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errm.New("GitHub token is required")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	api := github.NewClient(tc)
	if cfg.BaseURL != "" {
		var err error
		api, err = github.NewClient(tc).WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, errm.Wrap(err, "failed to create GitHub Enterprise client")
		}
	}

	return &Client{
		api:   api,
		cfg:   cfg,
		log:   logze.With("component", "forge", "forge", "github"),
		repos: abstract.NewSafeMap[int, repoRef](),
	}, nil
}

// resolveRepo maps a numeric repository id to its owner/name pair.
func (c *Client) resolveRepo(ctx context.Context, projectID int) (repoRef, error) {
	if ref, ok := c.repos.Lookup(projectID); ok {
		return ref, nil
	}

	repo, _, err := c.api.Repositories.GetByID(ctx, int64(projectID))
	if err != nil {
		return repoRef{}, errm.Wrap(err, "failed to resolve repository by id")
	}

	ref := repoRef{
		Owner: repo.GetOwner().GetLogin(),
		Name:  repo.GetName(),
	}
	c.repos.Set(projectID, ref)

	return ref, nil
}

// GetMergeRequest retrieves pull request details.
func (c *Client) GetMergeRequest(ctx context.Context, projectID, mrIID int) (*model.MergeRequest, error) {
	ref, err := c.resolveRepo(ctx, projectID)
	if err != nil {
		return nil, err
	}

	pr, _, err := c.api.PullRequests.Get(ctx, ref.Owner, ref.Name, mrIID)
	if err != nil {
		return nil, errm.Wrap(err, "failed to get pull request from GitHub")
	}

	out := &model.MergeRequest{
		ID:           pr.GetID(),
		IID:          pr.GetNumber(),
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		URL:          pr.GetHTMLURL(),
		State:        pr.GetState(),
		CreatedAt:    pr.GetCreatedAt().Time,
		UpdatedAt:    pr.GetUpdatedAt().Time,
	}
	if user := pr.GetUser(); user != nil {
		out.Author = model.User{
			ID:       int(user.GetID()),
			Username: user.GetLogin(),
			Name:     user.GetName(),
		}
	}
	if base, head := pr.GetBase().GetSHA(), pr.GetHead().GetSHA(); base != "" && head != "" {
		// GitHub has no separate start sha, the base plays both roles.
		out.DiffRefs = &model.DiffRefs{
			BaseSHA:  base,
			HeadSHA:  head,
			StartSHA: base,
		}
	}

	return out, nil
}

// CompareCommits retrieves the file diffs between two commits.
func (c *Client) CompareCommits(ctx context.Context, projectID int, fromSHA, toSHA string) ([]*model.FileDiff, error) {
	ref, err := c.resolveRepo(ctx, projectID)
	if err != nil {
		return nil, err
	}

	opts := &github.ListOptions{PerPage: 100}
	var allFiles []*github.CommitFile

	for {
		comparison, resp, err := c.api.Repositories.CompareCommits(ctx, ref.Owner, ref.Name, fromSHA, toSHA, opts)
		if err != nil {
			return nil, errm.Wrap(err, "failed to compare commits in GitHub")
		}

		allFiles = append(allFiles, comparison.Files...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	fileDiffs := make([]*model.FileDiff, 0, len(allFiles))
	for _, file := range allFiles {
		fileDiff := &model.FileDiff{
			OldPath:   file.GetPreviousFilename(),
			NewPath:   file.GetFilename(),
			Diff:      file.GetPatch(),
			IsNew:     file.GetStatus() == "added",
			IsDeleted: file.GetStatus() == "removed",
			IsRenamed: file.GetStatus() == "renamed",
			IsBinary:  file.GetPatch() == "" && file.GetStatus() != "removed" && file.GetStatus() != "added",
		}
		if fileDiff.IsRenamed && fileDiff.OldPath == "" {
			fileDiff.OldPath = fileDiff.NewPath
		}
		fileDiffs = append(fileDiffs, fileDiff)
	}

	return fileDiffs, nil
}

// GetFileContent retrieves the content of a file at a specific ref.
func (c *Client) GetFileContent(ctx context.Context, projectID int, path, ref string) (string, error) {
	repo, err := c.resolveRepo(ctx, projectID)
	if err != nil {
		return "", err
	}

	fileContent, _, _, err := c.api.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, &github.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err != nil {
		return "", errm.Wrap(err, "failed to get file content from GitHub")
	}
	if fileContent == nil {
		return "", errm.New("path is not a file: %s", path)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", errm.Wrap(err, "failed to decode file content")
	}

	return content, nil
}

// CreateComment creates a general comment on a pull request.
func (c *Client) CreateComment(ctx context.Context, projectID, mrIID int, body string) (string, error) {
	ref, err := c.resolveRepo(ctx, projectID)
	if err != nil {
		return "", err
	}

	created, _, err := c.api.Issues.CreateComment(ctx, ref.Owner, ref.Name, mrIID, &github.IssueComment{
		Body: &body,
	})
	if err != nil {
		return "", errm.Wrap(err, "failed to create pull request comment")
	}

	return strconv.FormatInt(created.GetID(), 10), nil
}

// CreateInlineComment creates a review comment on a new-file line.
func (c *Client) CreateInlineComment(ctx context.Context, projectID, mrIID int, comment *model.InlineComment) (string, error) {
	ref, err := c.resolveRepo(ctx, projectID)
	if err != nil {
		return "", err
	}

	side := "RIGHT"
	created, _, err := c.api.PullRequests.CreateComment(ctx, ref.Owner, ref.Name, mrIID, &github.PullRequestComment{
		Body:     &comment.Body,
		CommitID: &comment.HeadSHA,
		Path:     &comment.NewPath,
		Line:     &comment.NewLine,
		Side:     &side,
	})
	if err != nil {
		return "", errm.Wrap(err, "failed to create pull request review comment")
	}

	return strconv.FormatInt(created.GetID(), 10), nil
}
