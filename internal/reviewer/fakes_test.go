package reviewer

import (
	"context"
	"fmt"
	"sync"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
	"github.com/maxbolgarin/errm"
)

// fakeForge implements interfaces.ForgeClient against in-memory data.
type fakeForge struct {
	mu sync.Mutex

	mr    *model.MergeRequest
	diffs []*model.FileDiff
	files map[string]string

	mrErr      error
	compareErr error
	fileErr    error
	commentErr error
	inlineErr  error

	comments []string
	inline   []*model.InlineComment
}

var _ interfaces.ForgeClient = (*fakeForge)(nil)

func (f *fakeForge) GetMergeRequest(_ context.Context, _, _ int) (*model.MergeRequest, error) {
	if f.mrErr != nil {
		return nil, f.mrErr
	}
	return f.mr, nil
}

func (f *fakeForge) CompareCommits(_ context.Context, _ int, _, _ string) ([]*model.FileDiff, error) {
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	return f.diffs, nil
}

func (f *fakeForge) GetFileContent(_ context.Context, _ int, path, _ string) (string, error) {
	if f.fileErr != nil {
		return "", f.fileErr
	}
	content, ok := f.files[path]
	if !ok {
		return "", errm.Errorf("file not found: %s", path)
	}
	return content, nil
}

func (f *fakeForge) CreateComment(_ context.Context, _, _ int, body string) (string, error) {
	if f.commentErr != nil {
		return "", f.commentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, body)
	return fmt.Sprintf("note-%d", len(f.comments)), nil
}

func (f *fakeForge) CreateInlineComment(_ context.Context, _, _ int, comment *model.InlineComment) (string, error) {
	if f.inlineErr != nil {
		return "", f.inlineErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inline = append(f.inline, comment)
	return fmt.Sprintf("discussion-%d", len(f.inline)), nil
}

func (f *fakeForge) inlineComments() []*model.InlineComment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.InlineComment(nil), f.inline...)
}

func (f *fakeForge) summaryComments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments...)
}

// fakeAgent implements interfaces.ReviewAgent with canned reviews. Single
// reviews are keyed by chunk filename, the batch review is shared.
type fakeAgent struct {
	mu sync.Mutex

	enabled     bool
	batchReview *model.AIReview
	perChunk    map[string]*model.AIReview
	err         error

	batchCalls  int
	singleCalls int
	batchChunks int
	usage       model.LLMUsage
}

var _ interfaces.ReviewAgent = (*fakeAgent)(nil)

func (a *fakeAgent) IsEnabled() bool {
	return a.enabled
}

func (a *fakeAgent) ReviewChunk(_ context.Context, chunk *model.DiffChunk) (*model.AIReview, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.singleCalls++
	a.usage.Add(100, 40, 140)
	if review, ok := a.perChunk[chunk.Filename]; ok {
		return cloneReview(review), nil
	}
	return &model.AIReview{Issues: []*model.Issue{}}, nil
}

func (a *fakeAgent) ReviewBatch(_ context.Context, chunks []*model.DiffChunk) (*model.AIReview, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.batchCalls++
	a.batchChunks = len(chunks)
	a.usage.Add(200, 80, 280)
	if a.batchReview != nil {
		return cloneReview(a.batchReview), nil
	}
	return &model.AIReview{Issues: []*model.Issue{}}, nil
}

func (a *fakeAgent) Usage() model.LLMUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

func (a *fakeAgent) calls() (batch, single int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.batchCalls, a.singleCalls
}

// cloneReview copies the review so the pipeline can mutate issues without
// touching the canned fixture.
func cloneReview(review *model.AIReview) *model.AIReview {
	out := &model.AIReview{
		Summary: review.Summary,
		Issues:  make([]*model.Issue, 0, len(review.Issues)),
	}
	for _, issue := range review.Issues {
		clone := *issue
		out.Issues = append(out.Issues, &clone)
	}
	return out
}

// fakeStorage records status transitions and the final completion write.
type fakeStorage struct {
	mu sync.Mutex

	statuses    []model.ReviewStatus
	completion  *model.ReviewCompletion
	statusErr   error
	completeErr error
}

var _ interfaces.Storage = (*fakeStorage)(nil)

func (s *fakeStorage) IntakeEvent(_ context.Context, _ model.IntakeRequest) (*model.IntakeResult, error) {
	return nil, errm.New("not used in reviewer tests")
}

func (s *fakeStorage) SetReviewStatus(_ context.Context, _ string, status model.ReviewStatus) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStorage) CompleteReview(_ context.Context, _ string, completion model.ReviewCompletion) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion = &completion
	s.statuses = append(s.statuses, model.ReviewStatusCompleted)
	return nil
}

func (s *fakeStorage) GetReview(_ context.Context, _ string) (*model.Review, error) {
	return nil, errm.New("not used in reviewer tests")
}

func (s *fakeStorage) recordedStatuses() []model.ReviewStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ReviewStatus(nil), s.statuses...)
}

func (s *fakeStorage) recordedCompletion() *model.ReviewCompletion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion
}
