package reviewer

import (
	"context"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/logze/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// noChangesMessage is persisted when a merge request has nothing to diff.
const noChangesMessage = "No changes to review"

// Reviewer runs the review pipeline for one merge request per job: diff
// extraction, model review, issue verification, comment posting and the
// final database write.
type Reviewer struct {
	forge   interfaces.ForgeClient
	agent   interfaces.ReviewAgent
	storage interfaces.Storage

	processor *diffProcessor
	fetcher   *contextFetcher
	verifier  *issueVerifier
	pool      *ants.Pool

	// inFlight suppresses a second job for the same review while the
	// first one is still running in this process.
	inFlight *abstract.SafeMap[string, struct{}]

	cfg Config
	log logze.Logger
}

var _ interfaces.JobHandler = (*Reviewer)(nil)

// New creates a reviewer.
func New(cfg Config, forge interfaces.ForgeClient, agent interfaces.ReviewAgent, storage interfaces.Storage) (*Reviewer, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "failed to prepare and validate config")
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, erro.Wrap(err, "failed to create ants pool")
	}

	log := logze.With("component", "reviewer")
	fetcher := newContextFetcher(forge, log)

	s := &Reviewer{
		forge:     forge,
		agent:     agent,
		storage:   storage,
		processor: newDiffProcessor(cfg.ContextLines, log),
		fetcher:   fetcher,
		verifier:  newIssueVerifier(fetcher, log),
		pool:      pool,
		inFlight:  abstract.NewSafeMap[string, struct{}](),
		cfg:       cfg,
		log:       log,
	}

	return s, nil
}

// Stop releases the worker pool.
func (s *Reviewer) Stop(_ context.Context) error {
	s.pool.Release()
	return nil
}

// ProcessJob reviews one merge request end to end. A returned error fails
// the job and leaves the retry decision to the queue.
func (s *Reviewer) ProcessJob(ctx context.Context, job model.ReviewJob) error {
	if _, ok := s.inFlight.Lookup(job.ReviewID); ok {
		s.log.Warn("review is already in flight, dropping duplicate job", "review_id", job.ReviewID)
		return nil
	}
	s.inFlight.Set(job.ReviewID, struct{}{})
	defer s.inFlight.Delete(job.ReviewID)

	log := s.log.WithFields(
		"review_id", job.ReviewID,
		"project_id", job.ProjectID,
		"mr_iid", job.MergeRequestIID,
	)
	timer := abstract.StartTimer()

	if err := s.storage.SetReviewStatus(ctx, job.ReviewID, model.ReviewStatusProcessing); err != nil {
		return errm.Wrap(err, "set review processing")
	}

	if !s.agent.IsEnabled() {
		log.Warn("agent is disabled, skipping review")
		return s.skip(ctx, job.ReviewID)
	}

	mr, err := s.forge.GetMergeRequest(ctx, job.ProjectID, job.MergeRequestIID)
	if err != nil {
		return errm.Wrap(err, "get merge request")
	}
	if mr.DiffRefs == nil {
		log.Info("merge request has no diff refs yet")
		return s.completeWithoutChanges(ctx, job.ReviewID)
	}

	diffs, refs, err := s.fetchChanges(ctx, job, mr.DiffRefs)
	if err != nil {
		return err
	}

	files, skippedFiles := s.filterFiles(diffs, log)
	chunks := s.buildChunks(ctx, job.ProjectID, refs.HeadSHA, files, log)
	if len(chunks) == 0 {
		log.Info("no reviewable changes, skipping review")
		return s.skip(ctx, job.ReviewID)
	}

	usageBefore := s.agent.Usage()

	review, err := s.runReview(ctx, chunks, log)
	if err != nil {
		return errm.Wrap(err, "run review")
	}

	byFile := chunksByFile(chunks)
	retained := s.verifyIssues(ctx, review.Issues, byFile, job.ProjectID, refs.HeadSHA, log)

	s.postInlineComments(ctx, job, refs, retained, byFile, log)

	score := qualityScore(retained)

	// The summary goes out only after every inline post has been attempted.
	summary := buildSummaryComment(review.Summary, retained, score, len(files), skippedFiles)
	if _, err := s.forge.CreateComment(ctx, job.ProjectID, job.MergeRequestIID, summary); err != nil {
		return errm.Wrap(err, "post summary comment")
	}

	content, err := json.Marshal(reviewContent{Issues: retained})
	if err != nil {
		return errm.Wrap(err, "marshal review content")
	}

	usage := usageDelta(usageBefore, s.agent.Usage())
	err = s.storage.CompleteReview(ctx, job.ReviewID, model.ReviewCompletion{
		QualityScore:     score,
		IssuesFound:      len(retained),
		SuggestionsCount: len(retained),
		Content:          content,
		Usage:            &usage,
	})
	if err != nil {
		return errm.Wrap(err, "complete review")
	}

	log.Info("review completed",
		"files", len(files),
		"chunks", len(chunks),
		"issues", len(retained),
		"score", score,
		"elapsed_time", timer.ElapsedTime().String(),
	)
	return nil
}

func (s *Reviewer) skip(ctx context.Context, reviewID string) error {
	if err := s.storage.SetReviewStatus(ctx, reviewID, model.ReviewStatusSkipped); err != nil {
		return errm.Wrap(err, "set review skipped")
	}
	return nil
}

// completeWithoutChanges closes a review for a merge request that has
// nothing to diff yet. No comments are posted.
func (s *Reviewer) completeWithoutChanges(ctx context.Context, reviewID string) error {
	content, err := json.Marshal(map[string]string{"message": noChangesMessage})
	if err != nil {
		return errm.Wrap(err, "marshal review content")
	}
	err = s.storage.CompleteReview(ctx, reviewID, model.ReviewCompletion{
		QualityScore: maxQualityScore,
		Content:      content,
	})
	if err != nil {
		return errm.Wrap(err, "complete review")
	}
	return nil
}

// fetchChanges pulls the compare diff and a fresh merge request snapshot
// concurrently. Inline comment positions use the refreshed diff refs when
// the snapshot carries them.
func (s *Reviewer) fetchChanges(ctx context.Context, job model.ReviewJob, refs *model.DiffRefs) ([]*model.FileDiff, *model.DiffRefs, error) {
	var (
		fresh    *model.MergeRequest
		freshErr error
	)

	var wg sync.WaitGroup
	wg.Add(1)
	if err := s.pool.Submit(func() {
		defer wg.Done()
		fresh, freshErr = s.forge.GetMergeRequest(ctx, job.ProjectID, job.MergeRequestIID)
	}); err != nil {
		wg.Done()
		freshErr = err
	}

	diffs, err := s.forge.CompareCommits(ctx, job.ProjectID, refs.BaseSHA, refs.HeadSHA)
	wg.Wait()

	if err != nil {
		return nil, nil, errm.Wrap(err, "compare commits")
	}
	if freshErr != nil {
		return nil, nil, errm.Wrap(freshErr, "refresh merge request")
	}
	if fresh != nil && fresh.DiffRefs != nil {
		refs = fresh.DiffRefs
	}
	return diffs, refs, nil
}

// filterFiles drops non-reviewable diffs and caps the rest at MaxFilesPerMR.
// The skipped count feeds the large-MR warning in the summary.
func (s *Reviewer) filterFiles(diffs []*model.FileDiff, log logze.Logger) ([]*model.FileDiff, int) {
	files := make([]*model.FileDiff, 0, len(diffs))
	skipped := 0

	for _, file := range diffs {
		switch {
		case file.IsDeleted || file.IsBinary:
			continue
		case file.Diff == "":
			continue
		case len(file.Diff) > s.cfg.FileFilter.MaxFileSize:
			s.logFlow(log, "skipping oversized diff", "file", file.Path(), "size", len(file.Diff))
			continue
		case s.isExcludedPath(file.Path()):
			s.logFlow(log, "skipping excluded path", "file", file.Path())
			continue
		}

		if len(files) >= s.cfg.MaxFilesPerMR {
			skipped++
			continue
		}
		files = append(files, file)
	}

	if skipped > 0 {
		log.Warn("reached maximum files limit", "max_files", s.cfg.MaxFilesPerMR, "skipped_files", skipped)
	}
	return files, skipped
}

func (s *Reviewer) isExcludedPath(path string) bool {
	for _, pattern := range s.cfg.FileFilter.ExcludedPaths {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

// buildChunks extracts chunks from the filtered diffs and attaches file
// context around the first changed line of each chunk. Context fetches run
// on the pool; a failed fetch leaves the chunk without context.
func (s *Reviewer) buildChunks(ctx context.Context, projectID int, headSHA string, files []*model.FileDiff, log logze.Logger) []*model.DiffChunk {
	chunks := s.processor.ProcessFiles(files)

	var wg sync.WaitGroup
	for _, chunk := range chunks {
		if len(chunk.ChangedLines) == 0 {
			continue
		}

		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			fileCtx, err := s.fetcher.FetchFileContext(ctx, projectID, chunk.Filename, headSHA, chunk.ChangedLines[0], s.cfg.ContextLines)
			if err != nil {
				log.Warn("failed to fetch file context", "file", chunk.Filename, "error", err)
				return
			}
			chunk.FileContext = fileCtx
		})
		if err != nil {
			wg.Done()
			log.Warn("failed to submit context fetch", "file", chunk.Filename, "error", err)
		}
	}
	wg.Wait()

	return chunks
}

// runReview picks the review strategy: a small multi-chunk merge request
// goes to the model in one call, everything else chunk by chunk. An error
// here means the job was cancelled, exhausted model retries surface as an
// empty review instead.
func (s *Reviewer) runReview(ctx context.Context, chunks []*model.DiffChunk, log logze.Logger) (*model.AIReview, error) {
	totalChanged := 0
	for _, chunk := range chunks {
		totalChanged += chunk.ChangedTotal()
	}

	if totalChanged <= maxBatchChangedLines && len(chunks) > 1 {
		s.logFlow(log, "reviewing chunks in one batch", "chunks", len(chunks), "changed_lines", totalChanged)
		review, err := s.agent.ReviewBatch(ctx, chunks)
		if err != nil {
			return nil, errm.Wrap(err, "review batch")
		}
		return review, nil
	}

	s.logFlow(log, "reviewing chunk by chunk", "chunks", len(chunks), "changed_lines", totalChanged)

	combined := &model.AIReview{}
	var summaries []string
	for _, chunk := range chunks {
		review, err := s.agent.ReviewChunk(ctx, chunk)
		if err != nil {
			return nil, errm.Wrap(err, "review chunk")
		}
		// Single-chunk issues belong to the reviewed file no matter what
		// the model put in the file field.
		for _, issue := range review.Issues {
			issue.File = chunk.Filename
		}
		combined.Issues = append(combined.Issues, review.Issues...)
		if review.Summary != "" {
			summaries = append(summaries, review.Summary)
		}
	}
	combined.Summary = strings.Join(summaries, "\n\n")
	return combined, nil
}

// verifyIssues runs every model-reported issue through the verifier and
// keeps the survivors. Issues attributed to files outside the diff are
// dropped outright.
func (s *Reviewer) verifyIssues(ctx context.Context, issues []*model.Issue, byFile map[string]*model.DiffChunk, projectID int, ref string, log logze.Logger) []*model.Issue {
	retained := make([]*model.Issue, 0, len(issues))
	for _, issue := range issues {
		chunk, ok := byFile[issue.File]
		if !ok {
			log.Warn("dropping issue reported for a file outside the diff", "file", issue.File)
			continue
		}

		result := s.verifier.Verify(ctx, issue, chunk, projectID, ref)
		if !result.IsValid {
			s.logFlow(log, "dropping rejected issue", "file", issue.File, "line", issue.Line, "reason", result.Reason)
			continue
		}
		retained = append(retained, issue)
	}
	return retained
}

// postInlineComments posts a positioned discussion for every retained issue
// of medium or higher severity. Posts run on the pool, failures are logged
// and swallowed.
func (s *Reviewer) postInlineComments(ctx context.Context, job model.ReviewJob, refs *model.DiffRefs, issues []*model.Issue, byFile map[string]*model.DiffChunk, log logze.Logger) {
	var wg sync.WaitGroup
	for _, issue := range issues {
		if !shouldPostInline(issue.Severity) {
			continue
		}

		oldPath := issue.File
		if chunk, ok := byFile[issue.File]; ok && chunk.OldPath != "" {
			oldPath = chunk.OldPath
		}
		comment := &model.InlineComment{
			Body:     buildInlineComment(issue),
			OldPath:  oldPath,
			NewPath:  issue.File,
			NewLine:  issue.Line,
			BaseSHA:  refs.BaseSHA,
			HeadSHA:  refs.HeadSHA,
			StartSHA: refs.StartSHA,
		}

		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if _, err := s.forge.CreateInlineComment(ctx, job.ProjectID, job.MergeRequestIID, comment); err != nil {
				log.Warn("failed to post inline comment", "file", issue.File, "line", issue.Line, "error", err)
			}
		})
		if err != nil {
			wg.Done()
			log.Warn("failed to submit inline post", "file", issue.File, "error", err)
		}
	}
	wg.Wait()
}

func chunksByFile(chunks []*model.DiffChunk) map[string]*model.DiffChunk {
	byFile := make(map[string]*model.DiffChunk, len(chunks))
	for _, chunk := range chunks {
		if _, ok := byFile[chunk.Filename]; !ok {
			byFile[chunk.Filename] = chunk
		}
	}
	return byFile
}

// reviewContent is the persisted shape of a finished review.
type reviewContent struct {
	Issues []*model.Issue `json:"issues"`
}

// usageDelta brackets one job's token spend on the process-wide counters
// the agent keeps.
func usageDelta(before, after model.LLMUsage) model.LLMUsage {
	return model.LLMUsage{
		PromptTokens:     after.PromptTokens - before.PromptTokens,
		CompletionTokens: after.CompletionTokens - before.CompletionTokens,
		TotalTokens:      after.TotalTokens - before.TotalTokens,
		Calls:            after.Calls - before.Calls,
	}
}

func (s *Reviewer) logFlow(log logze.Logger, msg string, fields ...any) {
	if s.cfg.Verbose {
		log.Info(msg, fields...)
	} else {
		log.Debug(msg, fields...)
	}
}
