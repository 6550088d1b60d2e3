package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"

	"github.com/binhmuc/autobot-review/internal/agent/prompts"
	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

const validReview = `{
  "summary": "Adds a retry helper.",
  "issues": [
    {"line": 12, "severity": "high", "type": "logic", "message": "off by one in the loop bound", "suggestion": "use <= instead of <"}
  ]
}`

type fakeAPI struct {
	mu       sync.Mutex
	failures int
	content  string

	calls    int
	requests []model.APIRequest
}

var _ interfaces.AgentAPI = (*fakeAPI)(nil)

func (f *fakeAPI) CallAPI(_ context.Context, req model.APIRequest) (model.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.calls <= f.failures {
		return model.APIResponse{}, errm.New("backend unavailable")
	}
	return model.APIResponse{
		Content:          f.content,
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
	}, nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAPI) lastRequest() model.APIRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return model.APIRequest{}
	}
	return f.requests[len(f.requests)-1]
}

func testAgent(api interfaces.AgentAPI) *Agent {
	cfg := Config{
		Type:       OpenAI,
		APIKey:     "test-key",
		MaxTokens:  defaultMaxTokens,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
	return &Agent{
		cfg: cfg,
		log: logze.Default(),
		pb:  prompts.NewBuilder(),
		api: api,
	}
}

func testChunk() *model.DiffChunk {
	return &model.DiffChunk{
		Filename:     "src/app.ts",
		Language:     "typescript",
		Hunks:        "@@ -1,1 +1,2 @@\n const a = 1;\n+const b = 2;",
		Additions:    1,
		ChangedLines: []int{2},
	}
}

func TestReviewChunk(t *testing.T) {
	api := &fakeAPI{content: validReview}
	agent := testAgent(api)

	review, err := agent.ReviewChunk(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("ReviewChunk: %v", err)
	}
	if review.Summary != "Adds a retry helper." {
		t.Errorf("summary = %q", review.Summary)
	}
	if len(review.Issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(review.Issues))
	}
	issue := review.Issues[0]
	if issue.Line != 12 || issue.Severity != model.SeverityHigh || issue.Type != model.IssueTypeLogic {
		t.Errorf("unexpected issue: %+v", issue)
	}
	if api.callCount() != 1 {
		t.Errorf("calls = %d, want 1", api.callCount())
	}

	req := api.lastRequest()
	if req.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, defaultMaxTokens)
	}
	if req.SystemPrompt == "" {
		t.Errorf("system prompt not propagated")
	}
	if !strings.Contains(req.Prompt, "src/app.ts") {
		t.Errorf("user prompt misses the file name")
	}
}

func TestReviewChunkRetriesTransportErrors(t *testing.T) {
	api := &fakeAPI{failures: 2, content: validReview}
	agent := testAgent(api)

	review, err := agent.ReviewChunk(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("ReviewChunk: %v", err)
	}
	if len(review.Issues) != 1 {
		t.Errorf("issues = %d, want 1 after retries", len(review.Issues))
	}
	if api.callCount() != 3 {
		t.Errorf("calls = %d, want 3", api.callCount())
	}
}

func TestReviewChunkExhaustedRetries(t *testing.T) {
	api := &fakeAPI{failures: 100}
	agent := testAgent(api)

	review, err := agent.ReviewChunk(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("exhausted retries must not fail the job, got %v", err)
	}
	if review.Summary != failedReviewSummary {
		t.Errorf("summary = %q, want fallback", review.Summary)
	}
	if len(review.Issues) != 0 {
		t.Errorf("issues = %d, want 0", len(review.Issues))
	}
	if api.callCount() != 3 {
		t.Errorf("calls = %d, want 3", api.callCount())
	}
}

func TestReviewChunkRetriesMalformedResponse(t *testing.T) {
	api := &fakeAPI{content: "I could not produce JSON today."}
	agent := testAgent(api)

	review, err := agent.ReviewChunk(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("ReviewChunk: %v", err)
	}
	if review.Summary != failedReviewSummary {
		t.Errorf("summary = %q, want fallback after malformed responses", review.Summary)
	}
	if api.callCount() != 3 {
		t.Errorf("malformed responses must burn attempts, calls = %d", api.callCount())
	}
}

func TestReviewChunkContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &fakeAPI{failures: 100}
	agent := testAgent(api)

	_, err := agent.ReviewChunk(ctx, testChunk())
	if err == nil {
		t.Fatalf("want context error, got nil")
	}
	if api.callCount() >= 3 {
		t.Errorf("cancelled context must stop retries early, calls = %d", api.callCount())
	}
}

func TestReviewChunkDisabled(t *testing.T) {
	agent, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if agent.IsEnabled() {
		t.Fatalf("agent without API key must be disabled")
	}

	review, err := agent.ReviewChunk(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("disabled ReviewChunk: %v", err)
	}
	if review.Summary != "" || len(review.Issues) != 0 {
		t.Errorf("disabled agent must return an empty review, got %+v", review)
	}
}

func TestReviewBatchAttributesFiles(t *testing.T) {
	api := &fakeAPI{content: `{
	  "summary": "Two files touched.",
	  "issues": [
	    {"file": "src/a.ts", "line": 3, "severity": "medium", "type": "style", "message": "m", "suggestion": "s"},
	    {"file": "src/b.ts", "line": 7, "severity": "low", "type": "style", "message": "m", "suggestion": "s"}
	  ]
	}`}
	agent := testAgent(api)

	chunks := []*model.DiffChunk{testChunk(), testChunk()}
	chunks[0].Filename = "src/a.ts"
	chunks[1].Filename = "src/b.ts"

	review, err := agent.ReviewBatch(context.Background(), chunks)
	if err != nil {
		t.Fatalf("ReviewBatch: %v", err)
	}
	if len(review.Issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(review.Issues))
	}
	if review.Issues[0].File != "src/a.ts" || review.Issues[1].File != "src/b.ts" {
		t.Errorf("file attribution lost: %q, %q", review.Issues[0].File, review.Issues[1].File)
	}

	req := api.lastRequest()
	if !strings.Contains(req.Prompt, "## File 1/2: src/a.ts") {
		t.Errorf("batch prompt misses file headers")
	}
}

func TestUsageAccumulates(t *testing.T) {
	api := &fakeAPI{content: validReview}
	agent := testAgent(api)

	for range 3 {
		if _, err := agent.ReviewChunk(context.Background(), testChunk()); err != nil {
			t.Fatalf("ReviewChunk: %v", err)
		}
	}

	usage := agent.Usage()
	if usage.Calls != 3 {
		t.Errorf("calls = %d, want 3", usage.Calls)
	}
	if usage.PromptTokens != 300 || usage.CompletionTokens != 150 || usage.TotalTokens != 450 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestParseReview(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		check    func(t *testing.T, r *model.AIReview)
	}{
		{
			name:     "plain object",
			response: validReview,
			check: func(t *testing.T, r *model.AIReview) {
				if len(r.Issues) != 1 || r.Issues[0].Line != 12 {
					t.Errorf("issues = %+v", r.Issues)
				}
			},
		},
		{
			name:     "markdown fenced",
			response: "```json\n" + validReview + "\n```",
			check: func(t *testing.T, r *model.AIReview) {
				if len(r.Issues) != 1 {
					t.Errorf("issues = %d", len(r.Issues))
				}
			},
		},
		{
			name:     "prose around the object",
			response: "Here is the review you asked for:\n" + validReview + "\nLet me know if you need more.",
			check: func(t *testing.T, r *model.AIReview) {
				if r.Summary != "Adds a retry helper." {
					t.Errorf("summary = %q", r.Summary)
				}
			},
		},
		{
			name:     "empty issues",
			response: `{"summary": "Nothing to report.", "issues": []}`,
			check: func(t *testing.T, r *model.AIReview) {
				if len(r.Issues) != 0 {
					t.Errorf("issues = %d, want 0", len(r.Issues))
				}
			},
		},
		{
			name:     "issue with all fields missing",
			response: `{"summary": "s", "issues": [{}]}`,
			check: func(t *testing.T, r *model.AIReview) {
				issue := r.Issues[0]
				if issue.Line != 0 {
					t.Errorf("line = %d, want 0", issue.Line)
				}
				if issue.Severity != model.SeverityLow || issue.Type != model.IssueTypeStyle {
					t.Errorf("severity/type = %s/%s", issue.Severity, issue.Type)
				}
				if issue.Message != "No description" || issue.Suggestion != "No suggestion" {
					t.Errorf("message/suggestion = %q/%q", issue.Message, issue.Suggestion)
				}
			},
		},
		{
			name:     "unknown severity and type fall back",
			response: `{"summary": "s", "issues": [{"line": 1, "severity": "blocker", "type": "bug", "message": "m", "suggestion": "s"}]}`,
			check: func(t *testing.T, r *model.AIReview) {
				issue := r.Issues[0]
				if issue.Severity != model.SeverityLow || issue.Type != model.IssueTypeStyle {
					t.Errorf("severity/type = %s/%s, want low/style", issue.Severity, issue.Type)
				}
			},
		},
		{
			name:     "severity casing normalized",
			response: `{"summary": "s", "issues": [{"line": 1, "severity": "Critical", "type": "Security", "message": "m", "suggestion": "s"}]}`,
			check: func(t *testing.T, r *model.AIReview) {
				issue := r.Issues[0]
				if issue.Severity != model.SeverityCritical || issue.Type != model.IssueTypeSecurity {
					t.Errorf("severity/type = %s/%s", issue.Severity, issue.Type)
				}
			},
		},
		{
			name:     "missing summary",
			response: `{"issues": []}`,
			wantErr:  true,
		},
		{
			name:     "missing issues",
			response: `{"summary": "s"}`,
			wantErr:  true,
		},
		{
			name:     "null issues",
			response: `{"summary": "s", "issues": null}`,
			wantErr:  true,
		},
		{
			name:     "no json at all",
			response: "I cannot review this change.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			review, err := parseReview(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", review)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseReview: %v", err)
			}
			if tt.check != nil {
				tt.check(t, review)
			}
		})
	}
}

func TestFixCommonJSONIssues(t *testing.T) {
	truncated := `{"summary": "s", "issues": [{"line": 1, "message": "x",`
	fixed := fixCommonJSONIssues(truncated)

	if !json.Valid([]byte(fixed)) {
		t.Errorf("repaired JSON is still invalid:\n%s", fixed)
	}

	intact := `{"summary": "s", "issues": []}`
	if got := fixCommonJSONIssues(intact); got != intact {
		t.Errorf("intact JSON must pass through unchanged, got %s", got)
	}
}
