package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/cliex"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"

	"github.com/binhmuc/autobot-review/internal/agent/claude"
	"github.com/binhmuc/autobot-review/internal/agent/gemini"
	"github.com/binhmuc/autobot-review/internal/agent/openai"
	"github.com/binhmuc/autobot-review/internal/agent/prompts"
	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// failedReviewSummary is returned when every attempt to get a parsable
// review out of the model failed. The review completes with zero issues.
const failedReviewSummary = "Automated review could not be completed for this change."

// Agent turns diff chunks into reviews using an LLM backend.
type Agent struct {
	cfg Config
	log logze.Logger
	pb  *prompts.Builder
	api interfaces.AgentAPI

	mu    sync.Mutex
	usage model.LLMUsage
}

var _ interfaces.ReviewAgent = (*Agent)(nil)

// New creates an agent for the configured backend. A config without an API
// key yields a disabled agent, not an error.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "validate config")
	}

	agent := &Agent{
		cfg: cfg,
		log: logze.With("component", "agent", "type", string(cfg.Type)),
		pb:  prompts.NewBuilder(),
	}

	if cfg.IsDisabled() {
		agent.log.Warn("agent is disabled, reviews will be skipped")
		return agent, nil
	}

	cli, err := cliex.NewWithConfig(cliex.Config{
		UserAgent:      cfg.UserAgent,
		ProxyAddress:   cfg.ProxyURL,
		RequestTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, errm.Wrap(err, "failed to create HTTP client")
	}

	modelCfg := model.ModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Endpoint:   cfg.Endpoint,
		Deployment: cfg.Deployment,
		APIVersion: cfg.APIVersion,
		ProxyURL:   cfg.ProxyURL,
		IsTest:     cfg.IsTest,
	}

	switch cfg.Type {
	case OpenAI:
		agent.api, err = openai.New(ctx, cli, modelCfg)
	case Claude:
		agent.api, err = claude.New(ctx, cli, modelCfg)
	case Gemini:
		agent.api, err = gemini.New(ctx, modelCfg)
	}
	if err != nil {
		return nil, errm.Wrap(err, "create model backend")
	}

	return agent, nil
}

// IsEnabled reports whether the agent can actually call a model.
func (a *Agent) IsEnabled() bool {
	return a.api != nil
}

// ReviewChunk reviews a single diff chunk.
func (a *Agent) ReviewChunk(ctx context.Context, chunk *model.DiffChunk) (*model.AIReview, error) {
	if !a.IsEnabled() {
		return &model.AIReview{}, nil
	}
	return a.review(ctx, a.pb.BuildSingleReviewPrompt(chunk))
}

// ReviewBatch reviews several chunks in one model call. Issues come back
// with file attribution.
func (a *Agent) ReviewBatch(ctx context.Context, chunks []*model.DiffChunk) (*model.AIReview, error) {
	if !a.IsEnabled() {
		return &model.AIReview{}, nil
	}
	return a.review(ctx, a.pb.BuildBatchReviewPrompt(chunks))
}

// Usage returns the accumulated token counters.
func (a *Agent) Usage() model.LLMUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// review retries the call-and-parse cycle; a malformed response counts as a
// failed attempt the same way as a transport error. Exhausted retries yield
// an empty review, not an error.
func (a *Agent) review(ctx context.Context, prompt model.Prompt) (*model.AIReview, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		review, err := a.callAndParse(ctx, prompt)
		if err == nil {
			return review, nil
		}
		lastErr = err
		a.log.Warn("review attempt failed", "attempt", attempt, "max_retries", a.cfg.MaxRetries, "error", err)

		if attempt == a.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.cfg.RetryDelay):
		}
	}

	a.log.Error("all review attempts failed", "error", lastErr)
	return &model.AIReview{Summary: failedReviewSummary, Issues: []*model.Issue{}}, nil
}

func (a *Agent) callAndParse(ctx context.Context, prompt model.Prompt) (*model.AIReview, error) {
	resp, err := a.api.CallAPI(ctx, model.APIRequest{
		Prompt:       prompt.UserPrompt,
		SystemPrompt: prompt.SystemPrompt,
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  a.cfg.Temperature,
		ResponseType: "application/json",
	})
	if err != nil {
		return nil, errm.Wrap(err, "call API")
	}
	if resp.Content == "" {
		return nil, errm.New("empty response from API")
	}

	a.mu.Lock()
	a.usage.Add(resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	a.mu.Unlock()

	review, err := parseReview(resp.Content)
	if err != nil {
		return nil, errm.Wrap(err, "parse review response")
	}
	return review, nil
}

type reviewPayload struct {
	Summary *string         `json:"summary"`
	Issues  *[]issuePayload `json:"issues"`
}

type issuePayload struct {
	File       string  `json:"file"`
	Line       *int    `json:"line"`
	Severity   *string `json:"severity"`
	Type       *string `json:"type"`
	Message    *string `json:"message"`
	Suggestion *string `json:"suggestion"`
}

// parseReview extracts the review JSON from a model response that may be
// wrapped in markdown fences or surrounded by prose.
func parseReview(response string) (*model.AIReview, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, errm.New("no JSON object found in response")
	}
	jsonStr := fixCommonJSONIssues(response[start : end+1])

	var payload reviewPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, errm.Wrap(err, "unmarshal review")
	}
	if payload.Summary == nil {
		return nil, errm.New("response misses summary field")
	}
	if payload.Issues == nil {
		return nil, errm.New("response misses issues field")
	}

	review := &model.AIReview{
		Summary: *payload.Summary,
		Issues:  make([]*model.Issue, 0, len(*payload.Issues)),
	}
	for _, raw := range *payload.Issues {
		review.Issues = append(review.Issues, raw.toIssue())
	}
	return review, nil
}

// toIssue fills the gaps a sloppy model leaves: missing fields get safe
// defaults instead of failing the whole response.
func (p issuePayload) toIssue() *model.Issue {
	issue := &model.Issue{
		File:       p.File,
		Severity:   model.SeverityLow,
		Type:       model.IssueTypeStyle,
		Message:    "No description",
		Suggestion: "No suggestion",
	}
	if p.Line != nil {
		issue.Line = *p.Line
	}
	if p.Severity != nil {
		if s := model.Severity(strings.ToLower(*p.Severity)); model.KnownSeverity(s) {
			issue.Severity = s
		}
	}
	if p.Type != nil {
		if t := model.IssueType(strings.ToLower(*p.Type)); model.KnownIssueType(t) {
			issue.Type = t
		}
	}
	if p.Message != nil && *p.Message != "" {
		issue.Message = *p.Message
	}
	if p.Suggestion != nil && *p.Suggestion != "" {
		issue.Suggestion = *p.Suggestion
	}
	return issue
}

// fixCommonJSONIssues closes an object that was cut off mid-field, dropping
// the incomplete tail so the rest still parses.
func fixCommonJSONIssues(jsonStr string) string {
	jsonStr = strings.TrimSpace(jsonStr)
	if strings.HasSuffix(jsonStr, "}") {
		return jsonStr
	}
	lastComma := strings.LastIndex(jsonStr, ",")
	lastQuote := strings.LastIndex(jsonStr, `"`)
	if lastComma > lastQuote {
		jsonStr = jsonStr[:lastComma] + "\n    }\n  ]\n}"
	}
	return jsonStr
}
