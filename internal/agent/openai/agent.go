package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maxbolgarin/cliex"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

const (
	defaultModel = "gpt-4o-mini"
	defaultURL   = "https://api.openai.com/v1/chat/completions"
)

var _ interfaces.AgentAPI = (*Agent)(nil)

// Agent calls an OpenAI-compatible chat completion endpoint. With a
// deployment name set it targets Azure OpenAI, which routes by deployment
// and authenticates with an api-key header instead of a bearer token.
type Agent struct {
	cli *cliex.HTTP
	cfg model.ModelConfig
	url string
}

// New creates an OpenAI agent over the given HTTP client.
func New(ctx context.Context, cli *cliex.HTTP, cfg model.ModelConfig) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, errm.New("OpenAI API key is required")
	}
	cfg.Model = lang.Check(cfg.Model, defaultModel)

	agent := &Agent{
		cli: cli,
		cfg: cfg,
	}

	if cfg.Deployment != "" {
		endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
		agent.url = fmt.Sprintf("%s/openai/deployments/%s/chat/completions", endpoint, cfg.Deployment)
		if cfg.APIVersion != "" {
			agent.url += "?api-version=" + cfg.APIVersion
		}
		cli.C().SetHeader("api-key", cfg.APIKey)
	} else {
		agent.url = lang.Check(cfg.Endpoint, defaultURL)
		cli.C().SetAuthToken(cfg.APIKey)
	}

	// Test connection if needed (may take tokens)
	if cfg.IsTest {
		if err := agent.testConnection(ctx); err != nil {
			return nil, errm.Wrap(err, "failed to connect to OpenAI API")
		}
	}

	return agent, nil
}

// CallAPI makes a chat completion request.
func (a *Agent) CallAPI(ctx context.Context, req model.APIRequest) (model.APIResponse, error) {
	reqBody := chatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []message{
			{
				Role:    "system",
				Content: req.SystemPrompt,
			},
			{
				Role:    "user",
				Content: req.Prompt,
			},
		},
		Temperature:         req.Temperature,
		MaxCompletionTokens: req.MaxTokens,
		Stream:              false,
	}

	var respBody chatCompletionResponse
	requestURL := lang.Check(req.URL, a.url)
	_, err := a.cli.Post(ctx, requestURL, reqBody, &respBody)
	if err != nil {
		return model.APIResponse{}, errm.Wrap(err, "failed to make API request")
	}

	if respBody.Error != nil {
		return model.APIResponse{}, errm.Errorf("OpenAI API error: %s", respBody.Error.Message)
	}

	var content string
	if len(respBody.Choices) > 0 {
		content = strings.TrimSpace(respBody.Choices[0].Message.Content)
	}

	out := model.APIResponse{
		CreateTime:       time.Unix(respBody.Created, 0),
		Content:          content,
		PromptTokens:     respBody.Usage.PromptTokens,
		CompletionTokens: respBody.Usage.CompletionTokens,
		TotalTokens:      respBody.Usage.TotalTokens,
	}

	return out, nil
}

// testConnection burns a few tokens to verify credentials and routing.
func (a *Agent) testConnection(ctx context.Context) error {
	testPrompt := "Respond with 'OK' if you can understand this message."

	_, err := a.CallAPI(ctx, model.APIRequest{
		Prompt:    testPrompt,
		MaxTokens: 10,
	})
	if err != nil {
		return errm.Wrap(err, "connection test failed")
	}
	return nil
}
