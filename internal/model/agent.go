package model

import (
	"time"
)

// APIRequest represents a request to an LLM API.
type APIRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	URL          string
	ResponseType string
}

// APIResponse represents a response from an LLM API.
type APIResponse struct {
	CreateTime       time.Time
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Prompt is an assembled system + user prompt pair.
type Prompt struct {
	SystemPrompt string
	UserPrompt   string
}

// ModelConfig is the backend-facing slice of the LLM configuration.
type ModelConfig struct {
	APIKey     string
	Model      string
	Endpoint   string
	Deployment string
	APIVersion string
	ProxyURL   string
	IsTest     bool
}
