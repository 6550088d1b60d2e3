package agent

import (
	"slices"
	"time"

	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/lang"
)

const (
	defaultMaxTokens  = 40000
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultUserAgent  = "autobot-review/1.0"
)

// AgentType selects the model backend.
type AgentType string

const (
	OpenAI AgentType = "openai"
	Claude AgentType = "claude"
	Gemini AgentType = "gemini"
)

var supportedAgentTypes = []AgentType{OpenAI, Claude, Gemini}

// Config holds the model backend settings. An empty APIKey disables the
// agent entirely: reviews are then skipped instead of failing.
type Config struct {
	Type       AgentType `yaml:"type" env:"LLM_TYPE"`
	APIKey     string    `yaml:"api_key" env:"LLM_KEY"`
	Model      string    `yaml:"model" env:"LLM_MODEL_NAME"`
	Endpoint   string    `yaml:"endpoint" env:"LLM_ENDPOINT"`     // custom API endpoint (Azure OpenAI, local models, etc.)
	Deployment string    `yaml:"deployment" env:"LLM_DEPLOYMENT"` // Azure OpenAI deployment name
	APIVersion string    `yaml:"api_version" env:"LLM_API_VERSION"`

	Temperature float32       `yaml:"temperature" env:"LLM_TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS"`
	MaxRetries  int           `yaml:"max_retries" env:"LLM_MAX_RETRIES"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"LLM_RETRY_DELAY"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
	ProxyURL    string        `yaml:"proxy_url" env:"LLM_PROXY_URL"`
	UserAgent   string        `yaml:"user_agent" env:"LLM_USER_AGENT"`
	IsTest      bool          `yaml:"is_test" env:"LLM_IS_TEST"`
}

// IsDisabled reports whether the agent has no credentials to work with.
func (c Config) IsDisabled() bool {
	return c.APIKey == ""
}

func (c *Config) PrepareAndValidate() error {
	c.Type = AgentType(lang.Check(string(c.Type), string(OpenAI)))
	if !slices.Contains(supportedAgentTypes, c.Type) {
		return erro.New("unsupported llm type: %s", c.Type)
	}

	c.MaxTokens = lang.Check(c.MaxTokens, defaultMaxTokens)
	c.Timeout = lang.Check(c.Timeout, defaultTimeout)
	c.MaxRetries = lang.Check(c.MaxRetries, defaultMaxRetries)
	c.RetryDelay = lang.Check(c.RetryDelay, defaultRetryDelay)
	c.UserAgent = lang.Check(c.UserAgent, defaultUserAgent)

	return nil
}
