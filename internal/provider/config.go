package provider

import (
	"slices"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
)

// ForgeType selects the forge backend.
type ForgeType string

const (
	GitLab ForgeType = "gitlab"
	GitHub ForgeType = "github"
)

var supportedForgeTypes = []ForgeType{GitLab, GitHub}

// Config represents forge API configuration.
type Config struct {
	Type    ForgeType `yaml:"type" env:"FORGE_TYPE"`
	BaseURL string    `yaml:"base_url" env:"FORGE_HOST"` // self-hosted forge URL
	Token   string    `yaml:"token" env:"FORGE_ACCESS_TOKEN"`
}

func (c *Config) PrepareAndValidate() error {
	if c.Token == "" {
		return errm.New("forge token is required")
	}

	c.Type = ForgeType(lang.Check(string(c.Type), string(GitLab)))
	if !slices.Contains(supportedForgeTypes, c.Type) {
		return errm.New("unsupported forge type: %s", c.Type)
	}

	return nil
}
