package provider

import (
	"github.com/maxbolgarin/erro"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
	"github.com/binhmuc/autobot-review/internal/provider/github"
	"github.com/binhmuc/autobot-review/internal/provider/gitlab"
)

// New creates a forge client based on the configuration.
func New(cfg Config) (interfaces.ForgeClient, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "validate config")
	}

	forgeCfg := model.ForgeConfig{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
	}

	var (
		client interfaces.ForgeClient
		err    error
	)

	switch cfg.Type {
	case GitLab:
		client, err = gitlab.New(forgeCfg)
	case GitHub:
		client, err = github.New(forgeCfg)
	default:
		return nil, erro.New("unsupported forge type: %s", cfg.Type)
	}
	if err != nil {
		return nil, erro.Wrap(err, "failed to create forge client")
	}

	return client, nil
}
