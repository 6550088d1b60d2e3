package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/maxbolgarin/errm"

	"github.com/binhmuc/autobot-review/internal/agent"
	"github.com/binhmuc/autobot-review/internal/provider"
	"github.com/binhmuc/autobot-review/internal/queue"
	"github.com/binhmuc/autobot-review/internal/reviewer"
	"github.com/binhmuc/autobot-review/internal/server"
	"github.com/binhmuc/autobot-review/internal/storage"
	"github.com/binhmuc/autobot-review/internal/webhook"
)

// Config aggregates every component's configuration. Each section is
// validated by its own package when the component is constructed.
type Config struct {
	Server   server.Config   `yaml:"server"`
	Webhook  webhook.Config  `yaml:"webhook"`
	Forge    provider.Config `yaml:"forge"`
	Agent    agent.Config    `yaml:"agent"`
	Reviewer reviewer.Config `yaml:"reviewer"`
	Storage  storage.Config  `yaml:"storage"`
	Queue    queue.Config    `yaml:"queue"`
}

// Load reads the YAML file when path is set and applies environment
// variables on top. Without a path the environment alone is used.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, errm.Wrap(err, "read environment")
		}
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return cfg, errm.Wrap(err, "config file is not readable")
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, errm.Wrap(err, "read config file")
	}
	return cfg, nil
}
