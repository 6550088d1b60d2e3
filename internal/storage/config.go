package storage

import (
	"github.com/maxbolgarin/lang"
)

const defaultDatabaseURL = "file:autobot.db"

// Config holds the database settings.
type Config struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

func (c *Config) PrepareAndValidate() error {
	c.URL = lang.Check(c.URL, defaultDatabaseURL)
	return nil
}
