package webhook

// Config holds inbound webhook settings. An empty secret disables the
// endpoint: every request is rejected with 401.
type Config struct {
	Secret string `yaml:"secret" env:"FORGE_WEBHOOK_SECRET"`
}

// Enabled reports whether a webhook secret is configured.
func (c Config) Enabled() bool {
	return c.Secret != ""
}
