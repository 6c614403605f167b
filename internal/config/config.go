package config

import "time"

type Config struct {
	FeedURL    string `flag:"feed-url"`
	APIBaseURL string `flag:"api-url"`

	UserID    string `flag:"user-id"`
	ClientTag string `flag:"client-tag"`

	NATSURL  string `flag:"nats-url"`
	NATSInit bool   `flag:"nats-init"`

	DatabaseURL string `flag:"database-url"`

	PollInterval time.Duration `flag:"poll-interval"`

	LogLevel string `flag:"log-level"`
}

// ArchiveEnabled reports whether inbound events should be archived to
// Postgres.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}
