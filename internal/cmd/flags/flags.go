package flags

import (
	"fmt"
	"slices"
	"time"

	libnats "github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

var FeedURL = &cli.StringFlag{
	Name:    "feed-url",
	Aliases: []string{"f"},
	Usage:   "Websocket URL of the server change feed",
	Value:   "wss://feed.example.com/subscribe",
	Sources: cli.EnvVars("FEED_URL"),
}

var APIURL = &cli.StringFlag{
	Name:    "api-url",
	Aliases: []string{"a"},
	Usage:   "Base URL of the persistence service",
	Value:   "https://api.example.com",
	Sources: cli.EnvVars("API_URL"),
}

var UserID = &cli.StringFlag{
	Name:     "user-id",
	Aliases:  []string{"u"},
	Usage:    "Id of the local session's user",
	Required: true,
	Sources:  cli.EnvVars("USER_ID"),
}

var ClientTag = &cli.StringFlag{
	Name:    "client-tag",
	Usage:   "Session tag stamped on writes so echoed notifications are attributable; random when empty",
	Sources: cli.EnvVars("CLIENT_TAG"),
}

var NATSUrl = &cli.StringFlag{
	Name:    "nats-url",
	Aliases: []string{"n"},
	Usage:   "The URL of the NATS server",
	Value:   libnats.DefaultURL,
	Sources: cli.EnvVars("NATS_URL"),
}

var InitNATS = &cli.BoolFlag{
	Name:        "nats-init",
	Aliases:     []string{"i"},
	Usage:       "Initialize the NATS server: create the key-value bucket",
	DefaultText: "false",
	Value:       false,
	Sources:     cli.EnvVars("NATS_INIT"),
}

var DatabaseURL = &cli.StringFlag{
	Name:    "database-url",
	Usage:   "Postgres DSN for the event archive; archiving is disabled when empty",
	Sources: cli.EnvVars("DATABASE_URL"),
}

var PollInterval = &cli.DurationFlag{
	Name:    "poll-interval",
	Usage:   "Full-reload interval while a push channel is disconnected",
	Value:   30 * time.Second,
	Sources: cli.EnvVars("POLL_INTERVAL"),
}

var LogLevel = &cli.StringFlag{
	Name:    "log-level",
	Aliases: []string{"l"},
	Usage:   "The level of the logs",
	Value:   "info",
	Validator: func(value string) error {
		if !slices.Contains(validLogLevels, value) {
			return fmt.Errorf("invalid log level: %s, allowed values are: %s", value, validLogLevels)
		}
		return nil
	},
	Sources: cli.EnvVars("LOG_LEVEL"),
}
