package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"
	"resty.dev/v3"

	"feedsync/internal/archiving"
	"feedsync/internal/changefeed"
	"feedsync/internal/cmd/flags"
	"feedsync/internal/core"
	"feedsync/internal/engine"
	"feedsync/internal/metrics"
	inats "feedsync/internal/nats"
	"feedsync/internal/optimistic"
	"feedsync/internal/persistence"
	"feedsync/internal/persistence/events"
	"feedsync/internal/poller"
	"feedsync/internal/router"
	"feedsync/internal/store"
	"feedsync/pkg/feedapi"
)

var apiLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "feedsync_api_request_latency",
		Help:    "Histogram of persistence API request latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	},
	[]string{"method", "path", "status_code"},
)

var engineCmd = &cli.Command{
	Name:  "engine",
	Usage: "Run the sync engine: subscribe to the change feed and keep the local cache consistent",
	Flags: []cli.Flag{
		flags.FeedURL,
		flags.APIURL,
		flags.UserID,
		flags.ClientTag,
		flags.NATSUrl,
		flags.InitNATS,
		flags.DatabaseURL,
		flags.PollInterval,
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		cfg, err := parseConfig(c)
		if err != nil {
			return err
		}
		if cfg.ClientTag == "" {
			cfg.ClientTag = uuid.NewString()
		}

		client := feedapi.NewClient(&feedapi.ClientConfig{
			BaseURL:             cfg.APIBaseURL,
			ClientTag:           cfg.ClientTag,
			TransportSettings:   feedapi.DefaultConfig.TransportSettings,
			ResponseMiddlewares: []resty.ResponseMiddleware{metricMiddleware},
		})

		services := []pal.ServiceDef{
			pal.Provide[core.KeyValueClient](&inats.NATS{}),
			pal.Provide[core.Writer](client),
			pal.Provide[core.Loader](client),
			pal.Provide(&store.Store{}),
			pal.Provide(&optimistic.Applier{}),
			pal.Provide(&changefeed.Subscriber{}),
			pal.Provide(&router.Router{}),
			pal.Provide(&poller.Poller{}),
			pal.Provide(&engine.Engine{}),
			pal.Provide(&metrics.Server{}),
		}

		if cfg.ArchiveEnabled() {
			services = append(services,
				pal.Provide(&persistence.DB{}),
				pal.Provide[core.EventRepository](&events.Repository{}),
				pal.Provide(&archiving.EventsArchiver{}),
				pal.Provide(&metrics.Collector{}),
			)
		}

		return run(ctx, cfg, services...)
	},
}

func metricMiddleware(_ *resty.Client, response *resty.Response) error {
	reqURL, err := url.Parse(response.Request.URL)
	if err != nil {
		return err
	}

	apiLatency.WithLabelValues(
		response.Request.Method,
		reqURL.Path,
		fmt.Sprintf("%d", response.StatusCode()),
	).Observe(response.Duration().Seconds())

	return nil
}
