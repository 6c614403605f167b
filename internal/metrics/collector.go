package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm/schema"

	"feedsync/internal/core"
	"feedsync/internal/persistence"
)

var tableCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "feedsync_table_estimated_count",
	Help: "Estimated record count for a table.",
}, []string{"table"})

// Collector periodically samples the archive's estimated table sizes.
type Collector struct {
	Logger *slog.Logger
	DB     *persistence.DB
}

func (c *Collector) Init(_ context.Context) error {
	c.Logger = c.Logger.With("component", "metrics.Collector")
	return nil
}

func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.collectTableEstimatedCount(core.EventModel{}); err != nil {
				c.Logger.Error("failed to collect table size", "error", err)
			}
		}
	}
}

func (c *Collector) collectTableEstimatedCount(tabler schema.Tabler) error {
	count, err := c.DB.EstimatedCount(tabler.TableName())
	if err != nil {
		return err
	}
	tableCount.WithLabelValues(tabler.TableName()).Set(float64(count))
	return nil
}
