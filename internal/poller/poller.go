package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feedsync/internal/changefeed"
	"feedsync/internal/config"
	"feedsync/internal/core"
	"feedsync/internal/store"
	"feedsync/pkg/retry"
)

const defaultInterval = 30 * time.Second

var reloads = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedsync_full_reloads_total",
	Help: "Full-state reloads performed while the push channel was degraded.",
})

// Poller is the graceful-degradation path: while any push channel is
// disconnected and the view is foreground-visible, it substitutes a
// fixed-interval full reload of every tracked post for the missing
// notifications. The interval timer starts on the first disconnect, so a
// 45 second outage yields exactly one reload at the 30 second mark.
type Poller struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      *store.Store
	Subscriber *changefeed.Subscriber
	Loader     core.Loader

	visible     atomic.Bool
	transitions chan changefeed.Transition
	interval    time.Duration
}

func (p *Poller) Init(_ context.Context) error {
	p.Logger = p.Logger.With("component", "poller.Poller")
	p.transitions = make(chan changefeed.Transition, 16)
	p.Subscriber.Watch(p.transitions)
	p.visible.Store(true)

	p.interval = p.Config.PollInterval
	if p.interval <= 0 {
		p.interval = defaultInterval
	}
	return nil
}

// SetVisible gates polling on the view being foreground-visible. A hidden
// view has nothing to keep fresh.
func (p *Poller) SetVisible(visible bool) {
	p.visible.Store(visible)
}

func (p *Poller) Run(ctx context.Context) error {
	var ticker *time.Ticker
	var tick <-chan time.Time

	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case t := <-p.transitions:
			switch {
			case t.To == changefeed.StateDisconnected && ticker == nil:
				p.Logger.Info("channel degraded, enabling poll fallback", "kind", t.Kind)
				ticker = time.NewTicker(p.interval)
				tick = ticker.C
			case !p.Subscriber.AnyDisconnected() && ticker != nil:
				p.Logger.Info("all channels healthy, disabling poll fallback")
				stop()
			}

		case <-tick:
			if !p.visible.Load() || !p.Subscriber.AnyDisconnected() {
				continue
			}
			p.reload(ctx)
		}
	}
}

// reload fetches and swaps in the authoritative state of every tracked
// post.
func (p *Poller) reload(ctx context.Context) {
	for _, postID := range p.Store.PostIDs() {
		if core.IsTempID(postID) {
			continue
		}

		var state *core.FullState
		err := retry.Do(ctx, 3, time.Second, func() error {
			var err error
			state, err = p.Loader.FetchFullState(ctx, postID)
			return err
		})
		if err != nil {
			p.Logger.Error("full reload failed", "post", postID, "error", err)
			continue
		}

		p.Store.ReplacePost(state)
		reloads.Inc()
	}
}
