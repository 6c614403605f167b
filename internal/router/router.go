package router

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zhulik/pips"
	"github.com/zhulik/pips/apply"

	"feedsync/internal/changefeed"
	"feedsync/internal/config"
	"feedsync/internal/core"
	"feedsync/internal/optimistic"
	"feedsync/internal/store"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_events_processed_total",
		Help: "The total number of processed change-feed events",
	}, []string{"kind", "operation", "status"})
)

// Router consumes the merged change-feed stream, suppresses self-origin
// echoes and applies everything else to the content store. Taps receive a
// copy of every raw event before filtering.
type Router struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      *store.Store
	Applier    *optimistic.Applier
	Subscriber *changefeed.Subscriber

	taps []chan<- *core.ChangeEvent
}

func (r *Router) Init(_ context.Context) error {
	r.Logger = r.Logger.With("component", "router.Router")
	return nil
}

// Tap registers a best-effort observer of the raw event stream. Sends never
// block; a slow tap misses events.
func (r *Router) Tap(ch chan<- *core.ChangeEvent) {
	r.taps = append(r.taps, ch)
}

func (r *Router) Run(ctx context.Context) error {
	return pips.New[*core.ChangeEvent, any]().
		Then(apply.Each(r.tee)).
		Then(apply.Filter(r.keep)).
		Then(apply.Map(r.dispatch)).
		Run(ctx, pips.MapInputChan(ctx, r.Subscriber.C(), func(_ context.Context, e *core.ChangeEvent) (*core.ChangeEvent, error) {
			return e, nil
		})).
		Wait(ctx)
}

func (r *Router) tee(_ context.Context, e *core.ChangeEvent) error {
	for _, tap := range r.taps {
		select {
		case tap <- e:
		default:
		}
	}
	return nil
}

// dispatch applies one notification to the store. Everything it calls is
// idempotent by id, so a duplicate delivery that slipped past the filter is
// a no-op.
func (r *Router) dispatch(_ context.Context, e *core.ChangeEvent) (any, error) {
	status := "applied"

	switch e.Kind {
	case core.KindPost:
		status = r.dispatchPost(e)
	case core.KindComment:
		status = r.dispatchComment(e)
	case core.KindReaction:
		status = r.dispatchReaction(e)
	case core.KindBookmark:
		status = r.dispatchBookmark(e)
	}

	eventsProcessed.WithLabelValues(string(e.Kind), string(e.Operation), status).Inc()
	return nil, nil
}

func (r *Router) dispatchPost(e *core.ChangeEvent) string {
	switch e.Operation {
	case core.OpInsert, core.OpUpdate:
		r.Store.UpsertPost(e.Post)
	case core.OpDelete:
		if !r.Store.RemovePost(e.Post.ID) {
			return "noop"
		}
	}
	return "applied"
}

func (r *Router) dispatchComment(e *core.ChangeEvent) string {
	c := e.Comment

	switch e.Operation {
	case core.OpInsert:
		if e.ClientRef != "" && r.Applier.Registry().IsPending(e.ClientRef) {
			// Authoritative confirmation of our own pending create: swap the
			// provisional identity instead of inserting a duplicate.
			if r.Store.ResolveTempID(e.ClientRef, c) {
				r.Applier.Registry().Settle(e.ClientRef, c.ID, true)
				return "confirmed"
			}
		}
		if err := r.Store.UpsertComment(c); err != nil {
			r.Logger.Warn("comment insert not applied", "comment", c.ID, "error", err)
			return "failed"
		}
	case core.OpUpdate:
		if !r.Store.UpdateComment(c.PostID, c.ID, c.Body, c.UpdatedAt) {
			return "noop"
		}
	case core.OpDelete:
		if r.Store.RemoveComment(c.PostID, c.ID) == 0 {
			return "noop"
		}
	}
	return "applied"
}

func (r *Router) dispatchReaction(e *core.ChangeEvent) string {
	react := e.Reaction

	kind := react.Kind
	if e.Operation == core.OpDelete {
		kind = ""
	}
	if !r.Store.SetReaction(react.SubjectID, react.SubjectKind, react.UserID, kind) {
		return "noop"
	}
	return "applied"
}

func (r *Router) dispatchBookmark(e *core.ChangeEvent) string {
	b := e.Bookmark

	if !r.Store.SetBookmark(b.PostID, b.UserID, e.Operation != core.OpDelete) {
		return "noop"
	}
	return "applied"
}
