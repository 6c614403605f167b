package router

import (
	"context"

	"feedsync/internal/core"
)

// keep is the self-origin filter stage. Notifications that merely echo this
// client's own confirmed writes are suppressed: the optimistic applier
// already reflected them, and re-applying would double-count derived
// counters or resurrect a just-deleted node.
//
// The one exception is an insert whose client reference matches a still
// pending local temp id. That echo is the authoritative confirmation and is
// let through so dispatch can route it to temp-id resolution.
//
// Events by the same user from another session (different client tag) are
// real remote changes and pass through; the store's idempotence covers
// anything the filter misses.
func (r *Router) keep(_ context.Context, e *core.ChangeEvent) (bool, error) {
	if !e.Valid() {
		r.Logger.Warn("dropping malformed event", "kind", e.Kind, "operation", e.Operation)
		eventsProcessed.WithLabelValues(string(e.Kind), string(e.Operation), "malformed").Inc()
		return false, nil
	}

	reg := r.Applier.Registry()

	if e.Operation == core.OpInsert && e.ClientRef != "" && reg.IsPending(e.ClientRef) {
		return true, nil
	}

	if e.ClientTag != "" && e.ClientTag == r.Config.ClientTag {
		eventsProcessed.WithLabelValues(string(e.Kind), string(e.Operation), "suppressed").Inc()
		return false, nil
	}

	if e.ActorID == r.Config.UserID {
		id := e.EntityID()
		if reg.IsPending(id) || reg.RecentlyConfirmed(id) {
			eventsProcessed.WithLabelValues(string(e.Kind), string(e.Operation), "suppressed").Inc()
			return false, nil
		}
	}

	return true, nil
}
