package optimistic

import (
	"sync"

	"feedsync/internal/core"
)

// confirmedKeep bounds the memory of recently confirmed write ids kept for
// echo suppression.
const confirmedKeep = 1024

// PendingMutation is the local-only record of an optimistic action that has
// not settled yet. It exists between the synchronous store apply and the
// durable write's outcome, and is removed on confirmation or rollback.
// Creates are keyed by their temp id; other operations by the entity id
// they target.
type PendingMutation struct {
	Key  string
	Kind core.EntityKind
	Op   core.Operation
}

type settleFn func(realID string, ok bool)

// Registry tracks in-flight optimistic mutations. It answers three
// questions: is this id still pending (so a create echo can be routed to
// temp-id resolution instead of dropped), did this client recently confirm
// a write for this id (so the echo of its own write is suppressed), and
// when do the pending mutations on an entity settle (so dependent writes
// are sequenced after them instead of racing a stale snapshot).
type Registry struct {
	mu        sync.Mutex
	pending   map[string][]PendingMutation
	waiters   map[string][]settleFn
	confirmed map[string]bool
	order     []string

	// resolved maps settled temp ids to their server identity ("" for
	// failed creates), so dependents registering after the fact still get
	// the right id.
	resolved      map[string]string
	resolvedOrder []string
}

func NewRegistry() *Registry {
	return &Registry{
		pending:   map[string][]PendingMutation{},
		waiters:   map[string][]settleFn{},
		confirmed: map[string]bool{},
		resolved:  map[string]string{},
	}
}

func (r *Registry) Add(m PendingMutation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[m.Key] = append(r.pending[m.Key], m)
}

// Settle resolves one pending mutation under key. Once the key has no
// pending mutations left, every dependent action queued on it is released.
// For failed creates realID is empty and ok is false; waiters decide what
// to do with that.
func (r *Registry) Settle(key, realID string, ok bool) {
	r.mu.Lock()
	left := r.pending[key]
	if len(left) > 0 {
		left = left[1:]
	}
	if len(left) == 0 {
		delete(r.pending, key)
	} else {
		r.pending[key] = left
	}

	var waiters []settleFn
	if len(left) == 0 {
		waiters = r.waiters[key]
		delete(r.waiters, key)
		if core.IsTempID(key) {
			if !ok {
				realID = ""
			}
			r.resolveLocked(key, realID)
		}
	}
	if ok {
		r.rememberLocked(key)
		if realID != "" && realID != key {
			r.rememberLocked(realID)
		}
	}
	r.mu.Unlock()

	for _, fn := range waiters {
		fn(realID, ok)
	}
}

// IsPending reports whether an id has unsettled local mutations.
func (r *Registry) IsPending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[id]) > 0
}

// RecentlyConfirmed reports whether this client itself confirmed a write
// for the id. Echoed notifications for such ids are already reflected
// locally and must not be re-applied.
func (r *Registry) RecentlyConfirmed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmed[id]
}

// Remember marks an id as locally confirmed without it ever having been
// registered, for write paths with no pending entry of their own.
func (r *Registry) Remember(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rememberLocked(id)
}

// OnSettle queues fn behind the pending mutations for id. If nothing is
// pending, fn runs immediately: with the server identity when id is a temp
// id that already resolved, with ok false when its create failed, and with
// the id unchanged otherwise.
func (r *Registry) OnSettle(id string, fn settleFn) {
	r.mu.Lock()
	if len(r.pending[id]) > 0 {
		r.waiters[id] = append(r.waiters[id], fn)
		r.mu.Unlock()
		return
	}
	realID, ok := id, true
	if mapped, found := r.resolved[id]; found {
		realID, ok = mapped, mapped != ""
	}
	r.mu.Unlock()
	fn(realID, ok)
}

// Resolution returns the server identity a temp id settled to. Failed
// creates and ids never seen report false.
func (r *Registry) Resolution(tempID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	realID, ok := r.resolved[tempID]
	if !ok || realID == "" {
		return "", false
	}
	return realID, true
}

func (r *Registry) resolveLocked(tempID, realID string) {
	if _, ok := r.resolved[tempID]; ok {
		return
	}
	r.resolved[tempID] = realID
	r.resolvedOrder = append(r.resolvedOrder, tempID)
	if len(r.resolvedOrder) > confirmedKeep {
		delete(r.resolved, r.resolvedOrder[0])
		r.resolvedOrder = r.resolvedOrder[1:]
	}
}

func (r *Registry) rememberLocked(id string) {
	if id == "" || r.confirmed[id] {
		return
	}
	r.confirmed[id] = true
	r.order = append(r.order, id)
	if len(r.order) > confirmedKeep {
		delete(r.confirmed, r.order[0])
		r.order = r.order[1:]
	}
}
