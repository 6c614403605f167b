package store

import (
	"github.com/samber/lo"

	"feedsync/internal/core"
)

const (
	maxDeferred        = 256
	maxDeferredRetries = 5
)

// deferredInsert is a comment whose parent (or post) has not arrived yet.
// Change-feed delivery is at-least-once and per-channel ordered, but a reply
// can outrun its parent across channels or reconnects, so unknown-parent
// inserts wait here instead of being dropped.
type deferredInsert struct {
	waitFor  string
	comment  *core.Comment
	attempts int
}

type deferredQueue struct {
	entries []*deferredInsert
}

func (q *deferredQueue) push(waitFor string, c *core.Comment) error {
	if len(q.entries) >= maxDeferred {
		return core.ErrQueueFull
	}
	q.entries = append(q.entries, &deferredInsert{waitFor: waitFor, comment: c})
	return nil
}

// take removes and returns entries waiting on the given id.
func (q *deferredQueue) take(id string) []*deferredInsert {
	taken := lo.Filter(q.entries, func(e *deferredInsert, _ int) bool {
		return e.waitFor == id
	})
	if len(taken) > 0 {
		q.entries = lo.Reject(q.entries, func(e *deferredInsert, _ int) bool {
			return e.waitFor == id
		})
	}
	return taken
}

// rekey rewrites a provisional id across parked entries once its identity
// settles: the entry itself, parent references, and wait keys.
func (q *deferredQueue) rekey(tempID string, real *core.Comment) bool {
	found := false
	for _, e := range q.entries {
		if e.comment.ID == tempID {
			e.comment.ID = real.ID
			e.comment.AuthorID = real.AuthorID
			e.comment.Body = real.Body
			e.comment.CreatedAt = real.CreatedAt
			e.comment.UpdatedAt = real.UpdatedAt
			found = true
		}
		if e.comment.ParentID != nil && *e.comment.ParentID == tempID {
			id := real.ID
			e.comment.ParentID = &id
		}
		if e.waitFor == tempID {
			e.waitFor = real.ID
		}
	}
	return found
}

// requeue puts an entry back after a failed attempt. Entries that keep
// failing are dropped once the retry budget runs out.
func (q *deferredQueue) requeue(e *deferredInsert) bool {
	e.attempts++
	if e.attempts >= maxDeferredRetries {
		return false
	}
	q.entries = append(q.entries, e)
	return true
}

func (q *deferredQueue) len() int {
	return len(q.entries)
}
