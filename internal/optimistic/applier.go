package optimistic

import (
	"context"
	"log/slog"
	"time"

	"feedsync/internal/config"
	"feedsync/internal/core"
	"feedsync/internal/store"
)

// Notice is a user-visible transient outcome of an optimistic action,
// typically a rejected durable write after its rollback. Not retried.
type Notice struct {
	Kind    core.EntityKind
	Op      core.Operation
	Message string
	Err     error
}

// Applier applies user-authored actions to the Store immediately, records
// enough state to reverse them, and issues the durable write. On success
// the pending entity is promoted to its server identity; on failure the
// pre-mutation snapshot is restored and a Notice emitted.
//
// Actions that target an entity with unsettled mutations are queued behind
// them: the durable write only issues once the entity's identity is final,
// so a temp id never leaks into a write payload. A snapshot can still
// predate a confirmation that lands while the queued write is in flight; a
// rollback therefore re-keys identities that settled in the meantime
// instead of regressing them to their temp ids.
type Applier struct {
	Logger *slog.Logger
	Config *config.Config
	Store  *store.Store
	Writer core.Writer

	registry *Registry
	notices  chan Notice
}

func (a *Applier) Init(_ context.Context) error {
	a.Logger = a.Logger.With("component", "optimistic.Applier")
	a.registry = NewRegistry()
	a.notices = make(chan Notice, 16)
	return nil
}

// Registry exposes the pending-mutation bookkeeping to the event router.
func (a *Applier) Registry() *Registry {
	return a.registry
}

// Notices delivers write-rejected outcomes. The channel is buffered and
// drops on overflow rather than blocking the engine.
func (a *Applier) Notices() <-chan Notice {
	return a.notices
}

// CreatePost optimistically publishes a post and returns its temp id.
func (a *Applier) CreatePost(ctx context.Context, body string, visibility core.Visibility, tags []string) string {
	tempID := core.NewTempID()
	now := time.Now().UTC()

	post := &core.Post{
		ID:         tempID,
		AuthorID:   a.Config.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Body:       body,
		Visibility: visibility,
		Tags:       tags,
	}

	snap := a.Store.SnapshotPost(tempID)
	a.Store.UpsertPost(post)
	a.registry.Add(PendingMutation{Key: tempID, Kind: core.KindPost, Op: core.OpInsert})

	go func() {
		created, err := a.Writer.CreatePost(ctx, body, visibility, tags)
		if err != nil {
			a.rollback(snap, tempID, tempID, core.KindPost, core.OpInsert, err)
			return
		}

		// Posts are not nested; promotion is a remove-and-reinsert under
		// the real id.
		a.Store.RemovePost(tempID)
		post.ID = created.ID
		post.CreatedAt = created.CreatedAt
		a.Store.UpsertPost(post)
		a.registry.Settle(tempID, created.ID, true)
	}()

	return tempID
}

// DeletePost optimistically removes a post, cascading locally, and issues
// the durable delete once any pending mutation on the post settles.
func (a *Applier) DeletePost(ctx context.Context, id string) {
	go a.registry.OnSettle(id, func(realID string, ok bool) {
		if !ok {
			a.dropDependent(core.KindPost, core.OpDelete, id)
			return
		}

		snap := a.Store.SnapshotPost(realID)
		if !a.Store.RemovePost(realID) {
			return
		}
		a.registry.Add(PendingMutation{Key: realID, Kind: core.KindPost, Op: core.OpDelete})

		if err := a.Writer.DeletePost(ctx, realID); err != nil {
			a.rollback(snap, realID, realID, core.KindPost, core.OpDelete, err)
			return
		}
		a.registry.Settle(realID, realID, true)
	})
}

// CreateComment optimistically inserts a comment (top-level when parentID
// is nil) and returns its temp id. The durable write carries the temp id as
// client reference so the echoed notification can be matched back.
func (a *Applier) CreateComment(ctx context.Context, postID string, parentID *string, body string) string {
	tempID := core.NewTempID()
	now := time.Now().UTC()

	comment := &core.Comment{
		ID:        tempID,
		PostID:    postID,
		AuthorID:  a.Config.UserID,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
		Body:      body,
	}

	snap := a.Store.SnapshotPost(postID)
	if err := a.Store.UpsertComment(comment); err != nil {
		a.notify(Notice{Kind: core.KindComment, Op: core.OpInsert, Message: "could not add comment", Err: err})
		return ""
	}
	a.registry.Add(PendingMutation{Key: tempID, Kind: core.KindComment, Op: core.OpInsert})

	issue := func(parent *string) {
		created, err := a.Writer.CreateComment(ctx, postID, parent, body, tempID)
		if err != nil {
			a.rollback(snap, postID, tempID, core.KindComment, core.OpInsert, err)
			return
		}

		a.Store.ResolveTempID(tempID, &core.Comment{
			ID:        created.ID,
			PostID:    postID,
			AuthorID:  a.Config.UserID,
			ParentID:  parent,
			CreatedAt: created.CreatedAt,
			UpdatedAt: created.CreatedAt,
			Body:      body,
		})
		a.registry.Settle(tempID, created.ID, true)
	}

	if parentID != nil {
		parent := *parentID
		go a.registry.OnSettle(parent, func(realID string, ok bool) {
			if !ok {
				// The parent never made it to the server; the reply cannot
				// either. Its subtree went away with the parent's rollback.
				a.registry.Settle(tempID, "", false)
				a.dropDependent(core.KindComment, core.OpInsert, tempID)
				return
			}
			issue(&realID)
		})
	} else {
		go issue(nil)
	}

	return tempID
}

// EditComment optimistically patches a comment body. The durable write
// waits for any pending mutation on the comment, so edits of a just-created
// reply are sequenced after its confirmation.
func (a *Applier) EditComment(ctx context.Context, postID, id, body string) {
	now := time.Now().UTC()

	snap := a.Store.SnapshotPost(postID)
	if !a.Store.UpdateComment(postID, id, body, now) {
		a.notify(Notice{Kind: core.KindComment, Op: core.OpUpdate, Message: "comment no longer exists", Err: core.ErrCommentNotFound})
		return
	}

	go a.registry.OnSettle(id, func(realID string, ok bool) {
		if !ok {
			a.dropDependent(core.KindComment, core.OpUpdate, id)
			return
		}

		// Temp-id resolution rewrites the node from the server record, which
		// predates this edit. Re-assert it under the settled identity.
		a.Store.UpdateComment(postID, realID, body, now)

		a.registry.Add(PendingMutation{Key: realID, Kind: core.KindComment, Op: core.OpUpdate})
		if err := a.Writer.UpdateComment(ctx, realID, body); err != nil {
			a.rollback(snap, postID, realID, core.KindComment, core.OpUpdate, err)
			return
		}
		a.registry.Settle(realID, realID, true)
	})
}

// DeleteComment optimistically removes a comment and its subtree.
func (a *Applier) DeleteComment(ctx context.Context, postID, id string) {
	snap := a.Store.SnapshotPost(postID)
	if a.Store.RemoveComment(postID, id) == 0 {
		return
	}

	go a.registry.OnSettle(id, func(realID string, ok bool) {
		if !ok {
			// The comment was never durable; the local removal stands.
			return
		}

		a.registry.Add(PendingMutation{Key: realID, Kind: core.KindComment, Op: core.OpDelete})
		if err := a.Writer.DeleteComment(ctx, realID); err != nil {
			a.rollback(snap, postID, realID, core.KindComment, core.OpDelete, err)
			return
		}
		a.registry.Settle(realID, realID, true)
	})
}

// React optimistically sets the local user's reaction on a post or comment.
// An empty kind clears it. At most one reaction per (subject, user) exists;
// a new kind replaces the previous one.
func (a *Applier) React(ctx context.Context, postID, subjectID string, subjectKind core.SubjectKind, kind string) {
	snap := a.Store.SnapshotPost(postID)
	if !a.Store.SetReaction(subjectID, subjectKind, a.Config.UserID, kind) {
		return
	}

	go a.registry.OnSettle(subjectID, func(realID string, ok bool) {
		if !ok {
			a.dropDependent(core.KindReaction, core.OpUpdate, subjectID)
			return
		}

		a.registry.Add(PendingMutation{Key: realID, Kind: core.KindReaction, Op: core.OpUpdate})
		if err := a.Writer.SetReaction(ctx, realID, subjectKind, kind); err != nil {
			a.rollback(snap, postID, realID, core.KindReaction, core.OpUpdate, err)
			return
		}
		a.registry.Settle(realID, realID, true)
	})
}

// ToggleBookmark optimistically flips the local user's bookmark on a post.
func (a *Applier) ToggleBookmark(ctx context.Context, postID string) {
	snap := a.Store.SnapshotPost(postID)
	a.Store.ToggleBookmark(postID, a.Config.UserID)

	go a.registry.OnSettle(postID, func(realID string, ok bool) {
		if !ok {
			a.dropDependent(core.KindBookmark, core.OpUpdate, postID)
			return
		}

		a.registry.Add(PendingMutation{Key: realID, Kind: core.KindBookmark, Op: core.OpUpdate})
		if err := a.Writer.ToggleBookmark(ctx, realID); err != nil {
			a.rollback(snap, postID, realID, core.KindBookmark, core.OpUpdate, err)
			return
		}
		a.registry.Settle(realID, realID, true)
	})
}

func (a *Applier) rollback(snap *store.PostSnapshot, postID, key string, kind core.EntityKind, op core.Operation, err error) {
	a.Logger.Warn("write rejected, rolling back", "kind", kind, "op", op, "error", err)
	a.Store.RestorePost(snap)
	// The snapshot may predate a confirmation that settled while the write
	// was in flight. Put settled identities back so the restore never
	// regresses a durable entity to its temp id.
	a.Store.ReresolveTempIDs(postID, a.registry.Resolution)
	a.registry.Settle(key, "", false)
	a.notify(Notice{Kind: kind, Op: op, Message: "change could not be saved", Err: err})
}

func (a *Applier) dropDependent(kind core.EntityKind, op core.Operation, id string) {
	a.Logger.Warn("dropping action dependent on a failed write", "kind", kind, "op", op, "id", id)
	a.notify(Notice{Kind: kind, Op: op, Message: "a previous change failed; this one was discarded", Err: core.ErrWriteRejected})
}

func (a *Applier) notify(n Notice) {
	select {
	case a.notices <- n:
	default:
		a.Logger.Warn("notice dropped, channel full", "message", n.Message)
	}
}
