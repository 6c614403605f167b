package engine

import (
	"context"
	"log/slog"

	"feedsync/internal/core"
	"feedsync/internal/optimistic"
	"feedsync/internal/poller"
	"feedsync/internal/store"
)

// Engine is the facade the embedding UI talks to: user actions go through
// the optimistic applier, reads come from the content store, and visibility
// gates the poll fallback. Change-feed consumption runs behind it as its
// own services.
type Engine struct {
	Logger  *slog.Logger
	Store   *store.Store
	Applier *optimistic.Applier
	Poller  *poller.Poller
}

func (e *Engine) Init(_ context.Context) error {
	e.Logger = e.Logger.With("component", "engine.Engine")
	return nil
}

// SetVisible reports the view's foreground visibility to the poll fallback.
func (e *Engine) SetVisible(visible bool) {
	e.Poller.SetVisible(visible)
}

// Notices delivers transient user-facing outcomes, such as a rejected write
// after its rollback.
func (e *Engine) Notices() <-chan optimistic.Notice {
	return e.Applier.Notices()
}

func (e *Engine) Post(id string) (*store.PostView, bool) {
	return e.Store.View(id)
}

func (e *Engine) CommentCount(postID string) int {
	return e.Store.CommentCount(postID)
}

func (e *Engine) Tally(subjectID string) map[string]int {
	return e.Store.Tally(subjectID)
}

func (e *Engine) CreatePost(ctx context.Context, body string, visibility core.Visibility, tags []string) string {
	return e.Applier.CreatePost(ctx, body, visibility, tags)
}

func (e *Engine) DeletePost(ctx context.Context, id string) {
	e.Applier.DeletePost(ctx, id)
}

func (e *Engine) CreateComment(ctx context.Context, postID string, parentID *string, body string) string {
	return e.Applier.CreateComment(ctx, postID, parentID, body)
}

func (e *Engine) EditComment(ctx context.Context, postID, id, body string) {
	e.Applier.EditComment(ctx, postID, id, body)
}

func (e *Engine) DeleteComment(ctx context.Context, postID, id string) {
	e.Applier.DeleteComment(ctx, postID, id)
}

func (e *Engine) React(ctx context.Context, postID, subjectID string, subjectKind core.SubjectKind, kind string) {
	e.Applier.React(ctx, postID, subjectID, subjectKind, kind)
}

func (e *Engine) ToggleBookmark(ctx context.Context, postID string) {
	e.Applier.ToggleBookmark(ctx, postID)
}
