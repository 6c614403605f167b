package store_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feedsync/internal/core"
	"feedsync/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()

	s := &store.Store{Logger: slog.Default()}
	require.NoError(t, s.Init(t.Context()))
	return s
}

func post(id string) *core.Post {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &core.Post{
		ID:         id,
		AuthorID:   "author",
		CreatedAt:  now,
		UpdatedAt:  now,
		Body:       "body of " + id,
		Visibility: core.VisibilityPublic,
	}
}

func comment(id, postID string, parentID *string) *core.Comment {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &core.Comment{
		ID:        id,
		PostID:    postID,
		AuthorID:  "author",
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
		Body:      "body of " + id,
	}
}

func ptr(s string) *string {
	return &s
}

func TestStore_UpsertCommentIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))
	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))

	require.Equal(t, 1, s.CommentCount("p1"))
	require.Equal(t, 1, s.RecountComments("p1"))
}

func TestStore_RemoveCommentIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))
	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))

	require.Equal(t, 1, s.RemoveComment("p1", "c1"))
	require.Zero(t, s.RemoveComment("p1", "c1"))
	require.Zero(t, s.CommentCount("p1"))
}

func TestStore_CountMatchesTreeAfterMutations(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))
	require.NoError(t, s.UpsertComment(comment("c2", "p1", ptr("c1"))))
	require.NoError(t, s.UpsertComment(comment("c3", "p1", ptr("c2"))))
	require.NoError(t, s.UpsertComment(comment("c4", "p1", ptr("c1"))))
	require.NoError(t, s.UpsertComment(comment("c5", "p1", nil)))

	require.Equal(t, 5, s.CommentCount("p1"))
	require.Equal(t, s.RecountComments("p1"), s.CommentCount("p1"))

	// Removing c2 cascades to c3.
	require.Equal(t, 2, s.RemoveComment("p1", "c2"))
	require.Equal(t, 3, s.CommentCount("p1"))
	require.Equal(t, s.RecountComments("p1"), s.CommentCount("p1"))
}

func TestStore_DeferredInsertFlushedByParentArrival(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	// The reply outran its parent across channels.
	require.NoError(t, s.UpsertComment(comment("c2", "p1", ptr("c1"))))
	require.Zero(t, s.CommentCount("p1"))
	require.Equal(t, 1, s.DeferredDepth())

	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))

	require.Equal(t, 2, s.CommentCount("p1"))
	require.Zero(t, s.DeferredDepth())
	require.True(t, s.HasComment("p1", "c2"))
}

func TestStore_DeferredInsertFlushedByPostArrival(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))
	require.Equal(t, 1, s.DeferredDepth())

	s.UpsertPost(post("p1"))

	require.Equal(t, 1, s.CommentCount("p1"))
	require.Zero(t, s.DeferredDepth())
}

func TestStore_DeferredChainFlushesRecursively(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	require.NoError(t, s.UpsertComment(comment("c3", "p1", ptr("c2"))))
	require.NoError(t, s.UpsertComment(comment("c2", "p1", ptr("c1"))))
	require.Equal(t, 2, s.DeferredDepth())

	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))

	require.Equal(t, 3, s.CommentCount("p1"))
	require.Zero(t, s.DeferredDepth())
}

func TestStore_ResolveTempID(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	temp := core.NewTempID()
	require.NoError(t, s.UpsertComment(comment(temp, "p1", nil)))
	require.Equal(t, 1, s.CommentCount("p1"))

	require.True(t, s.ResolveTempID(temp, comment("c1", "p1", nil)))

	require.False(t, s.HasComment("p1", temp))
	require.True(t, s.HasComment("p1", "c1"))
	require.Equal(t, 1, s.CommentCount("p1"))

	confirmed, ok := s.Comment("p1", "c1")
	require.True(t, ok)
	require.Equal(t, "body of c1", confirmed.Body)
}

func TestStore_ResolveTempIDRekeysReactions(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	temp := core.NewTempID()
	require.NoError(t, s.UpsertComment(comment(temp, "p1", nil)))
	require.True(t, s.SetReaction(temp, core.SubjectComment, "u1", "like"))

	require.True(t, s.ResolveTempID(temp, comment("c1", "p1", nil)))

	require.Empty(t, s.Tally(temp))
	require.Equal(t, map[string]int{"like": 1}, s.Tally("c1"))
}

func TestStore_ResolveTempIDWhileDeferred(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	// The comment is parked waiting for its post; the confirmation arrives
	// before the post does.
	temp := core.NewTempID()
	require.NoError(t, s.UpsertComment(comment(temp, "p1", nil)))
	require.Equal(t, 1, s.DeferredDepth())

	require.True(t, s.ResolveTempID(temp, comment("c1", "p1", nil)))

	s.UpsertPost(post("p1"))

	require.Zero(t, s.DeferredDepth())
	require.True(t, s.HasComment("p1", "c1"))
	require.False(t, s.HasComment("p1", temp))
	require.Equal(t, 1, s.CommentCount("p1"))
}

func TestStore_ResolveTempIDRekeysDeferredChildren(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	tempParent := core.NewTempID()
	require.NoError(t, s.UpsertComment(comment(tempParent, "p1", nil)))
	require.NoError(t, s.UpsertComment(comment("c2", "p1", ptr(tempParent))))
	require.Equal(t, 2, s.DeferredDepth())

	require.True(t, s.ResolveTempID(tempParent, comment("c1", "p1", nil)))

	s.UpsertPost(post("p1"))

	require.Zero(t, s.DeferredDepth())
	require.Equal(t, 2, s.CommentCount("p1"))
	child, ok := s.Comment("p1", "c2")
	require.True(t, ok)
	require.NotNil(t, child.ParentID)
	require.Equal(t, "c1", *child.ParentID)
}

func TestStore_ReresolveTempIDs(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	temp := core.NewTempID()
	require.NoError(t, s.UpsertComment(comment(temp, "p1", nil)))
	require.NoError(t, s.UpsertComment(comment("c2", "p1", ptr(temp))))
	require.True(t, s.SetReaction(temp, core.SubjectComment, "u1", "like"))

	s.ReresolveTempIDs("p1", func(tempID string) (string, bool) {
		if tempID == temp {
			return "c1", true
		}
		return "", false
	})

	require.False(t, s.HasComment("p1", temp))
	require.True(t, s.HasComment("p1", "c1"))
	require.Equal(t, 2, s.CommentCount("p1"))

	child, ok := s.Comment("p1", "c2")
	require.True(t, ok)
	require.Equal(t, "c1", *child.ParentID)

	require.Empty(t, s.Tally(temp))
	require.Equal(t, map[string]int{"like": 1}, s.Tally("c1"))
}

func TestStore_ReresolveTempIDsSkipsUnsettled(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	temp := core.NewTempID()
	require.NoError(t, s.UpsertComment(comment(temp, "p1", nil)))

	s.ReresolveTempIDs("p1", func(string) (string, bool) { return "", false })

	require.True(t, s.HasComment("p1", temp))
	require.Equal(t, 1, s.CommentCount("p1"))
}

func TestStore_ReactionAtMostOnePerUser(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	require.True(t, s.SetReaction("p1", core.SubjectPost, "u1", "like"))
	require.True(t, s.SetReaction("p1", core.SubjectPost, "u1", "heart"))
	require.True(t, s.SetReaction("p1", core.SubjectPost, "u2", "like"))

	require.Equal(t, map[string]int{"heart": 1, "like": 1}, s.Tally("p1"))

	r, ok := s.Reaction("p1", "u1")
	require.True(t, ok)
	require.Equal(t, "heart", r.Kind)
}

func TestStore_SetReactionIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	require.True(t, s.SetReaction("p1", core.SubjectPost, "u1", "like"))
	require.False(t, s.SetReaction("p1", core.SubjectPost, "u1", "like"))

	require.True(t, s.SetReaction("p1", core.SubjectPost, "u1", ""))
	require.False(t, s.SetReaction("p1", core.SubjectPost, "u1", ""))
	require.Empty(t, s.Tally("p1"))
}

func TestStore_ToggleBookmark(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))

	require.True(t, s.ToggleBookmark("p1", "u1"))
	require.True(t, s.Bookmarked("p1", "u1"))
	require.False(t, s.ToggleBookmark("p1", "u1"))
	require.False(t, s.Bookmarked("p1", "u1"))
}

func TestStore_SetBookmarkIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	require.True(t, s.SetBookmark("p1", "u1", true))
	require.False(t, s.SetBookmark("p1", "u1", true))
	require.True(t, s.SetBookmark("p1", "u1", false))
	require.False(t, s.SetBookmark("p1", "u1", false))
}

func TestStore_SnapshotRestoreExact(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))
	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))
	require.NoError(t, s.UpsertComment(comment("c2", "p1", ptr("c1"))))
	require.True(t, s.SetReaction("c1", core.SubjectComment, "u1", "like"))
	require.True(t, s.ToggleBookmark("p1", "u1"))

	before, ok := s.View("p1")
	require.True(t, ok)

	snap := s.SnapshotPost("p1")

	// A burst of mutations that all have to be reversed together.
	require.NoError(t, s.UpsertComment(comment("c3", "p1", ptr("c2"))))
	require.Equal(t, 1, s.RemoveComment("p1", "c3"))
	require.NoError(t, s.UpsertComment(comment("c4", "p1", nil)))
	require.True(t, s.SetReaction("c1", core.SubjectComment, "u1", "heart"))
	s.ToggleBookmark("p1", "u2")

	s.RestorePost(snap)

	after, ok := s.View("p1")
	require.True(t, ok)
	require.Equal(t, before, after)
	require.Equal(t, s.RecountComments("p1"), s.CommentCount("p1"))
}

func TestStore_SnapshotRestoreAbsentPost(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	snap := s.SnapshotPost("p1")
	s.UpsertPost(post("p1"))
	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))

	s.RestorePost(snap)

	_, ok := s.Post("p1")
	require.False(t, ok)
	require.Zero(t, s.CommentCount("p1"))
}

func TestStore_RemovePostCascades(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))
	require.NoError(t, s.UpsertComment(comment("c1", "p1", nil)))
	require.True(t, s.SetReaction("c1", core.SubjectComment, "u1", "like"))
	require.True(t, s.SetReaction("p1", core.SubjectPost, "u1", "like"))

	require.True(t, s.RemovePost("p1"))
	require.False(t, s.RemovePost("p1"))

	_, ok := s.Post("p1")
	require.False(t, ok)
	require.Empty(t, s.Tally("p1"))
	require.Empty(t, s.Tally("c1"))
}

func TestStore_ReplacePost(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	s.UpsertPost(post("p1"))
	require.NoError(t, s.UpsertComment(comment("stale", "p1", nil)))
	require.True(t, s.SetReaction("stale", core.SubjectComment, "u1", "like"))

	root := comment("c1", "p1", nil)
	root.Children = []*core.Comment{comment("c2", "p1", ptr("c1"))}

	s.ReplacePost(&core.FullState{
		Post:     post("p1"),
		Comments: []*core.Comment{root},
		Reactions: []core.Reaction{
			{SubjectID: "c1", SubjectKind: core.SubjectComment, UserID: "u2", Kind: "heart"},
		},
		Bookmarked: []string{"u1"},
	})

	require.Equal(t, 2, s.CommentCount("p1"))
	require.Equal(t, s.RecountComments("p1"), s.CommentCount("p1"))
	require.False(t, s.HasComment("p1", "stale"))
	require.Empty(t, s.Tally("stale"))
	require.Equal(t, map[string]int{"heart": 1}, s.Tally("c1"))
	require.True(t, s.Bookmarked("p1", "u1"))
}
