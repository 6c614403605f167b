package store

import (
	"github.com/samber/lo"

	"feedsync/internal/core"
)

// PostSnapshot is a deep copy of one post's entire entry: the post itself,
// its comment forest, every reaction on the post or its comments, and the
// bookmark set. It is the rollback unit for optimistic mutations; restoring
// it returns the store to the exact pre-mutation state.
type PostSnapshot struct {
	postID  string
	present bool

	post      *core.Post
	roots     []*core.Comment
	reactions map[string]map[string]core.Reaction
	bookmarks map[string]bool
}

func (s *Store) SnapshotPost(postID string) *PostSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &PostSnapshot{postID: postID}

	post, ok := s.posts[postID]
	if !ok {
		return snap
	}
	snap.present = true
	snap.post = copyPost(post)
	snap.bookmarks = lo.Assign(map[string]bool{}, s.bookmarks[postID])

	f := s.forests[postID]
	snap.roots = lo.Map(f.roots, func(root *core.Comment, _ int) *core.Comment {
		return copyComment(root)
	})

	snap.reactions = map[string]map[string]core.Reaction{}
	snapSubject := func(subjectID string) {
		if users, ok := s.reactions[subjectID]; ok {
			snap.reactions[subjectID] = lo.Assign(map[string]core.Reaction{}, users)
		}
	}
	snapSubject(postID)
	for _, cid := range f.ids() {
		snapSubject(cid)
	}

	return snap
}

// RestorePost swaps a post's entry back to a snapshot, discarding anything
// applied since it was taken.
func (s *Store) RestorePost(snap *PostSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f := s.forests[snap.postID]; f != nil {
		for _, cid := range f.ids() {
			s.dropSubjectLocked(cid)
		}
	}
	s.dropSubjectLocked(snap.postID)

	if !snap.present {
		delete(s.posts, snap.postID)
		delete(s.forests, snap.postID)
		delete(s.bookmarks, snap.postID)
		return
	}

	s.posts[snap.postID] = copyPost(snap.post)
	s.bookmarks[snap.postID] = lo.Assign(map[string]bool{}, snap.bookmarks)

	f := newForest()
	for _, root := range snap.roots {
		cp := copyComment(root)
		f.roots = append(f.roots, cp)
		f.size += f.indexSubtree(cp)
	}
	s.forests[snap.postID] = f

	for subjectID, users := range snap.reactions {
		s.reactions[subjectID] = lo.Assign(map[string]core.Reaction{}, users)
		s.retallyLocked(subjectID)
	}
}
