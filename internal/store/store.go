package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"

	"feedsync/internal/core"
)

var (
	deferredDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_deferred_inserts",
		Help: "Number of comment inserts waiting for their parent to arrive.",
	})

	deferredDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_deferred_inserts_dropped_total",
		Help: "Deferred comment inserts dropped after exhausting retries.",
	})
)

// Store is the normalized in-memory cache of the content graph: posts, one
// comment forest per post, reactions and bookmarks, plus the derived
// counters. Every mutation entry point is idempotent with respect to id, as
// the second line of defense against duplicate notifications.
//
// A single mutex serializes all mutation; handlers run to completion, so
// tree surgery never interleaves mid-operation.
type Store struct {
	Logger *slog.Logger

	mu        sync.Mutex
	posts     map[string]*core.Post
	forests   map[string]*forest
	reactions map[string]map[string]core.Reaction
	tallies   map[string]map[string]int
	bookmarks map[string]map[string]bool
	deferred  deferredQueue
}

func (s *Store) Init(_ context.Context) error {
	s.Logger = s.Logger.With("component", "store.Store")
	s.posts = map[string]*core.Post{}
	s.forests = map[string]*forest{}
	s.reactions = map[string]map[string]core.Reaction{}
	s.tallies = map[string]map[string]int{}
	s.bookmarks = map[string]map[string]bool{}
	return nil
}

// UpsertPost inserts or refreshes a post and makes its forest available,
// releasing any comment inserts that were waiting for the post.
func (s *Store) UpsertPost(p *core.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyPost(p)
	s.posts[cp.ID] = cp
	if _, ok := s.forests[cp.ID]; !ok {
		s.forests[cp.ID] = newForest()
	}
	s.flushLocked(cp.ID)
}

// RemovePost deletes a post and cascades to every descendant comment,
// reaction and bookmark.
func (s *Store) RemovePost(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return false
	}

	if f := s.forests[id]; f != nil {
		for _, cid := range f.ids() {
			s.dropSubjectLocked(cid)
		}
	}
	s.dropSubjectLocked(id)
	delete(s.posts, id)
	delete(s.forests, id)
	delete(s.bookmarks, id)
	return true
}

// UpsertComment places a comment into its post's forest. Unknown parents
// (or posts) park the insert in the deferred queue instead of dropping it;
// it is retried when the missing id arrives.
func (s *Store) UpsertComment(c *core.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.forests[c.PostID]
	if !ok {
		return s.deferLocked(c.PostID, c)
	}

	if _, err := f.insert(c); err != nil {
		return s.deferLocked(*c.ParentID, c)
	}

	s.flushLocked(c.ID)
	return nil
}

func (s *Store) deferLocked(waitFor string, c *core.Comment) error {
	if err := s.deferred.push(waitFor, copyComment(c)); err != nil {
		s.Logger.Warn("dropping comment insert, deferred queue full", "comment", c.ID)
		deferredDropped.Inc()
		return err
	}
	deferredDepth.Set(float64(s.deferred.len()))
	return nil
}

// flushLocked retries deferred inserts that were waiting on the given id.
func (s *Store) flushLocked(id string) {
	for _, entry := range s.deferred.take(id) {
		f, ok := s.forests[entry.comment.PostID]
		if ok {
			if _, err := f.insert(entry.comment); err == nil {
				s.flushLocked(entry.comment.ID)
				continue
			}
		}
		if !s.deferred.requeue(entry) {
			s.Logger.Warn("dropping deferred comment insert", "comment", entry.comment.ID)
			deferredDropped.Inc()
		}
	}
	deferredDepth.Set(float64(s.deferred.len()))
}

// UpdateComment patches a comment's body. ParentID never changes;
// re-parenting is not a supported operation.
func (s *Store) UpdateComment(postID, id, body string, updatedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.forests[postID]
	if !ok {
		return false
	}
	return f.update(id, body, updatedAt)
}

// RemoveComment splices a comment out of its tree, cascading to the whole
// subtree and its reactions. Returns how many comments were removed.
func (s *Store) RemoveComment(postID, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.forests[postID]
	if !ok {
		return 0
	}

	node, removed := f.remove(id)
	if node == nil {
		return 0
	}
	walkIDs(node, func(cid string) {
		s.dropSubjectLocked(cid)
	})
	return removed
}

// ResolveTempID swaps a pending comment's provisional identity for the
// server-confirmed record, in place, preserving its children. Reactions
// already attached to the temp id follow it to the real one. A comment
// still parked in the deferred queue is re-keyed there, so the eventual
// flush inserts it under its server identity.
func (s *Store) ResolveTempID(tempID string, real *core.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := false
	if f, ok := s.forests[real.PostID]; ok && f.resolve(tempID, real) {
		resolved = true
	}
	if s.deferred.rekey(tempID, real) {
		resolved = true
	}
	if !resolved {
		return false
	}

	s.rekeyReactionsLocked(tempID, real.ID)
	s.flushLocked(real.ID)
	return true
}

// ReresolveTempIDs re-keys provisional identities in a post's entry to the
// ids they settled to, using resolve as the lookup. A restored snapshot can
// predate a confirmation that landed while it was held; this puts the
// settled identities back without touching anything else.
func (s *Store) ReresolveTempIDs(postID string, resolve func(tempID string) (string, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.forests[postID]
	if !ok {
		return
	}

	for _, id := range f.ids() {
		if !core.IsTempID(id) {
			continue
		}
		realID, settled := resolve(id)
		if !settled {
			continue
		}

		node, found := f.find(id)
		if !found {
			continue
		}
		real := *node
		real.ID = realID
		real.Children = nil
		f.resolve(id, &real)
		s.deferred.rekey(id, &real)
		s.rekeyReactionsLocked(id, realID)
		s.flushLocked(realID)
	}
}

func (s *Store) rekeyReactionsLocked(tempID, realID string) {
	users, ok := s.reactions[tempID]
	if !ok {
		return
	}
	delete(s.reactions, tempID)
	rekeyed := map[string]core.Reaction{}
	for uid, r := range users {
		r.SubjectID = realID
		rekeyed[uid] = r
	}
	s.reactions[realID] = rekeyed
	s.retallyLocked(realID)
	s.dropTallyLocked(tempID)
}

// SetReaction records a user's reaction to a subject, replacing any previous
// one. An empty kind clears the reaction. The subject's tally is recomputed
// from the raw reaction set, never read from a stored counter.
func (s *Store) SetReaction(subjectID string, subjectKind core.SubjectKind, userID, kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.reactions[subjectID]
	if !ok {
		if kind == "" {
			return false
		}
		users = map[string]core.Reaction{}
		s.reactions[subjectID] = users
	}

	if kind == "" {
		if _, ok := users[userID]; !ok {
			return false
		}
		delete(users, userID)
	} else {
		if existing, ok := users[userID]; ok && existing.Kind == kind {
			return false
		}
		users[userID] = core.Reaction{
			SubjectID:   subjectID,
			SubjectKind: subjectKind,
			UserID:      userID,
			Kind:        kind,
		}
	}

	s.retallyLocked(subjectID)
	return true
}

// ToggleBookmark flips a user's bookmark on a post and reports the new
// state.
func (s *Store) ToggleBookmark(postID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.bookmarks[postID]
	if !ok {
		users = map[string]bool{}
		s.bookmarks[postID] = users
	}
	if users[userID] {
		delete(users, userID)
		return false
	}
	users[userID] = true
	return true
}

// SetBookmark applies a bookmark state directly, for change-feed events.
func (s *Store) SetBookmark(postID, userID string, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.bookmarks[postID]
	if !ok {
		if !on {
			return false
		}
		users = map[string]bool{}
		s.bookmarks[postID] = users
	}
	if users[userID] == on {
		return false
	}
	if on {
		users[userID] = true
	} else {
		delete(users, userID)
	}
	return true
}

func (s *Store) Bookmarked(postID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookmarks[postID][userID]
}

// CommentCount is the derived display counter: top-level comments plus all
// nested replies at every depth. It is maintained incrementally by the
// forest and always equals a full recount.
func (s *Store) CommentCount(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.forests[postID]; ok {
		return f.size
	}
	return 0
}

// RecountComments walks the whole forest. Exists so tests can pin the
// incremental counter to the ground truth.
func (s *Store) RecountComments(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.forests[postID]; ok {
		return f.recount()
	}
	return 0
}

// Tally returns the subject's reaction counts grouped by kind.
func (s *Store) Tally(subjectID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Assign(map[string]int{}, s.tallies[subjectID])
}

func (s *Store) Reaction(subjectID, userID string) (core.Reaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reactions[subjectID][userID]
	return r, ok
}

func (s *Store) Post(id string) (*core.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	return copyPost(p), true
}

func (s *Store) HasComment(postID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.forests[postID]
	return ok && f.has(id)
}

func (s *Store) Comment(postID, id string) (*core.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.forests[postID]
	if !ok {
		return nil, false
	}
	node, ok := f.find(id)
	if !ok {
		return nil, false
	}
	return copyComment(node), true
}

func (s *Store) PostIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.posts)
}

func (s *Store) DeferredDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deferred.len()
}

// ReplacePost swaps a post's entire entry for a server-side full state,
// used by the poll-reload fallback.
func (s *Store) ReplacePost(state *core.FullState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post := copyPost(state.Post)
	s.posts[post.ID] = post

	f := newForest()
	for _, root := range state.Comments {
		cp := copyComment(root)
		f.roots = append(f.roots, cp)
		f.size += f.indexSubtree(cp)
	}

	if old := s.forests[post.ID]; old != nil {
		for _, cid := range old.ids() {
			s.dropSubjectLocked(cid)
		}
	}
	s.dropSubjectLocked(post.ID)
	s.forests[post.ID] = f

	for _, r := range state.Reactions {
		users, ok := s.reactions[r.SubjectID]
		if !ok {
			users = map[string]core.Reaction{}
			s.reactions[r.SubjectID] = users
		}
		users[r.UserID] = r
	}
	for subjectID := range s.reactions {
		if subjectID == post.ID || f.has(subjectID) {
			s.retallyLocked(subjectID)
		}
	}

	s.bookmarks[post.ID] = lo.SliceToMap(state.Bookmarked, func(uid string) (string, bool) {
		return uid, true
	})
}

// retallyLocked recomputes a subject's tally from the full reaction set.
func (s *Store) retallyLocked(subjectID string) {
	users := s.reactions[subjectID]
	if len(users) == 0 {
		s.dropTallyLocked(subjectID)
		return
	}
	tally := map[string]int{}
	for _, r := range users {
		tally[r.Kind]++
	}
	s.tallies[subjectID] = tally
}

func (s *Store) dropTallyLocked(subjectID string) {
	delete(s.tallies, subjectID)
	if users, ok := s.reactions[subjectID]; ok && len(users) == 0 {
		delete(s.reactions, subjectID)
	}
}

func (s *Store) dropSubjectLocked(subjectID string) {
	delete(s.reactions, subjectID)
	delete(s.tallies, subjectID)
}

func walkIDs(node *core.Comment, fn func(string)) {
	fn(node.ID)
	for _, child := range node.Children {
		walkIDs(child, fn)
	}
}

func copyPost(p *core.Post) *core.Post {
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	if p.QuotedPostID != nil {
		id := *p.QuotedPostID
		cp.QuotedPostID = &id
	}
	if p.RepostOfID != nil {
		id := *p.RepostOfID
		cp.RepostOfID = &id
	}
	return &cp
}
