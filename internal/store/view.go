package store

import (
	"github.com/samber/lo"

	"feedsync/internal/core"
)

// PostView is a read-only copy of everything the UI renders for one post.
type PostView struct {
	Post         *core.Post
	Comments     []*core.Comment
	CommentCount int
	Tallies      map[string]int
	Bookmarks    []string
}

// View assembles a consistent deep copy of a post's entry in one lock
// acquisition.
func (s *Store) View(postID string) (*PostView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return nil, false
	}

	f := s.forests[postID]
	return &PostView{
		Post: copyPost(post),
		Comments: lo.Map(f.roots, func(root *core.Comment, _ int) *core.Comment {
			return copyComment(root)
		}),
		CommentCount: f.size,
		Tallies:      lo.Assign(map[string]int{}, s.tallies[postID]),
		Bookmarks:    lo.Keys(s.bookmarks[postID]),
	}, true
}
