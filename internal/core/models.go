package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can see a post.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

type Post struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"authorId"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Body       string     `json:"body"`
	Visibility Visibility `json:"visibility"`
	Tags       []string   `json:"tags,omitempty"`

	QuotedPostID *string `json:"quotedPostId,omitempty"`
	RepostOfID   *string `json:"repostOfId,omitempty"`
}

// Comment is a node in a post's reply forest. Top-level comments have a nil
// ParentID; replies nest through Children to unbounded depth. A comment's
// PostID always equals its root ancestor's PostID.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"postId"`
	AuthorID  string     `json:"authorId"`
	ParentID  *string    `json:"parentId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Body      string     `json:"body"`
	Children  []*Comment `json:"children,omitempty"`
}

// Pending reports whether the comment still carries a client-minted id.
func (c *Comment) Pending() bool {
	return IsTempID(c.ID)
}

type SubjectKind string

const (
	SubjectPost    SubjectKind = "post"
	SubjectComment SubjectKind = "comment"
)

// Reaction is one user's reaction to a post or comment. At most one reaction
// exists per (SubjectID, UserID); setting a new kind replaces the old one.
type Reaction struct {
	SubjectID   string      `json:"subjectId"`
	SubjectKind SubjectKind `json:"subjectKind"`
	UserID      string      `json:"userId"`
	Kind        string      `json:"kind"`
}

type Bookmark struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

// FullState is a complete server-side snapshot of a single post, fetched
// through the poll-reload boundary while the push channel is degraded.
type FullState struct {
	Post       *Post      `json:"post"`
	Comments   []*Comment `json:"comments"`
	Reactions  []Reaction `json:"reactions"`
	Bookmarked []string   `json:"bookmarked"`
}

const tempIDPrefix = "temp-"

// NewTempID mints a provisional client-side identifier. It is replaced by the
// server-assigned id once the durable write confirms.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
