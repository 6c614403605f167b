package core

// EntityKind names one logical change-feed subscription.
type EntityKind string

const (
	KindPost     EntityKind = "post"
	KindComment  EntityKind = "comment"
	KindReaction EntityKind = "reaction"
	KindBookmark EntityKind = "bookmark"
)

// Kinds lists every entity kind the engine subscribes to.
var Kinds = []EntityKind{KindPost, KindComment, KindReaction, KindBookmark}

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent is one commit notification from the server change feed. It is
// a closed tagged variant: Kind selects which payload pointer is set.
type ChangeEvent struct {
	Kind      EntityKind `json:"kind"`
	Operation Operation  `json:"operation"`
	ActorID   string     `json:"actorId"`
	Seq       int64      `json:"seq"`

	// ClientTag identifies the client session that performed the write, if
	// any. ClientRef carries the writer's provisional id on insert echoes so
	// the originating client can match the echo to its pending mutation.
	ClientTag string `json:"clientTag,omitempty"`
	ClientRef string `json:"clientRef,omitempty"`

	Post     *Post     `json:"post,omitempty"`
	Comment  *Comment  `json:"comment,omitempty"`
	Reaction *Reaction `json:"reaction,omitempty"`
	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// EntityID returns the id of the entity the event describes. For reactions
// and bookmarks, which have no id of their own, it returns the subject id.
func (e *ChangeEvent) EntityID() string {
	switch e.Kind {
	case KindPost:
		if e.Post != nil {
			return e.Post.ID
		}
	case KindComment:
		if e.Comment != nil {
			return e.Comment.ID
		}
	case KindReaction:
		if e.Reaction != nil {
			return e.Reaction.SubjectID
		}
	case KindBookmark:
		if e.Bookmark != nil {
			return e.Bookmark.PostID
		}
	}
	return ""
}

// Valid reports whether the payload matching Kind is present.
func (e *ChangeEvent) Valid() bool {
	switch e.Kind {
	case KindPost:
		return e.Post != nil
	case KindComment:
		return e.Comment != nil
	case KindReaction:
		return e.Reaction != nil
	case KindBookmark:
		return e.Bookmark != nil
	}
	return false
}
