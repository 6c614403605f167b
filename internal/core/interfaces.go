package core

import (
	"context"
	"time"
)

// Writer is the durable-write boundary. All calls are fire-and-await with a
// single success/failure outcome; payloads never contain temp ids.
type Writer interface {
	CreatePost(ctx context.Context, body string, visibility Visibility, tags []string) (Created, error)
	DeletePost(ctx context.Context, id string) error
	CreateComment(ctx context.Context, postID string, parentID *string, body, clientRef string) (Created, error)
	UpdateComment(ctx context.Context, id, body string) error
	DeleteComment(ctx context.Context, id string) error
	SetReaction(ctx context.Context, subjectID string, subjectKind SubjectKind, kind string) error
	ToggleBookmark(ctx context.Context, postID string) error
}

// Created is the server's answer to a create write.
type Created struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Loader is the poll-reload boundary, used only while a push channel is
// disconnected.
type Loader interface {
	FetchFullState(ctx context.Context, postID string) (*FullState, error)
}

// KeyValueClient persists small engine state, such as change-feed cursors,
// across restarts.
type KeyValueClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// EventRepository archives raw change-feed events.
type EventRepository interface {
	Insert(ctx context.Context, events ...EventModel) error
}
