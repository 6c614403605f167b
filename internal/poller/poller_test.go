package poller

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feedsync/internal/changefeed"
	"feedsync/internal/config"
	"feedsync/internal/core"
	"feedsync/internal/store"
)

type fakeKV struct{}

func (fakeKV) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (fakeKV) Put(context.Context, string, []byte) error   { return nil }

type fakeLoader struct {
	mu      sync.Mutex
	fetched []string
}

func (l *fakeLoader) FetchFullState(_ context.Context, postID string) (*core.FullState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetched = append(l.fetched, postID)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &core.FullState{
		Post: &core.Post{
			ID:         postID,
			AuthorID:   "someone",
			CreatedAt:  now,
			UpdatedAt:  now,
			Body:       "reloaded",
			Visibility: core.VisibilityPublic,
		},
		Comments: []*core.Comment{
			{ID: "c1", PostID: postID, AuthorID: "someone", CreatedAt: now, UpdatedAt: now, Body: "hi"},
		},
	}, nil
}

func (l *fakeLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fetched)
}

func newPoller(t *testing.T, interval time.Duration, loader core.Loader) (*Poller, *store.Store, *changefeed.Subscriber) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	s := &store.Store{Logger: logger}
	require.NoError(t, s.Init(t.Context()))

	sub := &changefeed.Subscriber{
		Logger: logger,
		Config: &config.Config{FeedURL: "ws://feed.local/changes"},
		KV:     fakeKV{},
	}
	require.NoError(t, sub.Init(t.Context()))

	p := &Poller{
		Logger:     logger,
		Config:     &config.Config{PollInterval: interval},
		Store:      s,
		Subscriber: sub,
		Loader:     loader,
	}
	require.NoError(t, p.Init(t.Context()))
	return p, s, sub
}

func seedPost(s *store.Store, id string) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.UpsertPost(&core.Post{
		ID:         id,
		AuthorID:   "someone",
		CreatedAt:  now,
		UpdatedAt:  now,
		Body:       "stale",
		Visibility: core.VisibilityPublic,
	})
}

func TestPoller_ReloadsWhileDisconnected(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	p, s, sub := newPoller(t, 50*time.Millisecond, loader)
	seedPost(s, "p1")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	sub.Supervisor(core.KindComment).To(changefeed.StateDisconnected)

	require.Eventually(t, func() bool { return loader.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	// The reload swapped in the authoritative state.
	require.Eventually(t, func() bool { return s.CommentCount("p1") == 1 }, 2*time.Second, 5*time.Millisecond)
	post, ok := s.Post("p1")
	require.True(t, ok)
	require.Equal(t, "reloaded", post.Body)

	cancel()
	<-done
}

func TestPoller_NoReloadBeforeInterval(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	p, s, sub := newPoller(t, time.Hour, loader)
	seedPost(s, "p1")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go p.Run(ctx)

	// A short outage ends before the first tick; no reload happens.
	sub.Supervisor(core.KindComment).To(changefeed.StateDisconnected)
	time.Sleep(50 * time.Millisecond)
	sub.Supervisor(core.KindComment).To(changefeed.StateConnecting)
	sub.Supervisor(core.KindComment).To(changefeed.StateConnected)

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, loader.count())
}

func TestPoller_StopsWhenReconnected(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	p, s, sub := newPoller(t, 30*time.Millisecond, loader)
	seedPost(s, "p1")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go p.Run(ctx)

	sub.Supervisor(core.KindComment).To(changefeed.StateDisconnected)
	require.Eventually(t, func() bool { return loader.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	sub.Supervisor(core.KindComment).To(changefeed.StateConnecting)
	sub.Supervisor(core.KindComment).To(changefeed.StateConnected)

	// Give the poller a moment to observe the recovery, then confirm the
	// reload counter stays put.
	time.Sleep(100 * time.Millisecond)
	settled := loader.count()
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, settled, loader.count())
}

func TestPoller_HiddenViewSkipsReload(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	p, s, sub := newPoller(t, 30*time.Millisecond, loader)
	seedPost(s, "p1")
	p.SetVisible(false)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go p.Run(ctx)

	sub.Supervisor(core.KindComment).To(changefeed.StateDisconnected)
	time.Sleep(150 * time.Millisecond)
	require.Zero(t, loader.count())
}

func TestPoller_SkipsPendingPosts(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	p, s, _ := newPoller(t, time.Hour, loader)
	seedPost(s, "p1")
	seedPost(s, core.NewTempID())

	p.reload(t.Context())

	loader.mu.Lock()
	defer loader.mu.Unlock()
	require.Equal(t, []string{"p1"}, loader.fetched)
}
