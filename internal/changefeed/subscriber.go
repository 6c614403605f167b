package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"feedsync/internal/config"
	"feedsync/internal/core"
)

const (
	reconnectDelay     = 5 * time.Second
	cursorSaveInterval = 5 * time.Second
)

// Subscriber maintains one websocket subscription per entity kind against
// the server change feed and merges the decoded events into a single
// channel, preserving per-channel delivery order. Each subscription has its
// own resilience supervisor, so one degraded channel does not take the
// others down with it.
//
// Cursors are persisted per kind so a restart resumes from the last
// delivered commit instead of replaying or skipping.
type Subscriber struct {
	Logger *slog.Logger
	Config *config.Config
	KV     core.KeyValueClient

	ch          chan *core.ChangeEvent
	supervisors map[core.EntityKind]*Supervisor
}

func (s *Subscriber) Init(_ context.Context) error {
	s.Logger = s.Logger.With("component", "changefeed.Subscriber")
	s.ch = make(chan *core.ChangeEvent)
	s.supervisors = map[core.EntityKind]*Supervisor{}
	for _, kind := range core.Kinds {
		s.supervisors[kind] = NewSupervisor(kind)
	}
	return nil
}

func (s *Subscriber) Shutdown(_ context.Context) error {
	close(s.ch)
	return nil
}

// C is the merged event stream consumed by the router.
func (s *Subscriber) C() <-chan *core.ChangeEvent {
	return s.ch
}

func (s *Subscriber) Supervisor(kind core.EntityKind) *Supervisor {
	return s.supervisors[kind]
}

// AnyDisconnected reports whether at least one channel is degraded and the
// poll fallback should be running.
func (s *Subscriber) AnyDisconnected() bool {
	for _, sup := range s.supervisors {
		if sup.State() == StateDisconnected {
			return true
		}
	}
	return false
}

// Watch subscribes ch to every supervisor's transitions.
func (s *Subscriber) Watch(ch chan<- Transition) {
	for _, sup := range s.supervisors {
		sup.Watch(ch)
	}
}

func (s *Subscriber) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, kind := range core.Kinds {
		wg.Add(1)
		go func(kind core.EntityKind) {
			defer wg.Done()
			s.loop(ctx, kind)
		}(kind)
	}
	wg.Wait()
	return nil
}

func (s *Subscriber) loop(ctx context.Context, kind core.EntityKind) {
	sup := s.supervisors[kind]

	for {
		if ctx.Err() != nil {
			return
		}

		sup.To(StateConnecting)

		cursor := s.loadCursor(ctx, kind)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.buildURL(kind, cursor), nil)
		if err != nil {
			s.Logger.Error("channel dial failed", "kind", kind, "error", err)
			sup.To(StateDisconnected)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			continue
		}

		s.Logger.Info("channel connected", "kind", kind, "cursor", cursor)
		sup.To(StateConnected)

		err = s.read(ctx, kind, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		s.Logger.Error("channel dropped, reconnecting", "kind", kind, "error", err)
		sup.To(StateDisconnected)
		if !sleep(ctx, reconnectDelay) {
			return
		}
	}
}

func (s *Subscriber) read(ctx context.Context, kind core.EntityKind, conn *websocket.Conn) error {
	cursor := int64(0)
	lastSave := time.Now()

	defer func() {
		if cursor > 0 {
			// The run context may already be cancelled during shutdown.
			saveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			s.saveCursor(saveCtx, kind, cursor)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var event core.ChangeEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.Logger.Error("failed to decode event", "kind", kind, "error", err)
			continue
		}
		if event.Kind == "" {
			event.Kind = kind
		}

		select {
		case s.ch <- &event:
		case <-ctx.Done():
			return ctx.Err()
		}

		if event.Seq > cursor {
			cursor = event.Seq
		}
		if time.Since(lastSave) >= cursorSaveInterval && cursor > 0 {
			s.saveCursor(ctx, kind, cursor)
			lastSave = time.Now()
		}
	}
}

func (s *Subscriber) buildURL(kind core.EntityKind, cursor int64) string {
	u, _ := url.Parse(s.Config.FeedURL)
	q := u.Query()
	q.Set("kind", string(kind))
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) loadCursor(ctx context.Context, kind core.EntityKind) int64 {
	raw, err := s.KV.Get(ctx, cursorKey(kind))
	if err != nil {
		return 0
	}
	cursor, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return cursor
}

func (s *Subscriber) saveCursor(ctx context.Context, kind core.EntityKind, cursor int64) {
	if err := s.KV.Put(ctx, cursorKey(kind), []byte(strconv.FormatInt(cursor, 10))); err != nil {
		s.Logger.Warn("failed to save cursor", "kind", kind, "error", err)
	}
}

func cursorKey(kind core.EntityKind) string {
	return "cursor." + string(kind)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
