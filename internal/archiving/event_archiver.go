package archiving

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zhulik/pips"
	"github.com/zhulik/pips/apply"

	"feedsync/internal/core"
	"feedsync/internal/router"
)

const batchSize = 10

var archived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedsync_events_archived_total",
	Help: "The total number of change-feed events archived to Postgres",
})

// EventsArchiver taps the raw change-feed stream and batches it into the
// events table, before any filtering, so the archive sees self-origin
// echoes too.
type EventsArchiver struct {
	Logger     *slog.Logger
	Router     *router.Router
	Repository core.EventRepository

	ch chan *core.ChangeEvent
}

func (a *EventsArchiver) Init(_ context.Context) error {
	a.Logger = a.Logger.With("component", "archiving.EventsArchiver")
	a.ch = make(chan *core.ChangeEvent, 128)
	a.Router.Tap(a.ch)
	return nil
}

func (a *EventsArchiver) Shutdown(_ context.Context) error {
	close(a.ch)
	return nil
}

func (a *EventsArchiver) Run(ctx context.Context) error {
	return pips.New[*core.ChangeEvent, any]().
		Then(apply.Batch[*core.ChangeEvent](batchSize)).
		Then(
			apply.Map(func(ctx context.Context, events []*core.ChangeEvent) (any, error) {
				return nil, a.Archive(ctx, events...)
			}),
		).
		Run(ctx, pips.MapInputChan(ctx, (<-chan *core.ChangeEvent)(a.ch), func(_ context.Context, e *core.ChangeEvent) (*core.ChangeEvent, error) {
			return e, nil
		})).
		Wait(ctx)
}

func (a *EventsArchiver) Archive(ctx context.Context, events ...*core.ChangeEvent) error {
	models := make([]core.EventModel, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		models = append(models, core.EventModel{
			Kind:      string(event.Kind),
			Operation: string(event.Operation),
			ActorID:   event.ActorID,
			Seq:       event.Seq,
			Payload:   payload,
		})
	}

	if err := a.Repository.Insert(ctx, models...); err != nil {
		return err
	}

	archived.Add(float64(len(models)))
	return nil
}
