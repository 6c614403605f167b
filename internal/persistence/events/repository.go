package events

import (
	"context"

	"feedsync/internal/core"
	"feedsync/internal/persistence"
)

type Repository struct {
	DB *persistence.DB
}

func (r *Repository) Insert(ctx context.Context, events ...core.EventModel) error {
	if len(events) == 0 {
		return nil
	}
	return r.DB.Model(&core.EventModel{}).WithContext(ctx).Create(&events).Error
}
