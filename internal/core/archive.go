package core

import (
	"time"

	"gorm.io/gorm"
)

// EventModel is an archived raw change-feed event.
type EventModel struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt

	Kind      string
	Operation string
	ActorID   string
	Seq       int64
	Payload   []byte
}

func (EventModel) TableName() string {
	return "events"
}
