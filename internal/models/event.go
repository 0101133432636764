package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event statuses. Only PUBLISHED events admit check-ins.
const (
	EventStatusDraft     = "DRAFT"
	EventStatusPublished = "PUBLISHED"
	EventStatusCancelled = "CANCELLED"
	EventStatusClosed    = "CLOSED"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID       string    `bun:"id,pk" json:"id"`
	Name     string    `bun:"name,notnull" json:"name"`
	Status   string    `bun:"status,notnull" json:"status"`
	StartsAt time.Time `bun:"starts_at,nullzero" json:"starts_at,omitempty"`
}
