package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CheckIn is an append-only attendance record. Rows are never updated;
// they are deleted only by an administrative check-in reset or when the
// owning event is deleted.
type CheckIn struct {
	bun.BaseModel `bun:"table:checkins,alias:ci"`

	ID         string    `bun:"id,pk" json:"id"`
	TicketCode string    `bun:"ticket_code,notnull" json:"ticket_code"`
	OperatorID string    `bun:"operator_id,notnull" json:"operator_id"`
	Gate       string    `bun:"gate,nullzero" json:"gate,omitempty"`
	Notes      string    `bun:"notes,nullzero" json:"notes,omitempty"`
	ScannedAt  time.Time `bun:"scanned_at,notnull" json:"scanned_at"`
}
