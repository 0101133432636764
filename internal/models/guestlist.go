package models

import (
	"time"

	"github.com/uptrace/bun"
)

// GuestListEntry is a ticket holder sourced from a promoter-curated list
// rather than a self-registered user account. A ticket is owned by a user
// or a guest-list entry, never both.
type GuestListEntry struct {
	bun.BaseModel `bun:"table:guest_list_entries"`

	ID         string    `bun:"id,pk" json:"id"`
	EventID    string    `bun:"event_id,notnull" json:"event_id"`
	FullName   string    `bun:"full_name,notnull" json:"full_name"`
	PromoterID string    `bun:"promoter_id,nullzero" json:"promoter_id,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}
