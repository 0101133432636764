package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket statuses. USED is terminal for entry; CANCELLED is terminal.
const (
	TicketStatusNew       = "NEW"
	TicketStatusPaid      = "PAID"
	TicketStatusUsed      = "USED"
	TicketStatusCancelled = "CANCELLED"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	Code         string    `bun:"code,pk" json:"code"`
	EventID      string    `bun:"event_id,notnull" json:"event_id"`
	UserID       string    `bun:"user_id,nullzero" json:"user_id,omitempty"`
	GuestEntryID string    `bun:"guest_entry_id,nullzero" json:"guest_entry_id,omitempty"`
	Status       string    `bun:"status,notnull" json:"status"`
	Paid         bool      `bun:"paid" json:"paid"`
	QRCode       []byte    `bun:"qr_code" json:"-"`
	IssuedAt     time.Time `bun:"issued_at,notnull" json:"issued_at"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Checkinable reports whether the ticket is in a state that admits entry.
// Event-level gating is checked separately.
func (t *Ticket) Checkinable() bool {
	return t.Status == TicketStatusNew || t.Status == TicketStatusPaid
}
