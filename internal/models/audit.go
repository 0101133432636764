package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Audit actions recorded for privileged mutations.
const (
	AuditActionCheckin       = "ticket.checkin"
	AuditActionCheckinReset  = "ticket.checkin_reset"
	AuditActionTicketIssued  = "ticket.issued"
	AuditActionTicketPaid    = "ticket.payment_updated"
	AuditActionTicketCancel  = "ticket.cancelled"
	AuditActionEventStatus   = "event.status_changed"
	AuditActionGuestAdded    = "guestlist.entry_added"
)

// AuditLog is append-only: rows are never mutated or deleted.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs"`

	ID         string    `bun:"id,pk" json:"id"`
	Actor      string    `bun:"actor,notnull" json:"actor"`
	Action     string    `bun:"action,notnull" json:"action"`
	EntityType string    `bun:"entity_type,notnull" json:"entity_type"`
	EntityID   string    `bun:"entity_id,notnull" json:"entity_id"`
	Detail     string    `bun:"detail,nullzero" json:"detail,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}
