package lifecycle

import (
	"errors"

	"ms-checkin/internal/models"
)

// ErrTicketNotFound signals that a code resolved to no ticket.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrEventNotFound signals that an event id resolved to no event.
var ErrEventNotFound = errors.New("event not found")

// Rejection reasons surfaced to the caller.
const (
	ReasonTicketCancelled = "ticket is cancelled"
	ReasonAlreadyUsed     = "ticket already used"
	ReasonEventClosed     = "event is no longer active"
	ReasonEventNotOpen    = "event is not open for check-in"
	ReasonNotPayable      = "ticket is not awaiting payment"
	ReasonUsedWithRecord  = "ticket was used with a recorded check-in"
	ReasonNotResettable   = "only a used ticket can have its check-in reset"
)

// Rejection is a business rejection: recoverable and informative, distinct
// from an internal failure. Handlers map it to a 400-class response.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func Reject(reason string) *Rejection { return &Rejection{Reason: reason} }

// AsRejection unwraps a Rejection from err, if present.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// CanCheckin decides whether a ticket may transition to USED given its own
// status and the owning event's status. A nil return means the transition
// is legal; the actual claim still happens atomically in the store.
func CanCheckin(ticket *models.Ticket, event *models.Event) error {
	switch ticket.Status {
	case models.TicketStatusCancelled:
		return Reject(ReasonTicketCancelled)
	case models.TicketStatusUsed:
		return Reject(ReasonAlreadyUsed)
	}

	switch event.Status {
	case models.EventStatusClosed, models.EventStatusCancelled:
		return Reject(ReasonEventClosed)
	case models.EventStatusDraft:
		return Reject(ReasonEventNotOpen)
	}
	return nil
}

// CanCancel decides whether a ticket may transition to CANCELLED. A used
// ticket with a surviving check-in record cannot be cancelled; an admin
// must reset the check-in first.
func CanCancel(ticket *models.Ticket, hasCheckIn bool) error {
	switch ticket.Status {
	case models.TicketStatusCancelled:
		return Reject(ReasonTicketCancelled)
	case models.TicketStatusUsed:
		if hasCheckIn {
			return Reject(ReasonUsedWithRecord)
		}
	}
	return nil
}

// CanMarkPaid decides whether a ticket may transition from NEW to PAID.
func CanMarkPaid(ticket *models.Ticket) error {
	switch ticket.Status {
	case models.TicketStatusCancelled:
		return Reject(ReasonTicketCancelled)
	case models.TicketStatusUsed:
		return Reject(ReasonAlreadyUsed)
	case models.TicketStatusPaid:
		return Reject(ReasonNotPayable)
	}
	return nil
}

// CanReset decides whether an administrative check-in reset (USED back to
// NEW, deleting check-in records) is legal.
func CanReset(ticket *models.Ticket) error {
	if ticket.Status != models.TicketStatusUsed {
		return Reject(ReasonNotResettable)
	}
	return nil
}
