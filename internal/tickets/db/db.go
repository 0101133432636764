package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByEvent(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("event_id = ?", eventID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GuestEntryExists(ctx context.Context, id, eventID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.GuestListEntry)(nil)).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Exists(ctx)
}

func (d *DB) HasCheckIn(ctx context.Context, ticketCode string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.CheckIn)(nil)).
		Where("ticket_code = ?", ticketCode).
		Exists(ctx)
}

func (d *DB) CheckInsByTicket(ctx context.Context, ticketCode string) ([]models.CheckIn, error) {
	var checkins []models.CheckIn
	err := d.Bun.NewSelect().
		Model(&checkins).
		Where("ticket_code = ?", ticketCode).
		Order("scanned_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return checkins, nil
}

// UpdateTicketStatus transitions a ticket from one of the given statuses
// to the target status in a single conditional UPDATE. Returns false when
// the ticket was not in any of the from statuses at update time.
func (d *DB) UpdateTicketStatus(ctx context.Context, code string, from []string, to string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("code = ?", code).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkPaid flips a NEW ticket to PAID and sets the paid flag.
func (d *DB) MarkPaid(ctx context.Context, code string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusPaid).
		Set("paid = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("code = ?", code).
		Where("status = ?", models.TicketStatusNew).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ResetTicket reverts a USED ticket to NEW and removes its check-in
// records, both in one transaction. Administrative action only.
func (d *DB) ResetTicket(ctx context.Context, code string) (bool, error) {
	var reset bool
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketStatusNew).
			Set("updated_at = ?", time.Now().UTC()).
			Where("code = ?", code).
			Where("status = ?", models.TicketStatusUsed).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		if _, err := tx.NewDelete().
			Model((*models.CheckIn)(nil)).
			Where("ticket_code = ?", code).
			Exec(ctx); err != nil {
			return err
		}
		reset = true
		return nil
	})
	return reset, err
}
