package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

type DB struct {
	Bun *bun.DB
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

// ClaimTicket attempts the NEW/PAID -> USED transition and records the
// check-in in a single transaction. The conditional UPDATE claims the
// ticket row: zero rows affected means another scanner already won, or the
// ticket is not in a checkinable state. The CheckIn insert only happens
// for the winning claim, so at most one row ever exists per first check-in.
func (d *DB) ClaimTicket(ctx context.Context, code string, rec *models.CheckIn) (bool, error) {
	var claimed bool
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketStatusUsed).
			Set("updated_at = ?", rec.ScannedAt).
			Where("code = ?", code).
			Where("status IN (?)", bun.In([]string{models.TicketStatusNew, models.TicketStatusPaid})).
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

		if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// FirstCheckIn returns the earliest check-in recorded for a ticket.
func (d *DB) FirstCheckIn(ctx context.Context, ticketCode string) (*models.CheckIn, error) {
	var checkin models.CheckIn
	err := d.Bun.NewSelect().
		Model(&checkin).
		Where("ticket_code = ?", ticketCode).
		Order("scanned_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &checkin, nil
}

// CheckinsByEvent returns the most recent check-ins for an event, newest first.
func (d *DB) CheckinsByEvent(ctx context.Context, eventID string, limit int) ([]models.CheckIn, error) {
	var checkins []models.CheckIn
	err := d.Bun.NewSelect().
		Model(&checkins).
		Join("JOIN tickets AS t ON t.code = ci.ticket_code").
		Where("t.event_id = ?", eventID).
		Order("scanned_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return checkins, nil
}

// CountCheckinsByEvent returns the number of check-ins recorded for an event.
func (d *DB) CountCheckinsByEvent(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.CheckIn)(nil)).
		Join("JOIN tickets AS t ON t.code = ci.ticket_code").
		Where("t.event_id = ?", eventID).
		Count(ctx)
}
