package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/lifecycle"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/qr"
)

// mockTicketDB is an in-memory implementation of TicketDBLayer.
type mockTicketDB struct {
	tickets  map[string]*models.Ticket
	events   map[string]*models.Event
	guests   map[string]*models.GuestListEntry
	checkins map[string][]models.CheckIn
}

func newMockTicketDB() *mockTicketDB {
	return &mockTicketDB{
		tickets:  make(map[string]*models.Ticket),
		events:   make(map[string]*models.Event),
		guests:   make(map[string]*models.GuestListEntry),
		checkins: make(map[string][]models.CheckIn),
	}
}

func (m *mockTicketDB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	copied := *ticket
	m.tickets[ticket.Code] = &copied
	return nil
}

func (m *mockTicketDB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	ticket, ok := m.tickets[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (m *mockTicketDB) GetTicketsByEvent(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range m.tickets {
		if t.EventID == eventID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTicketDB) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range m.tickets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTicketDB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	event, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *event
	return &copied, nil
}

func (m *mockTicketDB) GuestEntryExists(ctx context.Context, id, eventID string) (bool, error) {
	entry, ok := m.guests[id]
	return ok && entry.EventID == eventID, nil
}

func (m *mockTicketDB) HasCheckIn(ctx context.Context, ticketCode string) (bool, error) {
	return len(m.checkins[ticketCode]) > 0, nil
}

func (m *mockTicketDB) CheckInsByTicket(ctx context.Context, ticketCode string) ([]models.CheckIn, error) {
	return m.checkins[ticketCode], nil
}

func (m *mockTicketDB) UpdateTicketStatus(ctx context.Context, code string, from []string, to string) (bool, error) {
	ticket, ok := m.tickets[code]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if ticket.Status == f {
			ticket.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTicketDB) MarkPaid(ctx context.Context, code string) (bool, error) {
	ticket, ok := m.tickets[code]
	if !ok || ticket.Status != models.TicketStatusNew {
		return false, nil
	}
	ticket.Status = models.TicketStatusPaid
	ticket.Paid = true
	return true, nil
}

func (m *mockTicketDB) ResetTicket(ctx context.Context, code string) (bool, error) {
	ticket, ok := m.tickets[code]
	if !ok || ticket.Status != models.TicketStatusUsed {
		return false, nil
	}
	ticket.Status = models.TicketStatusNew
	delete(m.checkins, code)
	return true, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(actor, action, entityType, entityID string, detail map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func newTestService(db *mockTicketDB) (*Service, *recordingAudit) {
	audit := &recordingAudit{}
	svc := NewService(db, qr.NewGenerator("test-secret"), audit, nil, "ticketly.ticket.cancelled", logger.NewTestLogger())
	return svc, audit
}

func seedEvent(db *mockTicketDB, status string) {
	db.events["event1"] = &models.Event{ID: "event1", Name: "Summer Fest", Status: status}
}

func seedTicket(db *mockTicketDB, code, status string) {
	db.tickets[code] = &models.Ticket{
		Code: code, EventID: "event1", UserID: "user1",
		Status: status, IssuedAt: time.Now().UTC(),
	}
}

func TestIssueTicketForUser(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	svc, audit := newTestService(db)

	ticket, err := svc.IssueTicket(context.Background(), "admin1", IssueRequest{
		EventID: "event1",
		UserID:  "user1",
	})
	require.NoError(t, err)
	assert.Len(t, ticket.Code, 8)
	assert.Equal(t, models.TicketStatusNew, ticket.Status)
	assert.NotEmpty(t, ticket.QRCode)
	assert.Contains(t, audit.actions, models.AuditActionTicketIssued)
}

func TestIssueTicketPaidStartsPaid(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	svc, _ := newTestService(db)

	ticket, err := svc.IssueTicket(context.Background(), "admin1", IssueRequest{
		EventID: "event1",
		UserID:  "user1",
		Paid:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusPaid, ticket.Status)
	assert.True(t, ticket.Paid)
}

func TestIssueTicketOwnerValidation(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	db.guests["guest1"] = &models.GuestListEntry{ID: "guest1", EventID: "event1", FullName: "Alice"}
	svc, _ := newTestService(db)
	ctx := context.Background()

	// No owner at all.
	_, err := svc.IssueTicket(ctx, "admin1", IssueRequest{EventID: "event1"})
	assert.ErrorIs(t, err, ErrInvalidOwner)

	// Both owners.
	_, err = svc.IssueTicket(ctx, "admin1", IssueRequest{
		EventID: "event1", UserID: "user1", GuestEntryID: "guest1",
	})
	assert.ErrorIs(t, err, ErrInvalidOwner)

	// Guest-list owner alone is fine.
	ticket, err := svc.IssueTicket(ctx, "admin1", IssueRequest{
		EventID: "event1", GuestEntryID: "guest1",
	})
	require.NoError(t, err)
	assert.Equal(t, "guest1", ticket.GuestEntryID)
	assert.Empty(t, ticket.UserID)
}

func TestIssueTicketClosedEventRejected(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusClosed)
	svc, _ := newTestService(db)

	_, err := svc.IssueTicket(context.Background(), "admin1", IssueRequest{
		EventID: "event1", UserID: "user1",
	})
	_, ok := lifecycle.AsRejection(err)
	assert.True(t, ok)
}

func TestIssueTicketUnknownGuestEntry(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	svc, _ := newTestService(db)

	_, err := svc.IssueTicket(context.Background(), "admin1", IssueRequest{
		EventID: "event1", GuestEntryID: "nope",
	})
	assert.Error(t, err)
}

func TestMarkPaidTransition(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusNew)
	svc, audit := newTestService(db)

	ticket, err := svc.MarkPaid(context.Background(), "payments", "ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusPaid, ticket.Status)
	assert.True(t, ticket.Paid)
	assert.Contains(t, audit.actions, models.AuditActionTicketPaid)

	// Second confirmation is a rejection, not a silent success.
	_, err = svc.MarkPaid(context.Background(), "payments", "ABC123")
	_, ok := lifecycle.AsRejection(err)
	assert.True(t, ok)
}

func TestCancelByOwner(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusNew)
	svc, audit := newTestService(db)

	err := svc.Cancel(context.Background(), "user1", false, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCancelled, db.tickets["ABC123"].Status)
	assert.Contains(t, audit.actions, models.AuditActionTicketCancel)
}

func TestCancelByNonOwnerForbidden(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusNew)
	svc, _ := newTestService(db)

	err := svc.Cancel(context.Background(), "someone-else", false, "ABC123")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestCancelByAdminAlwaysAllowedForFreshTickets(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusPaid)
	svc, _ := newTestService(db)

	err := svc.Cancel(context.Background(), "admin1", true, "ABC123")
	require.NoError(t, err)
}

func TestCancelUsedTicketWithCheckinRejected(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusUsed)
	db.checkins["ABC123"] = []models.CheckIn{{
		ID: "c1", TicketCode: "ABC123", OperatorID: "op1", ScannedAt: time.Now().UTC(),
	}}
	svc, _ := newTestService(db)

	err := svc.Cancel(context.Background(), "admin1", true, "ABC123")
	rej, ok := lifecycle.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, lifecycle.ReasonUsedWithRecord, rej.Reason)
	assert.Equal(t, models.TicketStatusUsed, db.tickets["ABC123"].Status)
}

func TestCancelUnknownTicket(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	svc, _ := newTestService(db)

	err := svc.Cancel(context.Background(), "admin1", true, "ZZZ999")
	assert.ErrorIs(t, err, lifecycle.ErrTicketNotFound)
}

func TestResetCheckin(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusUsed)
	db.checkins["ABC123"] = []models.CheckIn{{
		ID: "c1", TicketCode: "ABC123", OperatorID: "op1", ScannedAt: time.Now().UTC(),
	}}
	svc, audit := newTestService(db)

	err := svc.ResetCheckin(context.Background(), "admin1", "ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusNew, db.tickets["ABC123"].Status)
	assert.Empty(t, db.checkins["ABC123"])
	assert.Contains(t, audit.actions, models.AuditActionCheckinReset)
}

func TestResetCheckinRequiresUsedStatus(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusNew)
	svc, _ := newTestService(db)

	err := svc.ResetCheckin(context.Background(), "admin1", "ABC123")
	rej, ok := lifecycle.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, lifecycle.ReasonNotResettable, rej.Reason)
}

func TestGetTicketWithHistory(t *testing.T) {
	db := newMockTicketDB()
	seedEvent(db, models.EventStatusPublished)
	seedTicket(db, "ABC123", models.TicketStatusUsed)
	db.checkins["ABC123"] = []models.CheckIn{{
		ID: "c1", TicketCode: "ABC123", OperatorID: "op1", ScannedAt: time.Now().UTC(),
	}}
	svc, _ := newTestService(db)

	ticket, checkins, err := svc.GetTicket(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", ticket.Code)
	assert.Len(t, checkins, 1)
}
