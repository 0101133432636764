package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/lifecycle"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// mockCheckinDB is an in-memory implementation of CheckinDBLayer.
type mockCheckinDB struct {
	mu       sync.Mutex
	tickets  map[string]*models.Ticket
	events   map[string]*models.Event
	checkins []models.CheckIn

	failOn        string
	errorToReturn error

	// claimDenied forces ClaimTicket to lose; onClaim runs first to
	// simulate a concurrent winner mutating state.
	claimDenied bool
	onClaim     func()
}

func newMockCheckinDB() *mockCheckinDB {
	return &mockCheckinDB{
		tickets: make(map[string]*models.Ticket),
		events:  make(map[string]*models.Event),
	}
}

func (m *mockCheckinDB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	if m.failOn == "GetTicketByCode" {
		return nil, m.errorToReturn
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (m *mockCheckinDB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	if m.failOn == "GetEventByID" {
		return nil, m.errorToReturn
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *event
	return &copied, nil
}

func (m *mockCheckinDB) ClaimTicket(ctx context.Context, code string, rec *models.CheckIn) (bool, error) {
	if m.failOn == "ClaimTicket" {
		return false, m.errorToReturn
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimDenied {
		if m.onClaim != nil {
			m.onClaim()
			m.onClaim = nil
		}
		return false, nil
	}
	ticket, ok := m.tickets[code]
	if !ok || !ticket.Checkinable() {
		return false, nil
	}
	ticket.Status = models.TicketStatusUsed
	ticket.UpdatedAt = rec.ScannedAt
	m.checkins = append(m.checkins, *rec)
	return true, nil
}

func (m *mockCheckinDB) FirstCheckIn(ctx context.Context, ticketCode string) (*models.CheckIn, error) {
	if m.failOn == "FirstCheckIn" {
		return nil, m.errorToReturn
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var first *models.CheckIn
	for i := range m.checkins {
		c := m.checkins[i]
		if c.TicketCode != ticketCode {
			continue
		}
		if first == nil || c.ScannedAt.Before(first.ScannedAt) {
			first = &c
		}
	}
	if first == nil {
		return nil, sql.ErrNoRows
	}
	return first, nil
}

func (m *mockCheckinDB) CheckinsByEvent(ctx context.Context, eventID string, limit int) ([]models.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CheckIn
	for _, c := range m.checkins {
		ticket, ok := m.tickets[c.TicketCode]
		if ok && ticket.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCheckinDB) CountCheckinsByEvent(ctx context.Context, eventID string) (int, error) {
	checkins, _ := m.CheckinsByEvent(ctx, eventID, 0)
	return len(checkins), nil
}

type mockAudit struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockAudit) Record(actor, action, entityType, entityID string, detail map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

func newTestService(db *mockCheckinDB) (*Service, *mockAudit) {
	audit := &mockAudit{}
	return NewService(db, audit, nil, nil, "ticketly.checkin.recorded", logger.NewTestLogger()), audit
}

func seedPublished(db *mockCheckinDB, code, ticketStatus string) {
	db.events["event1"] = &models.Event{ID: "event1", Name: "Summer Fest", Status: models.EventStatusPublished}
	db.tickets[code] = &models.Ticket{
		Code:     code,
		EventID:  "event1",
		UserID:   "user1",
		Status:   ticketStatus,
		IssuedAt: time.Now().UTC(),
	}
}

func TestCheckinSuccess(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusNew)
	svc, audit := newTestService(db)

	result, err := svc.Checkin(context.Background(), "ABC123", "op1", "north", "")
	require.NoError(t, err)
	assert.False(t, result.AlreadyUsed)
	assert.Equal(t, models.TicketStatusUsed, result.Ticket.Status)
	require.NotNil(t, result.CheckIn)
	assert.Equal(t, "op1", result.CheckIn.OperatorID)
	assert.Equal(t, "north", result.CheckIn.Gate)
	assert.Len(t, db.checkins, 1)
	assert.Contains(t, audit.actions, models.AuditActionCheckin)
}

func TestCheckinRepeatScanIsIdempotent(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusNew)
	svc, _ := newTestService(db)
	ctx := context.Background()

	first, err := svc.Checkin(ctx, "ABC123", "op1", "", "")
	require.NoError(t, err)
	require.False(t, first.AlreadyUsed)

	// Every subsequent scan reports already-used with the original
	// timestamp and creates no new rows.
	for i := 0; i < 3; i++ {
		repeat, err := svc.Checkin(ctx, "ABC123", "op2", "", "")
		require.NoError(t, err)
		assert.True(t, repeat.AlreadyUsed)
		assert.Equal(t, first.CheckIn.ScannedAt, repeat.LastScanTime)
	}
	assert.Len(t, db.checkins, 1)
}

func TestCheckinCancelledTicketRejected(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "CXL001", models.TicketStatusCancelled)
	svc, _ := newTestService(db)

	_, err := svc.Checkin(context.Background(), "CXL001", "op1", "", "")
	rej, ok := lifecycle.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, lifecycle.ReasonTicketCancelled, rej.Reason)
	assert.Empty(t, db.checkins)
}

func TestCheckinClosedEventRejected(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusNew)
	db.events["event1"].Status = models.EventStatusClosed
	svc, _ := newTestService(db)

	_, err := svc.Checkin(context.Background(), "ABC123", "op1", "", "")
	rej, ok := lifecycle.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, lifecycle.ReasonEventClosed, rej.Reason)
	assert.Empty(t, db.checkins)
}

func TestCheckinUnknownCodeNotFound(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusNew)
	svc, _ := newTestService(db)

	_, err := svc.Checkin(context.Background(), "ZZZ999", "op1", "", "")
	assert.ErrorIs(t, err, lifecycle.ErrTicketNotFound)
	assert.Empty(t, db.checkins)
}

func TestCheckinLostRaceReportsAlreadyUsed(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusNew)
	svc, _ := newTestService(db)
	ctx := context.Background()

	// Another scanner wins between the guard check and the claim: the
	// claim comes back unclaimed and the re-read classifies the outcome.
	winnerScan := time.Now().UTC().Add(-time.Minute)
	db.claimDenied = true
	db.onClaim = func() {
		db.tickets["ABC123"].Status = models.TicketStatusUsed
		db.checkins = append(db.checkins, models.CheckIn{
			ID: "winner", TicketCode: "ABC123", OperatorID: "op9", ScannedAt: winnerScan,
		})
	}

	result, err := svc.Checkin(ctx, "ABC123", "op2", "", "")
	require.NoError(t, err)
	assert.True(t, result.AlreadyUsed)
	assert.Equal(t, winnerScan, result.LastScanTime)
}

func TestCheckinInternalErrorSurfaces(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusNew)
	db.failOn = "ClaimTicket"
	db.errorToReturn = errors.New("connection reset")
	svc, _ := newTestService(db)

	_, err := svc.Checkin(context.Background(), "ABC123", "op1", "", "")
	require.Error(t, err)
	_, isRejection := lifecycle.AsRejection(err)
	assert.False(t, isRejection)
	assert.NotErrorIs(t, err, lifecycle.ErrTicketNotFound)
}

func TestCheckinUsedTicketWithoutRecordStillReportsUsed(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusUsed)
	updated := time.Now().UTC().Add(-time.Hour)
	db.tickets["ABC123"].UpdatedAt = updated
	svc, _ := newTestService(db)

	result, err := svc.Checkin(context.Background(), "ABC123", "op1", "", "")
	require.NoError(t, err)
	assert.True(t, result.AlreadyUsed)
	assert.Equal(t, updated, result.LastScanTime)
}

func TestEventCheckinsSummary(t *testing.T) {
	db := newMockCheckinDB()
	seedPublished(db, "ABC123", models.TicketStatusNew)
	svc, _ := newTestService(db)
	ctx := context.Background()

	_, err := svc.Checkin(ctx, "ABC123", "op1", "", "")
	require.NoError(t, err)

	summary, err := svc.EventCheckins(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Len(t, summary.RecentScans, 1)
}

func TestEventCheckinsUnknownEvent(t *testing.T) {
	db := newMockCheckinDB()
	svc, _ := newTestService(db)

	_, err := svc.EventCheckins(context.Background(), "nope")
	assert.ErrorIs(t, err, lifecycle.ErrEventNotFound)
}
