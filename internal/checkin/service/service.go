package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/lifecycle"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// CheckinDBLayer is the storage surface the check-in flow needs.
type CheckinDBLayer interface {
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	ClaimTicket(ctx context.Context, code string, rec *models.CheckIn) (bool, error)
	FirstCheckIn(ctx context.Context, ticketCode string) (*models.CheckIn, error)
	CheckinsByEvent(ctx context.Context, eventID string, limit int) ([]models.CheckIn, error)
	CountCheckinsByEvent(ctx context.Context, eventID string) (int, error)
}

// AuditRecorder records privileged actions without blocking the caller.
type AuditRecorder interface {
	Record(actor, action, entityType, entityID string, detail map[string]interface{})
}

// Publisher streams recorded check-ins to downstream consumers.
type Publisher interface {
	PublishCheckinRecorded(topic string, checkin models.CheckIn) error
}

// ScanCache keeps recent scans per event for the operator view.
type ScanCache interface {
	PushRecentScan(ctx context.Context, eventID string, checkin models.CheckIn) error
	RecentScans(ctx context.Context, eventID string, limit int) ([]models.CheckIn, error)
}

// Result is the outcome of a check-in attempt that was not an error.
// AlreadyUsed marks the idempotent repeat-scan outcome: the ticket was
// checked in earlier and LastScanTime carries the first scan's timestamp.
type Result struct {
	Ticket       *models.Ticket
	CheckIn      *models.CheckIn
	AlreadyUsed  bool
	LastScanTime time.Time
}

// EventSummary is the operator dashboard view of an event's check-ins.
type EventSummary struct {
	EventID     string           `json:"event_id"`
	Total       int              `json:"total"`
	RecentScans []models.CheckIn `json:"recent_scans"`
}

type Service struct {
	DB           CheckinDBLayer
	Audit        AuditRecorder
	Producer     Publisher
	Cache        ScanCache
	CheckinTopic string
	Logger       *logger.Logger
}

func NewService(db CheckinDBLayer, audit AuditRecorder, producer Publisher, cache ScanCache, topic string, log *logger.Logger) *Service {
	return &Service{
		DB:           db,
		Audit:        audit,
		Producer:     producer,
		Cache:        cache,
		CheckinTopic: topic,
		Logger:       log,
	}
}

// Checkin validates and records a check-in for the given ticket code.
//
// The status transition itself is claimed by a conditional UPDATE inside a
// transaction (see db.ClaimTicket), so concurrent scans of the same code
// race safely: exactly one wins, the rest see the already-used outcome.
// The guard checks before the claim exist to produce precise rejection
// reasons, not to enforce the transition.
func (s *Service) Checkin(ctx context.Context, code, operatorID, gate, notes string) (*Result, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrTicketNotFound
		}
		return nil, fmt.Errorf("fetch ticket %s: %w", code, err)
	}

	if ticket.Status == models.TicketStatusUsed {
		return s.alreadyUsed(ctx, ticket)
	}

	event, err := s.DB.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s missing for ticket %s", ticket.EventID, code)
		}
		return nil, fmt.Errorf("fetch event %s: %w", ticket.EventID, err)
	}

	if err := lifecycle.CanCheckin(ticket, event); err != nil {
		return nil, err
	}

	rec := &models.CheckIn{
		ID:         uuid.NewString(),
		TicketCode: ticket.Code,
		OperatorID: operatorID,
		Gate:       gate,
		Notes:      notes,
		ScannedAt:  time.Now().UTC(),
	}

	claimed, err := s.DB.ClaimTicket(ctx, code, rec)
	if err != nil {
		return nil, fmt.Errorf("claim ticket %s: %w", code, err)
	}
	if !claimed {
		// Lost the race or the status changed under us: re-read and classify.
		return s.classifyUnclaimed(ctx, code, event)
	}

	ticket.Status = models.TicketStatusUsed
	ticket.UpdatedAt = rec.ScannedAt

	s.Audit.Record(operatorID, models.AuditActionCheckin, "ticket", ticket.Code, map[string]interface{}{
		"checkin_id": rec.ID,
		"gate":       gate,
	})
	s.publishRecorded(*rec)
	s.cacheScan(ticket.EventID, *rec)

	s.Logger.LogCheckin(code, "checked in by "+operatorID)
	return &Result{Ticket: ticket, CheckIn: rec}, nil
}

func (s *Service) alreadyUsed(ctx context.Context, ticket *models.Ticket) (*Result, error) {
	first, err := s.DB.FirstCheckIn(ctx, ticket.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Status says USED but no record survives (e.g. partial admin
			// intervention). Report already-used with the ticket's own
			// update time rather than failing the scan.
			return &Result{Ticket: ticket, AlreadyUsed: true, LastScanTime: ticket.UpdatedAt}, nil
		}
		return nil, fmt.Errorf("fetch first check-in for %s: %w", ticket.Code, err)
	}
	return &Result{Ticket: ticket, AlreadyUsed: true, LastScanTime: first.ScannedAt}, nil
}

func (s *Service) classifyUnclaimed(ctx context.Context, code string, event *models.Event) (*Result, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrTicketNotFound
		}
		return nil, fmt.Errorf("re-fetch ticket %s: %w", code, err)
	}

	switch ticket.Status {
	case models.TicketStatusUsed:
		return s.alreadyUsed(ctx, ticket)
	case models.TicketStatusCancelled:
		return nil, lifecycle.Reject(lifecycle.ReasonTicketCancelled)
	}
	return nil, fmt.Errorf("ticket %s in status %s could not be claimed", code, ticket.Status)
}

// publishRecorded streams the check-in to Kafka. Best-effort: a publish
// failure is logged and never fails the scan.
func (s *Service) publishRecorded(rec models.CheckIn) {
	if s.Producer == nil {
		return
	}
	go func() {
		if err := s.Producer.PublishCheckinRecorded(s.CheckinTopic, rec); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish check-in %s: %v", rec.ID, err))
		}
	}()
}

func (s *Service) cacheScan(eventID string, rec models.CheckIn) {
	if s.Cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Cache.PushRecentScan(ctx, eventID, rec); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("failed to cache scan for event %s: %v", eventID, err))
		}
	}()
}

// EventCheckins returns the check-in total and recent scans for an event.
// Recent scans are served from the Redis cache when populated.
func (s *Service) EventCheckins(ctx context.Context, eventID string) (*EventSummary, error) {
	if _, err := s.DB.GetEventByID(ctx, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrEventNotFound
		}
		return nil, fmt.Errorf("fetch event %s: %w", eventID, err)
	}

	total, err := s.DB.CountCheckinsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("count check-ins for event %s: %w", eventID, err)
	}

	var recent []models.CheckIn
	if s.Cache != nil {
		recent, err = s.Cache.RecentScans(ctx, eventID, 20)
		if err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("recent-scan cache unavailable for event %s: %v", eventID, err))
			recent = nil
		}
	}
	if len(recent) == 0 {
		recent, err = s.DB.CheckinsByEvent(ctx, eventID, 20)
		if err != nil {
			return nil, fmt.Errorf("fetch check-ins for event %s: %w", eventID, err)
		}
	}

	return &EventSummary{EventID: eventID, Total: total, RecentScans: recent}, nil
}
