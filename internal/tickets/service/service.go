package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/lifecycle"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/qr"
	"ms-checkin/internal/utils"
)

// ErrInvalidOwner signals an issue request with no owner or two owners.
// A ticket belongs to a user or a guest-list entry, never both.
var ErrInvalidOwner = errors.New("ticket must have exactly one owner")

// ErrNotOwner signals a cancel attempt by someone who neither owns the
// ticket nor holds the admin role.
var ErrNotOwner = errors.New("not the ticket owner")

// TicketDBLayer is the storage surface for the ticket lifecycle.
type TicketDBLayer interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	GetTicketsByEvent(ctx context.Context, eventID string) ([]models.Ticket, error)
	GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GuestEntryExists(ctx context.Context, id, eventID string) (bool, error)
	HasCheckIn(ctx context.Context, ticketCode string) (bool, error)
	CheckInsByTicket(ctx context.Context, ticketCode string) ([]models.CheckIn, error)
	UpdateTicketStatus(ctx context.Context, code string, from []string, to string) (bool, error)
	MarkPaid(ctx context.Context, code string) (bool, error)
	ResetTicket(ctx context.Context, code string) (bool, error)
}

type AuditRecorder interface {
	Record(actor, action, entityType, entityID string, detail map[string]interface{})
}

type Publisher interface {
	PublishTicketCancelled(topic string, ticket models.Ticket) error
}

type Service struct {
	DB          TicketDBLayer
	QR          *qr.Generator
	Audit       AuditRecorder
	Producer    Publisher
	CancelTopic string
	Logger      *logger.Logger
}

func NewService(db TicketDBLayer, qrGen *qr.Generator, audit AuditRecorder, producer Publisher, cancelTopic string, log *logger.Logger) *Service {
	return &Service{
		DB:          db,
		QR:          qrGen,
		Audit:       audit,
		Producer:    producer,
		CancelTopic: cancelTopic,
		Logger:      log,
	}
}

// IssueRequest describes a ticket to issue. Exactly one of UserID and
// GuestEntryID must be set.
type IssueRequest struct {
	EventID      string `json:"event_id"`
	UserID       string `json:"user_id,omitempty"`
	GuestEntryID string `json:"guest_entry_id,omitempty"`
	Paid         bool   `json:"paid,omitempty"`
}

// IssueTicket creates a ticket with a fresh code and an encrypted QR code.
// Tickets start as NEW, or PAID when issued against confirmed payment.
func (s *Service) IssueTicket(ctx context.Context, actor string, req IssueRequest) (*models.Ticket, error) {
	if (req.UserID == "") == (req.GuestEntryID == "") {
		return nil, ErrInvalidOwner
	}

	event, err := s.DB.GetEventByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrEventNotFound
		}
		return nil, fmt.Errorf("fetch event %s: %w", req.EventID, err)
	}
	if event.Status == models.EventStatusClosed || event.Status == models.EventStatusCancelled {
		return nil, lifecycle.Reject(lifecycle.ReasonEventClosed)
	}

	if req.GuestEntryID != "" {
		exists, err := s.DB.GuestEntryExists(ctx, req.GuestEntryID, req.EventID)
		if err != nil {
			return nil, fmt.Errorf("check guest entry %s: %w", req.GuestEntryID, err)
		}
		if !exists {
			return nil, fmt.Errorf("guest entry %s not found for event %s", req.GuestEntryID, req.EventID)
		}
	}

	status := models.TicketStatusNew
	if req.Paid {
		status = models.TicketStatusPaid
	}

	ticket := &models.Ticket{
		Code:         utils.GenerateTicketCode(),
		EventID:      req.EventID,
		UserID:       req.UserID,
		GuestEntryID: req.GuestEntryID,
		Status:       status,
		Paid:         req.Paid,
		IssuedAt:     time.Now().UTC(),
	}

	qrBytes, err := s.QR.GenerateEncryptedQR(qr.Payload{Code: ticket.Code, EventID: ticket.EventID})
	if err != nil {
		return nil, fmt.Errorf("generate QR for %s: %w", ticket.Code, err)
	}
	ticket.QRCode = qrBytes

	if err := s.DB.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket %s: %w", ticket.Code, err)
	}

	s.Audit.Record(actor, models.AuditActionTicketIssued, "ticket", ticket.Code, map[string]interface{}{
		"event_id": ticket.EventID,
		"status":   ticket.Status,
	})
	return ticket, nil
}

// GetTicket returns a ticket and its check-in history.
func (s *Service) GetTicket(ctx context.Context, code string) (*models.Ticket, []models.CheckIn, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, lifecycle.ErrTicketNotFound
		}
		return nil, nil, fmt.Errorf("fetch ticket %s: %w", code, err)
	}

	checkins, err := s.DB.CheckInsByTicket(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch check-ins for %s: %w", code, err)
	}
	return ticket, checkins, nil
}

func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByEvent(ctx, eventID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByUser(ctx, userID)
}

// MarkPaid transitions a NEW ticket to PAID on payment confirmation.
func (s *Service) MarkPaid(ctx context.Context, actor, code string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrTicketNotFound
		}
		return nil, fmt.Errorf("fetch ticket %s: %w", code, err)
	}

	if err := lifecycle.CanMarkPaid(ticket); err != nil {
		return nil, err
	}

	ok, err := s.DB.MarkPaid(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("mark ticket %s paid: %w", code, err)
	}
	if !ok {
		// Status moved between the read and the conditional update.
		return nil, lifecycle.Reject(lifecycle.ReasonNotPayable)
	}

	ticket.Status = models.TicketStatusPaid
	ticket.Paid = true

	s.Audit.Record(actor, models.AuditActionTicketPaid, "ticket", code, nil)
	return ticket, nil
}

// Cancel transitions a ticket to CANCELLED. Owners may cancel their own
// tickets; admins may cancel any. A used ticket with a surviving check-in
// record is rejected: an admin must reset the check-in first.
func (s *Service) Cancel(ctx context.Context, actor string, isAdmin bool, code string) error {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lifecycle.ErrTicketNotFound
		}
		return fmt.Errorf("fetch ticket %s: %w", code, err)
	}

	if !isAdmin && (ticket.UserID == "" || ticket.UserID != actor) {
		return ErrNotOwner
	}

	hasCheckIn, err := s.DB.HasCheckIn(ctx, code)
	if err != nil {
		return fmt.Errorf("check check-ins for %s: %w", code, err)
	}
	if err := lifecycle.CanCancel(ticket, hasCheckIn); err != nil {
		return err
	}

	from := []string{models.TicketStatusNew, models.TicketStatusPaid}
	if ticket.Status == models.TicketStatusUsed {
		from = []string{models.TicketStatusUsed}
	}
	ok, err := s.DB.UpdateTicketStatus(ctx, code, from, models.TicketStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel ticket %s: %w", code, err)
	}
	if !ok {
		return lifecycle.Reject(lifecycle.ReasonAlreadyUsed)
	}

	ticket.Status = models.TicketStatusCancelled

	s.Audit.Record(actor, models.AuditActionTicketCancel, "ticket", code, nil)
	s.publishCancelled(*ticket)
	return nil
}

// ResetCheckin reverts a USED ticket to NEW and deletes its check-in
// records. Role enforcement happens at the handler.
func (s *Service) ResetCheckin(ctx context.Context, actor, code string) error {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lifecycle.ErrTicketNotFound
		}
		return fmt.Errorf("fetch ticket %s: %w", code, err)
	}

	if err := lifecycle.CanReset(ticket); err != nil {
		return err
	}

	ok, err := s.DB.ResetTicket(ctx, code)
	if err != nil {
		return fmt.Errorf("reset ticket %s: %w", code, err)
	}
	if !ok {
		return lifecycle.Reject(lifecycle.ReasonNotResettable)
	}

	s.Audit.Record(actor, models.AuditActionCheckinReset, "ticket", code, nil)
	return nil
}

// publishCancelled streams the cancellation to Kafka. Best-effort.
func (s *Service) publishCancelled(ticket models.Ticket) {
	if s.Producer == nil {
		return
	}
	go func() {
		if err := s.Producer.PublishTicketCancelled(s.CancelTopic, ticket); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish cancellation of %s: %v", ticket.Code, err))
		}
	}()
}
