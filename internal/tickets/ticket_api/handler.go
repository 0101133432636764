package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/lifecycle"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/service"
	"ms-checkin/internal/utils"
)

type Handler struct {
	TicketService *service.Service
	Logger        *logger.Logger
}

type ticketWithHistory struct {
	Ticket   *models.Ticket   `json:"ticket"`
	CheckIns []models.CheckIn `json:"checkins"`
}

// IssueTicket handles POST /api/tickets. Admin only.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	if auth.Role(r.Context()) != auth.RoleAdmin {
		utils.WriteError(w, http.StatusForbidden, "admin role required")
		return
	}

	var req service.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventID == "" {
		utils.WriteError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	ticket, err := h.TicketService.IssueTicket(r.Context(), auth.OperatorID(r.Context()), req)
	if err != nil {
		h.writeTicketError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"ticket":  ticket,
	})
}

// ViewTicket handles GET /api/tickets/{code}.
func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	ticket, checkins, err := h.TicketService.GetTicket(r.Context(), code)
	if err != nil {
		h.writeTicketError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, ticketWithHistory{Ticket: ticket, CheckIns: checkins})
}

// ListTickets handles GET /api/tickets?event= or ?user=.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event")
	userID := r.URL.Query().Get("user")

	var (
		tickets []models.Ticket
		err     error
	)
	switch {
	case eventID != "":
		tickets, err = h.TicketService.ListByEvent(r.Context(), eventID)
	case userID != "":
		tickets, err = h.TicketService.ListByUser(r.Context(), userID)
	default:
		utils.WriteError(w, http.StatusBadRequest, "event or user query parameter is required")
		return
	}
	if err != nil {
		h.Logger.Error("TICKET", fmt.Sprintf("list tickets failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tickets": tickets,
	})
}

// UpdatePayment handles POST /api/tickets/{code}/payment.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	ticket, err := h.TicketService.MarkPaid(r.Context(), auth.OperatorID(r.Context()), code)
	if err != nil {
		h.writeTicketError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"ticket":  ticket,
	})
}

// CancelTicket handles DELETE /api/tickets/{code}.
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	isAdmin := auth.Role(r.Context()) == auth.RoleAdmin

	err := h.TicketService.Cancel(r.Context(), auth.OperatorID(r.Context()), isAdmin, code)
	if err != nil {
		h.writeTicketError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "ticket cancelled",
	})
}

// ResetCheckin handles POST /api/tickets/{code}/reset. Admin only.
func (h *Handler) ResetCheckin(w http.ResponseWriter, r *http.Request) {
	if auth.Role(r.Context()) != auth.RoleAdmin {
		utils.WriteError(w, http.StatusForbidden, "admin role required")
		return
	}
	code := chi.URLParam(r, "code")

	err := h.TicketService.ResetCheckin(r.Context(), auth.OperatorID(r.Context()), code)
	if err != nil {
		h.writeTicketError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "check-in reset",
	})
}

func (h *Handler) writeTicketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrTicketNotFound):
		utils.WriteError(w, http.StatusNotFound, "ticket not found")
	case errors.Is(err, lifecycle.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, service.ErrInvalidOwner):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		utils.WriteError(w, http.StatusForbidden, err.Error())
	default:
		if rej, ok := lifecycle.AsRejection(err); ok {
			utils.WriteError(w, http.StatusBadRequest, rej.Reason)
			return
		}
		h.Logger.Error("TICKET", fmt.Sprintf("ticket operation failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
