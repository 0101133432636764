package checkin_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin/service"
	"ms-checkin/internal/lifecycle"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

type Handler struct {
	CheckinService *service.Service
	Logger         *logger.Logger
}

type checkinRequest struct {
	Code  string `json:"code"`
	Gate  string `json:"gate,omitempty"`
	Notes string `json:"notes,omitempty"`
}

type checkinResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Ticket  interface{}     `json:"ticket,omitempty"`
	CheckIn *models.CheckIn `json:"checkin,omitempty"`
}

type alreadyScannedTicket struct {
	Code           string    `json:"code"`
	Status         string    `json:"status"`
	AlreadyScanned bool      `json:"alreadyScanned"`
	LastScanTime   time.Time `json:"lastScanTime"`
}

// Checkin handles POST /api/checkin.
func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	var req checkinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		utils.WriteError(w, http.StatusBadRequest, "code is required")
		return
	}

	operatorID := auth.OperatorID(r.Context())
	result, err := h.CheckinService.Checkin(r.Context(), req.Code, operatorID, req.Gate, req.Notes)
	if err != nil {
		h.writeCheckinError(w, req.Code, err)
		return
	}

	if result.AlreadyUsed {
		utils.WriteJSON(w, http.StatusOK, checkinResponse{
			Success: false,
			Message: lifecycle.ReasonAlreadyUsed,
			Ticket: alreadyScannedTicket{
				Code:           result.Ticket.Code,
				Status:         result.Ticket.Status,
				AlreadyScanned: true,
				LastScanTime:   result.LastScanTime,
			},
		})
		return
	}

	utils.WriteJSON(w, http.StatusOK, checkinResponse{
		Success: true,
		Ticket:  result.Ticket,
		CheckIn: result.CheckIn,
	})
}

func (h *Handler) writeCheckinError(w http.ResponseWriter, code string, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrTicketNotFound):
		utils.WriteError(w, http.StatusNotFound, "ticket not found")
	default:
		if rej, ok := lifecycle.AsRejection(err); ok {
			h.Logger.LogCheckin(code, "rejected: "+rej.Reason)
			utils.WriteError(w, http.StatusBadRequest, rej.Reason)
			return
		}
		h.Logger.Error("CHECKIN", fmt.Sprintf("check-in of %s failed: %v", code, err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// EventCheckins handles GET /api/events/{eventID}/checkins.
func (h *Handler) EventCheckins(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	summary, err := h.CheckinService.EventCheckins(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrEventNotFound) {
			utils.WriteError(w, http.StatusNotFound, "event not found")
			return
		}
		h.Logger.Error("CHECKIN", fmt.Sprintf("event summary for %s failed: %v", eventID, err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.WriteJSON(w, http.StatusOK, summary)
}
