package api

import (
	"fmt"
	"net/http"
	"strconv"

	"ms-checkin/internal/audit"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/utils"
)

type Handler struct {
	Store  *audit.DB
	Logger *logger.Logger
}

func NewHandler(store *audit.DB, log *logger.Logger) *Handler {
	return &Handler{Store: store, Logger: log}
}

// Query handles GET /api/audit?entity_type=&entity_id=&limit=&offset=.
// Admin only.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	if auth.Role(r.Context()) != auth.RoleAdmin {
		utils.WriteError(w, http.StatusForbidden, "admin role required")
		return
	}

	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	offset := parseIntDefault(q.Get("offset"), 0)

	entries, err := h.Store.QueryAuditLogs(r.Context(), q.Get("entity_type"), q.Get("entity_id"), limit, offset)
	if err != nil {
		h.Logger.Error("AUDIT", fmt.Sprintf("audit query failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entries": entries,
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
