package analytics

import (
	"net/http"
	"time"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

// Handler exposes the admin reporting endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) window(r *http.Request) (time.Time, time.Time, bool) {
	query := r.URL.Query()
	now := h.Svc.now()
	if fromStr, toStr := query.Get("from"), query.Get("to"); fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return from, to, from.Before(to)
	}
	days := h.Svc.DefaultRange
	if days <= 0 {
		days = 30
	}
	if raw := query.Get("days"); raw != "" {
		if parsed := common.AtoiDefault(raw, days); parsed > 0 {
			days = parsed
		}
	}
	return now.AddDate(0, 0, -days), now, true
}

// Revenue returns per-day order and revenue aggregates.
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date range", nil)
		return
	}
	rows, err := h.Svc.Revenue(r.Context(), from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load revenue", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Promos returns the promo redemption leaderboard.
func (h *Handler) Promos(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date range", nil)
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 10)
	rows, err := h.Svc.Promos(r.Context(), from, to, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load promo stats", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Credits returns credit ledger movement grouped by kind.
func (h *Handler) Credits(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date range", nil)
		return
	}
	rows, err := h.Svc.Credits(r.Context(), from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load credit stats", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
