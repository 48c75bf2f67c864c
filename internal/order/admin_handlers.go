package order

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

// AdminHandler exposes order management endpoints for operators.
type AdminHandler struct {
	Svc   *Service
	Store *Store
}

// List returns orders across all customers, newest first, optionally
// filtered by ?status=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	status := Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status", nil)
		return
	}
	orders, err := h.Store.List(r.Context(), status, perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// Complete marks an order completed, firing the cashback and referral
// side effects of the transition.
func (h *AdminHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, StatusCompleted)
}

// Cancel moves an order to cancelled. Spent credits and promo usage are
// not reversed; admins compensate through a manual credit adjustment.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, StatusCancelled)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, target Status) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), id, target, "")
	if err != nil {
		writeOrderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Get returns any customer's order together with its status history.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	history, err := h.Store.History(r.Context(), id)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order history", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"order": o, "history": history}})
}

type statusRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note"`
}

// UpdateStatus moves an order to the requested status. Confirming an
// order settles its applied credits; completing it awards cashback.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if !req.Status.Valid() {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "unknown status", nil)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), id, req.Status, req.Note)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}
