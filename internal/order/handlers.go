package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/promo"
)

// Handler exposes the customer-facing order endpoints.
type Handler struct {
	Svc *Service
}

type createRequest struct {
	Items            []Item       `json:"items"`
	PromoCode        string       `json:"promo_code"`
	CreditsRequested money.Amount `json:"credits_requested"`
}

// Create places a new order for the authenticated customer.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if len(req.Items) == 0 {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "items are required", nil)
		return
	}
	if req.CreditsRequested < 0 {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "credits_requested must not be negative", nil)
		return
	}

	o, err := h.Svc.Create(r.Context(), cid, CreateRequest{
		Items:            req.Items,
		PromoCode:        req.PromoCode,
		CreditsRequested: req.CreditsRequested,
	})
	if err != nil {
		if promo.IsRejection(err) {
			status, code := promo.Classify(err)
			common.JSONError(w, status, code, err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to place order", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// List returns the caller's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	_, perPage := common.ParsePagination(r, 20)
	orders, err := h.Svc.List(r.Context(), cid, perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// Get returns one of the caller's orders.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Svc.Get(r.Context(), id, cid, common.IsAdmin(r.Context()))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// History returns the status trail of one of the caller's orders.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	entries, err := h.Svc.History(r.Context(), id, cid, common.IsAdmin(r.Context()))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_TRANSITION", "order status cannot change that way", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order operation failed", nil)
	}
}

func authedCustomer(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid customer identity", nil)
		return uuid.Nil, false
	}
	return id, true
}
