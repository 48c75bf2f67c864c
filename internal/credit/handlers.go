package credit

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// Handler exposes customer-facing balance endpoints and the admin adjustment.
type Handler struct {
	Svc *Service
}

// Balance returns the caller's current credit balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	balance, err := h.Svc.Balance(r.Context(), cid)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load balance", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"balance": balance}})
}

// History returns the caller's recent ledger entries.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	history, err := h.Svc.History(r.Context(), cid, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load history", nil)
		return
	}
	if history == nil {
		history = []Transaction{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": history})
}

// AdminHistory returns the ledger for the customer in the URL.
func (h *Handler) AdminHistory(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	history, err := h.Svc.History(r.Context(), customerID, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load history", nil)
		return
	}
	if history == nil {
		history = []Transaction{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": history})
}

type adjustRequest struct {
	Delta  money.Amount `json:"amount"`
	Reason string       `json:"reason"`
}

// Adjust applies an admin balance change to the customer in the URL.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.Delta == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must not be zero", nil)
		return
	}
	if req.Reason == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "reason is required", nil)
		return
	}
	tx, err := h.Svc.AdjustManual(r.Context(), customerID, req.Delta, req.Reason)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to adjust balance", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": tx})
}

func authedCustomer(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	cid, err := uuid.Parse(id)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid customer id", nil)
		return uuid.Nil, false
	}
	return cid, true
}
