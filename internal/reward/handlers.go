package reward

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

// Handler exposes the daily reward endpoints.
type Handler struct {
	Svc *Service
}

// Status reports the caller's streak and whether today is claimed.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	st, err := h.Svc.Status(r.Context(), cid)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load reward status", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": st})
}

// Claim awards today's daily reward.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	result, err := h.Svc.Claim(r.Context(), cid)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyClaimed):
			common.JSONError(w, http.StatusConflict, "ALREADY_CLAIMED", "daily reward already claimed today", nil)
		case errors.Is(err, ErrDisabled):
			common.JSONError(w, http.StatusUnprocessableEntity, "REWARD_DISABLED", "daily reward program is disabled", nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to claim daily reward", nil)
		}
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
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
