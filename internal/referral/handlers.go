package referral

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

// Handler exposes referral endpoints.
type Handler struct {
	Svc *Service
}

// MyCode returns (allocating if needed) the caller's share code.
func (h *Handler) MyCode(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	code, err := h.Svc.MyCode(r.Context(), cid)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load referral code", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"code": code}})
}

// Stats returns the caller's referral summary.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	stats, err := h.Svc.Stats(r.Context(), cid)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load referral stats", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": stats})
}

// History lists the caller's past referrals.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	referrals, err := h.Svc.History(r.Context(), cid, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load referral history", nil)
		return
	}
	if referrals == nil {
		referrals = []Referral{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": referrals})
}

type applyRequest struct {
	Code string `json:"code"`
}

// Apply links the caller to a referrer's code.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	cid, ok := authedCustomer(w, r)
	if !ok {
		return
	}
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	result, err := h.Svc.Apply(r.Context(), cid, code)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			common.JSONError(w, http.StatusNotFound, "REFERRAL_NOT_FOUND", "referral code not found", nil)
		case errors.Is(err, ErrSelfReferral):
			common.JSONError(w, http.StatusUnprocessableEntity, "SELF_REFERRAL", "cannot use your own referral code", nil)
		case errors.Is(err, ErrAlreadyReferred):
			common.JSONError(w, http.StatusConflict, "ALREADY_REFERRED", "a referral code was already applied", nil)
		case errors.Is(err, ErrNotNewCustomer):
			common.JSONError(w, http.StatusUnprocessableEntity, "NOT_NEW_CUSTOMER", "referral codes are for new customers only", nil)
		case errors.Is(err, ErrDisabled):
			common.JSONError(w, http.StatusUnprocessableEntity, "REFERRAL_DISABLED", "referral program is disabled", nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to apply referral code", nil)
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
