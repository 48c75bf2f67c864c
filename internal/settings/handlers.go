package settings

import (
	"encoding/json"
	"net/http"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

// Handler exposes administrative settings endpoints.
type Handler struct {
	Store *Store
}

// Get returns the current value for every settings document.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pricing, err := h.Store.GetPricing(ctx)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return
	}
	cashback, err := h.Store.GetCashback(ctx)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return
	}
	reward, err := h.Store.GetReward(ctx)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return
	}
	referral, err := h.Store.GetReferral(ctx)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		KeyPricing:  pricing,
		KeyCashback: cashback,
		KeyReward:   reward,
		KeyReferral: referral,
	}})
}

// UpdatePricing replaces the pricing configuration.
func (h *Handler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var p Pricing
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if p.TaxBps < 0 || p.TaxBps > 10000 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tax_bps must be between 0 and 10000", nil)
		return
	}
	if err := h.Store.Put(r.Context(), KeyPricing, p); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to store settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// UpdateCashback replaces the cashback configuration.
func (h *Handler) UpdateCashback(w http.ResponseWriter, r *http.Request) {
	var c Cashback
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if c.PercentBps < 0 || c.PercentBps > 10000 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "percent_bps must be between 0 and 10000", nil)
		return
	}
	if err := h.Store.Put(r.Context(), KeyCashback, c); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to store settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// UpdateReward replaces the daily reward configuration.
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	var cfg Reward
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if cfg.BaseAmount < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "base_amount must not be negative", nil)
		return
	}
	if err := h.Store.Put(r.Context(), KeyReward, cfg); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to store settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// UpdateReferral replaces the referral program configuration.
func (h *Handler) UpdateReferral(w http.ResponseWriter, r *http.Request) {
	var cfg Referral
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if cfg.ReferredReward < 0 || cfg.ReferrerReward < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "rewards must not be negative", nil)
		return
	}
	if err := h.Store.Put(r.Context(), KeyReferral, cfg); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to store settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}
