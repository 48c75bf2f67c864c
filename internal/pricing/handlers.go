package pricing

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/obs"
	"github.com/bibek-sh/backend-pasal/internal/promo"
)

// Handler exposes the pricing quote endpoint.
type Handler struct {
	Quoter *Quoter
}

type quotePayload struct {
	Items            []quoteItem  `json:"items"`
	PromoCode        string       `json:"promo_code"`
	CreditsRequested money.Amount `json:"credits_requested"`
}

type quoteItem struct {
	ProductID string       `json:"product_id"`
	Category  string       `json:"category"`
	Subtotal  money.Amount `json:"subtotal"`
}

// Quote computes an authoritative price preview for the caller's cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	customerID, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	cid, err := uuid.Parse(customerID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid customer id", nil)
		return
	}
	var payload quotePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if len(payload.Items) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "items are required", nil)
		return
	}
	items := make([]promo.Item, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, promo.Item{
			ProductID: it.ProductID,
			Category:  it.Category,
			Subtotal:  it.Subtotal,
		})
	}
	quote, err := h.Quoter.Quote(r.Context(), cid, QuoteRequest{
		Items:            items,
		PromoCode:        payload.PromoCode,
		CreditsRequested: payload.CreditsRequested,
	})
	if err != nil {
		if obs.PricingQuoteTotal != nil {
			obs.PricingQuoteTotal.WithLabelValues("error").Inc()
		}
		status, code := promoStatus(err)
		if status == http.StatusInternalServerError {
			common.JSONError(w, status, code, "failed to compute quote", nil)
			return
		}
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}
	if obs.PricingQuoteTotal != nil {
		obs.PricingQuoteTotal.WithLabelValues("ok").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func promoStatus(err error) (int, string) {
	if promo.IsRejection(err) {
		return promo.Classify(err)
	}
	return http.StatusInternalServerError, "INTERNAL"
}
