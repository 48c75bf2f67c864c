package promo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/obs"
)

// Handler exposes promo validation and administrative management endpoints.
type Handler struct {
	Svc   *Service
	Store *Store
}

type validateRequest struct {
	Code  string        `json:"code"`
	Items []requestItem `json:"items"`
}

type requestItem struct {
	ProductID string       `json:"product_id"`
	Category  string       `json:"category"`
	Subtotal  money.Amount `json:"subtotal"`
}

func toItems(in []requestItem) []Item {
	items := make([]Item, 0, len(in))
	for _, it := range in {
		items = append(items, Item{
			ProductID: it.ProductID,
			Category:  it.Category,
			Subtotal:  it.Subtotal,
		})
	}
	return items
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type createRequest struct {
	Code           string       `json:"code" validate:"required,max=64"`
	Description    string       `json:"description" validate:"max=500"`
	Kind           string       `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Percent        float64      `json:"discount_percent" validate:"gte=0,lte=100"`
	Value          money.Amount `json:"discount_value" validate:"gte=0"`
	MinOrder       money.Amount `json:"min_order_amount" validate:"gte=0"`
	MaxUses        *int32       `json:"max_uses"`
	PerCustomerMax *int32       `json:"max_uses_per_customer"`
	FirstOrderOnly bool         `json:"first_order_only"`
	Categories     []string     `json:"applicable_categories"`
	Products       []string     `json:"applicable_products"`
	Active         *bool        `json:"active"`
	ExpiresAt      *time.Time   `json:"expires_at"`
}

// Validate evaluates a promo code for the authenticated customer.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
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
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	res, err := h.Svc.Validate(r.Context(), req.Code, cid, toItems(req.Items))
	if err != nil {
		status, code := Classify(err)
		if obs.PromoValidationTotal != nil {
			obs.PromoValidationTotal.WithLabelValues(code).Inc()
		}
		if status == http.StatusInternalServerError {
			common.JSONError(w, status, code, "failed to validate promo code", nil)
			return
		}
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}
	if obs.PromoValidationTotal != nil {
		obs.PromoValidationTotal.WithLabelValues("OK").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// AutoApply picks the best qualifying promo for the customer's cart
// without the customer typing a code.
func (h *Handler) AutoApply(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		Items []requestItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	res, err := h.Svc.AutoApply(r.Context(), cid, toItems(req.Items))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSON(w, http.StatusOK, map[string]any{"data": nil})
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to evaluate promo codes", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// IsRejection reports whether err is one of the engine's sentinel
// rejections rather than an infrastructure failure.
func IsRejection(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound, ErrInactive, ErrExpired, ErrBelowMinimum,
		ErrUsesExhausted, ErrPerCustomerLimit, ErrFirstOrderOnly, ErrNotApplicable,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Classify maps engine sentinels to HTTP status and stable error codes.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "PROMO_NOT_FOUND"
	case errors.Is(err, ErrInactive):
		return http.StatusUnprocessableEntity, "PROMO_INACTIVE"
	case errors.Is(err, ErrExpired):
		return http.StatusUnprocessableEntity, "PROMO_EXPIRED"
	case errors.Is(err, ErrBelowMinimum):
		return http.StatusUnprocessableEntity, "PROMO_BELOW_MINIMUM"
	case errors.Is(err, ErrUsesExhausted):
		return http.StatusUnprocessableEntity, "PROMO_USES_EXHAUSTED"
	case errors.Is(err, ErrPerCustomerLimit):
		return http.StatusUnprocessableEntity, "PROMO_PER_CUSTOMER_LIMIT"
	case errors.Is(err, ErrFirstOrderOnly):
		return http.StatusUnprocessableEntity, "PROMO_FIRST_ORDER_ONLY"
	case errors.Is(err, ErrNotApplicable):
		return http.StatusUnprocessableEntity, "PROMO_NOT_APPLICABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// Create inserts a new promo definition.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	p, err := buildPromo(req)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	created, err := h.Store.Create(r.Context(), p)
	if err != nil {
		if db.IsUniqueViolation(err) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "promo code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create promo code", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// List returns every promo definition.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	promos, err := h.Store.List(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list promo codes", nil)
		return
	}
	if promos == nil {
		promos = []Promo{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": promos})
}

// SetActive toggles a promo on or off.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promo id", nil)
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Store.SetActive(r.Context(), id, body.Active); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promo code not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update promo code", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": id, "active": body.Active}})
}

// Delete removes a promo definition.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promo id", nil)
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promo code not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete promo code", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildPromo(req createRequest) (Promo, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return Promo{}, errors.New("code is required")
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	switch kind {
	case KindPercentage:
		if req.Percent <= 0 || req.Percent > 100 {
			return Promo{}, errors.New("discount_percent must be between 0 and 100")
		}
	case KindFixed:
		if req.Value <= 0 {
			return Promo{}, errors.New("discount_value must be positive")
		}
	default:
		return Promo{}, errors.New("discount_type must be percentage or fixed")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return Promo{
		Code:           code,
		Description:    strings.TrimSpace(req.Description),
		Kind:           kind,
		PercentBps:     money.BpsFromPercent(req.Percent),
		Value:          req.Value,
		MinOrder:       req.MinOrder,
		MaxUses:        req.MaxUses,
		PerCustomerMax: req.PerCustomerMax,
		FirstOrderOnly: req.FirstOrderOnly,
		Categories:     req.Categories,
		Products:       req.Products,
		Active:         active,
		ExpiresAt:      req.ExpiresAt,
	}, nil
}
