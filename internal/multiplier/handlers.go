package multiplier

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// Handler exposes multiplier event management and the public active view.
type Handler struct {
	Store    *Store
	Resolver *Resolver
}

type createRequest struct {
	Name       string     `json:"name"`
	Multiplier float64    `json:"multiplier"`
	AppliesTo  []string   `json:"applies_to"`
	Active     *bool      `json:"active"`
	StartsAt   *time.Time `json:"starts_at"`
	EndsAt     *time.Time `json:"ends_at"`
}

// Active returns the events currently in effect.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.ListActive(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list events", nil)
		return
	}
	now := time.Now()
	live := make([]Event, 0, len(events))
	for _, e := range events {
		if e.InWindow(now) {
			live = append(live, e)
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": live})
}

// List returns every event for admins.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.List(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list events", nil)
		return
	}
	if events == nil {
		events = []Event{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": events})
}

// Create registers a new multiplier event.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "name is required", nil)
		return
	}
	if req.Multiplier < 1 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "multiplier must be at least 1", nil)
		return
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ends_at must follow starts_at", nil)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	event, err := h.Store.Create(r.Context(), Event{
		Name:          name,
		MultiplierBps: int64(req.Multiplier * money.BpsPerUnit),
		AppliesTo:     req.AppliesTo,
		Active:        active,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create event", nil)
		return
	}
	h.invalidate(r)
	common.JSON(w, http.StatusCreated, map[string]any{"data": event})
}

// SetActive toggles an event.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid event id", nil)
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
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "event not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update event", nil)
		return
	}
	h.invalidate(r)
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": id, "active": body.Active}})
}

// Delete removes an event.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid event id", nil)
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "event not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete event", nil)
		return
	}
	h.invalidate(r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidate(r *http.Request) {
	if h.Resolver != nil {
		h.Resolver.Invalidate(r.Context())
	}
}
