package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sharedcal/core/audit"
	"sharedcal/core/incidentcal"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

// CalendarHandler exposes the derived incidents calendar.
type CalendarHandler struct {
	syncer    *incidentcal.Synchronizer
	calendars store.CalendarsStore
	users     store.UsersStore
	audit     *audit.Writer
	logger    *utils.Logger
}

func NewCalendarHandler(syncer *incidentcal.Synchronizer, calendars store.CalendarsStore, users store.UsersStore, auditor *audit.Writer, logger *utils.Logger) *CalendarHandler {
	return &CalendarHandler{syncer: syncer, calendars: calendars, users: users, audit: auditor, logger: logger}
}

type eventPayload struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=300"`
	Description *string    `json:"description" validate:"omitempty,max=10000"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Color       *string    `json:"color" validate:"omitempty,hexcolor"`
	Location    *string    `json:"location" validate:"omitempty,max=200"`
}

func (h *CalendarHandler) Events(w http.ResponseWriter, r *http.Request) {
	if !h.canView(w, r) {
		return
	}
	items, err := h.syncer.ListEvents(r.Context())
	if err != nil {
		h.logger.Errorf("list incident events: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if items == nil {
		items = []store.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CalendarHandler) ICS(w http.ResponseWriter, r *http.Request) {
	if !h.canView(w, r) {
		return
	}
	body, err := h.syncer.ExportICS(r.Context())
	if err != nil {
		h.logger.Errorf("export incidents ics: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=incidents.ics")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.loadEvent(w, r)
	if !ok {
		return
	}
	var payload eventPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := utils.ValidateStruct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "events.invalid", validationFields(err))
		return
	}
	before := *ev
	if payload.Title != nil {
		ev.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		ev.Description = *payload.Description
	}
	if payload.StartsAt != nil {
		ev.StartsAt = payload.StartsAt.UTC()
	}
	if payload.EndsAt != nil {
		ev.EndsAt = payload.EndsAt.UTC()
	}
	if payload.Color != nil {
		ev.Color = strings.ToLower(*payload.Color)
	}
	if payload.Location != nil {
		loc := strings.TrimSpace(*payload.Location)
		ev.Location = &loc
		if loc == "" {
			ev.Location = nil
		}
	}
	if ev.Title == "" {
		writeError(w, http.StatusBadRequest, "events.invalid", map[string]string{"title": "is required"})
		return
	}
	if ev.EndsAt.Before(ev.StartsAt) {
		writeError(w, http.StatusBadRequest, "events.invalid", map[string]string{"ends_at": "must not precede starts_at"})
		return
	}
	if err := h.calendars.UpdateEvent(r.Context(), ev); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "events.notFound", nil)
			return
		}
		h.logger.Errorf("update event %d: %v", ev.ID, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	out := map[string]any{"event": ev}
	if _, err := h.audit.EventUpdated(r.Context(), ev.ID, before, ev, reqctx.Actor(r.Context())); err != nil {
		h.logger.Errorf("event %d updated without audit record: %v", ev.ID, err)
		out["warnings"] = []string{"events.auditFailed"}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.loadEvent(w, r)
	if !ok {
		return
	}
	if err := h.calendars.DeleteEvent(r.Context(), ev.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "events.notFound", nil)
			return
		}
		h.logger.Errorf("delete event %d: %v", ev.ID, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	out := map[string]any{"status": "ok"}
	if _, err := h.audit.EventDeleted(r.Context(), ev.ID, ev, reqctx.Actor(r.Context())); err != nil {
		h.logger.Errorf("event %d deleted without audit record: %v", ev.ID, err)
		out["warnings"] = []string{"events.auditFailed"}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CalendarHandler) canView(w http.ResponseWriter, r *http.Request) bool {
	sess := reqctx.Session(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "auth.unauthorized", nil)
		return false
	}
	user, err := h.users.Get(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Errorf("load session user %d: %v", sess.UserID, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return false
	}
	if user == nil || !h.syncer.CanView(*user) {
		writeError(w, http.StatusForbidden, "calendars.forbidden", nil)
		return false
	}
	return true
}

// loadEvent only resolves events that live on the incidents calendar.
func (h *CalendarHandler) loadEvent(w http.ResponseWriter, r *http.Request) (*store.CalendarEvent, bool) {
	id := pathID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "events.badID", nil)
		return nil, false
	}
	cal, err := h.syncer.EnsureCalendar(r.Context())
	if err != nil {
		h.logger.Errorf("resolve incidents calendar: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return nil, false
	}
	ev, err := h.calendars.GetEvent(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get event %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return nil, false
	}
	if ev == nil || ev.CalendarID != cal.ID {
		writeError(w, http.StatusNotFound, "events.notFound", nil)
		return nil, false
	}
	return ev, true
}
