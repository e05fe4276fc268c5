package handlers

import (
	"errors"
	"net/http"
	"strings"

	"sharedcal/core/audit"
	"sharedcal/core/incidents"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

type IncidentsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, logger: logger}
}

// incidentResponse carries a persisted incident together with the steps that
// did not complete after it was saved.
type incidentResponse struct {
	*incidents.Result
	Warnings []string `json:"warnings,omitempty"`
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IncidentFilter{
		Status:   strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Priority: strings.ToLower(strings.TrimSpace(q.Get("priority"))),
		Limit:    parseIntDefault(q.Get("limit"), 100),
		Offset:   parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	items, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("list incidents: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if items == nil {
		items = []store.IncidentView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "incidents.badID", nil)
		return
	}
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get incident %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, "incidents.notFound", nil)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req incidents.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Create(r.Context(), req, reqctx.Actor(r.Context()))
	h.respond(w, http.StatusCreated, res, err)
}

func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "incidents.badID", nil)
		return
	}
	var req incidents.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Update(r.Context(), id, req, reqctx.Actor(r.Context()))
	h.respond(w, http.StatusOK, res, err)
}

func (h *IncidentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "incidents.badID", nil)
		return
	}
	res, err := h.svc.Delete(r.Context(), id, reqctx.Actor(r.Context()))
	h.respond(w, http.StatusOK, res, err)
}

// respond maps service errors. A non-nil result means the incident was
// persisted, so later sync or audit failures become warnings on a 2xx.
func (h *IncidentsHandler) respond(w http.ResponseWriter, okStatus int, res *incidents.Result, err error) {
	if res != nil {
		out := incidentResponse{Result: res}
		if errors.Is(err, incidents.ErrSync) {
			out.Warnings = append(out.Warnings, "incidents.calendarSyncFailed")
		}
		if errors.Is(err, incidents.ErrAudit) {
			out.Warnings = append(out.Warnings, "incidents.auditFailed")
		}
		writeJSON(w, okStatus, out)
		return
	}
	switch {
	case errors.Is(err, audit.ErrActorResolution):
		writeError(w, http.StatusForbidden, "auth.adminRequired", nil)
	case errors.Is(err, incidents.ErrValidation):
		writeError(w, http.StatusBadRequest, "incidents.invalid", validationFields(err))
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "incidents.notFound", nil)
	default:
		h.logger.Errorf("incident mutation: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
	}
}
