package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sharedcal/core/store"
	"sharedcal/core/utils"
)

const maxLogExportRows = 5000

type LogsHandler struct {
	audits store.AuditStore
	logger *utils.Logger
}

func NewLogsHandler(audits store.AuditStore, logger *utils.Logger) *LogsHandler {
	return &LogsHandler{audits: audits, logger: logger}
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseLogFilter(r)
	items, err := h.audits.List(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("list audit records: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	total, err := h.audits.Count(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("count audit records: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if items == nil {
		items = []store.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (h *LogsHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter := parseLogFilter(r)
	if filter.Limit <= 0 || filter.Limit > maxLogExportRows {
		filter.Limit = maxLogExportRows
	}
	filter.Offset = 0
	items, err := h.audits.List(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("export audit records: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	filename := "audit_" + utils.NowUTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"time", "admin", "action", "entity_type", "entity_id", "old_value", "new_value", "ip_address", "user_agent"})
	for i := range items {
		rec := items[i]
		entityID := ""
		if rec.EntityID != nil {
			entityID = strconv.FormatInt(*rec.EntityID, 10)
		}
		_ = writer.Write([]string{
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.AdminUsername,
			rec.Action,
			rec.EntityType,
			entityID,
			deref(rec.OldValue),
			deref(rec.NewValue),
			deref(rec.IPAddress),
			deref(rec.UserAgent),
		})
	}
	writer.Flush()
}

// parseLogFilter defaults to the last 30 days and caps the page size.
func parseLogFilter(r *http.Request) store.AuditFilter {
	q := r.URL.Query()
	since := utils.NowUTC().Add(-30 * 24 * time.Hour)
	if rawSince := strings.TrimSpace(q.Get("since")); rawSince != "" {
		if parsed, err := parseDateTime(rawSince); err == nil && !parsed.IsZero() {
			since = parsed.UTC()
		}
	}
	filter := store.AuditFilter{
		Action:     strings.ToLower(strings.TrimSpace(q.Get("action"))),
		EntityType: strings.ToLower(strings.TrimSpace(q.Get("entity_type"))),
		Since:      &since,
		Limit:      parseIntDefault(q.Get("limit"), 1000),
		Offset:     parseIntDefault(q.Get("offset"), 0),
	}
	if rawTo := strings.TrimSpace(q.Get("to")); rawTo != "" {
		if parsed, err := parseDateTime(rawTo); err == nil && !parsed.IsZero() {
			t := parsed.UTC()
			filter.Until = &t
		}
	}
	if raw := strings.TrimSpace(q.Get("entity_id")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.EntityID = &id
		}
	}
	if raw := strings.TrimSpace(q.Get("admin_id")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.AdminID = id
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 1000
	}
	if filter.Limit > maxLogExportRows {
		filter.Limit = maxLogExportRows
	}
	return filter
}

func parseDateTime(raw string) (time.Time, error) {
	val := strings.TrimSpace(raw)
	if val == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, val); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, strconv.ErrSyntax
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
