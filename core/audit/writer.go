package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

// ErrActorResolution is returned when no administrator can be attributed to
// a write. Nothing is persisted in that case.
var ErrActorResolution = errors.New("audit: no administrator actor could be resolved")

type Action string

const (
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionPromote          Action = "promote"
	ActionDemote           Action = "demote"
	ActionPermissionChange Action = "permission_change"
)

type EntityType string

const (
	EntityUser      EntityType = "user"
	EntityAdmin     EntityType = "admin"
	EntityCalendar  EntityType = "calendar"
	EntityEvent     EntityType = "event"
	EntityIncident  EntityType = "incident"
	EntityEventType EntityType = "event_type"
)

// Entry describes one mutation. A nil snapshot is stored as NULL, which is
// distinct from an empty value such as {} or "".
type Entry struct {
	Action     Action
	EntityType EntityType
	EntityID   *int64
	OldValue   any
	NewValue   any
}

// ActorSource resolves the administrator behind the current request.
type ActorSource interface {
	CurrentAdmin(ctx context.Context) (*store.Actor, error)
}

type Writer struct {
	audits  store.AuditStore
	actors  ActorSource
	logger  *utils.Logger
	metrics *Metrics
}

type Option func(*Writer)

func WithMetrics(m *Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

func NewWriter(audits store.AuditStore, actors ActorSource, logger *utils.Logger, opts ...Option) *Writer {
	w := &Writer{audits: audits, actors: actors, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record appends one audit record. When actor is nil the writer falls back
// to the session-derived administrator.
func (w *Writer) Record(ctx context.Context, entry Entry, actor *store.Actor) (*store.AuditRecord, error) {
	if entry.Action == "" || entry.EntityType == "" {
		return nil, fmt.Errorf("audit: action and entity type are required")
	}
	resolved, err := w.resolveActor(ctx, actor)
	if err != nil {
		w.metrics.actorFailure()
		return nil, err
	}
	oldVal, err := encodeSnapshot(entry.OldValue)
	if err != nil {
		return nil, fmt.Errorf("audit: encode old value: %w", err)
	}
	newVal, err := encodeSnapshot(entry.NewValue)
	if err != nil {
		return nil, fmt.Errorf("audit: encode new value: %w", err)
	}
	rec := &store.AuditRecord{
		AdminID:    resolved.AdminID,
		Action:     string(entry.Action),
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		OldValue:   oldVal,
		NewValue:   newVal,
		IPAddress:  optional(reqctx.ClientIP(ctx)),
		UserAgent:  optional(reqctx.UserAgent(ctx)),
		CreatedAt:  reqctx.Now(ctx).UTC().Truncate(time.Microsecond),
	}
	if _, err := w.audits.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("audit: append: %w", err)
	}
	rec.AdminUsername = resolved.Username
	w.metrics.recorded(rec.Action, rec.EntityType)
	if w.logger != nil {
		w.logger.Debugf("audit %s %s id=%v admin=%d", rec.Action, rec.EntityType, entityIDLog(rec.EntityID), rec.AdminID)
	}
	return rec, nil
}

func (w *Writer) resolveActor(ctx context.Context, actor *store.Actor) (*store.Actor, error) {
	if actor != nil && actor.AdminID > 0 {
		return actor, nil
	}
	if w.actors == nil {
		return nil, ErrActorResolution
	}
	resolved, err := w.actors.CurrentAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorResolution, err)
	}
	if resolved == nil || resolved.AdminID <= 0 {
		return nil, ErrActorResolution
	}
	return resolved, nil
}

func encodeSnapshot(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := strings.TrimSuffix(buf.String(), "\n")
	if out == "null" {
		return nil, nil
	}
	return &out, nil
}

func optional(val string) *string {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	return &val
}

func entityIDLog(id *int64) any {
	if id == nil {
		return "-"
	}
	return *id
}
