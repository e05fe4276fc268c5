// Package incidentcal keeps the shared "Incidents" calendar in step with the
// incident store: one derived event per incident, rendered from the incident's
// current fields and linked back to it through source_kind/source_id.
package incidentcal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sharedcal/config"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeUpdated
	OutcomeDeleted
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Synchronizer struct {
	calendars store.CalendarsStore
	formatter *Formatter
	policy    *ViewPolicy
	icsHost   string
	logger    *utils.Logger
	metrics   *Metrics

	// provisioning is also guarded by unique name/code constraints
	provisionMu sync.Mutex
}

type Option func(*Synchronizer)

func WithMetrics(m *Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

func NewSynchronizer(cfg *config.AppConfig, calendars store.CalendarsStore, logger *utils.Logger, opts ...Option) (*Synchronizer, error) {
	policy, err := NewViewPolicy()
	if err != nil {
		return nil, err
	}
	lang := "en"
	host := "sharedcal.local"
	if cfg != nil {
		if v := strings.TrimSpace(cfg.Incidents.Calendar.Language); v != "" {
			lang = v
		}
		if v := strings.TrimSpace(cfg.Incidents.Calendar.ICSHost); v != "" {
			host = v
		}
	}
	s := &Synchronizer{
		calendars: calendars,
		formatter: NewFormatter(lang, cfg.CalendarLocation()),
		policy:    policy,
		icsHost:   host,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Provision creates the incidents calendar and event type up front.
func (s *Synchronizer) Provision(ctx context.Context) error {
	if _, err := s.EnsureCalendar(ctx); err != nil {
		return err
	}
	_, err := s.EnsureEventType(ctx)
	return err
}

func (s *Synchronizer) EnsureCalendar(ctx context.Context) (*store.Calendar, error) {
	cal, err := s.calendars.FindCalendarByName(ctx, CalendarName)
	if err != nil || cal != nil {
		return cal, err
	}
	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()
	if cal, err = s.calendars.FindCalendarByName(ctx, CalendarName); err != nil || cal != nil {
		return cal, err
	}
	cal = &store.Calendar{
		Name:        CalendarName,
		Description: CalendarDescription,
		Color:       CalendarColor,
		Visibility:  CalendarVisibility,
	}
	if _, err := s.calendars.CreateCalendar(ctx, cal); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create incidents calendar: %w", err)
		}
		existing, ferr := s.calendars.FindCalendarByName(ctx, CalendarName)
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, fmt.Errorf("incidents calendar vanished after conflict")
		}
		return existing, nil
	}
	s.logger.Printf("incidents calendar provisioned id=%d", cal.ID)
	return cal, nil
}

func (s *Synchronizer) EnsureEventType(ctx context.Context) (*store.EventType, error) {
	et, err := s.calendars.FindEventTypeByCode(ctx, EventTypeCode)
	if err != nil || et != nil {
		return et, err
	}
	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()
	if et, err = s.calendars.FindEventTypeByCode(ctx, EventTypeCode); err != nil || et != nil {
		return et, err
	}
	et = &store.EventType{
		Code:        EventTypeCode,
		Name:        EventTypeName,
		Description: EventTypeDescription,
		Color:       EventTypeColor,
		Icon:        EventTypeIcon,
		SortOrder:   EventTypeSortOrder,
	}
	if _, err := s.calendars.CreateEventType(ctx, et); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create incident event type: %w", err)
		}
		existing, ferr := s.calendars.FindEventTypeByCode(ctx, EventTypeCode)
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, fmt.Errorf("incident event type vanished after conflict")
		}
		return existing, nil
	}
	s.logger.Printf("incident event type provisioned id=%d", et.ID)
	return et, nil
}

// OnIncidentCreated writes the derived event for a new incident. The span is
// the day of the call, not the incident's creation day. An event already
// linked to the incident is refreshed instead of duplicated and reported as
// OutcomeUpdated.
func (s *Synchronizer) OnIncidentCreated(ctx context.Context, inc store.IncidentView, actor *store.Actor) (*store.CalendarEvent, Outcome, error) {
	ev, outcome, err := s.onIncidentCreated(ctx, inc, actor)
	if err != nil {
		s.metrics.syncError("create")
		return nil, 0, err
	}
	return ev, outcome, nil
}

func (s *Synchronizer) onIncidentCreated(ctx context.Context, inc store.IncidentView, actor *store.Actor) (*store.CalendarEvent, Outcome, error) {
	cal, err := s.EnsureCalendar(ctx)
	if err != nil {
		return nil, 0, err
	}
	et, err := s.EnsureEventType(ctx)
	if err != nil {
		return nil, 0, err
	}
	existing, err := s.findEvent(ctx, cal.ID, inc.ID)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil {
		ev, err := s.refresh(ctx, existing, inc)
		if err != nil {
			return nil, 0, err
		}
		s.metrics.sync("create", OutcomeUpdated)
		return ev, OutcomeUpdated, nil
	}
	start, end := DaySpan(reqctx.Now(ctx), s.formatter.Location())
	kind := SourceKindIncident
	incidentID := inc.ID
	etID := et.ID
	ev := &store.CalendarEvent{
		CalendarID:  cal.ID,
		EventTypeID: &etID,
		Title:       FormatTitle(inc),
		Description: s.formatter.Description(inc),
		StartsAt:    start,
		EndsAt:      end,
		Color:       PriorityColor(inc.Priority),
		SourceKind:  &kind,
		SourceID:    &incidentID,
	}
	if loc := presentString(inc.Location); loc != "" {
		ev.Location = &loc
	}
	if actor != nil && actor.UserID > 0 {
		uid := actor.UserID
		ev.CreatedBy = &uid
	}
	if _, err := s.calendars.CreateEvent(ctx, ev); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, 0, fmt.Errorf("create incident event: %w", err)
		}
		// a concurrent create won; converge on its row
		winner, ferr := s.calendars.FindEventBySource(ctx, cal.ID, SourceKindIncident, inc.ID)
		if ferr != nil || winner == nil {
			return nil, 0, fmt.Errorf("create incident event: %w", err)
		}
		refreshed, rerr := s.refresh(ctx, winner, inc)
		if rerr != nil {
			return nil, 0, rerr
		}
		s.metrics.sync("create", OutcomeUpdated)
		return refreshed, OutcomeUpdated, nil
	}
	s.metrics.sync("create", OutcomeCreated)
	s.logger.Debugf("incident event created incident=%d event=%d", inc.ID, ev.ID)
	return ev, OutcomeCreated, nil
}

// OnIncidentUpdated rewrites title, description, color and location of the
// derived event. It never creates one.
func (s *Synchronizer) OnIncidentUpdated(ctx context.Context, inc store.IncidentView) (*store.CalendarEvent, Outcome, error) {
	cal, err := s.EnsureCalendar(ctx)
	if err != nil {
		s.metrics.syncError("update")
		return nil, 0, err
	}
	ev, err := s.findEvent(ctx, cal.ID, inc.ID)
	if err != nil {
		s.metrics.syncError("update")
		return nil, 0, err
	}
	if ev == nil {
		s.metrics.sync("update", OutcomeNotFound)
		s.logger.Printf("incident event missing on update incident=%d", inc.ID)
		return nil, OutcomeNotFound, nil
	}
	updated, err := s.refresh(ctx, ev, inc)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.sync("update", OutcomeNotFound)
			return nil, OutcomeNotFound, nil
		}
		s.metrics.syncError("update")
		return nil, 0, err
	}
	s.metrics.sync("update", OutcomeUpdated)
	return updated, OutcomeUpdated, nil
}

// OnIncidentDeleted removes the derived event. Deleting twice is a no-op.
func (s *Synchronizer) OnIncidentDeleted(ctx context.Context, incidentID int64) (Outcome, error) {
	cal, err := s.EnsureCalendar(ctx)
	if err != nil {
		s.metrics.syncError("delete")
		return 0, err
	}
	ev, err := s.findEvent(ctx, cal.ID, incidentID)
	if err != nil {
		s.metrics.syncError("delete")
		return 0, err
	}
	if ev == nil {
		s.metrics.sync("delete", OutcomeNotFound)
		return OutcomeNotFound, nil
	}
	if err := s.calendars.DeleteEvent(ctx, ev.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.sync("delete", OutcomeNotFound)
			return OutcomeNotFound, nil
		}
		s.metrics.syncError("delete")
		return 0, fmt.Errorf("delete incident event: %w", err)
	}
	s.metrics.sync("delete", OutcomeDeleted)
	return OutcomeDeleted, nil
}

// CanView reports whether user may see the incidents calendar.
func (s *Synchronizer) CanView(user store.User) bool {
	return s.policy.CanView(user.Role)
}

// FindEvent returns the derived event of an incident, or nil.
func (s *Synchronizer) FindEvent(ctx context.Context, incidentID int64) (*store.CalendarEvent, error) {
	cal, err := s.EnsureCalendar(ctx)
	if err != nil {
		return nil, err
	}
	return s.findEvent(ctx, cal.ID, incidentID)
}

func (s *Synchronizer) ListEvents(ctx context.Context) ([]store.CalendarEvent, error) {
	cal, err := s.EnsureCalendar(ctx)
	if err != nil {
		return nil, err
	}
	return s.calendars.ListEventsByCalendar(ctx, cal.ID)
}

// findEvent resolves by relation first, then adopts a legacy row that only
// carries the title token.
func (s *Synchronizer) findEvent(ctx context.Context, calendarID, incidentID int64) (*store.CalendarEvent, error) {
	ev, err := s.calendars.FindEventBySource(ctx, calendarID, SourceKindIncident, incidentID)
	if err != nil || ev != nil {
		return ev, err
	}
	legacy, err := s.calendars.FindUnlinkedEventByTitle(ctx, calendarID, Token(incidentID))
	if err != nil || legacy == nil {
		return nil, err
	}
	if err := s.calendars.LinkEventSource(ctx, legacy.ID, SourceKindIncident, incidentID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return s.calendars.FindEventBySource(ctx, calendarID, SourceKindIncident, incidentID)
		}
		return nil, fmt.Errorf("link legacy incident event: %w", err)
	}
	kind := SourceKindIncident
	legacy.SourceKind = &kind
	legacy.SourceID = &incidentID
	s.logger.Printf("adopted legacy incident event event=%d incident=%d", legacy.ID, incidentID)
	return legacy, nil
}

func (s *Synchronizer) refresh(ctx context.Context, ev *store.CalendarEvent, inc store.IncidentView) (*store.CalendarEvent, error) {
	ev.Title = FormatTitle(inc)
	ev.Description = s.formatter.Description(inc)
	ev.Color = PriorityColor(inc.Priority)
	if loc := presentString(inc.Location); loc != "" {
		ev.Location = &loc
	}
	if err := s.calendars.UpdateEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
