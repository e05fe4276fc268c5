package incidentcal

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"sharedcal/config"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

type syncEnv struct {
	cfg       *config.AppConfig
	db        *store.DB
	calendars store.CalendarsStore
	incidents store.IncidentsStore
	users     store.UsersStore
	sync      *Synchronizer
	metrics   *Metrics
}

func setupSyncEnv(t *testing.T) *syncEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "incidentcal.db"),
		Incidents: config.IncidentsConfig{Calendar: config.IncidentCalendarConfig{
			Timezone: "UTC", Language: "en", ICSHost: "test.local",
		}},
		Scheduler: config.SchedulerConfig{Enabled: true, ReconcileSpec: "@every 1h"},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	calendars := store.NewCalendarsStore(db)
	metrics := NewMetrics(prometheus.NewRegistry())
	s, err := NewSynchronizer(cfg, calendars, logger, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("synchronizer: %v", err)
	}
	return &syncEnv{
		cfg:       cfg,
		db:        db,
		calendars: calendars,
		incidents: store.NewIncidentsStore(db),
		users:     store.NewUsersStore(db),
		sync:      s,
		metrics:   metrics,
	}
}

func powerOutage() store.IncidentView {
	return store.IncidentView{
		Incident: store.Incident{
			ID:          42,
			Title:       "Power outage",
			Description: "No power in wing B",
			Priority:    "urgent",
			Status:      "open",
			ReporterID:  1,
			CreatedAt:   time.Date(2026, 3, 14, 8, 15, 0, 0, time.UTC),
		},
		CategoryName: "Facilities",
		ReporterName: "A. Martin",
	}
}

func requestAt(ts time.Time) context.Context {
	return reqctx.WithTime(context.Background(), ts)
}

func TestIncidentCreatedScenario(t *testing.T) {
	env := setupSyncEnv(t)
	ctx := requestAt(time.Date(2026, 3, 20, 15, 4, 5, 0, time.UTC))

	ev, outcome, err := env.sync.OnIncidentCreated(ctx, powerOutage(), &store.Actor{AdminID: 1, UserID: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("unexpected outcome %v", outcome)
	}
	if ev.Title != "🔴 📋 [Incident #42] Power outage" {
		t.Fatalf("unexpected title %q", ev.Title)
	}
	if ev.Color != "#dc2626" {
		t.Fatalf("unexpected color %q", ev.Color)
	}
	wantStart := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 20, 23, 59, 59, 0, time.UTC)
	stored, err := env.calendars.GetEvent(ctx, ev.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored event: %v", err)
	}
	if !stored.StartsAt.Equal(wantStart) || !stored.EndsAt.Equal(wantEnd) {
		t.Fatalf("span %v - %v, want %v - %v", stored.StartsAt, stored.EndsAt, wantStart, wantEnd)
	}
	if stored.SourceID == nil || *stored.SourceID != 42 || stored.SourceKind == nil || *stored.SourceKind != SourceKindIncident {
		t.Fatalf("relation not stored: %+v", stored)
	}
	if stored.EventTypeID == nil {
		t.Fatalf("event type not linked")
	}
	if stored.CreatedBy == nil || *stored.CreatedBy != 1 {
		t.Fatalf("creator not stored: %+v", stored.CreatedBy)
	}
}

func TestIncidentUpdatedKeepsSpan(t *testing.T) {
	env := setupSyncEnv(t)
	created, _, err := env.sync.OnIncidentCreated(requestAt(time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)), powerOutage(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inc := powerOutage()
	inc.Status = "resolved"
	later := requestAt(time.Date(2026, 3, 22, 9, 0, 0, 0, time.UTC))
	ev, outcome, err := env.sync.OnIncidentUpdated(later, inc)
	if err != nil || outcome != OutcomeUpdated {
		t.Fatalf("update: outcome=%v err=%v", outcome, err)
	}
	if ev.Title != "🔴 ✅ [Incident #42] Power outage" || ev.Color != "#dc2626" {
		t.Fatalf("unexpected update result: %q %q", ev.Title, ev.Color)
	}

	inc.Priority = "low"
	if _, _, err := env.sync.OnIncidentUpdated(later, inc); err != nil {
		t.Fatalf("second update: %v", err)
	}
	stored, _ := env.calendars.GetEvent(later, created.ID)
	if !strings.HasPrefix(stored.Title, "🟢 ✅ ") || stored.Color != "#16a34a" {
		t.Fatalf("priority change not applied: %q %q", stored.Title, stored.Color)
	}
	if !stored.StartsAt.Equal(created.StartsAt) || !stored.EndsAt.Equal(created.EndsAt) {
		t.Fatalf("span moved: %v - %v", stored.StartsAt, stored.EndsAt)
	}
	if !strings.Contains(stored.Description, "Status: Resolved") {
		t.Fatalf("description not refreshed: %q", stored.Description)
	}
}

func TestIncidentUpdatedWithoutEventIsNoop(t *testing.T) {
	env := setupSyncEnv(t)
	ctx := context.Background()
	ev, outcome, err := env.sync.OnIncidentUpdated(ctx, powerOutage())
	if err != nil || outcome != OutcomeNotFound || ev != nil {
		t.Fatalf("expected not found no-op, got %+v %v %v", ev, outcome, err)
	}
	events, err := env.sync.ListEvents(ctx)
	if err != nil || len(events) != 0 {
		t.Fatalf("update must not create events, got %d err=%v", len(events), err)
	}
	if got := testutil.ToFloat64(env.metrics.syncs.WithLabelValues("update", "not_found")); got != 1 {
		t.Fatalf("not_found metric = %v", got)
	}
}

func TestIncidentDeletedTwice(t *testing.T) {
	env := setupSyncEnv(t)
	ctx := context.Background()
	if _, _, err := env.sync.OnIncidentCreated(ctx, powerOutage(), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	outcome, err := env.sync.OnIncidentDeleted(ctx, 42)
	if err != nil || outcome != OutcomeDeleted {
		t.Fatalf("first delete: %v %v", outcome, err)
	}
	outcome, err = env.sync.OnIncidentDeleted(ctx, 42)
	if err != nil || outcome != OutcomeNotFound {
		t.Fatalf("second delete: %v %v", outcome, err)
	}
}

func TestIncidentCreatedTwiceKeepsOneEvent(t *testing.T) {
	env := setupSyncEnv(t)
	ctx := context.Background()
	first, _, err := env.sync.OnIncidentCreated(ctx, powerOutage(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inc := powerOutage()
	inc.Title = "Power outage (wing B)"
	second, outcome, err := env.sync.OnIncidentCreated(ctx, inc, nil)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("existing event must be reported as refreshed, got %v", outcome)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same event, got %d and %d", first.ID, second.ID)
	}
	events, _ := env.sync.ListEvents(ctx)
	if len(events) != 1 || !strings.HasSuffix(events[0].Title, "Power outage (wing B)") {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEnsureCalendarIsIdempotent(t *testing.T) {
	env := setupSyncEnv(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make([]int64, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cal, err := env.sync.EnsureCalendar(ctx)
			errs[i] = err
			if cal != nil {
				ids[i] = cal.ID
			}
		}(i)
	}
	wg.Wait()
	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("ensure %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("calendar identity differs: %v", ids)
		}
	}
	cal, _ := env.calendars.FindCalendarByName(ctx, CalendarName)
	if cal.Description != CalendarDescription || cal.Color != "#dc2626" || cal.Visibility != "public" || cal.OwnerID != nil {
		t.Fatalf("unexpected calendar: %+v", cal)
	}
	et, err := env.sync.EnsureEventType(ctx)
	if err != nil {
		t.Fatalf("event type: %v", err)
	}
	again, _ := env.sync.EnsureEventType(ctx)
	if again.ID != et.ID || et.Icon != "alert-triangle" || et.SortOrder != 999 || et.Name != "Incident" {
		t.Fatalf("unexpected event type: %+v / %+v", et, again)
	}
}

// racingCalendars simulates another process creating the calendar between
// our lookup and our insert.
type racingCalendars struct {
	store.CalendarsStore
	raced bool
}

func (r *racingCalendars) CreateCalendar(ctx context.Context, cal *store.Calendar) (int64, error) {
	if !r.raced {
		r.raced = true
		other := *cal
		if _, err := r.CalendarsStore.CreateCalendar(ctx, &other); err != nil {
			return 0, err
		}
	}
	return r.CalendarsStore.CreateCalendar(ctx, cal)
}

func TestEnsureCalendarAbsorbsConflict(t *testing.T) {
	env := setupSyncEnv(t)
	racing := &racingCalendars{CalendarsStore: env.calendars}
	s, err := NewSynchronizer(env.cfg, racing, nil)
	if err != nil {
		t.Fatalf("synchronizer: %v", err)
	}
	cal, err := s.EnsureCalendar(context.Background())
	if err != nil || cal == nil {
		t.Fatalf("conflict must be absorbed, got %+v err=%v", cal, err)
	}
	if !racing.raced {
		t.Fatalf("race was not exercised")
	}
}

func TestLegacyEventIsAdopted(t *testing.T) {
	env := setupSyncEnv(t)
	ctx := context.Background()
	cal, err := env.sync.EnsureCalendar(ctx)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	legacy := &store.CalendarEvent{CalendarID: cal.ID, Title: "🟡 📋 [Incident #42] Power outage", StartsAt: now, EndsAt: now.Add(time.Hour)}
	if _, err := env.calendars.CreateEvent(ctx, legacy); err != nil {
		t.Fatalf("legacy event: %v", err)
	}
	ev, outcome, err := env.sync.OnIncidentUpdated(ctx, powerOutage())
	if err != nil || outcome != OutcomeUpdated || ev.ID != legacy.ID {
		t.Fatalf("legacy not adopted: %+v %v %v", ev, outcome, err)
	}
	linked, _ := env.calendars.FindEventBySource(ctx, cal.ID, SourceKindIncident, 42)
	if linked == nil || linked.ID != legacy.ID {
		t.Fatalf("relation not written back: %+v", linked)
	}
	if !linked.StartsAt.Equal(now) {
		t.Fatalf("span must not change: %v", linked.StartsAt)
	}
}

func TestCanView(t *testing.T) {
	env := setupSyncEnv(t)
	cases := map[string]bool{
		"admin":   true,
		"teacher": true,
		"staff":   true,
		"":        true,
		"student": false,
		"Student": false,
	}
	for role, want := range cases {
		if got := env.sync.CanView(store.User{Role: role}); got != want {
			t.Fatalf("CanView(%q) = %v, want %v", role, got, want)
		}
	}
}

func TestExportICS(t *testing.T) {
	env := setupSyncEnv(t)
	ctx := requestAt(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC))
	inc := powerOutage()
	loc := "Building A"
	inc.Location = &loc
	if _, _, err := env.sync.OnIncidentCreated(ctx, inc, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	raw, err := env.sync.ExportICS(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		"BEGIN:VCALENDAR", "X-WR-CALNAME:Incidents", "UID:incident-42@test.local", "LOCATION:Building A",
		"CATEGORIES:Incident", "DTSTART;VALUE=DATE:20260320", "DTEND;VALUE=DATE:20260321", "END:VEVENT",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("ics missing %q:\n%s", want, body)
		}
	}
}

func TestAllDaySpanInLocation(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start, end := DaySpan(time.Date(2026, 3, 20, 23, 30, 0, 0, time.UTC), paris)
	ev := &store.CalendarEvent{StartsAt: start.UTC(), EndsAt: end.UTC()}
	from, to, ok := allDaySpan(ev, paris)
	if !ok || from.Format("20060102") != "20260321" || to.Format("20060102") != "20260322" {
		t.Fatalf("got %v %v %v", from, to, ok)
	}
	ev.EndsAt = start.Add(2 * time.Hour).UTC()
	if _, _, ok := allDaySpan(ev, paris); ok {
		t.Fatalf("partial-day span must keep date-times")
	}
}
