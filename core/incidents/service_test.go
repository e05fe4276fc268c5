package incidents

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sharedcal/config"
	"sharedcal/core/audit"
	"sharedcal/core/incidentcal"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

type serviceEnv struct {
	svc       *Service
	incidents store.IncidentsStore
	audits    store.AuditStore
	sync      *incidentcal.Synchronizer
	actor     *store.Actor
	reporter  *store.User
	users     store.UsersStore
	writer    *audit.Writer
}

func setupService(t *testing.T) *serviceEnv {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBURL: filepath.Join(t.TempDir(), "incidents.db")}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	users := store.NewUsersStore(db)
	admins := store.NewAdminsStore(db)
	root := &store.User{Username: "root", Role: "admin", Active: true}
	reporter := &store.User{Username: "amartin", FullName: "A. Martin", Role: "teacher", Active: true}
	for _, u := range []*store.User{root, reporter} {
		if _, err := users.Create(ctx, u); err != nil {
			t.Fatalf("user: %v", err)
		}
	}
	adm, err := admins.Promote(ctx, root.ID, nil)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	syncer, err := incidentcal.NewSynchronizer(cfg, store.NewCalendarsStore(db), logger)
	if err != nil {
		t.Fatalf("synchronizer: %v", err)
	}
	audits := store.NewAuditStore(db)
	writer := audit.NewWriter(audits, nil, logger)
	incidents := store.NewIncidentsStore(db)
	return &serviceEnv{
		svc:       NewService(incidents, users, syncer, writer, logger),
		incidents: incidents,
		audits:    audits,
		sync:      syncer,
		actor:     &store.Actor{AdminID: adm.ID, UserID: root.ID, Username: root.Username},
		reporter:  reporter,
		users:     users,
		writer:    writer,
	}
}

func (env *serviceEnv) request() Request {
	return Request{
		Title:       "Power outage",
		Description: "No power in wing B",
		Category:    "Facilities",
		Priority:    "urgent",
		ReporterID:  env.reporter.ID,
	}
}

func TestCreateRequiresActorBeforeMutating(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	_, err := env.svc.Create(ctx, env.request(), nil)
	if !errors.Is(err, audit.ErrActorResolution) {
		t.Fatalf("expected actor resolution error, got %v", err)
	}
	items, _ := env.incidents.ListIncidents(ctx, store.IncidentFilter{})
	if len(items) != 0 {
		t.Fatalf("incident persisted without actor")
	}
}

func TestCreateSyncsAndAudits(t *testing.T) {
	env := setupService(t)
	ctx := reqctx.WithTime(context.Background(), time.Date(2026, 3, 20, 11, 0, 0, 0, time.UTC))
	res, err := env.svc.Create(ctx, env.request(), env.actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Incident.Status != "open" || res.Incident.CategoryName != "Facilities" {
		t.Fatalf("unexpected incident: %+v", res.Incident)
	}
	if res.Event == nil || !strings.Contains(res.Event.Title, incidentcal.Token(res.Incident.ID)) {
		t.Fatalf("event missing: %+v", res.Event)
	}
	if res.SyncOutcome != "created" || res.AuditID == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	recs, err := env.audits.List(ctx, store.AuditFilter{EntityType: "incident"})
	if err != nil || len(recs) != 1 {
		t.Fatalf("audit list: %d err=%v", len(recs), err)
	}
	rec := recs[0]
	if rec.Action != "create" || rec.OldValue != nil || rec.NewValue == nil || !strings.Contains(*rec.NewValue, `"title":"Power outage"`) {
		t.Fatalf("unexpected audit record: %+v", rec)
	}
}

func TestCreateReportsRefreshedEvent(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	// a stale event already claims the id the next incident will receive
	stale := store.IncidentView{Incident: store.Incident{ID: 1, Title: "Old", Priority: "low", Status: "closed"}}
	if _, _, err := env.sync.OnIncidentCreated(ctx, stale, nil); err != nil {
		t.Fatalf("stale event: %v", err)
	}
	res, err := env.svc.Create(ctx, env.request(), env.actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Incident.ID != 1 {
		t.Fatalf("expected first incident id, got %d", res.Incident.ID)
	}
	if res.SyncOutcome != "updated" || !strings.HasSuffix(res.Event.Title, "Power outage") {
		t.Fatalf("refreshed event misreported: %+v", res)
	}
	events, _ := env.sync.ListEvents(ctx)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	bad := env.request()
	bad.Priority = "critical"
	if _, err := env.svc.Create(ctx, bad, env.actor); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for priority, got %v", err)
	}
	bad = env.request()
	bad.ReporterID = 999
	if _, err := env.svc.Create(ctx, bad, env.actor); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for reporter, got %v", err)
	}
	bad = env.request()
	bad.Title = "   "
	if _, err := env.svc.Create(ctx, bad, env.actor); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for title, got %v", err)
	}
}

func TestUpdateAndDeleteFlow(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	created, err := env.svc.Create(ctx, env.request(), env.actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Incident.ID

	upd := env.request()
	upd.ReporterID = 0
	upd.Status = "resolved"
	role := "maintenance"
	upd.AssigneeRole = &role
	res, err := env.svc.Update(ctx, id, upd, env.actor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.SyncOutcome != "updated" || !strings.HasPrefix(res.Event.Title, "🔴 ✅ ") {
		t.Fatalf("unexpected update result: %+v", res)
	}
	if !strings.Contains(res.Event.Description, "Assigned role: maintenance") {
		t.Fatalf("role attribution missing: %q", res.Event.Description)
	}
	if !res.Event.StartsAt.Equal(created.Event.StartsAt) {
		t.Fatalf("span changed on update")
	}

	del, err := env.svc.Delete(ctx, id, env.actor)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if del.SyncOutcome != "deleted" {
		t.Fatalf("unexpected delete outcome: %q", del.SyncOutcome)
	}
	if ev, _ := env.sync.FindEvent(ctx, id); ev != nil {
		t.Fatalf("event survived delete")
	}
	if _, err := env.svc.Delete(ctx, id, env.actor); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	total, _ := env.audits.Count(ctx, store.AuditFilter{EntityType: "incident"})
	if total != 3 {
		t.Fatalf("expected 3 incident audit records, got %d", total)
	}
	updates, _ := env.audits.List(ctx, store.AuditFilter{Action: "update"})
	if len(updates) != 1 || updates[0].OldValue == nil || updates[0].NewValue == nil {
		t.Fatalf("update audit must carry both snapshots: %+v", updates)
	}
}

type failingSync struct{}

func (failingSync) OnIncidentCreated(context.Context, store.IncidentView, *store.Actor) (*store.CalendarEvent, incidentcal.Outcome, error) {
	return nil, 0, errors.New("calendar store unavailable")
}

func (failingSync) OnIncidentUpdated(context.Context, store.IncidentView) (*store.CalendarEvent, incidentcal.Outcome, error) {
	return nil, 0, errors.New("calendar store unavailable")
}

func (failingSync) OnIncidentDeleted(context.Context, int64) (incidentcal.Outcome, error) {
	return 0, errors.New("calendar store unavailable")
}

func TestSyncFailureStillAudits(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	svc := NewService(env.incidents, env.users, failingSync{}, env.writer, nil)
	res, err := svc.Create(ctx, env.request(), env.actor)
	if !errors.Is(err, ErrSync) {
		t.Fatalf("expected sync error, got %v", err)
	}
	if res == nil || res.Incident == nil || res.AuditID == 0 {
		t.Fatalf("incident and audit must still be recorded: %+v", res)
	}
}
