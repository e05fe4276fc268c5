package appbootstrap

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"sharedcal/config"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

func testConfig(t *testing.T) (*config.AppConfig, *utils.Logger) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:  "sqlite",
		DBURL:     filepath.Join(t.TempDir(), "boot.db"),
		Scheduler: config.SchedulerConfig{Enabled: true, ReconcileSpec: "@every 1h"},
	}
	return cfg, utils.NewLoggerWithOptions(utils.LoggerOptions{Level: "error", Output: io.Discard})
}

func TestSeedAdminIsRepeatable(t *testing.T) {
	cfg, logger := testConfig(t)
	ctx := context.Background()
	first, err := SeedAdmin(ctx, cfg, logger, "root", "Root Admin")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	second, err := SeedAdmin(ctx, cfg, logger, "root", "")
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if first == "" || second == "" || first == second {
		t.Fatalf("expected two distinct session tokens, got %q and %q", first, second)
	}

	db, err := Open(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	users, err := store.NewUsersStore(db).List(ctx)
	if err != nil || len(users) != 1 || users[0].FullName != "Root Admin" {
		t.Fatalf("expected one seeded user, got %+v (%v)", users, err)
	}
	admins, err := store.NewAdminsStore(db).List(ctx)
	if err != nil || len(admins) != 1 || admins[0].UserID != users[0].ID {
		t.Fatalf("expected one administrator, got %+v (%v)", admins, err)
	}
}

func TestComposeRuntimeWiresWorkers(t *testing.T) {
	cfg, logger := testConfig(t)
	ctx := context.Background()
	db, err := Open(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if err := rt.syncer.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	for _, w := range rt.workers {
		if err := w.StartWithContext(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	stopWorkers(rt.workers, logger)

	report, err := Reconcile(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.OrphansDeleted != 0 || len(report.Missing) != 0 {
		t.Fatalf("expected clean report, got %+v", report)
	}
}
