package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "db_driver: sqlite\ndb_url: file.db\nincidents:\n  calendar:\n    timezone: Europe/Paris\n    language: fr\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBURL != "file.db" {
		t.Fatalf("unexpected db settings: %s %s", cfg.DBDriver, cfg.DBURL)
	}
	if cfg.Incidents.Calendar.Language != "fr" {
		t.Fatalf("expected fr language, got %q", cfg.Incidents.Calendar.Language)
	}
	if cfg.Scheduler.ReconcileSpec != "@every 15m" {
		t.Fatalf("expected default reconcile spec, got %q", cfg.Scheduler.ReconcileSpec)
	}
	if cfg.CalendarLocation().String() != "Europe/Paris" {
		t.Fatalf("unexpected location %s", cfg.CalendarLocation())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEffectiveSessionTTLCapped(t *testing.T) {
	cfg := &AppConfig{SessionTTL: 48 * time.Hour}
	if got := cfg.EffectiveSessionTTL(); got != maxUserSessionTTL {
		t.Fatalf("expected cap %s, got %s", maxUserSessionTTL, got)
	}
	var nilCfg *AppConfig
	if got := nilCfg.EffectiveSessionTTL(); got != 3*time.Hour {
		t.Fatalf("expected default ttl, got %s", got)
	}
}

func TestCalendarLocationFallsBackToUTC(t *testing.T) {
	cfg := &AppConfig{Incidents: IncidentsConfig{Calendar: IncidentCalendarConfig{Timezone: "Nowhere/Void"}}}
	if cfg.CalendarLocation() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}
