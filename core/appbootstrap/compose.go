package appbootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sharedcal/api"
	"sharedcal/config"
	"sharedcal/core/audit"
	"sharedcal/core/auth"
	"sharedcal/core/incidentcal"
	"sharedcal/core/incidents"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	syncer     *incidentcal.Synchronizer
	reconciler *incidentcal.Reconciler
	sessions   *auth.SessionManager
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*runtimeComposition, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	users := store.NewUsersStore(db)
	admins := store.NewAdminsStore(db)
	audits := store.NewAuditStore(db)
	calendars := store.NewCalendarsStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	sessions := auth.NewSessionManager(store.NewSessionsStore(db), cfg, logger)
	actors := auth.NewActorResolver(users, admins)

	syncer, err := incidentcal.NewSynchronizer(cfg, calendars, logger, incidentcal.WithMetrics(incidentcal.NewMetrics(reg)))
	if err != nil {
		return nil, err
	}
	writer := audit.NewWriter(audits, actors, logger, audit.WithMetrics(audit.NewMetrics(reg)))
	incidentsSvc := incidents.NewService(incidentsStore, users, syncer, writer, logger)
	reconciler := incidentcal.NewReconciler(cfg.Scheduler, syncer, incidentsStore, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:     users,
			Admins:    admins,
			Audits:    audits,
			Calendars: calendars,
			Sessions:  sessions,
			Actors:    actors,
			Incidents: incidentsSvc,
			Syncer:    syncer,
			Auditor:   writer,
			Registry:  reg,
		},
		syncer:     syncer,
		reconciler: reconciler,
		sessions:   sessions,
		workers:    []api.BackgroundWorker{reconciler, newSessionJanitor(sessions, logger)},
	}, nil
}
