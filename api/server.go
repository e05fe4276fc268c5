package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"sharedcal/config"
	"sharedcal/core/audit"
	"sharedcal/core/auth"
	"sharedcal/core/incidentcal"
	"sharedcal/core/incidents"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

// BackgroundWorker is started with the server and stopped on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	Users     store.UsersStore
	Admins    store.AdminsStore
	Audits    store.AuditStore
	Calendars store.CalendarsStore
	Sessions  *auth.SessionManager
	Actors    *auth.ActorResolver
	Incidents *incidents.Service
	Syncer    *incidentcal.Synchronizer
	Auditor   *audit.Writer
	Registry  *prometheus.Registry
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	users           store.UsersStore
	admins          store.AdminsStore
	audits          store.AuditStore
	calendars       store.CalendarsStore
	sessions        *auth.SessionManager
	actors          *auth.ActorResolver
	incidentsSvc    *incidents.Service
	syncer          *incidentcal.Synchronizer
	auditor         *audit.Writer
	registry        *prometheus.Registry
	httpMetrics     *httpMetrics
	activityTracker *sessionActivity
	router          chi.Router
	httpServer      *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		admins:          deps.Admins,
		audits:          deps.Audits,
		calendars:       deps.Calendars,
		sessions:        deps.Sessions,
		actors:          deps.Actors,
		incidentsSvc:    deps.Incidents,
		syncer:          deps.Syncer,
		auditor:         deps.Auditor,
		registry:        deps.Registry,
		activityTracker: newSessionActivity(),
	}
	if s.registry != nil {
		s.httpMetrics = newHTTPMetrics(s.registry)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
