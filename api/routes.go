package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() chi.Router {
	h := s.newRouteHandlers()
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.requestMetadataMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)

	r.Method(http.MethodGet, "/metrics", s.metricsHandler())
	r.MethodFunc(http.MethodGet, "/healthz", s.healthz)

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.MethodFunc("GET", "/auth/me", s.withSession(h.auth.Me))
		apiRouter.MethodFunc("POST", "/auth/logout", s.withSession(h.auth.Logout))
		apiRouter.Route("/incidents", func(ir chi.Router) {
			ir.MethodFunc("GET", "/", s.withSession(h.incidents.List))
			ir.MethodFunc("POST", "/", s.withSession(s.requireAdmin(h.incidents.Create)))
			ir.MethodFunc("GET", "/{id:[0-9]+}", s.withSession(h.incidents.Get))
			ir.MethodFunc("PUT", "/{id:[0-9]+}", s.withSession(s.requireAdmin(h.incidents.Update)))
			ir.MethodFunc("DELETE", "/{id:[0-9]+}", s.withSession(s.requireAdmin(h.incidents.Delete)))
		})
		apiRouter.Route("/calendars/incidents", func(cr chi.Router) {
			cr.MethodFunc("GET", "/events", s.withSession(h.calendar.Events))
			cr.MethodFunc("GET", "/ics", s.withSession(h.calendar.ICS))
			cr.MethodFunc("PUT", "/events/{id:[0-9]+}", s.withSession(s.requireAdmin(h.calendar.UpdateEvent)))
			cr.MethodFunc("DELETE", "/events/{id:[0-9]+}", s.withSession(s.requireAdmin(h.calendar.DeleteEvent)))
		})
		apiRouter.Route("/accounts", func(ar chi.Router) {
			ar.MethodFunc("GET", "/users", s.withSession(s.requireAdmin(h.accounts.ListUsers)))
			ar.MethodFunc("POST", "/users", s.withSession(s.requireAdmin(h.accounts.CreateUser)))
			ar.MethodFunc("PUT", "/users/{id:[0-9]+}", s.withSession(s.requireAdmin(h.accounts.UpdateUser)))
			ar.MethodFunc("DELETE", "/users/{id:[0-9]+}", s.withSession(s.requireAdmin(h.accounts.DeleteUser)))
			ar.MethodFunc("POST", "/users/{id:[0-9]+}/promote", s.withSession(s.requireAdmin(h.accounts.Promote)))
			ar.MethodFunc("POST", "/users/{id:[0-9]+}/demote", s.withSession(s.requireAdmin(h.accounts.Demote)))
			ar.MethodFunc("GET", "/admins", s.withSession(s.requireAdmin(h.accounts.ListAdmins)))
			ar.MethodFunc("PUT", "/admins/{id:[0-9]+}/permissions", s.withSession(s.requireAdmin(h.accounts.SetPermissions)))
		})
		apiRouter.Route("/logs", func(lr chi.Router) {
			lr.MethodFunc("GET", "/", s.withSession(s.requireAdmin(h.logs.List)))
			lr.MethodFunc("GET", "/export", s.withSession(s.requireAdmin(h.logs.Export)))
		})
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
