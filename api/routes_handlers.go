package api

import "sharedcal/api/handlers"

type routeHandlers struct {
	auth      *handlers.AuthHandler
	incidents *handlers.IncidentsHandler
	calendar  *handlers.CalendarHandler
	accounts  *handlers.AccountsHandler
	logs      *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.users, s.admins, s.sessions, s.syncer, s.logger),
		incidents: handlers.NewIncidentsHandler(s.incidentsSvc, s.logger),
		calendar:  handlers.NewCalendarHandler(s.syncer, s.calendars, s.users, s.auditor, s.logger),
		accounts:  handlers.NewAccountsHandler(s.users, s.admins, s.auditor, s.logger),
		logs:      handlers.NewLogsHandler(s.audits, s.logger),
	}
}
