package handlers

import (
	"net/http"

	"sharedcal/core/auth"
	"sharedcal/core/incidentcal"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

const SessionCookieName = "sharedcal_session"

// AuthHandler describes and ends the caller's session. Sessions are issued
// out of band, so there is no login endpoint.
type AuthHandler struct {
	users    store.UsersStore
	admins   store.AdminsStore
	sessions *auth.SessionManager
	syncer   *incidentcal.Synchronizer
	logger   *utils.Logger
}

func NewAuthHandler(users store.UsersStore, admins store.AdminsStore, sessions *auth.SessionManager, syncer *incidentcal.Synchronizer, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{users: users, admins: admins, sessions: sessions, syncer: syncer, logger: logger}
}

type meResponse struct {
	User             *store.User `json:"user"`
	IsAdmin          bool        `json:"is_admin"`
	Permissions      []string    `json:"permissions"`
	CanViewIncidents bool        `json:"can_view_incidents"`
	ExpiresAt        string      `json:"expires_at"`
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sr := reqctx.Session(r.Context())
	if sr == nil {
		writeError(w, http.StatusUnauthorized, "auth.unauthorized", nil)
		return
	}
	user, err := h.users.Get(r.Context(), sr.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "accounts.notFound", nil)
		return
	}
	out := meResponse{
		User:             user,
		Permissions:      []string{},
		CanViewIncidents: h.syncer.CanView(*user),
		ExpiresAt:        sr.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if actor := reqctx.Actor(r.Context()); actor != nil {
		out.IsAdmin = true
		if admin, err := h.admins.Get(r.Context(), actor.AdminID); err == nil && admin != nil {
			out.Permissions = admin.Permissions
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sr := reqctx.Session(r.Context()); sr != nil {
		if err := h.sessions.Delete(r.Context(), sr.ID); err != nil {
			h.logger.Errorf("logout %s: %v", sr.Username, err)
			writeError(w, http.StatusInternalServerError, "server.error", nil)
			return
		}
		h.logger.Printf("session closed (%s)", sr.Username)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
