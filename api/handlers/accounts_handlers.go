package handlers

import (
	"errors"
	"net/http"
	"strings"

	"sharedcal/core/audit"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

// AccountsHandler manages users and administrator grants. Every mutation is
// audited after it is persisted.
type AccountsHandler struct {
	users  store.UsersStore
	admins store.AdminsStore
	audit  *audit.Writer
	logger *utils.Logger
}

func NewAccountsHandler(users store.UsersStore, admins store.AdminsStore, auditor *audit.Writer, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{users: users, admins: admins, audit: auditor, logger: logger}
}

type accountPayload struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	FullName string `json:"full_name" validate:"max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"required,max=50"`
	Active   *bool  `json:"active"`
}

type permissionsPayload struct {
	Permissions []string `json:"permissions" validate:"dive,required,max=100"`
}

func (h *AccountsHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Errorf("list users: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if items == nil {
		items = []store.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AccountsHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var p accountPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	p.normalize()
	if err := utils.ValidateStruct(p); err != nil {
		writeError(w, http.StatusBadRequest, "accounts.invalid", validationFields(err))
		return
	}
	u := &store.User{
		Username: p.Username,
		FullName: p.FullName,
		Email:    p.Email,
		Role:     p.Role,
		Active:   p.Active == nil || *p.Active,
	}
	if _, err := h.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "accounts.usernameTaken", nil)
			return
		}
		h.logger.Errorf("create user (%s): %v", p.Username, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	h.logger.Printf("user created (%s) id=%d role=%s", u.Username, u.ID, u.Role)
	_, auditErr := h.audit.UserCreated(r.Context(), u.ID, u, reqctx.Actor(r.Context()))
	h.writeAudited(w, http.StatusCreated, "user", u, auditErr)
}

func (h *AccountsHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	var p accountPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	p.normalize()
	if err := utils.ValidateStruct(p); err != nil {
		writeError(w, http.StatusBadRequest, "accounts.invalid", validationFields(err))
		return
	}
	before := *target
	target.Username = p.Username
	target.FullName = p.FullName
	target.Email = p.Email
	target.Role = p.Role
	if p.Active != nil {
		target.Active = *p.Active
	}
	if err := h.users.Update(r.Context(), target); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "accounts.usernameTaken", nil)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "accounts.notFound", nil)
		default:
			h.logger.Errorf("update user %d: %v", target.ID, err)
			writeError(w, http.StatusInternalServerError, "server.error", nil)
		}
		return
	}
	_, auditErr := h.audit.UserUpdated(r.Context(), target.ID, before, target, reqctx.Actor(r.Context()))
	h.writeAudited(w, http.StatusOK, "user", target, auditErr)
}

func (h *AccountsHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	if actor := reqctx.Actor(r.Context()); actor != nil && actor.UserID == target.ID {
		writeError(w, http.StatusConflict, "accounts.selfDelete", nil)
		return
	}
	if err := h.users.Delete(r.Context(), target.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "accounts.inUse", nil)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "accounts.notFound", nil)
		default:
			h.logger.Errorf("delete user %d: %v", target.ID, err)
			writeError(w, http.StatusInternalServerError, "server.error", nil)
		}
		return
	}
	_, auditErr := h.audit.UserDeleted(r.Context(), target.ID, target, reqctx.Actor(r.Context()))
	h.writeAudited(w, http.StatusOK, "status", "ok", auditErr)
}

func (h *AccountsHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	items, err := h.admins.List(r.Context())
	if err != nil {
		h.logger.Errorf("list admins: %v", err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if items == nil {
		items = []store.Administrator{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Promote grants an administrator record to the user in the path. The body
// is optional and may carry initial permissions.
func (h *AccountsHandler) Promote(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	var p permissionsPayload
	if !decodeOptionalJSON(w, r, &p) {
		return
	}
	if err := utils.ValidateStruct(p); err != nil {
		writeError(w, http.StatusBadRequest, "accounts.invalid", validationFields(err))
		return
	}
	admin, err := h.admins.Promote(r.Context(), target.ID, p.Permissions)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "accounts.alreadyAdmin", nil)
			return
		}
		h.logger.Errorf("promote user %d: %v", target.ID, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	_, auditErr := h.audit.AdminPromoted(r.Context(), admin.ID, admin, reqctx.Actor(r.Context()))
	h.writeAudited(w, http.StatusCreated, "admin", admin, auditErr)
}

func (h *AccountsHandler) Demote(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	admin, err := h.admins.FindByUserID(r.Context(), target.ID)
	if err != nil {
		h.logger.Errorf("find admin for user %d: %v", target.ID, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if admin == nil {
		writeError(w, http.StatusNotFound, "accounts.notAdmin", nil)
		return
	}
	if actor := reqctx.Actor(r.Context()); actor != nil && actor.AdminID == admin.ID {
		writeError(w, http.StatusConflict, "accounts.selfDemote", nil)
		return
	}
	if err := h.admins.Demote(r.Context(), target.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "accounts.notAdmin", nil)
			return
		}
		h.logger.Errorf("demote user %d: %v", target.ID, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	_, auditErr := h.audit.AdminDemoted(r.Context(), admin.ID, admin, reqctx.Actor(r.Context()))
	h.writeAudited(w, http.StatusOK, "status", "ok", auditErr)
}

func (h *AccountsHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "accounts.badID", nil)
		return
	}
	admin, err := h.admins.Get(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get admin %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	if admin == nil {
		writeError(w, http.StatusNotFound, "accounts.notAdmin", nil)
		return
	}
	var p permissionsPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := utils.ValidateStruct(p); err != nil {
		writeError(w, http.StatusBadRequest, "accounts.invalid", validationFields(err))
		return
	}
	if err := h.admins.SetPermissions(r.Context(), id, p.Permissions); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "accounts.notAdmin", nil)
			return
		}
		h.logger.Errorf("set permissions admin %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	after, err := h.admins.Get(r.Context(), id)
	if err != nil || after == nil {
		h.logger.Errorf("reload admin %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return
	}
	_, auditErr := h.audit.AdminPermissionChanged(r.Context(), id, admin.Permissions, after.Permissions, reqctx.Actor(r.Context()))
	h.writeAudited(w, http.StatusOK, "admin", after, auditErr)
}

func (h *AccountsHandler) loadUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	id := pathID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "accounts.badID", nil)
		return nil, false
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get user %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "server.error", nil)
		return nil, false
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "accounts.notFound", nil)
		return nil, false
	}
	return u, true
}

// writeAudited reports a persisted mutation. A failed audit write does not
// undo it and surfaces as a warning.
func (h *AccountsHandler) writeAudited(w http.ResponseWriter, status int, key string, value any, auditErr error) {
	out := map[string]any{key: value}
	if auditErr != nil {
		h.logger.Errorf("account change without audit record: %v", auditErr)
		out["warnings"] = []string{"accounts.auditFailed"}
	}
	writeJSON(w, status, out)
}

func (p *accountPayload) normalize() {
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(p.Email)
	p.Role = strings.ToLower(strings.TrimSpace(p.Role))
}
