package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"sharedcal/config"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionManager struct {
	store  store.SessionStore
	cfg    *config.AppConfig
	logger *utils.Logger
	now    func() time.Time
}

func NewSessionManager(store store.SessionStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: store, cfg: cfg, logger: logger, now: utils.NowUTC}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User, ip, userAgent string) (*store.SessionRecord, error) {
	if user == nil || user.ID <= 0 {
		return nil, errors.New("user is required")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := m.now()
	sess := &store.SessionRecord{
		ID:         id.String(),
		UserID:     user.ID,
		Username:   user.Username,
		Role:       strings.ToLower(strings.TrimSpace(user.Role)),
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.EffectiveSessionTTL()),
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns nil for unknown or expired sessions. Expired rows are removed.
func (m *SessionManager) Get(ctx context.Context, sessID string) (*store.SessionRecord, error) {
	id := strings.TrimSpace(sessID)
	if id == "" {
		return nil, nil
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.ExpiresAt.After(m.now()) {
		if err := m.store.DeleteSession(ctx, id); err != nil && m.logger != nil {
			m.logger.Errorf("delete expired session: %v", err)
		}
		return nil, nil
	}
	return sess, nil
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	return m.store.TouchSession(ctx, sessID, m.now())
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.DeleteSession(ctx, sessID)
}

func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}
