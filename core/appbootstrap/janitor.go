package appbootstrap

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"sharedcal/core/auth"
	"sharedcal/core/utils"
)

const sessionPurgeSpec = "@every 1h"

// sessionJanitor removes expired sessions on a fixed schedule.
type sessionJanitor struct {
	sessions *auth.SessionManager
	logger   *utils.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func newSessionJanitor(sessions *auth.SessionManager, logger *utils.Logger) *sessionJanitor {
	return &sessionJanitor{sessions: sessions, logger: logger}
}

func (j *sessionJanitor) StartWithContext(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(sessionPurgeSpec, func() { j.purge(ctx) }); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	return nil
}

func (j *sessionJanitor) StopWithContext(ctx context.Context) error {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *sessionJanitor) purge(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := j.sessions.PurgeExpired(ctx)
	if err != nil {
		j.logger.Errorf("purge expired sessions: %v", err)
		return
	}
	if n > 0 {
		j.logger.Printf("purged %d expired sessions", n)
	}
}
