// Package appbootstrap wires configuration, storage, services and the HTTP
// server into runnable commands.
package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sharedcal/api"
	"sharedcal/config"
	"sharedcal/core/incidentcal"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

// Open connects to the configured database and brings the schema up to date.
func Open(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*store.DB, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return db, nil
}

// Serve runs the HTTP server and background workers until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	if err := rt.syncer.Provision(ctx); err != nil {
		return fmt.Errorf("provision incidents calendar: %w", err)
	}
	started := make([]api.BackgroundWorker, 0, len(rt.workers))
	for _, w := range rt.workers {
		if err := w.StartWithContext(ctx); err != nil {
			stopWorkers(started, logger)
			return fmt.Errorf("start worker: %w", err)
		}
		started = append(started, w)
	}
	defer stopWorkers(started, logger)

	srv := api.NewServer(cfg, rt.serverDeps, logger)
	return srv.ListenAndServe(ctx)
}

// Reconcile runs a single reconciliation pass outside the scheduler.
func Reconcile(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (incidentcal.ReconcileReport, error) {
	db, err := Open(ctx, cfg, logger)
	if err != nil {
		return incidentcal.ReconcileReport{}, err
	}
	defer db.Close()
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return incidentcal.ReconcileReport{}, err
	}
	return rt.reconciler.RunOnce(ctx)
}

// SeedAdmin creates the user when missing, grants it an administrator record
// and issues a session token for API access.
func SeedAdmin(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger, username, fullName string) (string, error) {
	db, err := Open(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer db.Close()
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return "", err
	}
	users := rt.serverDeps.Users
	user, err := users.FindByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		user = &store.User{Username: username, FullName: fullName, Role: "admin", Active: true}
		if _, err := users.Create(ctx, user); err != nil {
			return "", fmt.Errorf("create user %s: %w", username, err)
		}
		logger.Printf("user created (%s) id=%d", user.Username, user.ID)
	}
	if _, err := rt.serverDeps.Admins.Promote(ctx, user.ID, nil); err != nil && !errors.Is(err, store.ErrConflict) {
		return "", fmt.Errorf("promote %s: %w", username, err)
	}
	sess, err := rt.sessions.Create(ctx, user, "127.0.0.1", "sharedcal-cli")
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

func stopWorkers(workers []api.BackgroundWorker, logger *utils.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(workers) - 1; i >= 0; i-- {
		if err := workers[i].StopWithContext(ctx); err != nil {
			logger.Errorf("stop worker: %v", err)
		}
	}
}
