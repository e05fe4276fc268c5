package incidentcal

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"

	"github.com/robfig/cron/v3"

	"sharedcal/config"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

var tokenPattern = regexp.MustCompile(`\[Incident #(\d+)\]`)

// IncidentLister is the slice of the incident store the reconciler reads.
type IncidentLister interface {
	ListIncidentIDs(ctx context.Context) ([]int64, error)
}

type ReconcileReport struct {
	Scanned        int     `json:"scanned"`
	OrphansDeleted int     `json:"orphans_deleted"`
	Missing        []int64 `json:"missing"`
}

// Reconciler repairs drift between incidents and derived events. Orphaned
// events are removed; incidents without an event are only reported.
type Reconciler struct {
	cfg       config.SchedulerConfig
	syncer    *Synchronizer
	incidents IncidentLister
	calendars store.CalendarsStore
	logger    *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewReconciler(cfg config.SchedulerConfig, syncer *Synchronizer, incidents IncidentLister, logger *utils.Logger) *Reconciler {
	return &Reconciler{cfg: cfg, syncer: syncer, incidents: incidents, calendars: syncer.calendars, logger: logger}
}

func (r *Reconciler) StartWithContext(ctx context.Context) error {
	if r == nil || r.syncer == nil || !r.cfg.Enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	c := cron.New(cron.WithLocation(r.syncer.formatter.Location()))
	_, err := c.AddFunc(r.cfg.ReconcileSpec, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Errorf("incident reconcile failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	r.cron = c
	r.running = true
	r.logger.Printf("incident reconciler scheduled spec=%q", r.cfg.ReconcileSpec)
	return nil
}

func (r *Reconciler) StopWithContext(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	wasRunning := r.running
	r.running = false
	r.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	cal, err := r.syncer.EnsureCalendar(ctx)
	if err != nil {
		return report, err
	}
	// Events are read before incidents. An incident is committed before its
	// event, so every listed event's incident is already visible below.
	events, err := r.calendars.ListEventsByCalendar(ctx, cal.ID)
	if err != nil {
		return report, err
	}
	ids, err := r.incidents.ListIncidentIDs(ctx)
	if err != nil {
		return report, err
	}
	alive := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		alive[id] = struct{}{}
	}
	covered := map[int64]struct{}{}
	for i := range events {
		ev := &events[i]
		incidentID, ok := eventIncidentID(ev)
		if !ok {
			continue
		}
		report.Scanned++
		if _, exists := alive[incidentID]; exists {
			covered[incidentID] = struct{}{}
			continue
		}
		if err := r.calendars.DeleteEvent(ctx, ev.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return report, err
		}
		report.OrphansDeleted++
		r.logger.Printf("removed orphan incident event event=%d incident=%d", ev.ID, incidentID)
	}
	for _, id := range ids {
		if _, ok := covered[id]; !ok {
			report.Missing = append(report.Missing, id)
		}
	}
	if len(report.Missing) > 0 {
		r.logger.Printf("incidents without calendar event count=%d", len(report.Missing))
	}
	r.syncer.metrics.reconciled(report.OrphansDeleted, len(report.Missing))
	return report, nil
}

func eventIncidentID(ev *store.CalendarEvent) (int64, bool) {
	if ev.SourceKind != nil && ev.SourceID != nil {
		if *ev.SourceKind != SourceKindIncident {
			return 0, false
		}
		return *ev.SourceID, true
	}
	m := tokenPattern.FindStringSubmatch(ev.Title)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
