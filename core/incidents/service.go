// Package incidents runs incident mutations in their fixed order: persist the
// incident, synchronize the derived calendar event, then write the audit
// record. Nothing is rolled back when a later step fails.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sharedcal/core/audit"
	"sharedcal/core/incidentcal"
	"sharedcal/core/store"
	"sharedcal/core/utils"
)

var (
	ErrValidation = errors.New("invalid incident")
	ErrSync       = errors.New("incident calendar sync failed")
	ErrAudit      = errors.New("incident audit failed")
)

// Synchronizer is the calendar side of an incident mutation.
type Synchronizer interface {
	OnIncidentCreated(ctx context.Context, inc store.IncidentView, actor *store.Actor) (*store.CalendarEvent, incidentcal.Outcome, error)
	OnIncidentUpdated(ctx context.Context, inc store.IncidentView) (*store.CalendarEvent, incidentcal.Outcome, error)
	OnIncidentDeleted(ctx context.Context, incidentID int64) (incidentcal.Outcome, error)
}

type Auditor interface {
	IncidentCreated(ctx context.Context, id int64, newValue any, actor *store.Actor) (*store.AuditRecord, error)
	IncidentUpdated(ctx context.Context, id int64, oldValue, newValue any, actor *store.Actor) (*store.AuditRecord, error)
	IncidentDeleted(ctx context.Context, id int64, oldValue any, actor *store.Actor) (*store.AuditRecord, error)
}

type Request struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=10000"`
	Category     string  `json:"category" validate:"max=100"`
	Priority     string  `json:"priority" validate:"required,oneof=low medium high urgent"`
	Status       string  `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
	Location     *string `json:"location" validate:"omitempty,max=200"`
	AssigneeID   *int64  `json:"assignee_id" validate:"omitempty,gt=0"`
	AssigneeRole *string `json:"assignee_role" validate:"omitempty,max=100"`
	ReporterID   int64   `json:"reporter_id" validate:"required,gt=0"`
}

// Result is returned whenever the incident itself was persisted, even if a
// later step failed.
type Result struct {
	Incident    *store.IncidentView  `json:"incident"`
	Event       *store.CalendarEvent `json:"event,omitempty"`
	SyncOutcome string               `json:"sync_outcome,omitempty"`
	AuditID     int64                `json:"audit_id,omitempty"`
}

type Service struct {
	incidents store.IncidentsStore
	users     store.UsersStore
	sync      Synchronizer
	audit     Auditor
	logger    *utils.Logger
}

func NewService(incidents store.IncidentsStore, users store.UsersStore, sync Synchronizer, auditor Auditor, logger *utils.Logger) *Service {
	return &Service{incidents: incidents, users: users, sync: sync, audit: auditor, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (*store.IncidentView, error) {
	return s.incidents.GetIncidentView(ctx, id)
}

func (s *Service) List(ctx context.Context, filter store.IncidentFilter) ([]store.IncidentView, error) {
	return s.incidents.ListIncidents(ctx, filter)
}

func (s *Service) Create(ctx context.Context, req Request, actor *store.Actor) (*Result, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	inc := &store.Incident{ReporterID: req.ReporterID}
	if err := s.apply(ctx, inc, req); err != nil {
		return nil, err
	}
	if _, err := s.incidents.CreateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	view, err := s.incidents.GetIncidentView(ctx, inc.ID)
	if err != nil || view == nil {
		return nil, fmt.Errorf("reload incident %d: %w", inc.ID, errors.Join(err, store.ErrNotFound))
	}
	res := &Result{Incident: view}

	var errs []error
	ev, outcome, err := s.sync.OnIncidentCreated(ctx, *view, actor)
	if err != nil {
		s.logger.Errorf("incident %d calendar sync on create: %v", view.ID, err)
		errs = append(errs, fmt.Errorf("%w: %v", ErrSync, err))
	} else {
		res.Event = ev
		res.SyncOutcome = outcome.String()
		if outcome != incidentcal.OutcomeCreated {
			s.logger.Printf("incident %d already had a calendar event, refreshed it", view.ID)
		}
	}
	if rec, err := s.audit.IncidentCreated(ctx, view.ID, view, actor); err != nil {
		s.logger.Errorf("incident %d created without audit record: %v", view.ID, err)
		errs = append(errs, fmt.Errorf("%w: %w", ErrAudit, err))
	} else {
		res.AuditID = rec.ID
	}
	return res, errors.Join(errs...)
}

func (s *Service) Update(ctx context.Context, id int64, req Request, actor *store.Actor) (*Result, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	before, err := s.incidents.GetIncidentView(ctx, id)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, store.ErrNotFound
	}
	inc := before.Incident
	if req.ReporterID == 0 {
		req.ReporterID = before.ReporterID
	}
	if err := s.apply(ctx, &inc, req); err != nil {
		return nil, err
	}
	if err := s.incidents.UpdateIncident(ctx, &inc); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	after, err := s.incidents.GetIncidentView(ctx, id)
	if err != nil || after == nil {
		return nil, fmt.Errorf("reload incident %d: %w", id, errors.Join(err, store.ErrNotFound))
	}
	res := &Result{Incident: after}

	var errs []error
	ev, outcome, err := s.sync.OnIncidentUpdated(ctx, *after)
	if err != nil {
		s.logger.Errorf("incident %d calendar sync on update: %v", id, err)
		errs = append(errs, fmt.Errorf("%w: %v", ErrSync, err))
	} else {
		res.Event = ev
		res.SyncOutcome = outcome.String()
		if outcome == incidentcal.OutcomeNotFound {
			s.logger.Printf("incident %d has no calendar event to update", id)
		}
	}
	if rec, err := s.audit.IncidentUpdated(ctx, id, before, after, actor); err != nil {
		s.logger.Errorf("incident %d updated without audit record: %v", id, err)
		errs = append(errs, fmt.Errorf("%w: %w", ErrAudit, err))
	} else {
		res.AuditID = rec.ID
	}
	return res, errors.Join(errs...)
}

func (s *Service) Delete(ctx context.Context, id int64, actor *store.Actor) (*Result, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	before, err := s.incidents.GetIncidentView(ctx, id)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, store.ErrNotFound
	}
	if err := s.incidents.DeleteIncident(ctx, id); err != nil {
		return nil, fmt.Errorf("delete incident: %w", err)
	}
	res := &Result{Incident: before}

	var errs []error
	outcome, err := s.sync.OnIncidentDeleted(ctx, id)
	if err != nil {
		s.logger.Errorf("incident %d calendar sync on delete: %v", id, err)
		errs = append(errs, fmt.Errorf("%w: %v", ErrSync, err))
	} else {
		res.SyncOutcome = outcome.String()
	}
	if rec, err := s.audit.IncidentDeleted(ctx, id, before, actor); err != nil {
		s.logger.Errorf("incident %d deleted without audit record: %v", id, err)
		errs = append(errs, fmt.Errorf("%w: %w", ErrAudit, err))
	} else {
		res.AuditID = rec.ID
	}
	return res, errors.Join(errs...)
}

func requireActor(actor *store.Actor) error {
	if actor == nil || actor.AdminID <= 0 {
		return audit.ErrActorResolution
	}
	return nil
}

// apply validates req and copies it onto inc, resolving category and users.
func (s *Service) apply(ctx context.Context, inc *store.Incident, req Request) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Priority = strings.ToLower(strings.TrimSpace(req.Priority))
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if req.ReporterID != inc.ReporterID {
		return fmt.Errorf("%w: reporter cannot change", ErrValidation)
	}
	if err := s.requireUser(ctx, req.ReporterID, "reporter_id"); err != nil {
		return err
	}
	if req.AssigneeID != nil {
		if err := s.requireUser(ctx, *req.AssigneeID, "assignee_id"); err != nil {
			return err
		}
	}
	inc.CategoryID = nil
	if name := strings.TrimSpace(req.Category); name != "" {
		cat, err := s.incidents.EnsureCategory(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve category: %w", err)
		}
		inc.CategoryID = &cat.ID
	}
	inc.Title = req.Title
	inc.Description = req.Description
	inc.Priority = req.Priority
	if req.Status != "" {
		inc.Status = req.Status
	} else if inc.Status == "" {
		inc.Status = "open"
	}
	inc.Location = trimmedOrNil(req.Location)
	inc.AssigneeID = req.AssigneeID
	inc.AssigneeRole = trimmedOrNil(req.AssigneeRole)
	return nil
}

func (s *Service) requireUser(ctx context.Context, id int64, field string) error {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("%w: %s %d does not exist", ErrValidation, field, id)
	}
	return nil
}

func trimmedOrNil(val *string) *string {
	if val == nil {
		return nil
	}
	v := strings.TrimSpace(*val)
	if v == "" {
		return nil
	}
	return &v
}
