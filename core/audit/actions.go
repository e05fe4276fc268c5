package audit

import (
	"context"

	"sharedcal/core/store"
)

func (w *Writer) UserCreated(ctx context.Context, id int64, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionCreate, EntityType: EntityUser, EntityID: &id, NewValue: newValue}, actor)
}

func (w *Writer) UserUpdated(ctx context.Context, id int64, oldValue, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionUpdate, EntityType: EntityUser, EntityID: &id, OldValue: oldValue, NewValue: newValue}, actor)
}

func (w *Writer) UserDeleted(ctx context.Context, id int64, oldValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionDelete, EntityType: EntityUser, EntityID: &id, OldValue: oldValue}, actor)
}

func (w *Writer) CalendarCreated(ctx context.Context, id int64, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionCreate, EntityType: EntityCalendar, EntityID: &id, NewValue: newValue}, actor)
}

func (w *Writer) CalendarUpdated(ctx context.Context, id int64, oldValue, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionUpdate, EntityType: EntityCalendar, EntityID: &id, OldValue: oldValue, NewValue: newValue}, actor)
}

func (w *Writer) CalendarDeleted(ctx context.Context, id int64, oldValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionDelete, EntityType: EntityCalendar, EntityID: &id, OldValue: oldValue}, actor)
}

func (w *Writer) EventCreated(ctx context.Context, id int64, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionCreate, EntityType: EntityEvent, EntityID: &id, NewValue: newValue}, actor)
}

func (w *Writer) EventUpdated(ctx context.Context, id int64, oldValue, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionUpdate, EntityType: EntityEvent, EntityID: &id, OldValue: oldValue, NewValue: newValue}, actor)
}

func (w *Writer) EventDeleted(ctx context.Context, id int64, oldValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionDelete, EntityType: EntityEvent, EntityID: &id, OldValue: oldValue}, actor)
}

func (w *Writer) IncidentCreated(ctx context.Context, id int64, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionCreate, EntityType: EntityIncident, EntityID: &id, NewValue: newValue}, actor)
}

func (w *Writer) IncidentUpdated(ctx context.Context, id int64, oldValue, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionUpdate, EntityType: EntityIncident, EntityID: &id, OldValue: oldValue, NewValue: newValue}, actor)
}

func (w *Writer) IncidentDeleted(ctx context.Context, id int64, oldValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionDelete, EntityType: EntityIncident, EntityID: &id, OldValue: oldValue}, actor)
}

func (w *Writer) AdminPromoted(ctx context.Context, id int64, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionPromote, EntityType: EntityAdmin, EntityID: &id, NewValue: newValue}, actor)
}

func (w *Writer) AdminDemoted(ctx context.Context, id int64, oldValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionDemote, EntityType: EntityAdmin, EntityID: &id, OldValue: oldValue}, actor)
}

func (w *Writer) AdminPermissionChanged(ctx context.Context, id int64, oldValue, newValue any, actor *store.Actor) (*store.AuditRecord, error) {
	return w.Record(ctx, Entry{Action: ActionPermissionChange, EntityType: EntityAdmin, EntityID: &id, OldValue: oldValue, NewValue: newValue}, actor)
}
