package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Calendar struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Visibility  string    `json:"visibility"`
	OwnerID     *int64    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type EventType struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

type CalendarEvent struct {
	ID          int64     `json:"id"`
	CalendarID  int64     `json:"calendar_id"`
	EventTypeID *int64    `json:"event_type_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Color       string    `json:"color"`
	Location    *string   `json:"location,omitempty"`
	SourceKind  *string   `json:"source_kind,omitempty"`
	SourceID    *int64    `json:"source_id,omitempty"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CalendarsStore interface {
	FindCalendarByName(ctx context.Context, name string) (*Calendar, error)
	CreateCalendar(ctx context.Context, cal *Calendar) (int64, error)
	GetCalendar(ctx context.Context, id int64) (*Calendar, error)

	FindEventTypeByCode(ctx context.Context, code string) (*EventType, error)
	CreateEventType(ctx context.Context, et *EventType) (int64, error)

	CreateEvent(ctx context.Context, ev *CalendarEvent) (int64, error)
	UpdateEvent(ctx context.Context, ev *CalendarEvent) error
	DeleteEvent(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (*CalendarEvent, error)
	FindEventBySource(ctx context.Context, calendarID int64, kind string, sourceID int64) (*CalendarEvent, error)
	FindUnlinkedEventByTitle(ctx context.Context, calendarID int64, token string) (*CalendarEvent, error)
	LinkEventSource(ctx context.Context, eventID int64, kind string, sourceID int64) error
	ListEventsByCalendar(ctx context.Context, calendarID int64) ([]CalendarEvent, error)
}

type calendarsStore struct {
	db *DB
}

func NewCalendarsStore(db *DB) CalendarsStore {
	return &calendarsStore{db: db}
}

const calendarColumns = `id, name, description, color, visibility, owner_id, created_at, updated_at`

func (s *calendarsStore) FindCalendarByName(ctx context.Context, name string) (*Calendar, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE name=?`, name)
	return scanCalendar(row)
}

func (s *calendarsStore) GetCalendar(ctx context.Context, id int64) (*Calendar, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id=?`, id)
	return scanCalendar(row)
}

func (s *calendarsStore) CreateCalendar(ctx context.Context, cal *Calendar) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO calendars(name, description, color, visibility, owner_id, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?) RETURNING id`,
		cal.Name, cal.Description, cal.Color, cal.Visibility, nullableID(cal.OwnerID), now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	cal.ID = id
	cal.CreatedAt = now
	cal.UpdatedAt = now
	return id, nil
}

func scanCalendar(row rowScanner) (*Calendar, error) {
	var c Calendar
	var owner sql.NullInt64
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.Visibility, &owner, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.OwnerID = int64Ptr(owner)
	return &c, nil
}

func (s *calendarsStore) FindEventTypeByCode(ctx context.Context, code string) (*EventType, error) {
	var et EventType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, description, color, icon, sort_order, created_at
		FROM event_types WHERE code=?`, code).
		Scan(&et.ID, &et.Code, &et.Name, &et.Description, &et.Color, &et.Icon, &et.SortOrder, &et.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &et, nil
}

func (s *calendarsStore) CreateEventType(ctx context.Context, et *EventType) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO event_types(code, name, description, color, icon, sort_order, created_at)
		VALUES(?,?,?,?,?,?,?) RETURNING id`,
		et.Code, et.Name, et.Description, et.Color, et.Icon, et.SortOrder, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	et.ID = id
	et.CreatedAt = now
	return id, nil
}

const eventColumns = `id, calendar_id, event_type_id, title, description, starts_at, ends_at, color, location, source_kind, source_id, created_by, created_at, updated_at`

func (s *calendarsStore) CreateEvent(ctx context.Context, ev *CalendarEvent) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO calendar_events(calendar_id, event_type_id, title, description, starts_at, ends_at, color, location, source_kind, source_id, created_by, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		ev.CalendarID, nullableID(ev.EventTypeID), ev.Title, ev.Description, ev.StartsAt, ev.EndsAt, ev.Color,
		nullableString(ev.Location), nullableString(ev.SourceKind), nullableID(ev.SourceID), nullableID(ev.CreatedBy), now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	ev.ID = id
	ev.CreatedAt = now
	ev.UpdatedAt = now
	return id, nil
}

// UpdateEvent rewrites the editable fields. Relation and creator are kept.
func (s *calendarsStore) UpdateEvent(ctx context.Context, ev *CalendarEvent) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE calendar_events SET title=?, description=?, starts_at=?, ends_at=?, color=?, location=?, updated_at=?
		WHERE id=?`,
		ev.Title, ev.Description, ev.StartsAt, ev.EndsAt, ev.Color, nullableString(ev.Location), now, ev.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	ev.UpdatedAt = now
	return nil
}

func (s *calendarsStore) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *calendarsStore) GetEvent(ctx context.Context, id int64) (*CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id=?`, id)
	return scanEvent(row)
}

func (s *calendarsStore) FindEventBySource(ctx context.Context, calendarID int64, kind string, sourceID int64) (*CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM calendar_events
		WHERE calendar_id=? AND source_kind=? AND source_id=?`, calendarID, kind, sourceID)
	return scanEvent(row)
}

// FindUnlinkedEventByTitle looks for rows written before events carried their
// source relation. The oldest match wins.
func (s *calendarsStore) FindUnlinkedEventByTitle(ctx context.Context, calendarID int64, token string) (*CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM calendar_events
		WHERE calendar_id=? AND source_id IS NULL AND title LIKE ?
		ORDER BY id LIMIT 1`, calendarID, "%"+token+"%")
	return scanEvent(row)
}

func (s *calendarsStore) LinkEventSource(ctx context.Context, eventID int64, kind string, sourceID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE calendar_events SET source_kind=?, source_id=? WHERE id=?`, kind, sourceID, eventID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *calendarsStore) ListEventsByCalendar(ctx context.Context, calendarID int64) ([]CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM calendar_events
		WHERE calendar_id=? ORDER BY starts_at, id`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *ev)
	}
	return res, rows.Err()
}

func scanEvent(row rowScanner) (*CalendarEvent, error) {
	var ev CalendarEvent
	var eventType, sourceID, createdBy sql.NullInt64
	var location, sourceKind sql.NullString
	if err := row.Scan(&ev.ID, &ev.CalendarID, &eventType, &ev.Title, &ev.Description, &ev.StartsAt, &ev.EndsAt, &ev.Color,
		&location, &sourceKind, &sourceID, &createdBy, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ev.EventTypeID = int64Ptr(eventType)
	ev.Location = stringPtr(location)
	ev.SourceKind = stringPtr(sourceKind)
	ev.SourceID = int64Ptr(sourceID)
	ev.CreatedBy = int64Ptr(createdBy)
	return &ev, nil
}
