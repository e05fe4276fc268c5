package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Incident struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	Priority     string    `json:"priority"`
	Status       string    `json:"status"`
	Location     *string   `json:"location,omitempty"`
	AssigneeID   *int64    `json:"assignee_id,omitempty"`
	AssigneeRole *string   `json:"assignee_role,omitempty"`
	ReporterID   int64     `json:"reporter_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IncidentView is the incident joined with the display names the calendar
// rendering needs.
type IncidentView struct {
	Incident
	CategoryName string `json:"category_name"`
	AssigneeName string `json:"assignee_name,omitempty"`
	ReporterName string `json:"reporter_name"`
}

type IncidentCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type IncidentFilter struct {
	Status   string
	Priority string
	Limit    int
	Offset   int
}

type IncidentsStore interface {
	CreateIncident(ctx context.Context, incident *Incident) (int64, error)
	UpdateIncident(ctx context.Context, incident *Incident) error
	DeleteIncident(ctx context.Context, id int64) error
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	GetIncidentView(ctx context.Context, id int64) (*IncidentView, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]IncidentView, error)
	ListIncidentIDs(ctx context.Context) ([]int64, error)

	EnsureCategory(ctx context.Context, name string) (*IncidentCategory, error)
	ListCategories(ctx context.Context) ([]IncidentCategory, error)
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident) (int64, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(incident.Status) == "" {
		incident.Status = "open"
	}
	if strings.TrimSpace(incident.Priority) == "" {
		incident.Priority = "medium"
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents(title, description, category_id, priority, status, location, assignee_id, assignee_role, reporter_id, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		incident.Title, incident.Description, nullableID(incident.CategoryID), incident.Priority, incident.Status,
		nullableString(incident.Location), nullableID(incident.AssigneeID), nullableString(incident.AssigneeRole),
		incident.ReporterID, now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	incident.ID = id
	incident.CreatedAt = now
	incident.UpdatedAt = now
	return id, nil
}

func (s *incidentsStore) UpdateIncident(ctx context.Context, incident *Incident) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET title=?, description=?, category_id=?, priority=?, status=?, location=?, assignee_id=?, assignee_role=?, updated_at=?
		WHERE id=?`,
		incident.Title, incident.Description, nullableID(incident.CategoryID), incident.Priority, incident.Status,
		nullableString(incident.Location), nullableID(incident.AssigneeID), nullableString(incident.AssigneeRole), now, incident.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	incident.UpdatedAt = now
	return nil
}

func (s *incidentsStore) DeleteIncident(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

const incidentColumns = `i.id, i.title, i.description, i.category_id, i.priority, i.status, i.location, i.assignee_id, i.assignee_role, i.reporter_id, i.created_at, i.updated_at`

const incidentViewQuery = `
	SELECT ` + incidentColumns + `,
		COALESCE(c.name, ''),
		COALESCE(NULLIF(a.full_name, ''), a.username, ''),
		COALESCE(NULLIF(r.full_name, ''), r.username, '')
	FROM incidents i
	LEFT JOIN incident_categories c ON c.id = i.category_id
	LEFT JOIN users a ON a.id = i.assignee_id
	LEFT JOIN users r ON r.id = i.reporter_id`

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	view, err := s.GetIncidentView(ctx, id)
	if err != nil || view == nil {
		return nil, err
	}
	return &view.Incident, nil
}

func (s *incidentsStore) GetIncidentView(ctx context.Context, id int64) (*IncidentView, error) {
	row := s.db.QueryRowContext(ctx, incidentViewQuery+` WHERE i.id=?`, id)
	view, err := scanIncidentView(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]IncidentView, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "i.status=?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "i.priority=?")
		args = append(args, filter.Priority)
	}
	query := incidentViewQuery
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY i.id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentView
	for rows.Next() {
		view, err := scanIncidentView(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *view)
	}
	return res, rows.Err()
}

func (s *incidentsStore) ListIncidentIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM incidents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *incidentsStore) EnsureCategory(ctx context.Context, name string) (*IncidentCategory, error) {
	val := strings.TrimSpace(name)
	if val == "" {
		return nil, fmt.Errorf("category name is required")
	}
	var cat IncidentCategory
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM incident_categories WHERE name=?`, val).Scan(&cat.ID, &cat.Name)
	if err == nil {
		return &cat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `INSERT INTO incident_categories(name) VALUES(?) RETURNING id`, val).Scan(&cat.ID)
	if err != nil {
		if isUniqueViolation(err) {
			err = s.db.QueryRowContext(ctx, `SELECT id, name FROM incident_categories WHERE name=?`, val).Scan(&cat.ID, &cat.Name)
			if err != nil {
				return nil, err
			}
			return &cat, nil
		}
		return nil, err
	}
	cat.Name = val
	return &cat, nil
}

func (s *incidentsStore) ListCategories(ctx context.Context) ([]IncidentCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM incident_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentCategory
	for rows.Next() {
		var c IncidentCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func scanIncidentView(row rowScanner) (*IncidentView, error) {
	var v IncidentView
	var category, assignee sql.NullInt64
	var location, role sql.NullString
	if err := row.Scan(&v.ID, &v.Title, &v.Description, &category, &v.Priority, &v.Status, &location, &assignee, &role,
		&v.ReporterID, &v.CreatedAt, &v.UpdatedAt, &v.CategoryName, &v.AssigneeName, &v.ReporterName); err != nil {
		return nil, err
	}
	v.CategoryID = int64Ptr(category)
	v.AssigneeID = int64Ptr(assignee)
	v.Location = stringPtr(location)
	v.AssigneeRole = stringPtr(role)
	return &v, nil
}
