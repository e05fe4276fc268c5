package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditRecord is immutable once appended.
type AuditRecord struct {
	ID            int64     `json:"id"`
	AdminID       int64     `json:"admin_id"`
	AdminUsername string    `json:"admin_username,omitempty"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      *int64    `json:"entity_id,omitempty"`
	OldValue      *string   `json:"old_value,omitempty"`
	NewValue      *string   `json:"new_value,omitempty"`
	IPAddress     *string   `json:"ip_address,omitempty"`
	UserAgent     *string   `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type AuditFilter struct {
	Action     string
	EntityType string
	EntityID   *int64
	AdminID    int64
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// AuditStore has no update or delete path.
type AuditStore interface {
	Append(ctx context.Context, rec *AuditRecord) (int64, error)
	List(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
	Count(ctx context.Context, filter AuditFilter) (int64, error)
}

type auditStore struct {
	db *DB
}

func NewAuditStore(db *DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Append(ctx context.Context, rec *AuditRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_records(admin_id, action, entity_type, entity_id, old_value, new_value, ip_address, user_agent, created_at)
		VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`,
		rec.AdminID, rec.Action, rec.EntityType, nullableID(rec.EntityID), nullableString(rec.OldValue), nullableString(rec.NewValue),
		nullableString(rec.IPAddress), nullableString(rec.UserAgent), rec.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

func (s *auditStore) List(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	where, args := auditWhere(filter)
	query := `
		SELECT r.id, r.admin_id, COALESCE(u.username, ''), r.action, r.entity_type, r.entity_id, r.old_value, r.new_value, r.ip_address, r.user_agent, r.created_at
		FROM audit_records r
		LEFT JOIN administrators a ON a.id = r.admin_id
		LEFT JOIN users u ON u.id = a.user_id` + where + ` ORDER BY r.created_at DESC, r.id DESC`
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
	var res []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var entityID sql.NullInt64
		var oldVal, newVal, ip, ua sql.NullString
		if err := rows.Scan(&rec.ID, &rec.AdminID, &rec.AdminUsername, &rec.Action, &rec.EntityType, &entityID, &oldVal, &newVal, &ip, &ua, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.EntityID = int64Ptr(entityID)
		rec.OldValue = stringPtr(oldVal)
		rec.NewValue = stringPtr(newVal)
		rec.IPAddress = stringPtr(ip)
		rec.UserAgent = stringPtr(ua)
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *auditStore) Count(ctx context.Context, filter AuditFilter) (int64, error) {
	where, args := auditWhere(filter)
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records r`+where, args...).Scan(&n)
	return n, err
}

func auditWhere(filter AuditFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Action != "" {
		clauses = append(clauses, "r.action=?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		clauses = append(clauses, "r.entity_type=?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != nil {
		clauses = append(clauses, "r.entity_id=?")
		args = append(args, *filter.EntityID)
	}
	if filter.AdminID > 0 {
		clauses = append(clauses, "r.admin_id=?")
		args = append(args, filter.AdminID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "r.created_at>=?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Until != nil {
		clauses = append(clauses, "r.created_at<=?")
		args = append(args, filter.Until.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
