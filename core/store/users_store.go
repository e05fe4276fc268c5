package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName prefers the full name and falls back to the login.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Username
}

// Administrator rows are never deleted: audit records reference them. A
// demoted administrator keeps its row with RevokedAt set.
type Administrator struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Actor is the administrator on whose behalf a mutation runs.
type Actor struct {
	AdminID  int64  `json:"admin_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type UsersStore interface {
	Create(ctx context.Context, u *User) (int64, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
}

// AdminsStore reads only active administrators. Promote reinstates a revoked
// row so a user keeps one administrator id across its audit history.
type AdminsStore interface {
	Promote(ctx context.Context, userID int64, permissions []string) (*Administrator, error)
	Demote(ctx context.Context, userID int64) error
	Get(ctx context.Context, id int64) (*Administrator, error)
	FindByUserID(ctx context.Context, userID int64) (*Administrator, error)
	SetPermissions(ctx context.Context, id int64, permissions []string) error
	List(ctx context.Context) ([]Administrator, error)
}

type usersStore struct {
	db *DB
}

type adminsStore struct {
	db *DB
}

func NewUsersStore(db *DB) UsersStore {
	return &usersStore{db: db}
}

func NewAdminsStore(db *DB) AdminsStore {
	return &adminsStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, full_name, email, role, active, created_at, updated_at`

func (s *usersStore) Create(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users(username, full_name, email, role, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?) RETURNING id`,
		strings.TrimSpace(u.Username), u.FullName, u.Email, strings.ToLower(strings.TrimSpace(u.Role)), u.Active, now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return id, nil
}

func (s *usersStore) Update(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username=?, full_name=?, email=?, role=?, active=?, updated_at=? WHERE id=?`,
		strings.TrimSpace(u.Username), u.FullName, u.Email, strings.ToLower(strings.TrimSpace(u.Role)), u.Active, now, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	u.UpdatedAt = now
	return nil
}

func (s *usersStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, name)
	return scanUser(row)
}

func (s *usersStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

const adminColumns = `id, user_id, permissions, created_at, updated_at, revoked_at`

func (s *adminsStore) Promote(ctx context.Context, userID int64, permissions []string) (*Administrator, error) {
	now := time.Now().UTC()
	perms := normalizePermissions(permissions)
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO administrators(user_id, permissions, created_at, updated_at)
		VALUES(?,?,?,?) RETURNING id`, userID, permissionsToJSON(perms), now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return s.reinstate(ctx, userID, perms, now)
		}
		return nil, err
	}
	return &Administrator{ID: id, UserID: userID, Permissions: perms, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *adminsStore) reinstate(ctx context.Context, userID int64, perms []string, now time.Time) (*Administrator, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE administrators SET permissions=?, revoked_at=NULL, updated_at=?
		WHERE user_id=? AND revoked_at IS NOT NULL RETURNING id`, permissionsToJSON(perms), now, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, err
	}
	admin, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrNotFound
	}
	return admin, nil
}

func (s *adminsStore) Demote(ctx context.Context, userID int64) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE administrators SET revoked_at=?, updated_at=? WHERE user_id=? AND revoked_at IS NULL`, now, now, userID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *adminsStore) Get(ctx context.Context, id int64) (*Administrator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM administrators WHERE id=? AND revoked_at IS NULL`, id)
	return scanAdmin(row)
}

func (s *adminsStore) FindByUserID(ctx context.Context, userID int64) (*Administrator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM administrators WHERE user_id=? AND revoked_at IS NULL`, userID)
	return scanAdmin(row)
}

func (s *adminsStore) SetPermissions(ctx context.Context, id int64, permissions []string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE administrators SET permissions=?, updated_at=? WHERE id=? AND revoked_at IS NULL`,
		permissionsToJSON(normalizePermissions(permissions)), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *adminsStore) List(ctx context.Context) ([]Administrator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adminColumns+` FROM administrators WHERE revoked_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Administrator
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

func scanAdmin(row rowScanner) (*Administrator, error) {
	var a Administrator
	var permsRaw string
	var revoked sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &permsRaw, &a.CreatedAt, &a.UpdatedAt, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if revoked.Valid {
		t := revoked.Time
		a.RevokedAt = &t
	}
	_ = json.Unmarshal([]byte(permsRaw), &a.Permissions)
	if a.Permissions == nil {
		a.Permissions = []string{}
	}
	return &a, nil
}

func normalizePermissions(perms []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		val := strings.ToLower(strings.TrimSpace(p))
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

func permissionsToJSON(perms []string) string {
	if len(perms) == 0 {
		return "[]"
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return "[]"
	}
	return string(b)
}
