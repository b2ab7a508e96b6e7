package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Team         string     `json:"team"`
	UserType     string     `json:"user_type"`
	Roles        []string   `json:"roles"`
	PasswordHash string     `json:"-"`
	Salt         string     `json:"-"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayName prefers "First Last"; fallbacks keep list rows readable even
// for half-filled directory records.
func (u User) DisplayName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case strings.TrimSpace(u.Username) != "":
		return u.Username
	}
	return "Unknown"
}

type UserFilter struct {
	Search   string
	Team     string
	UserType string
	Role     string
	Active   *bool
}

type UsersStore interface {
	Create(ctx context.Context, u *User) (int64, error)
	Update(ctx context.Context, u *User) error
	SetPassword(ctx context.Context, userID int64, passwordHash, salt string) error
	SetActive(ctx context.Context, userID int64, active bool) error
	TouchLogin(ctx context.Context, userID int64) error
	Get(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]User, error)
	Count(ctx context.Context) (int64, error)
}

type usersStore struct {
	db *DB
}

func NewUsersStore(db *DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, username, email, first_name, last_name, team, user_type, roles, password_hash, salt, active, last_login_at, created_at, updated_at`

func (s *usersStore) Create(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	var id int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO users(username, email, first_name, last_name, team, user_type, roles, password_hash, salt, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`,
		strings.ToLower(strings.TrimSpace(u.Username)), strings.TrimSpace(u.Email), u.FirstName, u.LastName, u.Team, u.UserType, rolesToJSON(u.Roles), u.PasswordHash, u.Salt, boolToInt(u.Active), now, now).Scan(&id); err != nil {
		return 0, err
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return id, nil
}

func (s *usersStore) Update(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET email=?, first_name=?, last_name=?, team=?, user_type=?, roles=?, updated_at=?
		WHERE id=?`,
		strings.TrimSpace(u.Email), u.FirstName, u.LastName, u.Team, u.UserType, rolesToJSON(u.Roles), time.Now().UTC(), u.ID)
	return err
}

func (s *usersStore) SetPassword(ctx context.Context, userID int64, passwordHash, salt string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=?, salt=?, updated_at=? WHERE id=?`, passwordHash, salt, time.Now().UTC(), userID)
	return err
}

func (s *usersStore) TouchLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at=? WHERE id=?`, time.Now().UTC(), userID)
	return err
}

func (s *usersStore) SetActive(ctx context.Context, userID int64, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET active=?, updated_at=? WHERE id=?`, boolToInt(active), time.Now().UTC(), userID)
	return err
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, strings.ToLower(strings.TrimSpace(username)))
	return scanUser(row)
}

func (s *usersStore) List(ctx context.Context, filter UserFilter) ([]User, error) {
	var clauses []string
	var args []any
	if filter.Search != "" {
		clauses = append(clauses, "(username LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)")
		q := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, q, q, q, q)
	}
	if filter.Team != "" {
		clauses = append(clauses, "LOWER(team)=?")
		args = append(args, strings.ToLower(filter.Team))
	}
	if filter.UserType != "" {
		clauses = append(clauses, "LOWER(user_type)=?")
		args = append(args, strings.ToLower(filter.UserType))
	}
	if filter.Role != "" {
		clauses = append(clauses, "roles LIKE ?")
		args = append(args, `%"`+strings.ToLower(filter.Role)+`"%`)
	}
	if filter.Active != nil {
		clauses = append(clauses, "active=?")
		args = append(args, boolToInt(*filter.Active))
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY username ASC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		var u User
		var rolesRaw string
		var active int
		var lastLogin sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Team, &u.UserType, &rolesRaw, &u.PasswordHash, &u.Salt, &active, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Active = active == 1
		if lastLogin.Valid {
			u.LastLoginAt = &lastLogin.Time
		}
		if rolesRaw != "" {
			_ = json.Unmarshal([]byte(rolesRaw), &u.Roles)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *usersStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var rolesRaw string
	var active int
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Team, &u.UserType, &rolesRaw, &u.PasswordHash, &u.Salt, &active, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Active = active == 1
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if rolesRaw != "" {
		_ = json.Unmarshal([]byte(rolesRaw), &u.Roles)
	}
	return &u, nil
}

func rolesToJSON(roles []string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range roles {
		rr := strings.ToLower(strings.TrimSpace(r))
		if rr == "" {
			continue
		}
		if _, ok := seen[rr]; ok {
			continue
		}
		out = append(out, rr)
		seen[rr] = struct{}{}
	}
	if len(out) == 0 {
		out = []string{"end_user"}
	}
	b, _ := json.Marshal(out)
	return string(b)
}
