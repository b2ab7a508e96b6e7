package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type AuditEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditFilter struct {
	Username string
	Action   string
	Since    time.Time
	Limit    int
}

type AuditStore interface {
	Log(ctx context.Context, username, action, details string)
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type auditStore struct {
	db *DB
}

func NewAuditStore(db *DB) AuditStore {
	return &auditStore{db: db}
}

// Log swallows its error. An audit write must never fail the operation it
// describes.
func (s *auditStore) Log(ctx context.Context, username, action, details string) {
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO audit_log(username, action, details, created_at) VALUES(?,?,?,?)`,
		username, action, details, time.Now().UTC())
}

func (s *auditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	var clauses []string
	var args []any
	if filter.Username != "" {
		clauses = append(clauses, "username=?")
		args = append(args, filter.Username)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action LIKE ?")
		args = append(args, filter.Action+"%")
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since)
	}
	query := `SELECT id, username, action, details, created_at FROM audit_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = details.String
		res = append(res, e)
	}
	return res, rows.Err()
}
