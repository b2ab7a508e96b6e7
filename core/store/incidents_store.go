package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ErrConflict = errors.New("conflict")

// ErrNumberUnavailable signals that the counter-backed number generator
// failed; callers may retry the create with a locally built number.
var ErrNumberUnavailable = errors.New("incident number counter unavailable")

// Incident is the canonical internal record. Inbound payloads of whatever
// shape are normalized into this type once, at the API boundary.
type Incident struct {
	ID               int64      `json:"id"`
	Number           string     `json:"number"`
	ShortDescription string     `json:"short_description"`
	Description      string     `json:"description"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	Urgency          string     `json:"urgency"`
	Category         string     `json:"category"`
	SubCategory      string     `json:"sub_category"`
	Caller           string     `json:"caller"`
	ReportedBy       string     `json:"reported_by"`
	AssignedTo       string     `json:"assigned_to"`
	ReporterUserID   int64      `json:"reporter_user_id"`
	AssigneeUserID   *int64     `json:"assignee_user_id,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Approved         bool       `json:"approved"`
	ApprovedBy       *int64     `json:"approved_by,omitempty"`
	ResponseBreach   bool       `json:"-"`
	ResolutionBreach bool       `json:"-"`
	CreatedBy        int64      `json:"created_by"`
	UpdatedBy        int64      `json:"updated_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Version          int        `json:"version"`
}

// Assigned reports whether the incident has a named assignee. The
// "assigned"/"unassigned" pseudo-status filters key on this.
func (i Incident) Assigned() bool {
	return strings.TrimSpace(i.AssignedTo) != ""
}

type IncidentTimelineEvent struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	EventType  string    `json:"event_type"`
	Message    string    `json:"message"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type IncidentEvidence struct {
	ID          int64      `json:"id"`
	IncidentID  int64      `json:"incident_id"`
	FileID      string     `json:"file_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	SHA256      string     `json:"sha256"`
	Note        string     `json:"note,omitempty"`
	UploadedBy  int64      `json:"uploaded_by"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// IncidentFilter narrows ListIncidents. Role scoping happens here, at the
// fetch: end users get ReporterUserID set; elevated roles fetch the full set.
type IncidentFilter struct {
	Search         string
	Status         string
	Priority       string
	ReporterUserID int64
	AssigneeUserID int64
	OpenOnly       bool
	Limit          int
	Offset         int
}

type IncidentsStore interface {
	CreateIncident(ctx context.Context, incident *Incident, numberFormat string) (int64, error)
	UpdateIncident(ctx context.Context, incident *Incident, expectedVersion int) error
	AssignIncident(ctx context.Context, incidentID int64, assigneeID int64, assigneeName string, updatedBy int64) (*Incident, error)
	ApproveIncident(ctx context.Context, incidentID int64, approvedBy int64) (*Incident, error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	GetIncidentByNumber(ctx context.Context, number string) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	MarkSLABreach(ctx context.Context, incidentID int64, kind string) (bool, error)

	ListIncidentTimeline(ctx context.Context, incidentID int64, limit int) ([]IncidentTimelineEvent, error)
	AddIncidentTimeline(ctx context.Context, ev *IncidentTimelineEvent) (int64, error)

	AddEvidence(ctx context.Context, ev *IncidentEvidence) (int64, error)
	ListEvidence(ctx context.Context, incidentID int64) ([]IncidentEvidence, error)
	GetEvidence(ctx context.Context, incidentID, evidenceID int64) (*IncidentEvidence, error)
	SoftDeleteEvidence(ctx context.Context, evidenceID int64) error
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, number, short_description, description, status, priority, urgency, category, sub_category, caller, reported_by, assigned_to, reporter_user_id, assignee_user_id, latitude, longitude, approved, approved_by, response_breach_flagged, resolution_breach_flagged, created_by, updated_by, created_at, updated_at, version`

func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident, numberFormat string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(incident.Number) == "" {
		seq, err := s.nextIncidentSeqTx(ctx, tx, time.Now().UTC().Year())
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("%w: %v", ErrNumberUnavailable, err)
		}
		incident.Number = BuildIncidentNumber(numberFormat, time.Now().UTC().Year(), seq)
	}
	if incident.Version <= 0 {
		incident.Version = 1
	}
	if strings.TrimSpace(incident.Status) == "" {
		incident.Status = "pending"
	}
	now := time.Now().UTC()
	var incidentID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO incidents(number, short_description, description, status, priority, urgency, category, sub_category, caller, reported_by, assigned_to, reporter_user_id, assignee_user_id, latitude, longitude, approved, approved_by, response_breach_flagged, resolution_breach_flagged, created_by, updated_by, created_at, updated_at, version)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`,
		incident.Number, incident.ShortDescription, incident.Description, incident.Status, incident.Priority, incident.Urgency, incident.Category, incident.SubCategory, incident.Caller, incident.ReportedBy, incident.AssignedTo, incident.ReporterUserID, nullableID(incident.AssigneeUserID), nullableFloat(incident.Latitude), nullableFloat(incident.Longitude), boolToInt(incident.Approved), nullableID(incident.ApprovedBy), 0, 0, incident.CreatedBy, incident.UpdatedBy, now, now, incident.Version).Scan(&incidentID); err != nil {
		tx.Rollback()
		return 0, err
	}
	incident.ID = incidentID
	incident.CreatedAt = now
	incident.UpdatedAt = now
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO incident_timeline(incident_id, event_type, message, created_by, created_at)
		VALUES(?,?,?,?,?)`, incidentID, "incident.create", "incident created", incident.CreatedBy, now); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return incidentID, nil
}

func (s *incidentsStore) UpdateIncident(ctx context.Context, incident *Incident, expectedVersion int) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET short_description=?, description=?, status=?, priority=?, urgency=?, category=?, sub_category=?, caller=?, reported_by=?, assigned_to=?, assignee_user_id=?, latitude=?, longitude=?, updated_by=?, updated_at=?, version=version+1
		WHERE id=? AND version=?`,
		incident.ShortDescription, incident.Description, incident.Status, incident.Priority, incident.Urgency, incident.Category, incident.SubCategory, incident.Caller, incident.ReportedBy, incident.AssignedTo, nullableID(incident.AssigneeUserID), nullableFloat(incident.Latitude), nullableFloat(incident.Longitude), incident.UpdatedBy, now, incident.ID, expectedVersion)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	incident.Version = expectedVersion + 1
	incident.UpdatedAt = now
	return nil
}

func (s *incidentsStore) AssignIncident(ctx context.Context, incidentID int64, assigneeID int64, assigneeName string, updatedBy int64) (*Incident, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE incidents SET assigned_to=?, assignee_user_id=?, status=CASE WHEN status='pending' THEN 'in_progress' ELSE status END, updated_by=?, updated_at=?, version=version+1
		WHERE id=? AND status NOT IN ('resolved','closed')`,
		strings.TrimSpace(assigneeName), assigneeID, updatedBy, now, incidentID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return nil, ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO incident_timeline(incident_id, event_type, message, created_by, created_at)
		VALUES(?,?,?,?,?)`, incidentID, "assignee.change", fmt.Sprintf("assigned to %s", strings.TrimSpace(assigneeName)), updatedBy, now); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetIncident(ctx, incidentID)
}

func (s *incidentsStore) ApproveIncident(ctx context.Context, incidentID int64, approvedBy int64) (*Incident, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET approved=1, approved_by=?, status='closed', updated_by=?, updated_at=?, version=version+1
		WHERE id=? AND status='resolved' AND approved=0`,
		approvedBy, approvedBy, now, incidentID)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrConflict
	}
	return s.GetIncident(ctx, incidentID)
}

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) GetIncidentByNumber(ctx context.Context, number string) (*Incident, error) {
	if strings.TrimSpace(number) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE number=?`, strings.TrimSpace(number))
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "LOWER(priority)=?")
		args = append(args, strings.ToLower(filter.Priority))
	}
	if filter.Search != "" {
		clauses = append(clauses, "(LOWER(short_description) LIKE ? OR LOWER(number) LIKE ? OR LOWER(category) LIKE ? OR LOWER(caller) LIKE ?)")
		q := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, q, q, q, q)
	}
	if filter.ReporterUserID > 0 {
		clauses = append(clauses, "reporter_user_id=?")
		args = append(args, filter.ReporterUserID)
	}
	if filter.AssigneeUserID > 0 {
		clauses = append(clauses, "assignee_user_id=?")
		args = append(args, filter.AssigneeUserID)
	}
	if filter.OpenOnly {
		clauses = append(clauses, "status NOT IN ('resolved','closed')")
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
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
	var res []Incident
	for rows.Next() {
		incident, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, incident)
	}
	return res, rows.Err()
}

// MarkSLABreach records a breach flag once per incident per kind
// ("response" or "resolution"). Returns true when this call flipped the
// flag, so the sweeper writes a single timeline event per breach.
func (s *incidentsStore) MarkSLABreach(ctx context.Context, incidentID int64, kind string) (bool, error) {
	column := ""
	switch kind {
	case "response":
		column = "response_breach_flagged"
	case "resolution":
		column = "resolution_breach_flagged"
	default:
		return false, fmt.Errorf("unknown sla kind %q", kind)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE incidents SET `+column+`=1 WHERE id=? AND `+column+`=0`, incidentID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *incidentsStore) ListIncidentTimeline(ctx context.Context, incidentID int64, limit int) ([]IncidentTimelineEvent, error) {
	query := `SELECT id, incident_id, event_type, message, created_by, created_at FROM incident_timeline WHERE incident_id=? ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentTimelineEvent
	for rows.Next() {
		var ev IncidentTimelineEvent
		if err := rows.Scan(&ev.ID, &ev.IncidentID, &ev.EventType, &ev.Message, &ev.CreatedBy, &ev.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *incidentsStore) AddIncidentTimeline(ctx context.Context, ev *IncidentTimelineEvent) (int64, error) {
	now := time.Now().UTC()
	var id int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO incident_timeline(incident_id, event_type, message, created_by, created_at)
		VALUES(?,?,?,?,?)
		RETURNING id`,
		ev.IncidentID, strings.TrimSpace(ev.EventType), strings.TrimSpace(ev.Message), ev.CreatedBy, now).Scan(&id); err != nil {
		return 0, err
	}
	ev.ID = id
	ev.CreatedAt = now
	return id, nil
}

func (s *incidentsStore) AddEvidence(ctx context.Context, ev *IncidentEvidence) (int64, error) {
	now := time.Now().UTC()
	var id int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO incident_evidence(incident_id, file_id, filename, content_type, size_bytes, sha256, note, uploaded_by, uploaded_at, deleted_at)
		VALUES(?,?,?,?,?,?,?,?,?,NULL)
		RETURNING id`,
		ev.IncidentID, strings.TrimSpace(ev.FileID), ev.Filename, ev.ContentType, ev.SizeBytes, ev.SHA256, strings.TrimSpace(ev.Note), ev.UploadedBy, now).Scan(&id); err != nil {
		return 0, err
	}
	ev.ID = id
	ev.UploadedAt = now
	return id, nil
}

func (s *incidentsStore) ListEvidence(ctx context.Context, incidentID int64) ([]IncidentEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, file_id, filename, content_type, size_bytes, sha256, note, uploaded_by, uploaded_at, deleted_at
		FROM incident_evidence WHERE incident_id=? AND deleted_at IS NULL ORDER BY uploaded_at DESC, id DESC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentEvidence
	for rows.Next() {
		var ev IncidentEvidence
		var deleted sql.NullTime
		if err := rows.Scan(&ev.ID, &ev.IncidentID, &ev.FileID, &ev.Filename, &ev.ContentType, &ev.SizeBytes, &ev.SHA256, &ev.Note, &ev.UploadedBy, &ev.UploadedAt, &deleted); err != nil {
			return nil, err
		}
		if deleted.Valid {
			ev.DeletedAt = &deleted.Time
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *incidentsStore) GetEvidence(ctx context.Context, incidentID, evidenceID int64) (*IncidentEvidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, incident_id, file_id, filename, content_type, size_bytes, sha256, note, uploaded_by, uploaded_at, deleted_at
		FROM incident_evidence WHERE id=? AND incident_id=?`, evidenceID, incidentID)
	var ev IncidentEvidence
	var deleted sql.NullTime
	if err := row.Scan(&ev.ID, &ev.IncidentID, &ev.FileID, &ev.Filename, &ev.ContentType, &ev.SizeBytes, &ev.SHA256, &ev.Note, &ev.UploadedBy, &ev.UploadedAt, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if deleted.Valid {
		ev.DeletedAt = &deleted.Time
	}
	return &ev, nil
}

func (s *incidentsStore) SoftDeleteEvidence(ctx context.Context, evidenceID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE incident_evidence SET deleted_at=? WHERE id=? AND deleted_at IS NULL`, time.Now().UTC(), evidenceID)
	return err
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var inc Incident
	var assignee sql.NullInt64
	var approvedBy sql.NullInt64
	var lat, lng sql.NullFloat64
	var approved, respFlag, resoFlag int
	if err := row.Scan(&inc.ID, &inc.Number, &inc.ShortDescription, &inc.Description, &inc.Status, &inc.Priority, &inc.Urgency, &inc.Category, &inc.SubCategory, &inc.Caller, &inc.ReportedBy, &inc.AssignedTo, &inc.ReporterUserID, &assignee, &lat, &lng, &approved, &approvedBy, &respFlag, &resoFlag, &inc.CreatedBy, &inc.UpdatedBy, &inc.CreatedAt, &inc.UpdatedAt, &inc.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	applyIncidentNulls(&inc, assignee, approvedBy, lat, lng, approved, respFlag, resoFlag)
	return &inc, nil
}

func scanIncidentRow(rows *sql.Rows) (Incident, error) {
	var inc Incident
	var assignee sql.NullInt64
	var approvedBy sql.NullInt64
	var lat, lng sql.NullFloat64
	var approved, respFlag, resoFlag int
	if err := rows.Scan(&inc.ID, &inc.Number, &inc.ShortDescription, &inc.Description, &inc.Status, &inc.Priority, &inc.Urgency, &inc.Category, &inc.SubCategory, &inc.Caller, &inc.ReportedBy, &inc.AssignedTo, &inc.ReporterUserID, &assignee, &lat, &lng, &approved, &approvedBy, &respFlag, &resoFlag, &inc.CreatedBy, &inc.UpdatedBy, &inc.CreatedAt, &inc.UpdatedAt, &inc.Version); err != nil {
		return inc, err
	}
	applyIncidentNulls(&inc, assignee, approvedBy, lat, lng, approved, respFlag, resoFlag)
	return inc, nil
}

func applyIncidentNulls(inc *Incident, assignee, approvedBy sql.NullInt64, lat, lng sql.NullFloat64, approved, respFlag, resoFlag int) {
	if strings.TrimSpace(inc.Status) == "" {
		inc.Status = "pending"
	}
	if assignee.Valid {
		inc.AssigneeUserID = &assignee.Int64
	}
	if approvedBy.Valid {
		inc.ApprovedBy = &approvedBy.Int64
	}
	if lat.Valid {
		inc.Latitude = &lat.Float64
	}
	if lng.Valid {
		inc.Longitude = &lng.Float64
	}
	inc.Approved = approved == 1
	inc.ResponseBreach = respFlag == 1
	inc.ResolutionBreach = resoFlag == 1
}

func (s *incidentsStore) nextIncidentSeqTx(ctx context.Context, tx *Tx, year int) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO incident_number_counters(year, seq)
		VALUES(?,1)
		ON CONFLICT (year)
		DO UPDATE SET seq = incident_number_counters.seq + 1
		RETURNING seq
	`, year).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

var seqToken = regexp.MustCompile(`\{seq(?::(\d+))?\}`)

// BuildIncidentNumber renders the configured tracking-number format, e.g.
// "IN{year2}{seq:04}" for 2024 seq 1 -> "IN240001".
func BuildIncidentNumber(format string, year int, seq int64) string {
	if strings.TrimSpace(format) == "" {
		format = "IN{year2}{seq:04}"
	}
	out := strings.ReplaceAll(format, "{year}", fmt.Sprintf("%d", year))
	out = strings.ReplaceAll(out, "{year2}", fmt.Sprintf("%02d", year%100))
	out = seqToken.ReplaceAllStringFunc(out, func(token string) string {
		m := seqToken.FindStringSubmatch(token)
		if len(m) == 2 && m[1] != "" {
			width := 0
			_, _ = fmt.Sscanf(m[1], "%d", &width)
			if width > 0 {
				return fmt.Sprintf("%0*d", width, seq)
			}
		}
		return fmt.Sprintf("%d", seq)
	})
	return out
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
