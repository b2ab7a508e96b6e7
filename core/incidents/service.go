package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aquatrace/config"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

var (
	ErrNotFound     = errors.New("incidents.notFound")
	ErrValidation   = errors.New("incidents.validation")
	ErrStaleVersion = errors.New("incidents.staleVersion")
	ErrNotAssignee  = errors.New("incidents.notAssignee")
)

// CreateInput tolerates the payload shapes the reporting clients send:
// category/urgency arrive either as bare strings or as {name: ...} objects,
// sometimes as master-data ids instead.
type CreateInput struct {
	ShortDescription string     `json:"short_description"`
	Description      string     `json:"description"`
	Priority         FlexString `json:"priority"`
	Status           FlexString `json:"status"`
	Urgency          FlexString `json:"urgency"`
	UrgencyID        int64      `json:"urgency_id"`
	Category         FlexString `json:"category"`
	CategoryID       int64      `json:"category_id"`
	SubCategory      FlexString `json:"sub_category"`
	SubCategoryID    int64      `json:"sub_category_id"`
	Caller           string     `json:"caller"`
	Number           string     `json:"number"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
}

type UpdateInput struct {
	ShortDescription *string    `json:"short_description"`
	Description      *string    `json:"description"`
	Priority         FlexString `json:"priority"`
	Status           FlexString `json:"status"`
	Urgency          FlexString `json:"urgency"`
	Category         FlexString `json:"category"`
	SubCategory      FlexString `json:"sub_category"`
	Caller           *string    `json:"caller"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	Version          int        `json:"version"`
}

type Service struct {
	incidents store.IncidentsStore
	users     store.UsersStore
	master    store.MasterStore
	audits    store.AuditStore
	sla       SLAPolicy
	cfg       config.IncidentsConfig
	logger    *utils.Logger
}

func NewService(incidents store.IncidentsStore, users store.UsersStore, master store.MasterStore, audits store.AuditStore, cfg config.IncidentsConfig, logger *utils.Logger) *Service {
	return &Service{
		incidents: incidents,
		users:     users,
		master:    master,
		audits:    audits,
		sla:       NewSLAPolicy(cfg),
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Service) SLA() SLAPolicy {
	return s.sla
}

func (s *Service) Create(ctx context.Context, actor *store.User, in CreateInput) (*store.Incident, error) {
	if strings.TrimSpace(in.ShortDescription) == "" {
		return nil, fmt.Errorf("%w: short_description required", ErrValidation)
	}
	category := in.Category.String()
	if category == "" && in.CategoryID > 0 {
		category, _ = s.master.CategoryName(ctx, in.CategoryID)
	}
	subCategory := in.SubCategory.String()
	if subCategory == "" && in.SubCategoryID > 0 {
		subCategory, _ = s.master.SubCategoryName(ctx, in.SubCategoryID)
	}
	urgency := in.Urgency.String()
	if urgency == "" && in.UrgencyID > 0 {
		urgency, _ = s.master.UrgencyName(ctx, in.UrgencyID)
	}
	caller := strings.TrimSpace(in.Caller)
	if caller == "" && actor != nil {
		caller = actor.DisplayName()
	}
	inc := &store.Incident{
		Number:           strings.TrimSpace(in.Number),
		ShortDescription: strings.TrimSpace(in.ShortDescription),
		Description:      strings.TrimSpace(in.Description),
		Status:           NormalizeStatus(in.Status.String()),
		Priority:         NormalizePriority(in.Priority.String()),
		Urgency:          strings.TrimSpace(urgency),
		Category:         strings.TrimSpace(category),
		SubCategory:      strings.TrimSpace(subCategory),
		Caller:           caller,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
	}
	if actor != nil {
		inc.ReportedBy = actor.DisplayName()
		inc.ReporterUserID = actor.ID
		inc.CreatedBy = actor.ID
		inc.UpdatedBy = actor.ID
	}
	if _, err := s.incidents.CreateIncident(ctx, inc, s.cfg.NumberFormat); err != nil {
		if !errors.Is(err, store.ErrNumberUnavailable) {
			return nil, err
		}
		// Counter unavailable: retry once with a locally built number.
		inc.Number = FallbackNumber(time.Now().UTC())
		if s.logger != nil {
			s.logger.Errorf("incident number counter unavailable, using fallback %s: %v", inc.Number, err)
		}
		if _, err := s.incidents.CreateIncident(ctx, inc, s.cfg.NumberFormat); err != nil {
			return nil, err
		}
	}
	s.audits.Log(ctx, actorName(actor), "incidents.create", inc.Number)
	return inc, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Incident, error) {
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, ErrNotFound
	}
	return inc, nil
}

func (s *Service) Update(ctx context.Context, actor *store.User, id int64, in UpdateInput) (*store.Incident, error) {
	inc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prevStatus := NormalizeStatus(inc.Status)
	if in.ShortDescription != nil {
		inc.ShortDescription = strings.TrimSpace(*in.ShortDescription)
	}
	if in.Description != nil {
		inc.Description = strings.TrimSpace(*in.Description)
	}
	if in.Caller != nil {
		inc.Caller = strings.TrimSpace(*in.Caller)
	}
	if v := in.Priority.String(); v != "" {
		inc.Priority = NormalizePriority(v)
	}
	if v := in.Status.String(); v != "" {
		inc.Status = NormalizeStatus(v)
	}
	if v := in.Urgency.String(); v != "" {
		inc.Urgency = strings.TrimSpace(v)
	}
	if v := in.Category.String(); v != "" {
		inc.Category = strings.TrimSpace(v)
	}
	if v := in.SubCategory.String(); v != "" {
		inc.SubCategory = strings.TrimSpace(v)
	}
	if in.Latitude != nil {
		inc.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		inc.Longitude = in.Longitude
	}
	if actor != nil {
		inc.UpdatedBy = actor.ID
	}
	expected := in.Version
	if expected <= 0 {
		expected = inc.Version
	}
	if err := s.incidents.UpdateIncident(ctx, inc, expected); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrStaleVersion
		}
		return nil, err
	}
	if newStatus := NormalizeStatus(inc.Status); newStatus != prevStatus {
		_, _ = s.incidents.AddIncidentTimeline(ctx, &store.IncidentTimelineEvent{
			IncidentID: inc.ID,
			EventType:  "status.change",
			Message:    fmt.Sprintf("%s -> %s", prevStatus, newStatus),
			CreatedBy:  inc.UpdatedBy,
		})
	}
	s.audits.Log(ctx, actorName(actor), "incidents.update", inc.Number)
	return inc, nil
}

func (s *Service) Assign(ctx context.Context, actor *store.User, id int64, assigneeID int64) (*store.Incident, error) {
	assignee, err := s.users.Get(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	if assignee == nil || !assignee.Active {
		return nil, fmt.Errorf("%w: assignee not found", ErrValidation)
	}
	actorID := int64(0)
	if actor != nil {
		actorID = actor.ID
	}
	inc, err := s.incidents.AssignIncident(ctx, id, assignee.ID, assignee.DisplayName(), actorID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrStaleVersion
		}
		return nil, err
	}
	s.audits.Log(ctx, actorName(actor), "incidents.assign", fmt.Sprintf("%s|%s", inc.Number, assignee.Username))
	return inc, nil
}

// Resolve is the assignee-facing close-out: only the current assignee may
// move an incident to resolved.
func (s *Service) Resolve(ctx context.Context, actor *store.User, id int64, note string) (*store.Incident, error) {
	inc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || inc.AssigneeUserID == nil || *inc.AssigneeUserID != actor.ID {
		return nil, ErrNotAssignee
	}
	inc.Status = StatusResolved
	inc.UpdatedBy = actor.ID
	if err := s.incidents.UpdateIncident(ctx, inc, inc.Version); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrStaleVersion
		}
		return nil, err
	}
	msg := "resolved"
	if strings.TrimSpace(note) != "" {
		msg = "resolved: " + strings.TrimSpace(note)
	}
	_, _ = s.incidents.AddIncidentTimeline(ctx, &store.IncidentTimelineEvent{
		IncidentID: inc.ID,
		EventType:  "status.change",
		Message:    msg,
		CreatedBy:  actor.ID,
	})
	s.audits.Log(ctx, actorName(actor), "incidents.resolve", inc.Number)
	return inc, nil
}

// Approve closes a resolved incident. Managers sign off on the resolution;
// approving anything not in resolved state conflicts.
func (s *Service) Approve(ctx context.Context, actor *store.User, id int64) (*store.Incident, error) {
	actorID := int64(0)
	if actor != nil {
		actorID = actor.ID
	}
	inc, err := s.incidents.ApproveIncident(ctx, id, actorID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrStaleVersion
		}
		return nil, err
	}
	_, _ = s.incidents.AddIncidentTimeline(ctx, &store.IncidentTimelineEvent{
		IncidentID: inc.ID,
		EventType:  "approval",
		Message:    "resolution approved",
		CreatedBy:  actorID,
	})
	s.audits.Log(ctx, actorName(actor), "incidents.approve", inc.Number)
	return inc, nil
}

// List fetches the viewer-scoped incident set and runs it through the
// filter pipeline. End users only ever see their own reports.
func (s *Service) List(ctx context.Context, viewer *store.User, elevated bool, f Filters, page, perPage int) (Page, error) {
	sf := store.IncidentFilter{}
	if !elevated && viewer != nil {
		sf.ReporterUserID = viewer.ID
	}
	items, err := s.incidents.ListIncidents(ctx, sf)
	if err != nil {
		return Page{}, err
	}
	if perPage <= 0 {
		perPage = s.cfg.EffectivePageSize()
	}
	return Apply(items, f, page, perPage), nil
}

// Evaluate computes the SLA readout for one incident at the current time.
func (s *Service) Evaluate(inc store.Incident) CaseSLA {
	return s.sla.Evaluate(inc, time.Now().UTC())
}

func actorName(u *store.User) string {
	if u == nil {
		return "system"
	}
	return u.Username
}
