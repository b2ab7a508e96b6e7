package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"aquatrace/config"
	"aquatrace/core/auth"
	"aquatrace/core/incidents"
	"aquatrace/core/rbac"
	"aquatrace/core/store"
	"aquatrace/core/utils"
	"github.com/gofrs/uuid/v5"
)

const evidenceMaxBytes = 16 << 20

type IncidentsHandler struct {
	cfg    *config.AppConfig
	store  store.IncidentsStore
	users  store.UsersStore
	svc    *incidents.Service
	policy *rbac.Policy
	audits store.AuditStore
	logger *utils.Logger
}

func NewIncidentsHandler(cfg *config.AppConfig, st store.IncidentsStore, users store.UsersStore, svc *incidents.Service, policy *rbac.Policy, audits store.AuditStore, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, store: st, users: users, svc: svc, policy: policy, audits: audits, logger: logger}
}

// incidentDTO is the list/detail row. SLA is elevated-only and omitted for
// everyone else.
type incidentDTO struct {
	store.Incident
	AssigneeLabel string             `json:"assignee_label"`
	PriorityColor string             `json:"priority_color"`
	SLA           *incidents.CaseSLA `json:"sla,omitempty"`
}

func (h *IncidentsHandler) dto(inc store.Incident, elevated bool) incidentDTO {
	out := incidentDTO{
		Incident:      inc,
		AssigneeLabel: incidents.AssigneeLabel(inc.AssignedTo),
		PriorityColor: incidents.PriorityColor(inc.Priority),
	}
	if elevated {
		sla := h.svc.Evaluate(inc)
		out.SLA = &sla
	}
	return out
}

func (h *IncidentsHandler) viewer(r *http.Request) (*store.User, bool) {
	sess := auth.SessionFrom(r.Context())
	if sess == nil {
		return nil, false
	}
	user, err := h.users.FindByUsername(r.Context(), sess.Username)
	if err != nil || user == nil {
		return nil, false
	}
	elevated := rbac.ElevatedUser(user.Team, user.UserType, user.Roles) ||
		h.policy.Allowed(user.Roles, rbac.PermIncidentsViewAll)
	return user, elevated
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	viewer, elevated := h.viewer(r)
	if viewer == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	view := incidents.ViewAll
	if q.Get("view") == "assign" {
		view = incidents.ViewAssign
	}
	filters := incidents.Filters{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Search:   q.Get("q"),
		View:     view,
	}
	page := parseIntDefault(q.Get("page"), 1)
	perPage := parseIntDefault(q.Get("per_page"), h.cfg.Incidents.EffectivePageSize())
	result, err := h.svc.List(r.Context(), viewer, elevated, filters, page, perPage)
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("incidents list: %v", err)
		}
		writeError(w, http.StatusInternalServerError, "incidents.listFailed")
		return
	}
	items := make([]incidentDTO, 0, len(result.Items))
	for _, inc := range result.Items {
		items = append(items, h.dto(inc, elevated))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":          items,
		"current_page":   result.Current,
		"per_page":       result.PerPage,
		"total_pages":    result.TotalPages,
		"total_filtered": result.TotalFiltered,
		"page_numbers":   result.Numbers,
		"has_prev":       result.HasPrev,
		"has_next":       result.HasNext,
	})
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	viewer, elevated := h.viewer(r)
	if viewer == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var in incidents.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	inc, err := h.svc.Create(r.Context(), viewer, in)
	if err != nil {
		if errors.Is(err, incidents.ErrValidation) {
			writeError(w, http.StatusBadRequest, "incidents.validation")
			return
		}
		if h.logger != nil {
			h.logger.Errorf("incidents create: %v", err)
		}
		writeError(w, http.StatusInternalServerError, "incidents.createFailed")
		return
	}
	writeJSON(w, http.StatusCreated, h.dto(*inc, elevated))
}

// loadVisible fetches an incident and enforces ownership for non-elevated
// viewers.
func (h *IncidentsHandler) loadVisible(w http.ResponseWriter, r *http.Request) (*store.Incident, *store.User, bool, bool) {
	viewer, elevated := h.viewer(r)
	if viewer == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, nil, false, false
	}
	id, ok := parseID(urlParam(r, "id"))
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, nil, false, false
	}
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, incidents.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incidents.notFound")
			return nil, nil, false, false
		}
		writeError(w, http.StatusInternalServerError, "incidents.loadFailed")
		return nil, nil, false, false
	}
	if !elevated && inc.ReporterUserID != viewer.ID {
		writeError(w, http.StatusNotFound, "incidents.notFound")
		return nil, nil, false, false
	}
	return inc, viewer, elevated, true
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	inc, _, elevated, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.dto(*inc, elevated))
}

func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	inc, viewer, elevated, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	var in incidents.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	updated, err := h.svc.Update(r.Context(), viewer, inc.ID, in)
	if err != nil {
		h.writeSvcError(w, err, "incidents.updateFailed")
		return
	}
	writeJSON(w, http.StatusOK, h.dto(*updated, elevated))
}

func (h *IncidentsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	inc, viewer, elevated, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	var in struct {
		AssigneeID int64 `json:"assignee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.AssigneeID <= 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	updated, err := h.svc.Assign(r.Context(), viewer, inc.ID, in.AssigneeID)
	if err != nil {
		h.writeSvcError(w, err, "incidents.assignFailed")
		return
	}
	writeJSON(w, http.StatusOK, h.dto(*updated, elevated))
}

func (h *IncidentsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	inc, viewer, elevated, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	var in struct {
		Note string `json:"note"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	updated, err := h.svc.Resolve(r.Context(), viewer, inc.ID, in.Note)
	if err != nil {
		h.writeSvcError(w, err, "incidents.resolveFailed")
		return
	}
	writeJSON(w, http.StatusOK, h.dto(*updated, elevated))
}

func (h *IncidentsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	inc, viewer, elevated, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	updated, err := h.svc.Approve(r.Context(), viewer, inc.ID)
	if err != nil {
		h.writeSvcError(w, err, "incidents.approveFailed")
		return
	}
	writeJSON(w, http.StatusOK, h.dto(*updated, elevated))
}

func (h *IncidentsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	inc, _, _, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
	events, err := h.store.ListIncidentTimeline(r.Context(), inc.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "incidents.timelineFailed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Map returns the geotagged subset for the situation view.
func (h *IncidentsHandler) Map(w http.ResponseWriter, r *http.Request) {
	viewer, elevated := h.viewer(r)
	if viewer == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sf := store.IncidentFilter{}
	if !elevated {
		sf.ReporterUserID = viewer.ID
	}
	items, err := h.store.ListIncidents(r.Context(), sf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "incidents.listFailed")
		return
	}
	type pin struct {
		ID               int64    `json:"id"`
		Number           string   `json:"number"`
		ShortDescription string   `json:"short_description"`
		Status           string   `json:"status"`
		Priority         string   `json:"priority"`
		PriorityColor    string   `json:"priority_color"`
		Latitude         *float64 `json:"latitude"`
		Longitude        *float64 `json:"longitude"`
	}
	pins := make([]pin, 0, len(items))
	for _, inc := range items {
		if inc.Latitude == nil || inc.Longitude == nil {
			continue
		}
		pins = append(pins, pin{
			ID:               inc.ID,
			Number:           inc.Number,
			ShortDescription: inc.ShortDescription,
			Status:           incidents.NormalizeStatus(inc.Status),
			Priority:         inc.Priority,
			PriorityColor:    incidents.PriorityColor(inc.Priority),
			Latitude:         inc.Latitude,
			Longitude:        inc.Longitude,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pins": pins})
}

func (h *IncidentsHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	inc, _, _, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	items, err := h.store.ListEvidence(r.Context(), inc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "evidence.listFailed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": items})
}

func (h *IncidentsHandler) AddEvidence(w http.ResponseWriter, r *http.Request) {
	inc, viewer, _, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(evidenceMaxBytes); err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer file.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, io.LimitReader(file, evidenceMaxBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "evidence.uploadFailed")
		return
	}
	ev := &store.IncidentEvidence{
		IncidentID:  inc.ID,
		FileID:      uuid.Must(uuid.NewV4()).String(),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   size,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		Note:        strings.TrimSpace(r.FormValue("note")),
		UploadedBy:  viewer.ID,
	}
	if _, err := h.store.AddEvidence(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "evidence.uploadFailed")
		return
	}
	h.audits.Log(r.Context(), viewer.Username, "evidence.add", inc.Number+"|"+ev.FileID)
	writeJSON(w, http.StatusCreated, ev)
}

func (h *IncidentsHandler) DeleteEvidence(w http.ResponseWriter, r *http.Request) {
	inc, viewer, _, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	evidenceID, okID := parseID(urlParam(r, "evidence_id"))
	if !okID {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ev, err := h.store.GetEvidence(r.Context(), inc.ID, evidenceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "evidence.deleteFailed")
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "evidence.notFound")
		return
	}
	if err := h.store.SoftDeleteEvidence(r.Context(), evidenceID); err != nil {
		writeError(w, http.StatusInternalServerError, "evidence.deleteFailed")
		return
	}
	h.audits.Log(r.Context(), viewer.Username, "evidence.delete", inc.Number+"|"+ev.FileID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *IncidentsHandler) writeSvcError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, incidents.ErrNotFound):
		writeError(w, http.StatusNotFound, "incidents.notFound")
	case errors.Is(err, incidents.ErrValidation):
		writeError(w, http.StatusBadRequest, "incidents.validation")
	case errors.Is(err, incidents.ErrStaleVersion):
		writeError(w, http.StatusConflict, "incidents.staleVersion")
	case errors.Is(err, incidents.ErrNotAssignee):
		writeError(w, http.StatusForbidden, "incidents.notAssignee")
	default:
		if h.logger != nil {
			h.logger.Errorf("incidents: %v", err)
		}
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
