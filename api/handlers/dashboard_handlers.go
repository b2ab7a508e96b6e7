package handlers

import (
	"net/http"
	"time"

	"aquatrace/core/incidents"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

type DashboardHandler struct {
	store  store.IncidentsStore
	users  store.UsersStore
	svc    *incidents.Service
	logger *utils.Logger
}

func NewDashboardHandler(st store.IncidentsStore, users store.UsersStore, svc *incidents.Service, logger *utils.Logger) *DashboardHandler {
	return &DashboardHandler{store: st, users: users, svc: svc, logger: logger}
}

// Summary aggregates the staff dashboard tiles: counts by status and
// priority, unassigned backlog, SLA breach totals.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListIncidents(r.Context(), store.IncidentFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dashboard.loadFailed")
		return
	}
	now := time.Now().UTC()
	byStatus := map[string]int{}
	byPriority := map[string]int{}
	unassigned := 0
	responseBreaches := 0
	resolutionBreaches := 0
	atRisk := 0
	for _, inc := range items {
		status := incidents.NormalizeStatus(inc.Status)
		byStatus[status]++
		byPriority[incidents.NormalizePriority(inc.Priority)]++
		if status != incidents.StatusResolved && status != incidents.StatusClosed && !inc.Assigned() {
			unassigned++
		}
		sla := h.svc.SLA().Evaluate(inc, now)
		if sla.Response == incidents.SLABreached {
			responseBreaches++
		}
		if sla.Resolution == incidents.SLABreached {
			resolutionBreaches++
		}
		if sla.Response == incidents.SLAAtRisk || sla.Resolution == incidents.SLAAtRisk {
			atRisk++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":               len(items),
		"by_status":           byStatus,
		"by_priority":         byPriority,
		"unassigned":          unassigned,
		"response_breaches":   responseBreaches,
		"resolution_breaches": resolutionBreaches,
		"at_risk":             atRisk,
	})
}

func (h *DashboardHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
