package appbootstrap

import (
	"aquatrace/api"
	"aquatrace/config"
	"aquatrace/core/auth"
	"aquatrace/core/incidents"
	"aquatrace/core/rbac"
	"aquatrace/core/slawatch"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	users      store.UsersStore
	master     store.MasterStore
	incidents  store.IncidentsStore
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	master := store.NewMasterStore(db)

	policy, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		return nil, err
	}
	sessionManager := auth.NewSessionManager(sessions, cfg, logger)
	incidentsSvc := incidents.NewService(incidentsStore, users, master, audits, cfg.Incidents, logger)

	var workers []api.BackgroundWorker
	if cfg.Scheduler.Enabled {
		workers = append(workers, slawatch.NewEngine(incidentsStore, sessions, audits, cfg, logger))
	}

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:        users,
			Sessions:     sessionManager,
			Audits:       audits,
			Incidents:    incidentsStore,
			Master:       master,
			IncidentsSvc: incidentsSvc,
			Policy:       policy,
		},
		users:     users,
		master:    master,
		incidents: incidentsStore,
		workers:   workers,
	}, nil
}
