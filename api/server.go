package api

import (
	"net/http"

	"aquatrace/api/handlers"
	"aquatrace/config"
	"aquatrace/core/auth"
	"aquatrace/core/incidents"
	"aquatrace/core/rbac"
	"aquatrace/core/store"
	"aquatrace/core/utils"
	"github.com/go-chi/chi/v5"
)

// BackgroundWorker is anything with a lifecycle the server owns: started at
// boot, stopped on shutdown.
type BackgroundWorker interface {
	Start() error
	Stop()
}

type ServerDeps struct {
	Users        store.UsersStore
	Sessions     *auth.SessionManager
	Audits       store.AuditStore
	Incidents    store.IncidentsStore
	Master       store.MasterStore
	IncidentsSvc *incidents.Service
	Policy       *rbac.Policy
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	users           store.UsersStore
	sessions        *auth.SessionManager
	audits          store.AuditStore
	incidentsStore  store.IncidentsStore
	master          store.MasterStore
	incidentsSvc    *incidents.Service
	policy          *rbac.Policy
	activityTracker *sessionActivity
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	return &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		sessions:        deps.Sessions,
		audits:          deps.Audits,
		incidentsStore:  deps.Incidents,
		master:          deps.Master,
		incidentsSvc:    deps.IncidentsSvc,
		policy:          deps.Policy,
		activityTracker: newSessionActivity(),
	}
}

type routeHandlers struct {
	auth      *handlers.AuthHandler
	incidents *handlers.IncidentsHandler
	master    *handlers.MasterHandler
	dashboard *handlers.DashboardHandler
	logs      *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.cfg, s.users, s.sessions, s.policy, s.audits, s.logger),
		incidents: handlers.NewIncidentsHandler(s.cfg, s.incidentsStore, s.users, s.incidentsSvc, s.policy, s.audits, s.logger),
		master:    handlers.NewMasterHandler(s.master, s.audits, s.logger),
		dashboard: handlers.NewDashboardHandler(s.incidentsStore, s.users, s.incidentsSvc, s.logger),
		logs:      handlers.NewLogsHandler(s.audits),
	}
}

// Handler assembles the full middleware chain and route table.
func (s *Server) Handler() http.Handler {
	h := s.newRouteHandlers()
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.MethodFunc("POST", "/auth/login", s.rateLimitMiddleware(h.auth.Login))
		apiRouter.MethodFunc("POST", "/auth/logout", s.withSession(h.auth.Logout))
		apiRouter.MethodFunc("GET", "/auth/me", s.withSession(h.auth.Me))
		apiRouter.MethodFunc("POST", "/auth/change-password", s.withSession(h.auth.ChangePassword))

		apiRouter.Route("/incidents", func(ir chi.Router) {
			ir.MethodFunc("GET", "/", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.incidents.List)))
			ir.MethodFunc("POST", "/", s.withSession(s.requirePermission(rbac.PermIncidentsCreate)(h.incidents.Create)))
			ir.MethodFunc("GET", "/map", s.withSession(s.requirePermission(rbac.PermMapView)(h.incidents.Map)))
			ir.MethodFunc("GET", "/{id:[0-9]+}", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.incidents.Get)))
			ir.MethodFunc("PUT", "/{id:[0-9]+}", s.withSession(s.requirePermission(rbac.PermIncidentsEdit)(h.incidents.Update)))
			ir.MethodFunc("POST", "/{id:[0-9]+}/assign", s.withSession(s.requirePermission(rbac.PermIncidentsAssign)(h.incidents.Assign)))
			ir.MethodFunc("POST", "/{id:[0-9]+}/resolve", s.withSession(s.requirePermission(rbac.PermIncidentsResolve)(h.incidents.Resolve)))
			ir.MethodFunc("POST", "/{id:[0-9]+}/approve", s.withSession(s.requirePermission(rbac.PermIncidentsApprove)(h.incidents.Approve)))
			ir.MethodFunc("GET", "/{id:[0-9]+}/timeline", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.incidents.Timeline)))
			ir.MethodFunc("GET", "/{id:[0-9]+}/evidence", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.incidents.ListEvidence)))
			ir.MethodFunc("POST", "/{id:[0-9]+}/evidence", s.withSession(s.requirePermission(rbac.PermEvidenceManage)(h.incidents.AddEvidence)))
			ir.MethodFunc("DELETE", "/{id:[0-9]+}/evidence/{evidence_id:[0-9]+}", s.withSession(s.requirePermission(rbac.PermEvidenceManage)(h.incidents.DeleteEvidence)))
		})

		apiRouter.Route("/master", func(mr chi.Router) {
			mr.MethodFunc("GET", "/categories", s.withSession(s.requirePermission(rbac.PermMasterView)(h.master.ListCategories)))
			mr.MethodFunc("GET", "/categories/{id:[0-9]+}/subcategories", s.withSession(s.requirePermission(rbac.PermMasterView)(h.master.ListSubCategories)))
			mr.MethodFunc("GET", "/urgencies", s.withSession(s.requirePermission(rbac.PermMasterView)(h.master.ListUrgencies)))
			mr.MethodFunc("GET", "/contact-types", s.withSession(s.requirePermission(rbac.PermMasterView)(h.master.ListContactTypes)))
			mr.MethodFunc("POST", "/categories", s.withSession(s.requirePermission(rbac.PermMasterManage)(h.master.AddCategory)))
			mr.MethodFunc("POST", "/categories/{id:[0-9]+}/subcategories", s.withSession(s.requirePermission(rbac.PermMasterManage)(h.master.AddSubCategory)))
			mr.MethodFunc("POST", "/urgencies", s.withSession(s.requirePermission(rbac.PermMasterManage)(h.master.AddUrgency)))
			mr.MethodFunc("POST", "/contact-types", s.withSession(s.requirePermission(rbac.PermMasterManage)(h.master.AddContactType)))
		})

		apiRouter.MethodFunc("GET", "/dashboard", s.withSession(s.requirePermission(rbac.PermDashboardView)(h.dashboard.Summary)))
		apiRouter.MethodFunc("GET", "/logs", s.withSession(s.requirePermission(rbac.PermAuditView)(h.logs.List)))
		apiRouter.MethodFunc("GET", "/logs/export", s.withSession(s.requirePermission(rbac.PermAuditView)(h.logs.Export)))
		apiRouter.MethodFunc("GET", "/health", h.dashboard.Health)
	})

	return r
}
