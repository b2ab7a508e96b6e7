package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"aquatrace/api"
	"aquatrace/api/handlers"
	"aquatrace/config"
	"aquatrace/core/auth"
	"aquatrace/core/incidents"
	"aquatrace/core/rbac"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

type apiEnv struct {
	t        *testing.T
	ts       *httptest.Server
	cfg      *config.AppConfig
	users    store.UsersStore
	master   store.MasterStore
	sessions *auth.SessionManager
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "api.db"),
		Pepper:   "pepper",
		CSRFKey:  "csrf-test-key",
		Security: config.SecurityConfig{OnlineWindowSec: 300},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	users := store.NewUsersStore(db)
	sessionsStore := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	master := store.NewMasterStore(db)
	policy := rbac.MustNewPolicy(rbac.DefaultRoles())
	sm := auth.NewSessionManager(sessionsStore, cfg, logger)
	svc := incidents.NewService(incidentsStore, users, master, audits, cfg.Incidents, logger)

	server := api.NewServer(cfg, api.ServerDeps{
		Users:        users,
		Sessions:     sm,
		Audits:       audits,
		Incidents:    incidentsStore,
		Master:       master,
		IncidentsSvc: svc,
		Policy:       policy,
	}, logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &apiEnv{t: t, ts: ts, cfg: cfg, users: users, master: master, sessions: sm}
}

func (e *apiEnv) createUser(username, password, team, userType string, roles ...string) *store.User {
	e.t.Helper()
	salt, err := auth.NewSalt()
	if err != nil {
		e.t.Fatalf("salt: %v", err)
	}
	u := &store.User{
		Username:     username,
		FirstName:    username,
		Team:         team,
		UserType:     userType,
		Roles:        roles,
		PasswordHash: auth.HashPassword(password, salt, e.cfg.Pepper),
		Salt:         salt,
		Active:       true,
	}
	if _, err := e.users.Create(context.Background(), u); err != nil {
		e.t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// login creates a session directly, skipping the login endpoint so its
// rate limiter stays out of unrelated tests.
func (e *apiEnv) login(u *store.User) *auth.Session {
	e.t.Helper()
	sess, err := e.sessions.Create(context.Background(), u, u.Roles, "127.0.0.1", "test")
	if err != nil {
		e.t.Fatalf("session: %v", err)
	}
	return sess
}

func (e *apiEnv) request(sess *auth.Session, method, path string, body any) (*http.Response, []byte) {
	e.t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, buf)
	if err != nil {
		e.t.Fatalf("request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		req.AddCookie(&http.Cookie{Name: handlers.SessionCookieName, Value: sess.ID})
		req.AddCookie(&http.Cookie{Name: handlers.CSRFCookieName, Value: sess.CSRFToken})
		if method != http.MethodGet && method != http.MethodHead {
			req.Header.Set("X-CSRF-Token", sess.CSRFToken)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("do: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestLoginEndpoint(t *testing.T) {
	env := setupAPI(t)
	env.createUser("alice", "correct-horse", "Operations", "handler", "handler")

	resp, data := env.request(nil, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", resp.StatusCode, data)
	}
	var out struct {
		CSRFToken string `json:"csrf_token"`
		User      struct {
			Username    string   `json:"username"`
			Elevated    bool     `json:"elevated"`
			Permissions []string `json:"permissions"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CSRFToken == "" || out.User.Username != "alice" || !out.User.Elevated {
		t.Fatalf("login payload: %s", data)
	}
	var gotSession bool
	for _, c := range resp.Cookies() {
		if c.Name == handlers.SessionCookieName && c.Value != "" {
			gotSession = true
		}
	}
	if !gotSession {
		t.Fatal("no session cookie set")
	}

	resp, data = env.request(nil, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status %d: %s", resp.StatusCode, data)
	}
}

func TestIncidentLifecycleOverAPI(t *testing.T) {
	env := setupAPI(t)
	reporter := env.createUser("sam", "pw", "", "end_user", "end_user")
	handler := env.createUser("mira", "pw", "Incident Handlers", "handler", "handler")
	engineer := env.createUser("jonas", "pw", "Field Engineering", "field_engineer", "field_engineer")
	manager := env.createUser("priya", "pw", "Operations", "manager", "manager")

	reporterSess := env.login(reporter)
	handlerSess := env.login(handler)
	engineerSess := env.login(engineer)
	managerSess := env.login(manager)

	// Reporter files an incident.
	resp, data := env.request(reporterSess, http.MethodPost, "/api/incidents", map[string]any{
		"short_description": "Chemical smell from canal",
		"priority":          "high",
		"category":          "Water Pollution",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, data)
	}
	var created struct {
		ID     int64  `json:"id"`
		Number string `json:"number"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == 0 || created.Number == "" || created.Status != "pending" {
		t.Fatalf("created: %s", data)
	}

	// Handler assigns it to the engineer.
	resp, data = env.request(handlerSess, http.MethodPost, fmt.Sprintf("/api/incidents/%d/assign", created.ID), map[string]any{
		"assignee_id": engineer.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", resp.StatusCode, data)
	}

	// The reporter lacks the assign permission entirely.
	resp, _ = env.request(reporterSess, http.MethodPost, fmt.Sprintf("/api/incidents/%d/assign", created.ID), map[string]any{
		"assignee_id": engineer.ID,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reporter assign status %d", resp.StatusCode)
	}

	// Engineer resolves; manager approves, closing it.
	resp, data = env.request(engineerSess, http.MethodPost, fmt.Sprintf("/api/incidents/%d/resolve", created.ID), map[string]any{
		"note": "flushed the outlet",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d: %s", resp.StatusCode, data)
	}
	resp, data = env.request(managerSess, http.MethodPost, fmt.Sprintf("/api/incidents/%d/approve", created.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", resp.StatusCode, data)
	}
	var closed struct {
		Status   string `json:"status"`
		Approved bool   `json:"approved"`
	}
	if err := json.Unmarshal(data, &closed); err != nil {
		t.Fatalf("decode closed: %v", err)
	}
	if closed.Status != "closed" || !closed.Approved {
		t.Fatalf("after approve: %s", data)
	}

	// Timeline recorded the full history.
	resp, data = env.request(handlerSess, http.MethodGet, fmt.Sprintf("/api/incidents/%d/timeline", created.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d", resp.StatusCode)
	}
	var timeline struct {
		Events []struct {
			EventType string `json:"event_type"`
		} `json:"events"`
	}
	if err := json.Unmarshal(data, &timeline); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	seen := map[string]bool{}
	for _, ev := range timeline.Events {
		seen[ev.EventType] = true
	}
	for _, want := range []string{"incident.create", "assignee.change", "status.change", "approval"} {
		if !seen[want] {
			t.Errorf("timeline missing %s (have %v)", want, seen)
		}
	}
}

func TestListScopingAndSLAVisibility(t *testing.T) {
	env := setupAPI(t)
	reporter := env.createUser("sam", "pw", "", "end_user", "end_user")
	other := env.createUser("dana", "pw", "", "end_user", "end_user")
	handler := env.createUser("mira", "pw", "Incident Handlers", "handler", "handler")

	reporterSess := env.login(reporter)
	otherSess := env.login(other)
	handlerSess := env.login(handler)

	resp, data := env.request(reporterSess, http.MethodPost, "/api/incidents", map[string]any{
		"short_description": "my report",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, data)
	}
	var created struct {
		ID  int64           `json:"id"`
		SLA json.RawMessage `json:"sla"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The create response is subject to the same visibility rule as the
	// list: an end user must not get the SLA block back on their own 201.
	if len(created.SLA) != 0 {
		t.Fatalf("end user create response carries SLA block: %s", created.SLA)
	}

	resp, data = env.request(handlerSess, http.MethodPost, "/api/incidents", map[string]any{
		"short_description": "staff filed",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("handler create status %d: %s", resp.StatusCode, data)
	}
	var staffCreated struct {
		SLA json.RawMessage `json:"sla"`
	}
	if err := json.Unmarshal(data, &staffCreated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(staffCreated.SLA) == 0 {
		t.Fatal("elevated create response missing SLA block")
	}

	type listResponse struct {
		Items []struct {
			ShortDescription string          `json:"short_description"`
			SLA              json.RawMessage `json:"sla"`
		} `json:"items"`
		TotalFiltered int `json:"total_filtered"`
	}

	// The reporter sees their own report, without the SLA block.
	resp, data = env.request(reporterSess, http.MethodGet, "/api/incidents", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	var mine listResponse
	if err := json.Unmarshal(data, &mine); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if mine.TotalFiltered != 1 {
		t.Fatalf("reporter sees %d items", mine.TotalFiltered)
	}
	if len(mine.Items[0].SLA) != 0 {
		t.Fatalf("end user received SLA block: %s", mine.Items[0].SLA)
	}

	// Another end user sees nothing, and a direct GET is a 404, not a 403,
	// so report ids stay unguessable.
	resp, data = env.request(otherSess, http.MethodGet, "/api/incidents", nil)
	var others listResponse
	if err := json.Unmarshal(data, &others); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if others.TotalFiltered != 0 {
		t.Fatalf("other user sees %d items", others.TotalFiltered)
	}
	resp, _ = env.request(otherSess, http.MethodGet, fmt.Sprintf("/api/incidents/%d", created.ID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign get status %d", resp.StatusCode)
	}

	// The handler sees everything, with the SLA readout attached.
	resp, data = env.request(handlerSess, http.MethodGet, "/api/incidents", nil)
	var all listResponse
	if err := json.Unmarshal(data, &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if all.TotalFiltered != 2 {
		t.Fatalf("handler sees %d items", all.TotalFiltered)
	}
	if len(all.Items[0].SLA) == 0 {
		t.Fatal("elevated viewer missing SLA block")
	}
}

func TestCSRFEnforcedOnStateChangingRequests(t *testing.T) {
	env := setupAPI(t)
	handler := env.createUser("mira", "pw", "Incident Handlers", "handler", "handler")
	sess := env.login(handler)

	// Cookie present, header missing.
	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/incidents", bytes.NewReader([]byte(`{"short_description":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: handlers.SessionCookieName, Value: sess.ID})
	req.AddCookie(&http.Cookie{Name: handlers.CSRFCookieName, Value: sess.CSRFToken})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("missing csrf header status %d", resp.StatusCode)
	}

	// GET never needs the token.
	resp2, _ := env.request(sess, http.MethodGet, "/api/incidents", nil)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", resp2.StatusCode)
	}

	// No session at all.
	resp3, _ := env.request(nil, http.MethodGet, "/api/incidents", nil)
	if resp3.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status %d", resp3.StatusCode)
	}
}

func TestMasterDataEndpoints(t *testing.T) {
	env := setupAPI(t)
	manager := env.createUser("priya", "pw", "Operations", "manager", "manager")
	reporter := env.createUser("sam", "pw", "", "end_user", "end_user")
	managerSess := env.login(manager)
	reporterSess := env.login(reporter)

	resp, data := env.request(managerSess, http.MethodPost, "/api/master/categories", map[string]string{
		"name": "Water Pollution",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add category status %d: %s", resp.StatusCode, data)
	}

	// End users may read master data but not extend it.
	resp, data = env.request(reporterSess, http.MethodGet, "/api/master/categories", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list categories status %d", resp.StatusCode)
	}
	var list struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Name != "Water Pollution" {
		t.Fatalf("categories: %s", data)
	}
	resp, _ = env.request(reporterSess, http.MethodPost, "/api/master/categories", map[string]string{"name": "Rogue"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("end user add status %d", resp.StatusCode)
	}
}
