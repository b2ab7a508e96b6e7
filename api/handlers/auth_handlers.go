package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"aquatrace/config"
	"aquatrace/core/auth"
	"aquatrace/core/rbac"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

type AuthHandler struct {
	cfg            *config.AppConfig
	users          store.UsersStore
	sessionManager *auth.SessionManager
	policy         *rbac.Policy
	audits         store.AuditStore
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, sm *auth.SessionManager, policy *rbac.Policy, audits store.AuditStore, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, sessionManager: sm, policy: policy, audits: audits, logger: logger}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userDTO struct {
	ID          int64             `json:"id"`
	Username    string            `json:"username"`
	DisplayName string            `json:"display_name"`
	Email       string            `json:"email"`
	Team        string            `json:"team"`
	UserType    string            `json:"user_type"`
	Roles       []string          `json:"roles"`
	Elevated    bool              `json:"elevated"`
	Permissions []rbac.Permission `json:"permissions"`
	Active      bool              `json:"active"`
}

func (h *AuthHandler) userResponse(u *store.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		Email:       u.Email,
		Team:        u.Team,
		UserType:    u.UserType,
		Roles:       u.Roles,
		Elevated:    rbac.ElevatedUser(u.Team, u.UserType, u.Roles),
		Permissions: h.policy.Permissions(u.Roles),
		Active:      u.Active,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	cred.Username = strings.ToLower(strings.TrimSpace(cred.Username))
	if err := utils.ValidateUsername(cred.Username); err != nil {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}
	user, err := h.users.FindByUsername(r.Context(), cred.Username)
	if err != nil || user == nil || !user.Active {
		h.audits.Log(r.Context(), cred.Username, "auth.login_failed", "user missing or inactive")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !auth.VerifyPassword(cred.Password, user.Salt, h.cfg.Pepper, user.PasswordHash) {
		h.audits.Log(r.Context(), cred.Username, "auth.login_failed", "invalid password")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	sess, err := h.sessionManager.Create(r.Context(), user, user.Roles, remoteIP(r), r.UserAgent())
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("auth login session create failed for %s: %v", cred.Username, err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.users.TouchLogin(r.Context(), user.ID)
	h.audits.Log(r.Context(), user.Username, "auth.login_success", "")
	setSessionCookies(w, sess.ID, sess.CSRFToken, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":       h.userResponse(user),
		"csrf_token": sess.CSRFToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor := ""
	if sess := auth.SessionFrom(r.Context()); sess != nil {
		actor = sess.Username
		_ = h.sessionManager.Delete(r.Context(), sess.ID)
	}
	clearSessionCookies(w)
	h.audits.Log(r.Context(), actor, "auth.logout", "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFrom(r.Context())
	user, err := h.users.FindByUsername(r.Context(), sess.Username)
	if err != nil || user == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":       h.userResponse(user),
		"csrf_token": sess.CSRFToken,
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFrom(r.Context())
	var in struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(in.New) < 8 {
		writeError(w, http.StatusBadRequest, "auth.passwordTooShort")
		return
	}
	user, err := h.users.FindByUsername(r.Context(), sess.Username)
	if err != nil || user == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if !auth.VerifyPassword(in.Current, user.Salt, h.cfg.Pepper, user.PasswordHash) {
		h.audits.Log(r.Context(), user.Username, "auth.password_change_failed", "bad current password")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	salt, err := auth.NewSalt()
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if err := h.users.SetPassword(r.Context(), user.ID, auth.HashPassword(in.New, salt, h.cfg.Pepper), salt); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	// Other devices log out on password change.
	_ = h.sessionManager.DeleteForUser(r.Context(), user.ID)
	h.audits.Log(r.Context(), user.Username, "auth.password_changed", "")
	clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func setSessionCookies(w http.ResponseWriter, sessionID, csrfToken string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

func clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
}

func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return ip
}
