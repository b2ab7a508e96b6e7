package auth

import (
	"context"
	"errors"
	"time"

	"aquatrace/config"
	"aquatrace/core/store"
	"aquatrace/core/utils"
	"github.com/gofrs/uuid/v5"
)

type Session struct {
	ID         string
	UserID     int64
	Username   string
	Roles      []string
	CSRFToken  string
	IP         string
	UserAgent  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

type SessionManager struct {
	store  store.SessionsStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(store store.SessionsStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: store, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User, roles []string, ip, userAgent string) (*Session, error) {
	id := uuid.Must(uuid.NewV4()).String()
	var csrf string
	var err error
	if m.cfg.CSRFKey != "" {
		csrf, err = GenerateCSRF(m.cfg.CSRFKey, id)
	} else {
		csrf, err = utils.RandString(32)
	}
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	sessionTTL := m.cfg.EffectiveSessionTTL()
	sess := &Session{
		ID:         id,
		UserID:     user.ID,
		Username:   user.Username,
		Roles:      roles,
		CSRFToken:  csrf,
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(sessionTTL),
	}
	if err := m.store.Save(ctx, &store.SessionRecord{
		ID:         sess.ID,
		UserID:     sess.UserID,
		Username:   sess.Username,
		Roles:      sess.Roles,
		CSRFToken:  sess.CSRFToken,
		IP:         sess.IP,
		UserAgent:  sess.UserAgent,
		CreatedAt:  sess.CreatedAt,
		LastSeenAt: sess.LastSeenAt,
		ExpiresAt:  sess.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a live session; expired records read as absent.
func (m *SessionManager) Get(ctx context.Context, sessID string) (*Session, error) {
	rec, err := m.store.Get(ctx, sessID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.ExpiresAt.Before(utils.NowUTC()) {
		return nil, nil
	}
	return &Session{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Username:   rec.Username,
		Roles:      rec.Roles,
		CSRFToken:  rec.CSRFToken,
		IP:         rec.IP,
		UserAgent:  rec.UserAgent,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	now := utils.NowUTC()
	return m.store.Touch(ctx, sessID, now, now.Add(m.cfg.EffectiveSessionTTL()))
}

func (m *SessionManager) Rotate(ctx context.Context, sessID string) (*Session, error) {
	old, err := m.store.Get(ctx, sessID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, errors.New("session not found")
	}
	_ = m.store.Delete(ctx, sessID)
	return m.Create(ctx, &store.User{ID: old.UserID, Username: old.Username}, old.Roles, old.IP, old.UserAgent)
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.Delete(ctx, sessID)
}

func (m *SessionManager) DeleteForUser(ctx context.Context, userID int64) error {
	return m.store.DeleteForUser(ctx, userID)
}
