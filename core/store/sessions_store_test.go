package store

import (
	"context"
	"testing"
	"time"
)

func TestSessionsStoreLifecycle(t *testing.T) {
	db := setupDB(t)
	s := NewSessionsStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := &SessionRecord{
		ID:         "sess-1",
		UserID:     1,
		Username:   "alice",
		Roles:      []string{"handler"},
		CSRFToken:  "tok",
		IP:         "127.0.0.1",
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Username != "alice" || got.CSRFToken != "tok" {
		t.Fatalf("got %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "handler" {
		t.Fatalf("roles %v", got.Roles)
	}

	later := now.Add(10 * time.Minute)
	if err := s.Touch(ctx, "sess-1", later, later.Add(time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ = s.Get(ctx, "sess-1")
	if !got.LastSeenAt.After(now) {
		t.Fatalf("last_seen not advanced: %v", got.LastSeenAt)
	}

	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.Get(ctx, "sess-1"); got != nil {
		t.Fatalf("deleted session still readable: %+v", got)
	}
}

func TestSessionsStorePurgeAndCount(t *testing.T) {
	db := setupDB(t)
	s := NewSessionsStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	live := &SessionRecord{ID: "live", UserID: 1, Username: "a", CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(time.Hour)}
	dead := &SessionRecord{ID: "dead", UserID: 2, Username: "b", CreatedAt: now.Add(-2 * time.Hour), LastSeenAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	for _, rec := range []*SessionRecord{live, dead} {
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}

	n, err := s.CountActiveSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("active count = %d", n)
	}

	purged, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged %d", purged)
	}
	if got, _ := s.Get(ctx, "live"); got == nil {
		t.Fatal("live session purged")
	}
}

func TestSessionsStoreDeleteForUser(t *testing.T) {
	db := setupDB(t)
	s := NewSessionsStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"u1-a", "u1-b"} {
		if err := s.Save(ctx, &SessionRecord{ID: id, UserID: 1, Username: "a", CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.Save(ctx, &SessionRecord{ID: "u2-a", UserID: 2, Username: "b", CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.DeleteForUser(ctx, 1); err != nil {
		t.Fatalf("delete for user: %v", err)
	}
	if got, _ := s.Get(ctx, "u1-a"); got != nil {
		t.Fatal("user 1 session survived")
	}
	if got, _ := s.Get(ctx, "u2-a"); got == nil {
		t.Fatal("user 2 session lost")
	}
}
