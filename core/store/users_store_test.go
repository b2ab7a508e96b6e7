package store

import (
	"context"
	"testing"
)

func TestUsersStoreRoundTrip(t *testing.T) {
	db := setupDB(t)
	s := NewUsersStore(db)
	ctx := context.Background()

	id, err := s.Create(ctx, &User{
		Username:  "  MOkafor ",
		Email:     "mira@example.org",
		FirstName: "Mira",
		LastName:  "Okafor",
		Team:      "Incident Handlers",
		UserType:  "handler",
		Roles:     []string{"Handler", "handler", "", "end_user"},
		Active:    true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Usernames store lowercased; lookup normalizes the same way.
	u, err := s.FindByUsername(ctx, "mOkafor")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("lookup failed: %+v", u)
	}
	if u.Username != "mokafor" {
		t.Fatalf("username = %q", u.Username)
	}
	// Role list deduped and lowercased.
	if len(u.Roles) != 2 || u.Roles[0] != "handler" || u.Roles[1] != "end_user" {
		t.Fatalf("roles = %v", u.Roles)
	}
	if u.DisplayName() != "Mira Okafor" {
		t.Fatalf("display name = %q", u.DisplayName())
	}

	if got, _ := s.FindByUsername(ctx, "nobody"); got != nil {
		t.Fatalf("missing user should be nil, got %+v", got)
	}
}

func TestUsersStoreEmptyRolesDefault(t *testing.T) {
	db := setupDB(t)
	s := NewUsersStore(db)
	ctx := context.Background()

	id, err := s.Create(ctx, &User{Username: "plain", Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(u.Roles) != 1 || u.Roles[0] != "end_user" {
		t.Fatalf("default roles = %v", u.Roles)
	}
}

func TestUsersStoreListFilters(t *testing.T) {
	db := setupDB(t)
	s := NewUsersStore(db)
	ctx := context.Background()

	seed := []User{
		{Username: "alice", Team: "Field Engineering", UserType: "field_engineer", Roles: []string{"field_engineer"}, Active: true},
		{Username: "bob", Team: "Operations", UserType: "manager", Roles: []string{"manager"}, Active: true},
		{Username: "carol", Team: "Operations", UserType: "end_user", Roles: []string{"end_user"}, Active: false},
	}
	for i := range seed {
		if _, err := s.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := s.List(ctx, UserFilter{Team: "operations"})
	if err != nil {
		t.Fatalf("list by team: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("team filter matched %d", len(got))
	}

	got, _ = s.List(ctx, UserFilter{Role: "manager"})
	if len(got) != 1 || got[0].Username != "bob" {
		t.Fatalf("role filter: %+v", got)
	}

	active := true
	got, _ = s.List(ctx, UserFilter{Team: "Operations", Active: &active})
	if len(got) != 1 || got[0].Username != "bob" {
		t.Fatalf("active filter: %+v", got)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("count = %d, err %v", n, err)
	}
}

func TestUsersStoreSetPasswordAndActive(t *testing.T) {
	db := setupDB(t)
	s := NewUsersStore(db)
	ctx := context.Background()

	id, err := s.Create(ctx, &User{Username: "dan", PasswordHash: "old", Salt: "s1", Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetPassword(ctx, id, "new", "s2"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := s.SetActive(ctx, id, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := s.TouchLogin(ctx, id); err != nil {
		t.Fatalf("touch login: %v", err)
	}

	u, _ := s.Get(ctx, id)
	if u.PasswordHash != "new" || u.Salt != "s2" {
		t.Fatalf("credentials not rotated: %q/%q", u.PasswordHash, u.Salt)
	}
	if u.Active {
		t.Fatal("still active")
	}
	if u.LastLoginAt == nil {
		t.Fatal("last_login_at not set")
	}
}
