package appbootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"aquatrace/config"
	"aquatrace/core/auth"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

func setupSeedEnv(t *testing.T) (*config.AppConfig, store.UsersStore, store.MasterStore, store.IncidentsStore, *utils.Logger) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:  "sqlite",
		DBPath:    filepath.Join(t.TempDir(), "seed.db"),
		Pepper:    "pepper",
		AppEnv:    "demo",
		Incidents: config.IncidentsConfig{NumberFormat: "IN{year2}{seq:04}"},
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
	return cfg, store.NewUsersStore(db), store.NewMasterStore(db), store.NewIncidentsStore(db), logger
}

func TestEnsureDefaultAdmin(t *testing.T) {
	cfg, users, _, _, logger := setupSeedEnv(t)
	ctx := context.Background()

	if err := EnsureDefaultAdmin(ctx, users, cfg, logger); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	admin, err := users.FindByUsername(ctx, "admin")
	if err != nil || admin == nil {
		t.Fatalf("admin lookup: %v %v", admin, err)
	}
	if !admin.Active || len(admin.Roles) != 1 || admin.Roles[0] != "admin" {
		t.Fatalf("admin record: %+v", admin)
	}
	if !auth.VerifyPassword("admin", admin.Salt, cfg.Pepper, admin.PasswordHash) {
		t.Fatal("bootstrap password does not verify")
	}

	// Idempotent once any user exists.
	if err := EnsureDefaultAdmin(ctx, users, cfg, logger); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if n, _ := users.Count(ctx); n != 1 {
		t.Fatalf("user count %d", n)
	}
}

func TestSeedDemoData(t *testing.T) {
	cfg, users, master, incidentsStore, logger := setupSeedEnv(t)
	ctx := context.Background()

	if err := SeedDemoData(ctx, users, master, incidentsStore, cfg, logger); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if n, _ := users.Count(ctx); n == 0 {
		t.Fatal("no demo users")
	}
	cats, err := master.ListCategories(ctx)
	if err != nil || len(cats) == 0 {
		t.Fatalf("categories: %v %v", cats, err)
	}
	incs, err := incidentsStore.ListIncidents(ctx, store.IncidentFilter{})
	if err != nil || len(incs) == 0 {
		t.Fatalf("incidents: %v", err)
	}
	for _, inc := range incs {
		if inc.Number == "" {
			t.Fatalf("seeded incident without number: %+v", inc)
		}
	}

	// Seeding never stacks on existing data.
	if err := SeedDemoData(ctx, users, master, incidentsStore, cfg, logger); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	again, _ := incidentsStore.ListIncidents(ctx, store.IncidentFilter{})
	if len(again) != len(incs) {
		t.Fatalf("reseed duplicated incidents: %d -> %d", len(incs), len(again))
	}
}
