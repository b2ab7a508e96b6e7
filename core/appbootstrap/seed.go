package appbootstrap

import (
	"context"
	"fmt"

	"aquatrace/config"
	"aquatrace/core/auth"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin"
)

// EnsureDefaultAdmin creates the bootstrap admin account when the user
// table is empty, so a fresh install is reachable.
func EnsureDefaultAdmin(ctx context.Context, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	n, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	salt, err := auth.NewSalt()
	if err != nil {
		return err
	}
	_, err = users.Create(ctx, &store.User{
		Username:     defaultAdminUsername,
		UserType:     "admin",
		Roles:        []string{"admin"},
		PasswordHash: auth.HashPassword(defaultAdminPassword, salt, cfg.Pepper),
		Salt:         salt,
		Active:       true,
	})
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("created default admin account, change its password immediately")
	}
	return nil
}

// SeedDemoData loads the demo directory, reference lists and a handful of
// pollution reports. Only runs under app_env=demo; never touches a
// non-empty incident table.
func SeedDemoData(ctx context.Context, users store.UsersStore, master store.MasterStore, incidentsStore store.IncidentsStore, cfg *config.AppConfig, logger *utils.Logger) error {
	existing, err := incidentsStore.ListIncidents(ctx, store.IncidentFilter{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	demoUsers := []store.User{
		{Username: "mhandler", FirstName: "Mira", LastName: "Okafor", Team: "Incident Handlers", UserType: "handler", Roles: []string{"handler"}},
		{Username: "pmanager", FirstName: "Priya", LastName: "Nair", Team: "Operations", UserType: "manager", Roles: []string{"manager"}},
		{Username: "jfield", FirstName: "Jonas", LastName: "Berg", Team: "Field Engineering", UserType: "field_engineer", Roles: []string{"field_engineer"}},
		{Username: "wexpert", FirstName: "Wen", LastName: "Liu", Team: "Water Pollution Experts", UserType: "water_pollution_expert", Roles: []string{"water_pollution_expert"}},
		{Username: "resident1", FirstName: "Sam", LastName: "Porter", Team: "", UserType: "end_user", Roles: []string{"end_user"}},
	}
	userIDs := map[string]int64{}
	for i := range demoUsers {
		u := demoUsers[i]
		salt, err := auth.NewSalt()
		if err != nil {
			return err
		}
		u.PasswordHash = auth.HashPassword("demo1234", salt, cfg.Pepper)
		u.Salt = salt
		u.Active = true
		id, err := users.Create(ctx, &u)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		userIDs[u.Username] = id
	}

	for _, name := range []string{"Water Pollution", "Water Supply", "Drainage", "Flooding"} {
		if _, err := master.AddCategory(ctx, name); err != nil {
			return err
		}
	}
	cats, err := master.ListCategories(ctx)
	if err != nil {
		return err
	}
	catID := map[string]int64{}
	for _, c := range cats {
		catID[c.Name] = c.ID
	}
	for _, sub := range []string{"Chemical Discharge", "Sewage Overflow", "Algal Bloom", "Oil Slick"} {
		if _, err := master.AddSubCategory(ctx, catID["Water Pollution"], sub); err != nil {
			return err
		}
	}
	for _, name := range []string{"High", "Medium", "Low"} {
		if _, err := master.AddUrgency(ctx, name); err != nil {
			return err
		}
	}
	for _, name := range []string{"Phone", "Email", "Walk-in", "Web"} {
		if _, err := master.AddContactType(ctx, name); err != nil {
			return err
		}
	}

	lat1, lng1 := 52.3702, 4.8952
	lat2, lng2 := 52.0907, 5.1214
	demoIncidents := []store.Incident{
		{
			ShortDescription: "Chemical smell from canal outlet",
			Description:      "Strong solvent odor near the discharge pipe, fish observed floating.",
			Status:           "pending",
			Priority:         "high",
			Urgency:          "High",
			Category:         "Water Pollution",
			SubCategory:      "Chemical Discharge",
			Caller:           "Sam Porter",
			ReportedBy:       "Sam Porter",
			ReporterUserID:   userIDs["resident1"],
			Latitude:         &lat1,
			Longitude:        &lng1,
		},
		{
			ShortDescription: "Sewage overflow after heavy rain",
			Description:      "Manhole overflowing into the retention pond.",
			Status:           "in_progress",
			Priority:         "medium",
			Urgency:          "Medium",
			Category:         "Water Pollution",
			SubCategory:      "Sewage Overflow",
			Caller:           "Sam Porter",
			ReportedBy:       "Sam Porter",
			AssignedTo:       "Jonas Berg",
			ReporterUserID:   userIDs["resident1"],
			Latitude:         &lat2,
			Longitude:        &lng2,
		},
		{
			ShortDescription: "Discolored water at pumping station",
			Description:      "Brown tint reported by operator during routine check.",
			Status:           "pending",
			Priority:         "low",
			Urgency:          "Low",
			Category:         "Water Supply",
			Caller:           "Mira Okafor",
			ReportedBy:       "Mira Okafor",
			ReporterUserID:   userIDs["mhandler"],
		},
	}
	assigneeID := userIDs["jfield"]
	demoIncidents[1].AssigneeUserID = &assigneeID
	for i := range demoIncidents {
		inc := demoIncidents[i]
		inc.CreatedBy = inc.ReporterUserID
		inc.UpdatedBy = inc.ReporterUserID
		if _, err := incidentsStore.CreateIncident(ctx, &inc, cfg.Incidents.NumberFormat); err != nil {
			return fmt.Errorf("seed incident %q: %w", inc.ShortDescription, err)
		}
	}
	if logger != nil {
		logger.Printf("seeded demo dataset: %d users, %d incidents", len(demoUsers), len(demoIncidents))
	}
	return nil
}
