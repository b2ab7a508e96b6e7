package rbac

import "strings"

// Elevated reports whether a user's team or userType marks them as staff
// with cross-report visibility. Each field is checked on its own for a
// substring match, so "Handlers", "incident-manager" and "Field Engineering"
// all qualify, but tokens never combine across the two fields. Existing
// directory data relies on the loose match; tightening it to exact role
// names would drop users whose records only carry team labels.
func Elevated(team, userType string) bool {
	return elevatedField(team) || elevatedField(userType)
}

func elevatedField(field string) bool {
	s := strings.ToLower(field)
	if strings.Contains(s, "handler") ||
		strings.Contains(s, "manager") ||
		strings.Contains(s, "admin") {
		return true
	}
	if strings.Contains(s, "field") && strings.Contains(s, "engineer") {
		return true
	}
	if strings.Contains(s, "water") && strings.Contains(s, "pollution") {
		return true
	}
	return strings.Contains(s, "field_engineer") || strings.Contains(s, "water_pollution_expert")
}

// ElevatedUser folds role membership into the team/userType heuristic:
// users whose role list carries a staff role are elevated regardless of
// what the directory fields say.
func ElevatedUser(team, userType string, roles []string) bool {
	for _, r := range roles {
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "handler", "manager", "admin", "field_engineer", "water_pollution_expert":
			return true
		}
	}
	return Elevated(team, userType)
}
