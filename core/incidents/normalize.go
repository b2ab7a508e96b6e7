package incidents

import (
	"encoding/json"
	"strings"
)

// Canonical workflow statuses. Everything inbound collapses to one of these
// four before it touches filtering, SLA math, or storage.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

var statusAliases = map[string]string{
	"new":          StatusPending,
	"open":         StatusPending,
	"pending":      StatusPending,
	"inprogress":   StatusInProgress,
	"in progress":  StatusInProgress,
	"in-progress":  StatusInProgress,
	"in_progress":  StatusInProgress,
	"assigned":     StatusInProgress,
	"active":       StatusInProgress,
	"resolved":     StatusResolved,
	"fixed":        StatusResolved,
	"completed":    StatusResolved,
	"closed":       StatusClosed,
	"cancelled":    StatusClosed,
	"canceled":     StatusClosed,
}

// NormalizeStatus maps any upstream status spelling to a canonical value.
// Unknown and empty inputs normalize to pending. Idempotent: canonical
// values map to themselves.
func NormalizeStatus(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := statusAliases[key]; ok {
		return canonical
	}
	return StatusPending
}

// KnownStatuses returns the canonical set in workflow order.
func KnownStatuses() []string {
	return []string{StatusPending, StatusInProgress, StatusResolved, StatusClosed}
}

func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

var priorityColors = map[string]string{
	"critical": "#dc2626",
	"high":     "#ea580c",
	"moderate": "#d97706",
	"medium":   "#d97706",
	"low":      "#16a34a",
	"planning": "#2563eb",
}

const defaultPriorityColor = "#6b7280" // gray

// PriorityColor returns the display color for a priority label,
// case-insensitive, gray for anything unrecognized.
func PriorityColor(priority string) string {
	if c, ok := priorityColors[strings.ToLower(strings.TrimSpace(priority))]; ok {
		return c
	}
	return defaultPriorityColor
}

// NormalizePriority collapses priority spellings to a lowercase label.
// "medium" and "moderate" are treated as the same tier; unknown labels pass
// through lowercased so the color fallback can still flag them.
func NormalizePriority(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	if p == "moderate" {
		return "medium"
	}
	return p
}

// FlexString decodes upstream fields that arrive either as a bare string or
// as an object carrying the value under "name", "value", "label" or "code".
// Different upstream forms disagree on the shape; this absorbs all of them.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		*f = ""
		return nil
	}
	for _, key := range []string{"name", "value", "label", "code"} {
		if raw, ok := obj[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				*f = FlexString(s)
				return nil
			}
		}
	}
	*f = ""
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// DisplayName assembles a person label from its parts. Empty assignment
// renders as "Unassigned"; a record with no usable name parts renders as
// "Unknown".
func DisplayName(firstName, lastName, username string) string {
	first := strings.TrimSpace(firstName)
	last := strings.TrimSpace(lastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case strings.TrimSpace(username) != "":
		return strings.TrimSpace(username)
	}
	return "Unknown"
}

// AssigneeLabel renders the assignment column: a blank assignee is
// "Unassigned", never "Unknown".
func AssigneeLabel(assignedTo string) string {
	if strings.TrimSpace(assignedTo) == "" {
		return "Unassigned"
	}
	return strings.TrimSpace(assignedTo)
}
