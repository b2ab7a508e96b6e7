package incidents

import (
	"sort"
	"strings"

	"aquatrace/core/store"
)

// View selects which list the filters apply to. The assignment view adds
// the assigned/unassigned pseudo-statuses on top of the workflow statuses.
type View string

const (
	ViewAll    View = "all"
	ViewAssign View = "assign"
)

const (
	pseudoAssigned   = "assigned"
	pseudoUnassigned = "unassigned"
)

type Filters struct {
	Status   string
	Priority string
	Search   string
	View     View
}

// Page is one page of a filtered list plus the pagination chrome the
// dashboard renders around it.
type Page struct {
	Items         []store.Incident `json:"items"`
	Current       int              `json:"current_page"`
	PerPage       int              `json:"per_page"`
	TotalPages    int              `json:"total_pages"`
	TotalFiltered int              `json:"total_filtered"`
	Numbers       []int            `json:"page_numbers"`
	HasPrev       bool             `json:"has_prev"`
	HasNext       bool             `json:"has_next"`
}

// Apply runs the full pipeline: filter, stable sort newest-first, paginate.
// Page numbers out of range clamp into [1, totalPages].
func Apply(items []store.Incident, f Filters, page, perPage int) Page {
	if perPage <= 0 {
		perPage = 10
	}
	filtered := Filter(items, f)
	SortNewestFirst(filtered)

	total := len(filtered)
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page{
		Items:         filtered[start:end],
		Current:       page,
		PerPage:       perPage,
		TotalPages:    totalPages,
		TotalFiltered: total,
		Numbers:       PageNumbers(page, totalPages),
		HasPrev:       page > 1,
		HasNext:       page < totalPages,
	}
}

// Filter narrows items by status, priority and search term. Filters combine
// with AND; the search fields combine with OR.
func Filter(items []store.Incident, f Filters) []store.Incident {
	out := make([]store.Incident, 0, len(items))
	status := strings.ToLower(strings.TrimSpace(f.Status))
	priority := strings.ToLower(strings.TrimSpace(f.Priority))
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for _, it := range items {
		if !matchStatus(it, status, f.View) {
			continue
		}
		if priority != "" && priority != "all" && strings.ToLower(it.Priority) != priority {
			continue
		}
		if search != "" && !matchSearch(it, search) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func matchStatus(it store.Incident, status string, view View) bool {
	if status == "" || status == "all" {
		return true
	}
	if view == ViewAssign {
		switch status {
		case pseudoAssigned:
			return it.Assigned()
		case pseudoUnassigned:
			return !it.Assigned()
		}
	}
	return NormalizeStatus(it.Status) == status
}

// matchSearch is a case-insensitive substring match across the four
// searchable fields.
func matchSearch(it store.Incident, search string) bool {
	for _, field := range []string{it.ShortDescription, it.Number, it.Category, it.Caller} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// SortNewestFirst orders by creation time descending. The sort is stable:
// items with equal timestamps keep their incoming order, so reapplying the
// sort after a mutation never reshuffles the visible list.
func SortNewestFirst(items []store.Incident) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// PageNumbers returns the page buttons to render: at most five, centered on
// the current page, shifted rather than truncated at either edge.
func PageNumbers(current, totalPages int) []int {
	if totalPages < 1 {
		totalPages = 1
	}
	window := 5
	if totalPages < window {
		window = totalPages
	}
	start := current - window/2
	if start < 1 {
		start = 1
	}
	if start+window-1 > totalPages {
		start = totalPages - window + 1
	}
	nums := make([]int, 0, window)
	for i := 0; i < window; i++ {
		nums = append(nums, start+i)
	}
	return nums
}

// listState carries the list controls between requests. Changing any filter
// resets the page to 1 so the narrowed result starts at the top.
type listState struct {
	Filters Filters
	PageNum int
	PerPage int
}

func newListState(perPage int) *listState {
	if perPage <= 0 {
		perPage = 10
	}
	return &listState{
		Filters: Filters{View: ViewAll},
		PageNum: 1,
		PerPage: perPage,
	}
}

func (s *listState) SetFilters(f Filters) {
	if f != s.Filters {
		s.PageNum = 1
	}
	s.Filters = f
}

func (s *listState) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	s.PageNum = page
}

func (s *listState) Apply(items []store.Incident) Page {
	p := Apply(items, s.Filters, s.PageNum, s.PerPage)
	s.PageNum = p.Current
	return p
}
