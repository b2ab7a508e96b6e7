package incidents

import (
	"time"

	"aquatrace/config"
	"aquatrace/core/store"
)

// SLA band states. at_risk trips once 75% of the window is spent.
const (
	SLAOk       = "ok"
	SLAAtRisk   = "at_risk"
	SLABreached = "breached"
)

const atRiskFraction = 0.75

// CaseSLA is the per-incident SLA readout. Only elevated viewers receive
// it; list responses for end users omit the field entirely.
type CaseSLA struct {
	Response            string     `json:"response"`
	Resolution          string     `json:"resolution"`
	ResponseDeadline    time.Time  `json:"response_deadline"`
	ResolutionDeadline  time.Time  `json:"resolution_deadline"`
	RespondedAt         *time.Time `json:"responded_at,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
}

type SLAPolicy struct {
	ResponseWindow   time.Duration
	ResolutionHigh   time.Duration
	ResolutionMedium time.Duration
	ResolutionLow    time.Duration
}

func NewSLAPolicy(cfg config.IncidentsConfig) SLAPolicy {
	return SLAPolicy{
		ResponseWindow:   hoursOrDefault(cfg.ResponseSLAHours, 4),
		ResolutionHigh:   hoursOrDefault(cfg.ResolutionHighSLAHours, 24),
		ResolutionMedium: hoursOrDefault(cfg.ResolutionMediumSLAHours, 48),
		ResolutionLow:    hoursOrDefault(cfg.ResolutionLowSLAHours, 72),
	}
}

func hoursOrDefault(h, def int) time.Duration {
	if h <= 0 {
		h = def
	}
	return time.Duration(h) * time.Hour
}

// ResolutionWindow picks the resolution deadline by priority tier. Critical
// shares the high tier; unknown priorities get the low tier, the widest
// window, so a typo never produces a spurious breach.
func (p SLAPolicy) ResolutionWindow(priority string) time.Duration {
	switch NormalizePriority(priority) {
	case "critical", "high":
		return p.ResolutionHigh
	case "medium":
		return p.ResolutionMedium
	default:
		return p.ResolutionLow
	}
}

// Evaluate computes the SLA readout for an incident at the given instant.
// Response stops counting once the incident leaves pending; resolution
// stops once it reaches resolved or closed.
func (p SLAPolicy) Evaluate(inc store.Incident, now time.Time) CaseSLA {
	responseDeadline := inc.CreatedAt.Add(p.ResponseWindow)
	resolutionDeadline := inc.CreatedAt.Add(p.ResolutionWindow(inc.Priority))
	out := CaseSLA{
		ResponseDeadline:   responseDeadline,
		ResolutionDeadline: resolutionDeadline,
	}

	status := NormalizeStatus(inc.Status)
	responded := status != StatusPending
	resolved := status == StatusResolved || status == StatusClosed

	if responded {
		// UpdatedAt stands in for the first-response instant: the status
		// transition out of pending is the last write for fresh incidents.
		at := inc.UpdatedAt
		out.RespondedAt = &at
		out.Response = bandAt(at, responseDeadline)
	} else {
		out.Response = band(inc.CreatedAt, now, responseDeadline)
	}

	if resolved {
		at := inc.UpdatedAt
		out.ResolvedAt = &at
		out.Resolution = bandAt(at, resolutionDeadline)
	} else {
		out.Resolution = band(inc.CreatedAt, now, resolutionDeadline)
	}
	return out
}

// ResponseBreached reports whether the response window has elapsed with the
// incident still pending.
func (p SLAPolicy) ResponseBreached(inc store.Incident, now time.Time) bool {
	return NormalizeStatus(inc.Status) == StatusPending && now.After(inc.CreatedAt.Add(p.ResponseWindow))
}

// ResolutionBreached reports whether the resolution window has elapsed with
// the incident still open.
func (p SLAPolicy) ResolutionBreached(inc store.Incident, now time.Time) bool {
	status := NormalizeStatus(inc.Status)
	if status == StatusResolved || status == StatusClosed {
		return false
	}
	return now.After(inc.CreatedAt.Add(p.ResolutionWindow(inc.Priority)))
}

// band classifies an open clock against its deadline.
func band(start, now, deadline time.Time) string {
	if now.After(deadline) {
		return SLABreached
	}
	window := deadline.Sub(start)
	if window > 0 && now.Sub(start) >= time.Duration(float64(window)*atRiskFraction) {
		return SLAAtRisk
	}
	return SLAOk
}

// bandAt classifies a stopped clock: the outcome is final, either met or
// breached, never at_risk.
func bandAt(stopped, deadline time.Time) string {
	if stopped.After(deadline) {
		return SLABreached
	}
	return SLAOk
}
