// Package slawatch runs the background SLA sweep: it scans open incidents
// against the response and resolution windows, flags breaches once, and
// records a timeline event for each.
package slawatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aquatrace/config"
	"aquatrace/core/incidents"
	"aquatrace/core/store"
	"aquatrace/core/utils"
	"github.com/robfig/cron/v3"
)

type Engine struct {
	incidents store.IncidentsStore
	sessions  store.SessionsStore
	audits    store.AuditStore
	policy    incidents.SLAPolicy
	schedule  string
	logger    *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewEngine(incs store.IncidentsStore, sessions store.SessionsStore, audits store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *Engine {
	schedule := "@every 1m"
	if cfg != nil && cfg.Scheduler.SLASweep != "" {
		schedule = cfg.Scheduler.SLASweep
	}
	return &Engine{
		incidents: incs,
		sessions:  sessions,
		audits:    audits,
		policy:    incidents.NewSLAPolicy(cfg.Incidents),
		schedule:  schedule,
		logger:    logger,
	}
}

func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(e.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		e.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("slawatch schedule %q: %w", e.schedule, err)
	}
	c.Start()
	e.cron = c
	e.running = true
	if e.logger != nil {
		e.logger.Printf("slawatch: started, schedule %s", e.schedule)
	}
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	ctx := e.cron.Stop()
	<-ctx.Done()
	e.cron = nil
	e.running = false
	if e.logger != nil {
		e.logger.Printf("slawatch: stopped")
	}
}

// Sweep runs one pass. Exported so tests and the bootstrap can trigger it
// without waiting for the schedule.
func (e *Engine) Sweep(ctx context.Context) {
	now := utils.NowUTC()
	open, err := e.incidents.ListIncidents(ctx, store.IncidentFilter{OpenOnly: true})
	if err != nil {
		if e.logger != nil {
			e.logger.Errorf("slawatch: list open incidents: %v", err)
		}
		return
	}
	for _, inc := range open {
		if e.policy.ResponseBreached(inc, now) && !inc.ResponseBreach {
			e.flag(ctx, inc, "response", "sla.response_breach", "response window elapsed")
		}
		if e.policy.ResolutionBreached(inc, now) && !inc.ResolutionBreach {
			e.flag(ctx, inc, "resolution", "sla.resolution_breach", "resolution window elapsed")
		}
	}
	if e.sessions != nil {
		if n, err := e.sessions.PurgeExpired(ctx); err == nil && n > 0 && e.logger != nil {
			e.logger.Printf("slawatch: purged %d expired sessions", n)
		}
	}
}

func (e *Engine) flag(ctx context.Context, inc store.Incident, kind, eventType, message string) {
	flipped, err := e.incidents.MarkSLABreach(ctx, inc.ID, kind)
	if err != nil {
		if e.logger != nil {
			e.logger.Errorf("slawatch: mark %s breach for %s: %v", kind, inc.Number, err)
		}
		return
	}
	if !flipped {
		return
	}
	_, _ = e.incidents.AddIncidentTimeline(ctx, &store.IncidentTimelineEvent{
		IncidentID: inc.ID,
		EventType:  eventType,
		Message:    message,
	})
	if e.audits != nil {
		e.audits.Log(ctx, "system", eventType, inc.Number)
	}
}
