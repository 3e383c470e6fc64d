// Package scheduler drives the orchestrator's steady-state update pump
// (spec §4.5 phase 8) off a shared robfig/cron instance, and lets a
// language module register its own periodic jobs against that same
// instance rather than spinning up its own goroutine/ticker. It is
// grounded on the teacher's internal/plugins/scheduler.go
// PluginScheduler: the single-shared-cron-instance design, panic-
// wrapped job execution, and schedule/remove/overwrite semantics are
// carried over unchanged; only the caller (an orchestrator tick instead
// of an arbitrary plugin job) and the default job (OnUpdate instead of
// a plugin-supplied callback) are new.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Ticker periodically invokes a tick function (the orchestrator's Tick)
// at a fixed interval, and lets callers register their own named cron
// jobs against the same shared cron.Cron instance.
type Ticker struct {
	log  zerolog.Logger
	cron *cron.Cron

	mu     sync.Mutex
	jobIDs map[string]cron.EntryID

	tickEntry cron.EntryID
	hasTick   bool
}

// New creates a Ticker with its own cron instance; Start must be called
// before any scheduled job runs.
func New(log zerolog.Logger) *Ticker {
	return &Ticker{
		log:    log.With().Str("component", "scheduler").Logger(),
		cron:   cron.New(cron.WithSeconds()),
		jobIDs: make(map[string]cron.EntryID),
	}
}

// Start begins running scheduled jobs in the cron instance's own
// goroutine.
func (t *Ticker) Start() { t.cron.Start() }

// Stop halts the cron instance and waits for any running job to finish.
func (t *Ticker) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
}

// StartTickEvery registers tick to run every interval, replacing any
// previously registered tick job. Interval is expressed as a
// time.Duration rather than a cron expression since the update pump
// runs on a fixed period, not a calendar schedule.
func (t *Ticker) StartTickEvery(interval time.Duration, tick func(dt time.Duration)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasTick {
		t.cron.Remove(t.tickEntry)
	}

	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Error().Interface("panic", r).Msg("tick function panicked")
			}
		}()
		tick(interval)
	}

	entryID, err := t.cron.AddFunc(fmt.Sprintf("@every %s", interval), wrapped)
	if err != nil {
		return fmt.Errorf("scheduler: failed to schedule tick: %w", err)
	}
	t.tickEntry = entryID
	t.hasTick = true
	return nil
}

// Schedule registers a named job against the shared cron instance,
// overwriting any prior job under the same name. jobName is scoped by
// the caller (typically "<module>:<job>") so two modules can use the
// same short job names without colliding.
func (t *Ticker) Schedule(jobName, cronExpr string, job func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.jobIDs[jobName]; ok {
		t.cron.Remove(existing)
		delete(t.jobIDs, jobName)
	}

	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Error().Str("job", jobName).Interface("panic", r).Msg("scheduled job panicked")
			}
		}()
		job()
	}

	entryID, err := t.cron.AddFunc(cronExpr, wrapped)
	if err != nil {
		return fmt.Errorf("scheduler: failed to schedule job %s: %w", jobName, err)
	}
	t.jobIDs[jobName] = entryID
	return nil
}

// Remove unschedules a named job; a no-op if it was never scheduled.
func (t *Ticker) Remove(jobName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entryID, ok := t.jobIDs[jobName]; ok {
		t.cron.Remove(entryID)
		delete(t.jobIDs, jobName)
	}
}

// RemoveAll unschedules every job registered through Schedule (not the
// tick job started via StartTickEvery).
func (t *Ticker) RemoveAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entryID := range t.jobIDs {
		t.cron.Remove(entryID)
	}
	t.jobIDs = make(map[string]cron.EntryID)
}
