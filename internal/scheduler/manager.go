// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
manager.go - Run Manager Lifecycle

The Manager owns every reconciliation run, whatever triggered it:

  - Trigger(): API-triggered runs (full, per company, dry run)
  - cron schedule: recurring runs when schedule.enabled is set
  - startup run: one run right after Start() when schedule.run_on_startup is set

Thread Safety:
  - runMu: single-flight; a trigger while a run is active gets ErrRunInProgress
  - mu: protects lifecycle and last-run state
  - wg: tracks the startup run for coordinated shutdown
*/

//nolint:staticcheck // File documentation, not package doc
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/metrics"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/reconcile"
)

// Trigger names recorded on reports and metrics.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
)

// Runner executes one reconciliation run. Satisfied by *reconcile.Engine.
type Runner interface {
	Run(ctx context.Context, req reconcile.RunRequest) (*models.Report, error)
}

// ReportStore persists finished reports. Satisfied by *history.Store.
type ReportStore interface {
	Save(ctx context.Context, report *models.Report) error
}

// Status is the run state exposed by the status endpoint.
type Status struct {
	Running         bool                  `json:"running"`
	ScheduleEnabled bool                  `json:"schedule_enabled"`
	Schedule        string                `json:"schedule,omitempty"`
	NextRun         *time.Time            `json:"next_run,omitempty"`
	LastRun         *models.ReportSummary `json:"last_run,omitempty"`
	LastSuccess     *time.Time            `json:"last_success,omitempty"`
}

// Manager serializes reconciliation runs and drives the cron schedule.
type Manager struct {
	runner Runner
	store  ReportStore
	cfg    config.ScheduleConfig

	runMu sync.Mutex // Held for the duration of a run

	mu          sync.RWMutex
	started     bool
	active      bool
	lastRun     *models.ReportSummary
	lastSuccess time.Time
	cron        *cron.Cron
	entryID     cron.EntryID
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewManager creates a run manager. store may be nil when history is disabled.
func NewManager(runner Runner, store ReportStore, cfg config.ScheduleConfig) *Manager {
	return &Manager{
		runner: runner,
		store:  store,
		cfg:    cfg,
	}
}

// Trigger runs a reconciliation now. It returns models.ErrRunInProgress
// without waiting when another run is active.
func (m *Manager) Trigger(ctx context.Context, trigger string, req reconcile.RunRequest) (*models.Report, error) {
	if !m.runMu.TryLock() {
		metrics.RecordRunRejected(trigger)
		return nil, models.ErrRunInProgress
	}
	defer m.runMu.Unlock()

	m.setActive(true)
	defer m.setActive(false)

	if m.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RunTimeout)
		defer cancel()
	}

	req.Trigger = trigger
	report, err := m.runner.Run(ctx, req)
	if report == nil {
		return nil, err
	}

	m.recordRun(report)
	if m.store != nil {
		// The run context may already be spent; history is written regardless.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if saveErr := m.store.Save(saveCtx, report); saveErr != nil {
			logging.Ctx(ctx).Error().Err(saveErr).Str("run_id", report.ID).Msg("Failed to store run report")
		}
		cancel()
	}
	return report, err
}

func (m *Manager) setActive(active bool) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
	metrics.SetRunInProgress(active)
}

func (m *Manager) recordRun(report *models.Report) {
	summary := report.Summary()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = &summary
	if report.Success() {
		m.lastSuccess = report.FinishedAt
	}
}

// Start registers the cron schedule and, when configured, starts a run in the
// background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("run manager is already running")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	if m.cfg.Enabled {
		c := cron.New()
		id, err := c.AddFunc(m.cfg.Cron, func() { m.runInBackground(TriggerSchedule) })
		if err != nil {
			m.cancel()
			m.mu.Unlock()
			return fmt.Errorf("schedule %q: %w", m.cfg.Cron, err)
		}
		m.cron, m.entryID = c, id
		c.Start()
	}
	m.started = true
	m.mu.Unlock()

	logging.Info().
		Bool("schedule_enabled", m.cfg.Enabled).
		Str("cron", m.cfg.Cron).
		Bool("run_on_startup", m.cfg.RunOnStartup).
		Msg("Run manager started")

	if m.cfg.RunOnStartup {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runInBackground(TriggerStartup)
		}()
	}
	return nil
}

// runInBackground runs a full reconciliation for the scheduler. Results are
// reported through logs, metrics and history.
func (m *Manager) runInBackground(trigger string) {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	_, err := m.Trigger(ctx, trigger, reconcile.RunRequest{})
	switch {
	case errors.Is(err, models.ErrRunInProgress):
		logging.Info().Str("trigger", trigger).Msg("Skipping run, previous run still active")
	case err != nil:
		logging.Error().Err(err).Str("trigger", trigger).Msg("Reconciliation run failed")
	}
}

// Stop removes the schedule, cancels a running reconciliation and waits for
// it to return.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return fmt.Errorf("run manager is not running")
	}
	m.started = false
	c := m.cron
	m.cron = nil
	cancel := m.cancel
	m.mu.Unlock()

	logging.Info().Msg("Stopping run manager...")

	cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	m.wg.Wait()

	logging.Info().Msg("Run manager stopped")
	return nil
}

// Status returns the current run state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		Running:         m.active,
		ScheduleEnabled: m.cfg.Enabled,
		LastRun:         m.lastRun,
	}
	if m.cfg.Enabled {
		st.Schedule = m.cfg.Cron
	}
	if m.cron != nil {
		if next := m.cron.Entry(m.entryID).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	if !m.lastSuccess.IsZero() {
		last := m.lastSuccess
		st.LastSuccess = &last
	}
	return st
}

// String implements fmt.Stringer for supervisor logging.
func (m *Manager) String() string {
	return "run-manager"
}
