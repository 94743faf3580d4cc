// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package reconcile

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/cmdbsync/internal/cmdb"
	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/metrics"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/monitor"
	"github.com/tomtom215/cmdbsync/internal/secrets"
)

// dryRunFirstID numbers objects a dry run would create, far above real IDs.
const dryRunFirstID = 1 << 30

// Source loads in-scope CMDB records.
type Source interface {
	FetchDevices(ctx context.Context, filter models.RunFilter) (*cmdb.FetchResult, error)
}

// RunRequest describes one reconciliation run.
type RunRequest struct {
	Trigger string // api, schedule, startup
	Filter  models.RunFilter
	DryRun  bool
}

// Engine runs reconciliations: one CMDB fetch, then every company planned
// and applied independently on a bounded worker pool.
type Engine struct {
	source    Source
	tree      monitor.Tree
	planner   *Planner
	builder   *Builder
	writeBack WriteBacker

	rootID         int
	workers        int
	companyTimeout time.Duration
}

// NewEngine wires an engine from configuration. When monitor-ID write-back is
// enabled, source must also implement WriteBacker.
func NewEngine(cfg *config.Config, source Source, tree monitor.Tree, dec secrets.Decrypter) *Engine {
	templates := Templates{
		Company:  cfg.Monitor.CompanyTemplateID,
		Location: cfg.Monitor.LocationTemplateID,
		Device:   cfg.Monitor.DeviceTemplateID,
	}
	builder := NewBuilder(cfg.Reconcile, templates, cfg.CMDB.RecordLink, dec)
	e := &Engine{
		source:         source,
		tree:           tree,
		planner:        NewPlanner(cfg.Monitor.RootGroupID, cfg.Reconcile.MinDevices).WithExpectedTags(builder.ExpectedTags),
		builder:        builder,
		rootID:         cfg.Monitor.RootGroupID,
		workers:        cfg.Reconcile.Workers,
		companyTimeout: cfg.Reconcile.CompanyTimeout,
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.companyTimeout <= 0 {
		e.companyTimeout = 10 * time.Minute
	}
	if wb, ok := source.(WriteBacker); ok && cfg.CMDB.WritebackMonitorID {
		e.writeBack = wb
	}
	return e
}

// Run executes one reconciliation. The report is always returned, also when
// the run fails; the error is only set when a company filter matches nothing
// (models.ErrCompanyNotFound).
func (e *Engine) Run(ctx context.Context, req RunRequest) (*models.Report, error) {
	report := &models.Report{
		ID:        uuid.New().String(),
		Trigger:   req.Trigger,
		DryRun:    req.DryRun,
		Filter:    req.Filter,
		StartedAt: time.Now().UTC(),
		Companies: []models.CompanyReport{},
	}
	ctx = logging.ContextWithCorrelationID(ctx, report.ID)
	log := logging.Ctx(ctx)
	log.Info().Str("trigger", req.Trigger).Bool("dry_run", req.DryRun).
		Str("company", req.Filter.Company).Str("location", req.Filter.Location).Msg("Reconciliation run started")

	fetched, err := e.source.FetchDevices(ctx, req.Filter)
	if err != nil {
		log.Error().Err(err).Msg("CMDB fetch failed")
		report.Errors = append(report.Errors, models.NewIssue(err))
		e.finish(ctx, report)
		return report, nil
	}

	companies, unassigned := GroupByCompany(fetched.Devices)
	report.Rejected = append(report.Rejected, unassigned...)

	known := make(map[string]bool, len(companies))
	for i := range companies {
		known[companies[i].Company.GroupName()] = true
	}
	rejectedBy := make(map[string][]models.SkippedRecord)
	for _, r := range fetched.Rejected {
		if known[r.Company] {
			rejectedBy[r.Company] = append(rejectedBy[r.Company], r)
		} else {
			report.Rejected = append(report.Rejected, r)
		}
	}

	if req.Filter.Company != "" && len(companies) == 0 {
		err := fmt.Errorf("%w: %s", models.ErrCompanyNotFound, req.Filter.Company)
		report.Errors = append(report.Errors, models.NewIssue(err))
		e.finish(ctx, report)
		return report, err
	}

	reports := make([]models.CompanyReport, len(companies))
	templates := newTemplateCheck(e.tree, e.builder.Templates())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range companies {
		g.Go(func() error {
			cd := &companies[i]
			reports[i] = e.reconcileCompany(gctx, cd, rejectedBy[cd.Company.GroupName()], templates, req.DryRun)
			return nil
		})
	}
	_ = g.Wait() // Workers contain their errors in the company report

	report.Companies = reports
	e.finish(ctx, report)
	return report, nil
}

func (e *Engine) finish(ctx context.Context, report *models.Report) {
	report.FinishedAt = time.Now().UTC()
	Finalize(report)
	result := report.Result()
	metrics.RecordRun(report.Trigger, result, report.FinishedAt.Sub(report.StartedAt))

	logging.Ctx(ctx).Info().
		Str("result", result).
		Int("companies", len(report.Companies)).
		Int("companies_failed", report.CompaniesFailed).
		Int("created", report.Totals.Created).
		Int("matched", report.Totals.Matched).
		Int("skipped", report.Totals.Skipped).
		Int("orphaned", report.Totals.Orphaned).
		Int("failed", report.Totals.Failed).
		Int("flagged", report.Totals.Flagged).
		Int64("duration_ms", report.DurationMS).
		Msg("Reconciliation run finished")
}

// reconcileCompany plans and applies one company. Nothing escapes it: errors
// and panics end up in the returned report.
func (e *Engine) reconcileCompany(ctx context.Context, cd *CompanyDevices, rejected []models.SkippedRecord, templates *templateCheck, dryRun bool) (rep models.CompanyReport) {
	start := time.Now()
	name := cd.Company.GroupName()
	ctx = logging.ContextWithCompany(ctx, name)
	ctx, cancel := context.WithTimeout(ctx, e.companyTimeout)
	defer cancel()
	log := logging.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Company reconciliation panicked")
			rep = CompanyFailure(cd.Company, fmt.Errorf("panic: %v", r), rejected)
		}
		rep.DurationMS = time.Since(start).Milliseconds()
		metrics.RecordCompany(name, rep.Failed(), rep.Counts.Matched, rep.Counts.Orphaned, time.Since(start))
	}()

	existing, err := e.tree.FetchTree(ctx, name)
	if err != nil {
		log.Error().Err(err).Msg("Monitor tree fetch failed")
		return CompanyFailure(cd.Company, fmt.Errorf("fetch monitor tree: %w", err), rejected)
	}

	delta := e.planner.Plan(cd.Company, cd.Devices, existing)
	for _, s := range delta.Skipped {
		log.Warn().Str("sys_id", s.SysID).Str("name", s.Name).Str("reason", s.Reason).Msg(s.Message)
		metrics.RecordSkippedRecord(s.Reason)
	}

	if len(delta.ToCreate) > 0 {
		if err := templates.verify(ctx, delta); err != nil {
			log.Error().Err(err).Msg("Template check failed, company not reconciled")
			rep = Summarize(delta, failedOutcomes(delta, err), rejected)
			issue := models.NewIssue(err)
			rep.Error = &issue
			return rep
		}
	}

	exec := NewExecutor(e.tree, e.builder, e.writeBack)
	if dryRun {
		exec = &Executor{tree: e.dryRunTree(existing), builder: e.builder, keepPayloads: true}
	}
	outcomes, fatal := exec.Apply(ctx, delta)

	rep = Summarize(delta, outcomes, rejected)
	if fatal != nil {
		issue := models.NewIssue(fatal)
		rep.Error = &issue
	}

	log.Info().
		Int("created", rep.Counts.Created).
		Int("matched", rep.Counts.Matched).
		Int("skipped", rep.Counts.Skipped).
		Int("orphaned", rep.Counts.Orphaned).
		Int("failed", rep.Counts.Failed).
		Msg("Company reconciled")
	return rep
}

// dryRunTree is an in-memory copy of the company's tree that accepts every
// configured template.
func (e *Engine) dryRunTree(existing *models.MonitorGroup) *monitor.MemoryTree {
	mem := monitor.NewMemoryTree(e.rootID, dryRunFirstID)
	mem.Seed(existing)
	t := e.builder.Templates()
	mem.AddTemplate(models.KindCompanyGroup, t.Company)
	mem.AddTemplate(models.KindLocationGroup, t.Location)
	mem.AddTemplate(models.KindDevice, t.Device)
	return mem
}

// failedOutcomes fails every planned item with err.
func failedOutcomes(delta *models.Delta, err error) []models.Outcome {
	issue := models.NewIssue(err)
	out := make([]models.Outcome, len(delta.ToCreate))
	for i := range delta.ToCreate {
		item := &delta.ToCreate[i]
		out[i] = models.Outcome{Kind: item.Kind, Key: item.Key, Name: item.Name, State: models.StateFailed, Failure: &issue}
		if item.Device != nil {
			out[i].SysID = item.Device.SysID
		}
		metrics.RecordEntityFailed(string(item.Kind), issue.Reason)
	}
	return out
}

// templateCheck verifies each clone source once per run. Transient errors are
// not cached.
type templateCheck struct {
	tree      monitor.TemplateSource
	templates Templates

	mu      sync.Mutex
	results map[models.NodeKind]error
}

func newTemplateCheck(tree monitor.TemplateSource, templates Templates) *templateCheck {
	return &templateCheck{tree: tree, templates: templates, results: make(map[models.NodeKind]error)}
}

// verify checks the templates of every kind delta creates.
func (t *templateCheck) verify(ctx context.Context, delta *models.Delta) error {
	for _, kind := range []models.NodeKind{models.KindCompanyGroup, models.KindLocationGroup, models.KindDevice} {
		if delta.CountToCreate(kind) == 0 {
			continue
		}
		if err := t.check(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func (t *templateCheck) check(ctx context.Context, kind models.NodeKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err, ok := t.results[kind]; ok {
		return err
	}
	id := t.templates.ID(kind)
	exists, err := t.tree.TemplateExists(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("check %s template %d: %w", kind, id, err)
	}
	if !exists {
		err = fmt.Errorf("%w: %s template %d", models.ErrTemplateNotFound, kind, id)
	}
	t.results[kind] = err
	return err
}
