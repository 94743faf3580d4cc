// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/metrics"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/monitor"
)

// WriteBacker stores a created monitor ID on its CMDB record.
type WriteBacker interface {
	WriteBackMonitorID(ctx context.Context, sysID string, monitorID int) error
}

// Executor applies a delta to the monitor. It never rolls back: whatever was
// created stays, and the next run picks up the rest by name.
type Executor struct {
	tree      monitor.TemplateSource
	builder   *Builder
	writeBack WriteBacker

	// keepPayloads attaches device payloads to outcomes (dry runs).
	keepPayloads bool
}

// NewExecutor creates an executor. writeBack may be nil.
func NewExecutor(tree monitor.TemplateSource, builder *Builder, writeBack WriteBacker) *Executor {
	return &Executor{tree: tree, builder: builder, writeBack: writeBack}
}

// Apply walks delta.ToCreate in order, which places every parent before its
// children. A child of a failed group fails with ErrParentCreationFailed
// without being attempted. A missing template is fatal: every remaining item
// fails with it and the error is returned.
func (e *Executor) Apply(ctx context.Context, delta *models.Delta) ([]models.Outcome, error) {
	outcomes := make([]models.Outcome, len(delta.ToCreate))
	for i := range delta.ToCreate {
		item := &delta.ToCreate[i]
		outcomes[i] = models.Outcome{Kind: item.Kind, Key: item.Key, Name: item.Name, State: models.StatePending}
		if item.Device != nil {
			outcomes[i].SysID = item.Device.SysID
		}
	}

	created := make(map[string]int, len(outcomes))
	var fatal error

	for i := range delta.ToCreate {
		item := &delta.ToCreate[i]
		out := &outcomes[i]

		if fatal != nil {
			e.fail(ctx, out, fatal)
			continue
		}
		if err := ctx.Err(); err != nil {
			e.fail(ctx, out, err)
			continue
		}

		parentID, err := e.parentID(item, created)
		if err != nil {
			e.fail(ctx, out, err)
			continue
		}

		out.State = models.StateCreating
		id, err := e.create(ctx, item, parentID, out)
		switch {
		case err != nil && id == 0:
			if errors.Is(err, models.ErrTemplateNotFound) {
				fatal = err
			}
			e.fail(ctx, out, err)
			continue
		case err != nil:
			// Cloned, but a follow-up call failed. The object exists and is
			// matched by name next time, so it counts as created.
			out.Warnings = append(out.Warnings, models.NewIssue(err))
		}

		out.State = models.StateCreated
		out.MonitorID = id
		if item.Kind != models.KindDevice {
			// Only groups are parents. A device key can equal the key of a
			// location whose name contains a slash.
			created[item.Key] = id
		}
		metrics.RecordEntityCreated(string(item.Kind))

		if item.Kind == models.KindDevice && e.writeBack != nil {
			if err := e.writeBack.WriteBackMonitorID(ctx, out.SysID, id); err != nil {
				out.Warnings = append(out.Warnings, models.Issue{Reason: models.ReasonWritebackFailed, Message: err.Error()})
			}
		}
		for _, w := range out.Warnings {
			metrics.RecordEntityFlagged(w.Reason)
		}

		logging.Ctx(ctx).Info().Str("kind", string(item.Kind)).Str("name", item.Name).Int("monitor_id", id).
			Int("warnings", len(out.Warnings)).Msg("Created monitor object")
	}
	return outcomes, fatal
}

// parentID resolves the parent of item: an existing group, or one created
// earlier in this delta.
func (e *Executor) parentID(item *models.PlanItem, created map[string]int) (int, error) {
	if item.ParentKey == "" {
		return item.ParentID, nil
	}
	if id, ok := created[item.ParentKey]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %q", models.ErrParentCreationFailed, item.ParentKey)
}

func (e *Executor) create(ctx context.Context, item *models.PlanItem, parentID int, out *models.Outcome) (int, error) {
	if item.Kind != models.KindDevice {
		return e.tree.CloneGroup(ctx, e.builder.GroupSpec(item, parentID))
	}
	spec := e.builder.DeviceSpec(ctx, item.Device, parentID)
	out.Warnings = append(out.Warnings, spec.Warnings...)
	if e.keepPayloads {
		out.Payload = spec
	}
	return e.tree.CloneDevice(ctx, spec)
}

func (e *Executor) fail(ctx context.Context, out *models.Outcome, err error) {
	issue := models.NewIssue(err)
	out.State = models.StateFailed
	out.Failure = &issue
	metrics.RecordEntityFailed(string(out.Kind), issue.Reason)

	event := logging.Ctx(ctx).Error()
	if issue.Reason == models.ReasonParentCreationFailed {
		event = logging.Ctx(ctx).Warn()
	}
	event.Str("kind", string(out.Kind)).Str("name", out.Name).Str("reason", issue.Reason).Err(err).
		Msg("Monitor object not created")
}
