// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package services

import (
	"context"
	"fmt"
)

// StartStopManager is the lifecycle of *scheduler.Manager.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// RunManagerService adapts the run manager's Start/Stop lifecycle to
// suture's Serve pattern:
//  1. Start(ctx) registers the cron schedule and the startup run
//  2. Serve blocks until the context is canceled
//  3. Stop() cancels an active run and waits for it
type RunManagerService struct {
	manager StartStopManager
	name    string
}

// NewRunManagerService creates the run manager service wrapper.
func NewRunManagerService(manager StartStopManager) *RunManagerService {
	return &RunManagerService{
		manager: manager,
		name:    "run-manager",
	}
}

// Serve implements suture.Service. A failed Start is returned so suture
// restarts the service with backoff.
func (s *RunManagerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("run manager start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("run manager stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *RunManagerService) String() string {
	return s.name
}
