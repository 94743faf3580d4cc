// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*RunManagerService)(nil)
)

type mockHTTPServer struct {
	listenErr   error
	shutdownErr error
	started     chan struct{}
	stopCh      chan struct{}
	shutdowns   atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.stopCh)
	return m.shutdownErr
}

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	t.Parallel()
	for _, timeout := range []time.Duration{0, -time.Second} {
		if svc := NewHTTPServerService(newMockHTTPServer(), timeout); svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: shutdownTimeout = %v, want 10s", timeout, svc.shutdownTimeout)
		}
	}
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	t.Parallel()
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return")
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("Shutdown calls = %d, want 1", server.shutdowns.Load())
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	t.Parallel()
	server := newMockHTTPServer()
	server.listenErr = errors.New("address already in use")

	err := NewHTTPServerService(server, time.Second).Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve() error = %v, want wrapped listen error", err)
	}
}

func TestHTTPServerService_ShutdownFailure(t *testing.T) {
	t.Parallel()
	server := newMockHTTPServer()
	server.shutdownErr = errors.New("deadline")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewHTTPServerService(server, time.Second).Serve(ctx) }()
	<-server.started
	cancel()

	if err := <-done; !errors.Is(err, server.shutdownErr) {
		t.Errorf("Serve() error = %v, want shutdown error", err)
	}
}

type mockManager struct {
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (m *mockManager) Start(context.Context) error {
	m.starts.Add(1)
	return m.startErr
}

func (m *mockManager) Stop() error {
	m.stops.Add(1)
	return nil
}

func TestRunManagerService_Lifecycle(t *testing.T) {
	t.Parallel()
	manager := &mockManager{}
	svc := NewRunManagerService(manager)
	if svc.String() != "run-manager" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for manager.starts.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if manager.starts.Load() != 1 || manager.stops.Load() != 1 {
		t.Errorf("starts = %d, stops = %d, want 1 and 1", manager.starts.Load(), manager.stops.Load())
	}
}

func TestRunManagerService_StartFailure(t *testing.T) {
	t.Parallel()
	manager := &mockManager{startErr: errors.New("bad cron")}

	err := NewRunManagerService(manager).Serve(context.Background())
	if !errors.Is(err, manager.startErr) {
		t.Errorf("Serve() error = %v, want start error", err)
	}
	if manager.stops.Load() != 0 {
		t.Error("Stop() called after failed Start()")
	}
}
