// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/cmdbsync/internal/models"
)

// MemoryTree is an in-memory monitor tree. It implements Tree and records
// every created object.
type MemoryTree struct {
	mu        sync.Mutex
	root      *models.MonitorGroup
	nextID    int
	templates map[int]models.NodeKind
	failures  map[string]error
	groups    []models.GroupSpec
	devices   map[int]*models.DeviceSpec
	calls     int
}

// NewMemoryTree creates an empty tree under root group rootID. New objects
// get IDs starting at firstID.
func NewMemoryTree(rootID, firstID int) *MemoryTree {
	return &MemoryTree{
		root:      &models.MonitorGroup{ID: rootID, Name: "root"},
		nextID:    firstID,
		templates: make(map[int]models.NodeKind),
		failures:  make(map[string]error),
		devices:   make(map[int]*models.DeviceSpec),
	}
}

// AddTemplate registers a clone source.
func (m *MemoryTree) AddTemplate(kind models.NodeKind, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[id] = kind
}

// Seed adds an existing company group (copied) under the root.
func (m *MemoryTree) Seed(company *models.MonitorGroup) {
	if company == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := company.Clone()
	cp.ParentID = m.root.ID
	m.root.Groups = append(m.root.Groups, cp)
}

// FailOn makes the next creations of an object named name fail with err.
func (m *MemoryTree) FailOn(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[models.NormalizeName(name)] = err
}

// FetchTree implements Reader.
func (m *MemoryTree) FetchTree(_ context.Context, name string) (*models.MonitorGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root.FindGroup(name).Clone(), nil
}

// TemplateExists implements TemplateSource.
func (m *MemoryTree) TemplateExists(_ context.Context, kind models.NodeKind, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.templates[id]
	if !ok {
		return false, nil
	}
	// Company and location groups may share a template.
	return k == kind || (k != models.KindDevice && kind != models.KindDevice), nil
}

// CloneGroup implements TemplateSource.
func (m *MemoryTree) CloneGroup(ctx context.Context, spec models.GroupSpec) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := m.check(ctx, spec.Name, spec.TemplateID); err != nil {
		return 0, err
	}
	parent := m.findGroup(m.root, spec.ParentID)
	if parent == nil {
		return 0, fmt.Errorf("parent group %d not found", spec.ParentID)
	}
	if parent.FindGroup(spec.Name) != nil {
		return 0, fmt.Errorf("group %q already exists under %d", spec.Name, spec.ParentID)
	}

	id := m.allocate()
	parent.Groups = append(parent.Groups, &models.MonitorGroup{ID: id, Name: spec.Name, ParentID: spec.ParentID})
	m.groups = append(m.groups, spec)
	return id, nil
}

// CloneDevice implements TemplateSource.
func (m *MemoryTree) CloneDevice(ctx context.Context, spec *models.DeviceSpec) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := m.check(ctx, spec.Name, spec.TemplateID); err != nil {
		return 0, err
	}
	parent := m.findGroup(m.root, spec.ParentID)
	if parent == nil {
		return 0, fmt.Errorf("parent group %d not found", spec.ParentID)
	}
	if parent.FindDevice(spec.Name) != nil {
		return 0, fmt.Errorf("device %q already exists under %d", spec.Name, spec.ParentID)
	}

	id := m.allocate()
	parent.Devices = append(parent.Devices, &models.MonitorDevice{
		ID:       id,
		Name:     spec.Name,
		ParentID: spec.ParentID,
		Host:     spec.Host,
		Tags:     append([]string(nil), spec.Tags...),
	})
	cp := *spec
	m.devices[id] = &cp
	return id, nil
}

// CreatedGroups returns the group specs created so far, in order.
func (m *MemoryTree) CreatedGroups() []models.GroupSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GroupSpec(nil), m.groups...)
}

// CreatedDevice returns the spec a device was created with.
func (m *MemoryTree) CreatedDevice(id int) *models.DeviceSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[id]
}

// Calls returns the number of creation attempts.
func (m *MemoryTree) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MemoryTree) check(ctx context.Context, name string, templateID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := m.failures[models.NormalizeName(name)]; ok {
		return err
	}
	if _, ok := m.templates[templateID]; !ok {
		return fmt.Errorf("%w: %d", models.ErrTemplateNotFound, templateID)
	}
	return nil
}

func (m *MemoryTree) allocate() int {
	id := m.nextID
	m.nextID++
	return id
}

func (m *MemoryTree) findGroup(g *models.MonitorGroup, id int) *models.MonitorGroup {
	if g.ID == id {
		return g
	}
	for _, child := range g.Groups {
		if found := m.findGroup(child, id); found != nil {
			return found
		}
	}
	return nil
}
