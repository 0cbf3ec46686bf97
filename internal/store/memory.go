// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/holomush/extmgr/internal/extension"
)

// Memory is an InstallStore kept in process memory. Records are copied in
// and out so callers cannot mutate stored state.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

// Get implements InstallStore.
func (m *Memory) Get(_ context.Context, id string) (*extension.Installable, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return decode(id, data)
}

// Upsert implements InstallStore.
func (m *Memory) Upsert(_ context.Context, ext *extension.Installable) error {
	data, err := encode(ext)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[ext.ID] = data
	m.mu.Unlock()
	return nil
}

// Delete implements InstallStore. Deleting an unknown id is not an error.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

// List implements InstallStore. Records are ordered by id.
func (m *Memory) List(_ context.Context) ([]*extension.Installable, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*extension.Installable, 0, len(ids))
	for _, id := range ids {
		ext, err := decode(id, m.records[id])
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		out = append(out, ext)
	}
	m.mu.RUnlock()
	return out, nil
}
