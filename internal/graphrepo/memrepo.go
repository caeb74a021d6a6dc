// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package graphrepo

import (
	"sync"

	"slices"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// MemoryRepository keeps snapshots in memory, for tests and for REPL
// sessions that don't want anything on disk.
//
// Snapshots are stored in their serialized form so that loading goes through
// exactly the same construct re-binding as the file repository.
type MemoryRepository struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{snapshots: map[string][]byte{}}
}

func (r *MemoryRepository) Save(id string, g *scenegraph.Graph) error {
	if err := checkSnapshotID(id); err != nil {
		return err
	}
	data, err := marshalGraph(g)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[id] = data
	return nil
}

func (r *MemoryRepository) Load(id string, constructs map[segment.ID]segment.Construct) (*scenegraph.Graph, error) {
	if err := checkSnapshotID(id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	data, ok := r.snapshots[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return unmarshalGraph(data, constructs)
}

func (r *MemoryRepository) Exists(id string) (bool, error) {
	if err := checkSnapshotID(id); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.snapshots[id]
	return ok, nil
}

func (r *MemoryRepository) List() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.snapshots))
	for id := range r.snapshots {
		ret = append(ret, id)
	}
	slices.Sort(ret)
	return ret, nil
}

func (r *MemoryRepository) Delete(id string) (bool, error) {
	if err := checkSnapshotID(id); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.snapshots[id]
	delete(r.snapshots, id)
	return ok, nil
}
