// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package graphrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"slices"

	"github.com/spf13/afero"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

const snapshotSuffix = ".graph.json"

// FileRepository stores one JSON snapshot file per graph id under a root
// directory.
type FileRepository struct {
	fs   afero.Fs
	root string
}

var _ Repository = (*FileRepository)(nil)

// NewFileRepository returns a repository rooted at the given directory,
// creating it if needed.
func NewFileRepository(fs afero.Fs, root string) (*FileRepository, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating graph repository directory: %w", err)
	}
	return &FileRepository{fs: fs, root: root}, nil
}

func (r *FileRepository) path(id string) string {
	return filepath.Join(r.root, id+snapshotSuffix)
}

func (r *FileRepository) Save(id string, g *scenegraph.Graph) error {
	if err := checkSnapshotID(id); err != nil {
		return err
	}
	data, err := marshalGraph(g)
	if err != nil {
		return err
	}
	// Write-then-rename so that a crash mid-save never leaves a truncated
	// snapshot under the real name.
	tmp := r.path(id) + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0644); err != nil {
		return err
	}
	return r.fs.Rename(tmp, r.path(id))
}

func (r *FileRepository) Load(id string, constructs map[segment.ID]segment.Construct) (*scenegraph.Graph, error) {
	if err := checkSnapshotID(id); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(r.fs, r.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalGraph(data, constructs)
}

func (r *FileRepository) Exists(id string) (bool, error) {
	if err := checkSnapshotID(id); err != nil {
		return false, err
	}
	return afero.Exists(r.fs, r.path(id))
}

func (r *FileRepository) List() ([]string, error) {
	entries, err := afero.ReadDir(r.fs, r.root)
	if err != nil {
		return nil, err
	}
	var ret []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		ret = append(ret, strings.TrimSuffix(entry.Name(), snapshotSuffix))
	}
	slices.Sort(ret)
	return ret, nil
}

func (r *FileRepository) Delete(id string) (bool, error) {
	if err := checkSnapshotID(id); err != nil {
		return false, err
	}
	err := r.fs.Remove(r.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
