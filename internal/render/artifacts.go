// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package render

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// ArtifactStore owns the on-disk layout of render outputs:
//
//	<root>/partial/<segment-id>_<hash12>.<ext>   one per cached segment
//	<root>/output/<user-chosen-name>.<ext>       combined artifacts
//
// The filename is the manifest: an artifact is valid for a segment exactly
// when its name embeds the segment's current content hash and the file is
// nonempty. A single engine instance owns the directory; nothing here
// defends against a second process writing into it.
type ArtifactStore struct {
	fs   afero.Fs
	root string
	ext  string
}

// NewArtifactStore returns a store rooted at the given directory, writing
// artifacts with the given extension (without the dot; "mp4" is typical).
func NewArtifactStore(fs afero.Fs, root, ext string) *ArtifactStore {
	return &ArtifactStore{fs: fs, root: root, ext: ext}
}

// FS returns the filesystem the store writes through, for wiring backends
// onto the same one.
func (st *ArtifactStore) FS() afero.Fs { return st.fs }

// PartialDir returns the directory holding per-segment artifacts.
func (st *ArtifactStore) PartialDir() string {
	return filepath.Join(st.root, "partial")
}

// OutputDir returns the directory holding combined artifacts.
func (st *ArtifactStore) OutputDir() string {
	return filepath.Join(st.root, "output")
}

// EnsureDirs creates the partial and output directories if absent.
func (st *ArtifactStore) EnsureDirs() error {
	if err := st.fs.MkdirAll(st.PartialDir(), 0755); err != nil {
		return err
	}
	return st.fs.MkdirAll(st.OutputDir(), 0755)
}

// PartialPath returns the final artifact path for the given segment id and
// content hash.
func (st *ArtifactStore) PartialPath(id segment.ID, hash segment.Hash) string {
	return filepath.Join(st.PartialDir(), fmt.Sprintf("%s_%s.%s", id, hash, st.ext))
}

// TempPath returns the in-progress path a render writes to before
// publication.
func (st *ArtifactStore) TempPath(id segment.ID, hash segment.Hash) string {
	return st.PartialPath(id, hash) + ".tmp"
}

// OutputPath resolves a combined-output name: absolute paths pass through,
// anything else lands in the output directory.
func (st *ArtifactStore) OutputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(st.OutputDir(), name)
}

// IsCached reports whether a valid artifact exists for the given segment id
// at the given content hash: the file must exist under its hash-embedding
// name and be nonempty.
func (st *ArtifactStore) IsCached(id segment.ID, hash segment.Hash) bool {
	info, err := st.fs.Stat(st.PartialPath(id, hash))
	return err == nil && info.Size() > 0
}

// Publish atomically moves a finished temp file into its final name,
// making the artifact observable only once it is durable. It refuses to
// publish an empty file, because a zero-byte artifact means the backend
// lied about succeeding.
func (st *ArtifactStore) Publish(id segment.ID, hash segment.Hash) (string, error) {
	tmp := st.TempPath(id, hash)
	final := st.PartialPath(id, hash)

	info, err := st.fs.Stat(tmp)
	if err != nil {
		return "", fmt.Errorf("render output for segment %q is missing: %w", id, err)
	}
	if info.Size() == 0 {
		st.fs.Remove(tmp)
		return "", fmt.Errorf("render output for segment %q is empty", id)
	}
	if err := st.fs.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("publishing artifact for segment %q: %w", id, err)
	}
	return final, nil
}

// Sweep removes partial artifacts that no segment in the given graph claims
// at its current hash: leftovers from renamed segments, superseded hashes,
// and abandoned temp files. It returns the removed paths.
func (st *ArtifactStore) Sweep(g *scenegraph.Graph) ([]string, error) {
	valid := make(map[string]struct{}, g.Count())
	for _, s := range g.AllSegments() {
		valid[filepath.Base(st.PartialPath(s.ID(), s.ContentHash()))] = struct{}{}
	}

	entries, err := afero.ReadDir(st.fs, st.PartialDir())
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := valid[name]; ok {
			continue
		}
		if !strings.HasSuffix(name, "."+st.ext) && !strings.HasSuffix(name, ".tmp") {
			// Not one of ours; leave it alone.
			continue
		}
		path := filepath.Join(st.PartialDir(), name)
		if err := st.fs.Remove(path); err != nil {
			return removed, err
		}
		log.Printf("[DEBUG] render: swept stale artifact %s", name)
		removed = append(removed, path)
	}
	return removed, nil
}
