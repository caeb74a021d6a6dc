// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"log"

	"github.com/desargues/desargues/internal/segment"
	"github.com/desargues/desargues/internal/watch"
)

// Watch starts observing the given source roots. Each detected change marks
// the affected segments dirty; with a nil onChange the session then renders
// the dirty set immediately, which is the live-reload loop. A non-nil
// onChange replaces that render step (the dirty marking always happens), so
// callers can batch, filter, or defer.
//
// Watching twice without an Unwatch returns the existing handle when the
// roots match, mirroring the underlying watcher's behavior.
func (s *Session) Watch(roots []string, onChange watch.OnChange) (*watch.Watcher, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	hook := onChange
	if hook == nil {
		hook = func(unit string, affected []segment.ID) {
			report, err := s.RenderDirty(context.Background(), Options{})
			if err != nil {
				log.Printf("[ERROR] session: watch-triggered render failed: %s", err)
				return
			}
			log.Printf("[INFO] session: watch cycle for unit %q rendered %d, errored %d",
				unit, len(report.Rendered), len(report.Errored))
		}
	}

	w, err := watch.Start(watch.Config{
		Roots:    roots,
		Snapshot: s.Current,
		Events:   s.events,
		OnChange: func(unit string, affected []segment.ID) {
			for _, id := range affected {
				if err := s.MarkDirty(id); err != nil {
					log.Printf("[WARN] session: cannot mark %q dirty: %s", id, err)
				}
			}
			hook(unit, affected)
		},
	})
	if err != nil {
		return nil, err
	}

	s.watchMu.Lock()
	s.watcher = w
	s.watchMu.Unlock()
	return w, nil
}

// Unwatch stops the session's watcher, if one is running. It is idempotent.
func (s *Session) Unwatch() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
}

// Watching reports whether the session currently has a running watcher.
func (s *Session) Watching() bool {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return s.watcher != nil && s.watcher.Running()
}
