// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"slices"

	"github.com/desargues/desargues/internal/events"
	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

func watchedGraph(t *testing.T) *scenegraph.Graph {
	t.Helper()
	g := scenegraph.Empty(nil)
	for _, spec := range []struct {
		id   segment.ID
		deps []segment.ID
		unit string
	}{
		{"intro", nil, "intro"},
		{"body", []segment.ID{"intro"}, "body"},
		{"outro", []segment.ID{"body"}, ""},
	} {
		s, err := segment.New(spec.id, segment.Construct{Tag: string(spec.id) + "-v1"}, spec.deps, nil)
		if err != nil {
			t.Fatal(err)
		}
		if spec.unit != "" {
			s = s.WithSourceUnit(spec.unit)
		}
		g, err = g.Add(s)
		if err != nil {
			t.Fatal(err)
		}
	}
	return g
}

// changeCollector gathers SourceChanged emissions and hook invocations.
type changeCollector struct {
	mu       sync.Mutex
	events   []events.SourceChanged
	hookRuns []string
}

func (c *changeCollector) sourceChanged() []events.SourceChanged {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

func (c *changeCollector) hooks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.hookRuns)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func startTestWatcher(t *testing.T, root string, collector *changeCollector, hook OnChange) *Watcher {
	t.Helper()
	g := watchedGraph(t)
	reg := events.NewRegistry()
	reg.Register("collector", func(env events.Envelope) {
		if sc, ok := env.Event.(events.SourceChanged); ok {
			collector.mu.Lock()
			collector.events = append(collector.events, sc)
			collector.mu.Unlock()
		}
	}, nil)

	w, err := Start(Config{
		Roots:    []string{root},
		Debounce: 20 * time.Millisecond,
		Snapshot: func() *scenegraph.Graph { return g },
		OnChange: hook,
		Events:   reg,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherDetectsChange(t *testing.T) {
	root := t.TempDir()
	collector := &changeCollector{}
	w := startTestWatcher(t, root, collector, func(unit string, affected []segment.ID) {
		collector.mu.Lock()
		collector.hookRuns = append(collector.hookRuns, unit)
		collector.mu.Unlock()
	})

	if err := os.WriteFile(filepath.Join(root, "intro.py"), []byte("scene v2"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 500*time.Millisecond, func() bool { return len(collector.sourceChanged()) > 0 }) {
		t.Fatal("no SourceChanged event within 500ms")
	}

	got := collector.sourceChanged()[0]
	if got.Unit != "intro" {
		t.Fatalf("event names unit %q; want %q", got.Unit, "intro")
	}
	// intro defines segment "intro"; body and outro are its transitive
	// dependents.
	want := []segment.ID{"body", "intro", "outro"}
	if !slices.Equal(got.Affected, want) {
		t.Fatalf("wrong affected set %v; want %v", got.Affected, want)
	}

	if !waitFor(t, 500*time.Millisecond, func() bool { return len(collector.hooks()) > 0 }) {
		t.Fatal("on-change hook never ran")
	}

	changes, last := w.Stats()
	if changes < 1 || last.IsZero() {
		t.Fatalf("stats not updated: %d changes, last %v", changes, last)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	collector := &changeCollector{}
	startTestWatcher(t, root, collector, nil)

	// A burst of writes to the same file within the debounce window must
	// coalesce into one SourceChanged.
	path := filepath.Join(root, "body.py")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if !waitFor(t, 500*time.Millisecond, func() bool { return len(collector.sourceChanged()) > 0 }) {
		t.Fatal("no SourceChanged event within 500ms")
	}
	// Allow a full debounce window to pass, then check nothing further
	// arrived.
	time.Sleep(100 * time.Millisecond)
	if got := len(collector.sourceChanged()); got != 1 {
		t.Fatalf("burst produced %d events; want 1", got)
	}
}

func TestWatcherHookPanicIsContained(t *testing.T) {
	root := t.TempDir()
	collector := &changeCollector{}
	w := startTestWatcher(t, root, collector, func(unit string, affected []segment.ID) {
		panic("hook exploded")
	})

	if err := os.WriteFile(filepath.Join(root, "intro.py"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 500*time.Millisecond, func() bool { return len(collector.sourceChanged()) > 0 }) {
		t.Fatal("no SourceChanged event within 500ms")
	}

	// The watcher must survive the panicking hook and keep observing.
	if !w.Running() {
		t.Fatal("watcher stopped after hook panic")
	}
	if err := os.WriteFile(filepath.Join(root, "body.py"), []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 500*time.Millisecond, func() bool { return len(collector.sourceChanged()) >= 2 }) {
		t.Fatal("watcher did not process a change after a hook panic")
	}
}

func TestWatcherSharedHandleAndStop(t *testing.T) {
	root := t.TempDir()
	collector := &changeCollector{}
	w := startTestWatcher(t, root, collector, nil)

	again, err := Start(Config{
		Roots:    []string{root},
		Snapshot: func() *scenegraph.Graph { return watchedGraph(t) },
		Events:   events.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if again != w {
		t.Fatal("second Start on the same roots returned a new watcher")
	}

	w.Stop()
	w.Stop() // idempotent
	if w.Running() {
		t.Fatal("watcher still running after Stop")
	}

	// With the old handle stopped, the roots are free again.
	fresh, err := Start(Config{
		Roots:    []string{root},
		Snapshot: func() *scenegraph.Graph { return watchedGraph(t) },
		Events:   events.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Stop()
	if fresh == w {
		t.Fatal("Start returned a stopped watcher")
	}
}

func TestWatcherRejectsBadConfig(t *testing.T) {
	if _, err := Start(Config{}); err == nil {
		t.Fatal("empty config accepted")
	}
	if _, err := Start(Config{Roots: []string{t.TempDir()}}); err == nil {
		t.Fatal("config without snapshot source accepted")
	}
}

func TestDefaultUnitMapper(t *testing.T) {
	tests := map[string][]string{
		"scenes/intro.py":   {"intro"},
		"/abs/path/body.go": {"body"},
		"noext":             {"noext"},
	}
	for path, want := range tests {
		if got := DefaultUnitMapper(path); !slices.Equal(got, want) {
			t.Errorf("DefaultUnitMapper(%q) = %v; want %v", path, got, want)
		}
	}
}
