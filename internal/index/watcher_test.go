package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type rebuildRecorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *rebuildRecorder) record(_ context.Context, changed []string) {
	r.mu.Lock()
	r.batches = append(r.batches, changed)
	r.mu.Unlock()
}

func (r *rebuildRecorder) seen(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		for _, p := range b {
			if p == path {
				return true
			}
		}
	}
	return false
}

func (r *rebuildRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func startWatch(t *testing.T, opts WatchOptions) *rebuildRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rec := &rebuildRecorder{}
	go Watch(ctx, opts, discardLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatcher_MatchingFileTriggersRebuild(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, WatchOptions{Root: root, Pattern: "**/*.md", Debounce: 50 * time.Millisecond})

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("---\na: 1\n---\n"), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen("new.md")
	}, "new.md did not trigger a rebuild")
}

func TestWatcher_NonMatchingFileIgnored(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, WatchOptions{Root: root, Pattern: "**/*.md", Debounce: 50 * time.Millisecond})

	_ = os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)
	time.Sleep(400 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("rebuilds = %d, want 0", n)
	}
}

func TestWatcher_BurstIsDebounced(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, WatchOptions{Root: root, Pattern: "*.md", Debounce: 300 * time.Millisecond})

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		_ = os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644)
	}

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen("a.md") && rec.seen("c.md")
	}, "burst did not trigger a rebuild")
	if n := rec.count(); n != 1 {
		t.Errorf("rebuilds = %d, want 1", n)
	}
}

func TestWatcher_ExtraFileTriggersRebuild(t *testing.T) {
	root := t.TempDir()
	schemaDir := t.TempDir()
	schemaPath := filepath.Join(schemaDir, "schema.json")
	_ = os.WriteFile(schemaPath, []byte("{}"), 0o644)

	rec := startWatch(t, WatchOptions{
		Root:     root,
		Pattern:  "**/*.md",
		Extra:    []string{schemaPath},
		Debounce: 50 * time.Millisecond,
	})

	_ = os.WriteFile(schemaPath, []byte(`{"type":"object"}`), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen(schemaPath)
	}, "schema change did not trigger a rebuild")
}

func TestWatcher_IgnoredOutput(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "registry.md")
	rec := startWatch(t, WatchOptions{
		Root:     root,
		Pattern:  "*.md",
		Ignore:   []string{out},
		Debounce: 50 * time.Millisecond,
	})

	_ = os.WriteFile(out, []byte("x"), 0o644)
	time.Sleep(400 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("rebuilds = %d, want 0", n)
	}
}

func TestWatcher_NewDirectoryWatched(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, WatchOptions{Root: root, Pattern: "**/*.md", Debounce: 50 * time.Millisecond})

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen("sub/deep.md")
	}, "file in new directory did not trigger a rebuild")
}
