package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a rebuild is triggered.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	// Root is the input directory, watched recursively.
	Root string
	// Pattern selects input files, relative to Root (doublestar syntax).
	Pattern string
	// Extra are absolute files outside the pattern that also trigger a
	// rebuild (schema, templates).
	Extra []string
	// Ignore are absolute files whose events are dropped (the build output).
	Ignore   []string
	Debounce time.Duration
}

// RebuildFunc is called once per debounced batch with the changed paths,
// relative to Root for inputs and absolute for extra files.
type RebuildFunc func(ctx context.Context, changed []string)

// Watch starts an fsnotify watcher and calls rebuild after each burst of
// relevant changes until ctx is cancelled. New directories created at
// runtime are added to the watch list.
func Watch(ctx context.Context, opts WatchOptions, logger *slog.Logger, rebuild RebuildFunc) error {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	extra := make(map[string]struct{}, len(opts.Extra))
	for _, p := range opts.Extra {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		extra[abs] = struct{}{}
		// Watch the parent directory so editors that replace files are seen.
		if err := w.Add(filepath.Dir(abs)); err != nil {
			logger.Warn("watcher: watch extra failed", slog.String("path", abs), slog.String("error", err.Error()))
		}
	}
	ignore := make(map[string]struct{}, len(opts.Ignore))
	for _, p := range opts.Ignore {
		if abs, err := filepath.Abs(p); err == nil {
			ignore[abs] = struct{}{}
		}
	}

	logger.Info("watcher: started", slog.String("root", root), slog.String("pattern", opts.Pattern))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
		pending = make(map[string]struct{})
	)
	schedule := func(p string) {
		pending[p] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(opts.Debounce)
			timerCh = timer.C
		} else {
			timer.Reset(opts.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})
			logger.Debug("watcher: rebuild", slog.Int("changed", len(changed)))
			rebuild(ctx, changed)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name
			if _, skip := ignore[abs]; skip {
				continue
			}
			if _, ok := extra[abs]; ok {
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
					schedule(abs)
				}
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", abs))
					}
					// Files may already exist in the new directory.
					schedule(abs)
					continue
				}
			}

			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)
			if match, _ := doublestar.Match(opts.Pattern, rel); !match {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule(rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
