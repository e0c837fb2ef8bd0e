// SPDX-License-Identifier: MPL-2.0

// Package watch fires a debounced callback when files under a directory change.
//
// arkctl uses it to re-plan and apply whenever the desired-state file, or a
// module descriptor below the module directories, is edited. Events that
// arrive inside the debounce window are coalesced into one callback.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is not set.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid watch config")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watch: Run called more than once")

	// Editor swap files and VCS metadata never trigger a reconcile.
	defaultIgnores = []string{
		"**/.git/**",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.#*",
		"**/.DS_Store",
	}
)

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// BaseDir is the watched root; it defaults to the working directory.
		BaseDir string
		// Patterns are doublestar globs relative to BaseDir. Empty matches everything.
		Patterns []string
		// Ignore is merged with the built-in ignores.
		Ignore []string
		// Debounce values <= 0 fall back to DefaultDebounce.
		Debounce time.Duration
		// OnChange receives the sorted, deduplicated relative paths.
		OnChange func(ctx context.Context, changed []string) error
		Logger   *slog.Logger
	}

	// InvalidConfigError collects the problems found by Config.Validate.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Watcher monitors a directory tree. Run may be called once.
	Watcher struct {
		cfg     Config
		fsw     *fsnotify.Watcher
		ignores []string
		logger  *slog.Logger
		baseDir string
		started atomic.Bool
	}

	// batch accumulates changed paths until the debounce timer fires.
	batch struct {
		mu      sync.Mutex
		pending map[string]struct{}
		timer   *time.Timer
		busy    atomic.Bool
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid watch config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks every glob and requires a callback.
func (c Config) Validate() error {
	var errs []error
	if c.OnChange == nil {
		errs = append(errs, errors.New("OnChange must be set"))
	}
	for _, pat := range c.Patterns {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, fmt.Errorf("invalid watch pattern %q", pat))
		}
	}
	for _, pat := range c.Ignore {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, fmt.Errorf("invalid ignore pattern %q", pat))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// New validates cfg, resolves BaseDir and registers every non-ignored
// directory below it with fsnotify.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		ignores: append(slices.Clone(defaultIgnores), cfg.Ignore...),
		logger:  logger,
		baseDir: absBase,
	}
	if err := w.addTree(absBase); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Warn("close watcher after init failure", "error", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// BaseDir returns the absolute watched root.
func (w *Watcher) BaseDir() string { return w.baseDir }

// Run processes events until ctx is canceled, which returns nil. Resource
// exhaustion reported by fsnotify ends the loop with an error; other
// fsnotify errors are logged. A callback still running when the timer fires
// again is not re-entered; the batch is retried after another debounce.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	b := &batch{pending: make(map[string]struct{})}
	var fire func()
	fire = func() {
		if ctx.Err() != nil {
			return
		}
		if !b.busy.CompareAndSwap(false, true) {
			w.logger.Debug("previous reconcile still running, deferring batch")
			b.schedule(w.cfg.Debounce, fire)
			return
		}
		defer b.busy.Store(false)

		changed := b.drain()
		if len(changed) == 0 {
			return
		}
		w.logger.Debug("change detected", "paths", changed)
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.logger.Error("change handler failed", "error", err)
		}
	}

	defer func() {
		b.stop()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Has(fsnotify.Create) {
				w.addNewDir(evt.Name)
			}
			rel, err := filepath.Rel(w.baseDir, evt.Name)
			if err != nil {
				rel = evt.Name
			}
			rel = filepath.ToSlash(rel)
			if w.ignored(rel) || !w.selected(rel) {
				continue
			}
			b.add(rel)
			b.schedule(w.cfg.Debounce, fire)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// addTree registers root and every directory below it that is not ignored.
// Unreadable directories are skipped with a warning.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("skipping inaccessible path", "path", path, "error", walkErr)
			return nil //nolint:nilerr // keep walking
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(w.baseDir, path); relErr == nil && rel != "." {
			if rel = filepath.ToSlash(rel); w.ignored(rel) || w.ignored(rel+"/") {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk directory tree: %w", err)
	}
	return nil
}

// addNewDir extends the watch to directories created after startup, such
// as a freshly unpacked module.
func (w *Watcher) addNewDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("watch new directory", "path", path, "error", err)
	}
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) selected(rel string) bool {
	return len(w.cfg.Patterns) == 0 || matchAny(w.cfg.Patterns, rel)
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (b *batch) add(rel string) {
	b.mu.Lock()
	b.pending[rel] = struct{}{}
	b.mu.Unlock()
}

// schedule arms the timer, or pushes it back when already armed.
func (b *batch) schedule(d time.Duration, fire func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		b.timer = time.AfterFunc(d, fire)
		return
	}
	b.timer.Reset(d)
}

func (b *batch) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := slices.Sorted(maps.Keys(b.pending))
	clear(b.pending)
	return out
}

func (b *batch) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
