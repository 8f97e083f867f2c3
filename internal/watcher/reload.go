package watcher

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/manifest"
	"github.com/conneroisu/kiln/internal/registry"
)

// Executor runs fn on the goroutine that owns component instances.
// scheduler.Loop satisfies it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Target receives definitions that changed on disk. document.Document
// satisfies it.
type Target interface {
	Reload(def *registry.Definition)
}

// Reloader keeps a registry in step with a manifest file.
type Reloader struct {
	path     string
	registry *registry.Registry
	exec     Executor
	logger   logging.Logger

	mu      sync.Mutex
	files   map[string]bool
	dirs    []string
	targets []Target
}

// NewReloader creates a reloader for the manifest at path.
func NewReloader(path string, reg *registry.Registry, exec Executor, logger logging.Logger) *Reloader {
	if logger == nil {
		logger = logging.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Reloader{
		path:     abs,
		registry: reg,
		exec:     exec,
		logger:   logger.WithComponent("reloader"),
		files:    map[string]bool{abs: true},
	}
}

// AddTarget registers t for reload notifications.
func (r *Reloader) AddTarget(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, t)
}

// RemoveTarget stops notifying t.
func (r *Reloader) RemoveTarget(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, other := range r.targets {
		if other == t {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			return
		}
	}
}

// Load reads the manifest and defines its components. It returns the
// manifest so callers can pick up global styles.
func (r *Reloader) Load() (*manifest.Manifest, error) {
	m, err := manifest.Load(r.path)
	if err != nil {
		return nil, err
	}
	m.Register(r.registry, false)
	r.track(m)
	return m, nil
}

// Files returns the files the last loaded manifest depends on.
func (r *Reloader) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.files))
	for f := range r.files {
		out = append(out, f)
	}
	return out
}

var sourceFile = ExtensionFilter(".html", ".htm", ".css", ".yml", ".yaml")

// AddDir makes changes to template, style and manifest files below dir
// trigger a reload.
func (r *Reloader) AddDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = append(r.dirs, filepath.Clean(abs))
	return nil
}

// Filter accepts files the manifest depends on and files below added
// directories.
func (r *Reloader) Filter(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.files[path] {
		return true
	}
	if !NoHiddenFilter(path) || !sourceFile(path) {
		return false
	}
	for _, dir := range r.dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Attach wires the reloader into fw: it watches the manifest's
// directories, filters events to the manifest's files and reloads on
// change.
func (r *Reloader) Attach(ctx context.Context, fw *FileWatcher) error {
	if err := fw.AddFiles(r.Files()...); err != nil {
		return err
	}
	r.mu.Lock()
	dirs := append([]string(nil), r.dirs...)
	r.mu.Unlock()
	for _, dir := range dirs {
		if err := fw.AddPath(dir); err != nil {
			return err
		}
	}
	fw.AddFilter(r.Filter)
	fw.AddHandler(func(events []ChangeEvent) error {
		if _, err := r.Reload(ctx); err != nil {
			return err
		}
		return fw.AddFiles(r.Files()...)
	})
	return nil
}

// Reload re-reads the manifest, replaces changed definitions, removes
// dropped ones and re-renders live instances of the changed selectors. It
// returns the changed selectors. A manifest that fails to load leaves the
// registry untouched.
func (r *Reloader) Reload(ctx context.Context) ([]string, error) {
	m, err := manifest.Load(r.path)
	if err != nil {
		r.logger.Warn(ctx, err, "Manifest reload failed", "path", r.path)
		return nil, err
	}
	r.track(m)

	var changed []string
	apply := func() {
		changed = r.apply(m)
	}
	if r.exec == nil {
		apply()
	} else if err := r.exec.Do(ctx, apply); err != nil {
		return nil, err
	}

	r.logger.Info(ctx, "Manifest reloaded", "path", r.path, "changed", changed)
	return changed, nil
}

func (r *Reloader) apply(m *manifest.Manifest) []string {
	var changed []string
	keep := make(map[string]bool, len(m.Definitions))
	for _, def := range m.Definitions {
		keep[def.Config.Selector] = true
		if old, ok := r.registry.Get(def.Config.Selector); ok {
			if reflect.DeepEqual(old.Config, def.Config) {
				continue
			}
			def.Factory = old.Factory
		}
		r.registry.Replace(def)
		changed = append(changed, def.Config.Selector)
	}
	for _, selector := range r.registry.Selectors() {
		def, _ := r.registry.Get(selector)
		if def != nil && def.Source == m.Path && !keep[selector] {
			r.registry.Remove(selector)
		}
	}

	r.mu.Lock()
	targets := append([]Target(nil), r.targets...)
	r.mu.Unlock()
	for _, selector := range changed {
		def, _ := r.registry.Get(selector)
		for _, t := range targets {
			t.Reload(def)
		}
	}
	return changed
}

func (r *Reloader) track(m *manifest.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = map[string]bool{r.path: true}
	for _, f := range m.Files() {
		if abs, err := filepath.Abs(f); err == nil {
			r.files[abs] = true
		}
	}
}
