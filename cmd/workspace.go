package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/conneroisu/kiln/internal/component"
	"github.com/conneroisu/kiln/internal/config"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/registry"
	"github.com/conneroisu/kiln/internal/watcher"
)

// workspace is the runtime, registry and reloader built from a manifest.
type workspace struct {
	cfg      *config.Config
	logger   logging.Logger
	runtime  *component.Runtime
	registry *registry.Registry
	reloader *watcher.Reloader
}

// openWorkspace loads the configuration and defines every component of the
// manifest at path.
func openWorkspace(path string) (*workspace, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rt, err := component.NewRuntime(cfg.RuntimeOptions(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}

	reg := registry.New()
	reloader := watcher.NewReloader(path, reg, rt.Loop, logger)
	m, err := reloader.Load()
	if err != nil {
		return nil, err
	}
	if m.GlobalStyles != "" {
		rt.GlobalStyles = strings.TrimSpace(rt.GlobalStyles + "\n" + m.GlobalStyles)
	}

	for _, p := range cfg.Watch.Paths {
		if err := reloader.AddDir(p); err != nil {
			return nil, fmt.Errorf("invalid watch path %s: %w", p, err)
		}
	}

	ctx := context.Background()
	for _, cycle := range reg.DetectCircularDependencies() {
		logger.Warn(ctx, nil, "Components nest each other and will stop at the first repeat",
			"cycle", strings.Join(cycle, " -> "))
	}
	logger.Debug(ctx, "Manifest loaded", "path", path, "components", reg.Count())

	return &workspace{
		cfg:      cfg,
		logger:   logger,
		runtime:  rt,
		registry: reg,
		reloader: reloader,
	}, nil
}

// newWatcher builds a file watcher that reloads the manifest on change.
func (w *workspace) newWatcher() (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(w.cfg.Watch.Debounce, w.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return fw, nil
}
