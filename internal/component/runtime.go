package component

import (
	"time"

	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/patch"
	"github.com/conneroisu/kiln/internal/scheduler"
	"github.com/conneroisu/kiln/internal/template"
)

// Options configures a Runtime.
type Options struct {
	PatchCacheCapacity int
	FrameInterval      time.Duration
	IdleDelay          time.Duration
	// DiagnosticsLimit bounds the number of kept diagnostics.
	DiagnosticsLimit int
	// GlobalStyles are combined with every non-scoped component style.
	GlobalStyles string
	Logger       logging.Logger
	// Compiler defaults to the process-wide template compiler.
	Compiler *template.Compiler
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		PatchCacheCapacity: patch.DefaultCapacity,
		FrameInterval:      16 * time.Millisecond,
		IdleDelay:          time.Millisecond,
		DiagnosticsLimit:   100,
	}
}

// Runtime holds the services shared by every component instance: the
// template compiler, the patch cache, the event loop and error reporting.
type Runtime struct {
	Compiler     *template.Compiler
	Patches      *patch.Cache
	Loop         *scheduler.Loop
	Logger       logging.Logger
	Errors       *kerrors.ErrorHandler
	Diagnostics  *kerrors.Collector
	GlobalStyles string
}

// NewRuntime builds a Runtime. A non-positive patch cache capacity is an
// InvalidConfigError.
func NewRuntime(opts Options) (*Runtime, error) {
	patches, err := patch.NewCache(opts.PatchCacheCapacity)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	compiler := opts.Compiler
	if compiler == nil {
		compiler = template.Default()
	}
	diagnostics := kerrors.NewCollector(opts.DiagnosticsLimit)

	return &Runtime{
		Compiler: compiler,
		Patches:  patches,
		Loop: scheduler.NewLoop(scheduler.Config{
			FrameInterval: opts.FrameInterval,
			IdleDelay:     opts.IdleDelay,
			Logger:        logger,
		}),
		Logger:       logger,
		Errors:       kerrors.NewErrorHandler(logger, diagnostics),
		Diagnostics:  diagnostics,
		GlobalStyles: opts.GlobalStyles,
	}, nil
}

// Flush runs the event loop until it is idle. It is meant for callers that
// drive the loop themselves, such as the CLI and tests.
func (r *Runtime) Flush() int {
	return r.Loop.Flush(1000)
}
