package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/component"
	"github.com/conneroisu/kiln/internal/document"
)

var watchCmd = &cobra.Command{
	Use:   "watch <manifest> <selector>",
	Short: "Render a component and re-render it when its files change",
	Long: `Render a component like "kiln render", then keep the event loop running
and watch the manifest and every template and style file it references.
Edits are applied to the live instance and the new output is printed after
each render. Directories listed under watch.paths in the configuration
also trigger a reload.

Examples:
  kiln watch kiln.yml x-counter
  kiln watch kiln.yml x-list --props '{"items": ["a"]}' --diagnostics`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

var watchFlags *StandardFlags

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFlags = AddStandardFlags(watchCmd, "component")
}

func runWatch(cmd *cobra.Command, args []string) error {
	props, err := watchFlags.ParseProps()
	if err != nil {
		return err
	}
	attrs, err := watchFlags.ParseAttrs()
	if err != nil {
		return err
	}

	ws, err := openWorkspace(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan error, 1)
	go func() { loopDone <- ws.runtime.Loop.Run(ctx) }()
	fail := func(err error) error {
		stop()
		<-loopDone
		return err
	}

	var createErr error
	err = ws.runtime.Loop.Do(ctx, func() {
		createErr = watchComponent(ws, cmd.OutOrStdout(), cmd.ErrOrStderr(), args[1], attrs, props)
	})
	if err == nil {
		err = createErr
	}
	if err != nil {
		return fail(err)
	}

	fw, err := ws.newWatcher()
	if err != nil {
		return fail(err)
	}
	defer fw.Stop()
	if err := ws.reloader.Attach(ctx, fw); err != nil {
		return fail(fmt.Errorf("failed to watch manifest: %w", err))
	}
	if err := fw.Start(ctx); err != nil {
		return fail(fmt.Errorf("failed to start file watcher: %w", err))
	}

	ws.logger.Info(ctx, "Watching for changes", "manifest", args[0], "dirs", fw.Dirs())

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchComponent creates the component on a fresh document and prints its
// output once per loop turn in which any instance rendered. It must run on
// the loop.
func watchComponent(ws *workspace, out, diag io.Writer, selector string, attrs map[string]string, props map[string]interface{}) error {
	doc := document.New(ws.runtime, ws.registry)
	ws.reloader.AddTarget(doc)

	var inst *component.Instance
	pending := false
	flush := func() {
		pending = false
		if inst == nil || !inst.Connected() {
			return
		}
		fmt.Fprintln(out, shadowHTML(doc, inst, watchFlags.Composed))
		if watchFlags.Diagnostics {
			for _, d := range ws.runtime.Diagnostics.Diagnostics() {
				fmt.Fprintln(diag, formatDiagnostic(d))
			}
			ws.runtime.Diagnostics.Clear()
		}
	}
	doc.OnRender(func(*component.Instance, component.RenderResult) {
		if !pending {
			pending = true
			ws.runtime.Loop.Post(flush)
		}
	})

	var err error
	inst, err = doc.Create(selector, attrs)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(props) {
		inst.Set(name, props[name])
	}
	return nil
}

// commandContext returns the command's context, or a background context
// when it was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
