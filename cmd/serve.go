package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/kiln/internal/bridge"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve <manifest>",
	Short: "Serve components to a browser over a WebSocket bridge",
	Long: `Start an HTTP server that serves a bootstrap page and a WebSocket
endpoint. Components live on the server: the page mounts them, forwards
DOM events and receives composed shadow tree patches. The manifest and its
files are watched and live instances re-render when they change.

Open http://localhost:8080/?mount=x-counter to mount a single component,
or / to mount every component in the manifest.

Examples:
  kiln serve kiln.yml
  kiln serve kiln.yml --port 3000 --host 0.0.0.0
  kiln serve kiln.yml --no-watch`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().String("codec", "", "Default codec when the client negotiates none (json, msgpack)")
	serveCmd.Flags().Bool("no-watch", false, "Don't reload when the manifest changes")
	AddFlagValidation(serveCmd, "port", ValidatePort)

	_ = viper.BindPFlag("bridge.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("bridge.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("bridge.codec", serveCmd.Flags().Lookup("codec"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(args[0])
	if err != nil {
		return err
	}

	srv, err := bridge.New(ws.runtime, ws.registry, bridge.Options{
		Path:           ws.cfg.Bridge.Path,
		Codec:          ws.cfg.Bridge.Codec,
		AllowedOrigins: ws.cfg.Bridge.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	ws.reloader.AddTarget(srv)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sessions release their instances on the loop during shutdown, so the
	// loop outlives ctx.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- ws.runtime.Loop.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	events := ws.registry.Watch()
	defer ws.registry.UnWatch(events)
	go logRegistryEvents(ws.logger, srv, events)

	noWatch, _ := cmd.Flags().GetBool("no-watch")
	if !noWatch {
		fw, err := ws.newWatcher()
		if err != nil {
			return err
		}
		defer fw.Stop()
		if err := ws.reloader.Attach(ctx, fw); err == nil {
			_ = fw.Start(ctx)
		} else {
			ws.logger.Warn(ctx, err, "Failed to watch manifest, live reload disabled")
		}
	}

	listener, err := net.Listen("tcp", ws.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.cfg.Address(), err)
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveDone := make(chan error, 1)
	go func() { serveDone <- httpServer.Serve(listener) }()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d component(s) at http://%s/\n",
		ws.registry.Count(), listener.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveDone:
	}

	ws.logger.Info(context.Background(), "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		ws.logger.Warn(shutdownCtx, err, "Bridge shutdown incomplete")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		ws.logger.Warn(shutdownCtx, err, "HTTP server shutdown incomplete")
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

func logRegistryEvents(logger logging.Logger, srv *bridge.Server, events <-chan registry.ComponentEvent) {
	ctx := context.Background()
	for event := range events {
		logger.Info(ctx, "Component "+event.Type.String(),
			"selector", event.Definition.Config.Selector,
			"sessions", len(srv.Sessions()))
	}
}
