package bridge

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"
	"github.com/coder/websocket"

	"github.com/conneroisu/kiln/internal/component"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/middleware"
	"github.com/conneroisu/kiln/internal/registry"
)

// Options configures a Server.
type Options struct {
	// Path is where the WebSocket endpoint is served.
	Path string
	// Codec is used when the client requests no subprotocol.
	Codec string
	// AllowedOrigins are page origins allowed to connect, as URLs or host
	// patterns. Same-host pages are always allowed.
	AllowedOrigins []string
	Title          string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Path:         "/ws",
		Codec:        "json",
		Title:        "kiln",
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the bootstrap page and the WebSocket endpoint. Every
// session shares the runtime, so all document work is serialized on its
// loop, which the caller must run.
type Server struct {
	opts     Options
	codec    Codec
	rt       *component.Runtime
	registry *registry.Registry
	logger   logging.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	seq      atomic.Uint64
	closed   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge server. An unknown codec is an InvalidConfigError.
func New(rt *component.Runtime, reg *registry.Registry, opts Options) (*Server, error) {
	def := DefaultOptions()
	if opts.Path == "" {
		opts.Path = def.Path
	}
	if opts.Codec == "" {
		opts.Codec = def.Codec
	}
	if opts.Title == "" {
		opts.Title = def.Title
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}

	codec, err := CodecFor(opts.Codec)
	if err != nil {
		return nil, kerrors.NewConfigError(err.Error()).WithContext("codec", opts.Codec)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:     opts,
		codec:    codec,
		rt:       rt,
		registry: reg,
		logger:   rt.Logger.WithComponent("bridge"),
		sessions: make(map[*Session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Handler returns the HTTP handler serving the page at "/" and the
// WebSocket endpoint at the configured path, behind the default
// middleware stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.HandleWebSocket)
	mux.HandleFunc("/", s.handlePage)
	return middleware.Default(s.logger).Apply(mux)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page := Page(PageData{
		Title:  s.opts.Title,
		Path:   s.opts.Path,
		Mounts: mountsFromQuery(r.URL.Query(), s.registry.Selectors()),
	})
	templ.Handler(page).ServeHTTP(w, r)
}

// HandleWebSocket upgrades the request and runs a session until the
// connection closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:    Subprotocols(),
		OriginPatterns:  OriginPatterns(s.opts.AllowedOrigins),
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	codec := s.codec
	if c, ok := codecForSubprotocol(conn.Subprotocol()); ok {
		codec = c
	}

	id := "s" + strconv.FormatUint(s.seq.Add(1), 10)
	session := newSession(s, id, conn, codec)
	s.mu.Lock()
	s.sessions[session] = struct{}{}
	s.mu.Unlock()

	s.logger.Info(r.Context(), "Bridge client connected",
		"session", id, "codec", codec.Name(), "remote", r.RemoteAddr)
	session.run(s.ctx)
}

// OriginPatterns converts configured origins into host patterns. A URL
// contributes its host; anything else is used as given.
func OriginPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				out = append(out, u.Host)
			}
			continue
		}
		out = append(out, o)
	}
	return out
}

// Reload re-renders live instances of def's selector in every session. It
// must run on the runtime loop.
func (s *Server) Reload(def *registry.Definition) {
	for _, session := range s.Sessions() {
		session.Reload(def)
	}
}

// Sessions returns the connected sessions.
func (s *Server) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *Server) remove(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session)
	count := len(s.sessions)
	s.mu.Unlock()
	s.logger.Info(context.Background(), "Bridge client disconnected", "session", session.id, "sessions", count)
}

// Shutdown closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	var wg sync.WaitGroup
	for _, session := range s.Sessions() {
		wg.Add(1)
		go func(session *Session) {
			defer wg.Done()
			session.close(websocket.StatusGoingAway, "server shutdown")
		}(session)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
