// Package middleware composes the HTTP handlers placed in front of the
// bridge.
package middleware

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/kiln/internal/logging"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain is an ordered middleware stack. The first middleware added is the
// outermost.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from middlewares, outermost first.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: append([]Middleware(nil), middlewares...)}
}

// Default returns the stack used by the bridge server: recovery, request
// logging and security headers.
func Default(logger logging.Logger) *Chain {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("http")
	return NewChain(Recover(logger), Logging(logger), SecurityHeaders())
}

// Add appends m as the new innermost middleware.
func (c *Chain) Add(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Len returns the number of middlewares.
func (c *Chain) Len() int { return len(c.middlewares) }

// Apply wraps handler with every middleware in the chain.
func (c *Chain) Apply(handler http.Handler) http.Handler {
	if handler == nil {
		panic("middleware: Apply called with nil handler")
	}
	wrapped := handler
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		wrapped = c.middlewares[i](wrapped)
	}
	return wrapped
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack hands the connection to the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Logging logs one line per request with its status and duration.
func Logging(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error(r.Context(), fmt.Errorf("panic: %v", v), "HTTP handler panicked",
						"path", r.URL.Path)
					http.Error(w, http.StatusText(http.StatusInternalServerError),
						http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the browser hardening headers and a content
// security policy whose script nonce is stored on the request context for
// templ components.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce, err := newNonce()
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError)
				return
			}

			h := w.Header()
			h.Set("Content-Security-Policy", ContentSecurityPolicy(nonce))
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")

			next.ServeHTTP(w, r.WithContext(templ.WithNonce(r.Context(), nonce)))
		})
	}
}

// ContentSecurityPolicy returns the policy for pages served with nonce.
// Component styles are injected as inline style elements.
func ContentSecurityPolicy(nonce string) string {
	return strings.Join([]string{
		"default-src 'self'",
		"script-src 'self' 'nonce-" + nonce + "'",
		"style-src 'self' 'unsafe-inline'",
		"connect-src 'self' ws: wss:",
		"object-src 'none'",
		"base-uri 'self'",
		"frame-ancestors 'none'",
	}, "; ")
}

// Nonce returns the script nonce of the current request.
func Nonce(ctx context.Context) string {
	return templ.GetNonce(ctx)
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
