package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dkovalev/taskgw/internal/config"
	"github.com/dkovalev/taskgw/internal/observability"
)

// Listener wraps the gateway's HTTP server lifecycle.
type Listener struct {
	cfg     config.ServerConfig
	server  *http.Server
	handler http.Handler
	logger  observability.Logger
	running atomic.Bool
}

// ListenerOption is a functional option for configuring a listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for the listener.
func WithListenerLogger(logger observability.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener creates a new listener.
func NewListener(cfg config.ServerConfig, handler http.Handler, opts ...ListenerOption) (*Listener, error) {
	l := &Listener{
		cfg:     cfg,
		handler: handler,
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Address returns the listen address.
func (l *Listener) Address() string {
	bind := l.cfg.Bind
	if bind == "" {
		bind = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", bind, l.cfg.Port)
}

// Start starts serving. It blocks until the server stops; a graceful
// shutdown returns nil.
func (l *Listener) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("listener %s is already running", l.Address())
	}

	l.server = &http.Server{
		Addr:              l.Address(),
		Handler:           l.handler,
		ReadTimeout:       l.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      l.cfg.WriteTimeout.Duration(),
		IdleTimeout:       l.cfg.IdleTimeout.Duration(),
		MaxHeaderBytes:    1 << 20, // 1MB
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	l.logger.Info("listener starting",
		observability.String("addr", l.Address()),
	)

	if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.running.Store(false)
		return err
	}

	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up
// to the context deadline.
func (l *Listener) Shutdown(ctx context.Context) error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}

	l.logger.Info("listener shutting down",
		observability.String("addr", l.Address()),
	)

	return l.server.Shutdown(ctx)
}
