// Package server coordinates the long-running pieces of the game server --
// the websocket acceptor, the elapsed-time ticker, and the database pool --
// bringing them up together and tearing them down in reverse on SIGINT or
// SIGTERM.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component under lifecycle control.
type Service interface {
	// Start runs the service and blocks until it is stopped or fails.
	Start() error
	// Stop asks the service to shut down.
	Stop()
}

// FuncService adapts a start/stop function pair into a Service.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

func (f *FuncService) Start() error { return f.StartFn() }

func (f *FuncService) Stop() { f.StopFn() }

type entry struct {
	name string
	svc  Service
}

// Lifecycle runs a set of named services. Services start in registration
// order and stop in reverse, so the websocket acceptor registered first is
// the last thing holding connections open during shutdown.
type Lifecycle struct {
	log     *zap.Logger
	mu      sync.Mutex
	entries []entry
}

// NewLifecycle creates an empty lifecycle manager.
//
// Precondition: log must be non-nil.
func NewLifecycle(log *zap.Logger) *Lifecycle {
	return &Lifecycle{log: log}
}

// Add registers a named service. Registration order is start order.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{name: name, svc: svc})
}

// Run starts every registered service and blocks until SIGINT or SIGTERM
// arrives, the context is cancelled, or a service fails. It then stops the
// services in reverse registration order.
//
// Postcondition: every service has had Stop called when Run returns.
func (l *Lifecycle) Run(ctx context.Context) error {
	launched := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, len(l.entries))
	for _, e := range l.entries {
		e := e
		go func() {
			l.log.Info("starting service", zap.String("service", e.name))
			began := time.Now()
			if err := e.svc.Start(); err != nil {
				l.log.Error("service failed",
					zap.String("service", e.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(began)),
				)
				failures <- fmt.Errorf("service %s: %w", e.name, err)
				cancel()
			}
		}()
	}

	l.log.Info("all services started",
		zap.Int("count", len(l.entries)),
		zap.Duration("startup", time.Since(launched)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		l.log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-failures:
		l.log.Error("service error, shutting down", zap.Error(err))
	case <-ctx.Done():
		l.log.Info("context cancelled, shutting down")
	}

	l.stopAll()

	l.log.Info("shutdown complete", zap.Duration("total_uptime", time.Since(launched)))
	return nil
}

// stopAll stops services newest-first so dependents go before dependencies.
func (l *Lifecycle) stopAll() {
	began := time.Now()
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		stopBegan := time.Now()
		l.log.Info("stopping service", zap.String("service", e.name))
		e.svc.Stop()
		l.log.Info("service stopped",
			zap.String("service", e.name),
			zap.Duration("elapsed", time.Since(stopBegan)),
		)
	}
	l.log.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(began)))
}
