// Package app assembles the service: storage, registry, typing tracker,
// pipeline, hub, websocket transport, and the HTTP server.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"lanchat/internal/api"
	"lanchat/internal/config"
	"lanchat/internal/hub"
	"lanchat/internal/pipeline"
	"lanchat/internal/registry"
	"lanchat/internal/store"
	"lanchat/internal/typing"
	"lanchat/internal/websocket"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Application owns the lifecycle of every component.
type Application struct {
	cfg    *config.Config
	store  *store.Manager
	hub    *hub.Hub
	server *http.Server

	running bool
	mu      sync.Mutex
}

// New wires the components together without starting anything.
func New(cfg *config.Config) (*Application, error) {
	manager, err := store.NewManager(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "open store failed")
	}

	reg := registry.New(manager)
	tracker := typing.NewTracker(cfg.TypingTimeout)
	pipe := pipeline.New(manager, cfg.MaxMessageLength, cfg.HistoryLimit)
	h := hub.New(reg, tracker, pipe)

	wsHandler := websocket.NewHandler(h, manager, websocket.Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PingInterval: cfg.PingInterval,
		SendBuffer:   cfg.SendBuffer,
	})
	apiServer := api.New(h, manager, manager, pipe, wsHandler)

	return &Application{
		cfg:   cfg,
		store: manager,
		hub:   h,
		server: &http.Server{
			Addr:    cfg.Addr(),
			Handler: apiServer.Handler(),
		},
	}, nil
}

// Start launches the hub and the HTTP listener. It returns once the
// listener stops; a clean shutdown yields nil.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.hub.Start(ctx); err != nil {
		return errors.Wrap(err, "start hub failed")
	}

	logger.WithField("addr", a.cfg.Addr()).Info("listening")
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop drains the HTTP server, stops the hub, and closes the store.
func (a *Application) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	logger.Info("shutting down")

	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = errors.Wrap(err, "http shutdown failed")
	}
	if err := a.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		if firstErr == nil {
			firstErr = errors.Wrap(err, "stop hub failed")
		}
	}
	if err := a.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = errors.Wrap(err, "close store failed")
		}
	}
	return firstErr
}
