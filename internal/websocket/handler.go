package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lanchat/internal/hub"
	"lanchat/internal/registry"
	"lanchat/internal/store"
	"lanchat/pkg/types"
)

// Handler upgrades HTTP requests and bridges each socket to the hub.
type Handler struct {
	hub        *hub.Hub
	identities store.IdentityStore
	opts       Options
	upgrader   websocket.Upgrader
}

// NewHandler creates the /ws endpoint handler.
func NewHandler(h *hub.Hub, identities store.IdentityStore, opts Options) *Handler {
	return &Handler{
		hub:        h,
		identities: identities,
		opts:       opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// LAN deployment, browsers connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// sourceAddress prefers the proxy-forwarded client address over the
// transport peer.
func sourceAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	address := sourceAddress(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := NewConnection(conn, h.opts)
	logger.WithFields(logrus.Fields{
		"transport": c.ID(),
		"address":   address,
	}).Info("websocket connected")

	// Best effort; unknown identities have no row to touch.
	if err := h.identities.TouchLastActive(r.Context(), registry.NormalizeAddress(address)); err != nil {
		logger.WithError(err).Debug("touch last_active failed")
	}

	if err := h.hub.Connect(c.ID(), address, c); err != nil {
		logger.WithError(err).Warn("hub rejected connection")
		_ = c.Close()
		return
	}

	c.readLoop(func(frame types.Frame) {
		if err := h.hub.Dispatch(c.ID(), frame); err != nil {
			logger.WithError(err).WithField("event", frame.Event).Warn("dispatch failed")
		}
	})

	_ = h.hub.Disconnect(c.ID())
	_ = c.Close()
	logger.WithField("transport", c.ID()).Info("websocket disconnected")
}
