// Package api serves the HTTP surface: profile management, message
// administration, health, and the metrics and websocket mounts.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"lanchat/internal/hub"
	"lanchat/internal/pipeline"
	"lanchat/internal/registry"
	"lanchat/internal/store"
	"lanchat/pkg/types"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// defaultHTTPHistoryLimit is the window for GET /api/messages without an
// explicit limit.
const defaultHTTPHistoryLimit = 100

// Server builds the HTTP router over the chat core.
type Server struct {
	hub        *hub.Hub
	identities store.IdentityStore
	messages   store.MessageLog
	pipeline   *pipeline.Pipeline
	ws         http.Handler
	router     chi.Router
}

// New assembles the router. ws is mounted at /ws; pass nil to skip the
// mount (tests that only exercise the REST surface).
func New(h *hub.Hub, identities store.IdentityStore, messages store.MessageLog, pipe *pipeline.Pipeline, ws http.Handler) *Server {
	s := &Server{
		hub:        h,
		identities: identities,
		messages:   messages,
		pipeline:   pipe,
		ws:         ws,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/profile/check", s.handleProfileCheck)
		r.Post("/profile/setup", s.handleProfileSetup)
		r.Get("/profiles", s.handleProfiles)
		r.Get("/messages", s.handleMessages)
		r.Delete("/messages", s.handleClearMessages)
	})
	r.Handle("/metrics", promhttp.Handler())
	if ws != nil {
		r.Handle("/ws", ws)
	}

	s.router = r
	return s
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("encode response failed")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// clientAddress resolves the normalized requester address, honoring the
// explicit ip query/body value over the transport peer.
func clientAddress(r *http.Request, explicit string) string {
	if explicit != "" {
		return registry.NormalizeAddress(explicit)
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return registry.NormalizeAddress(forwarded)
	}
	return registry.NormalizeAddress(r.RemoteAddr)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"users":     s.hub.SessionCount(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleProfileCheck(w http.ResponseWriter, r *http.Request) {
	address := clientAddress(r, r.URL.Query().Get("ip"))

	identity, err := s.identities.FindByAddress(r.Context(), address)
	if err != nil {
		if store.IsNotFound(err) {
			respondJSON(w, http.StatusOK, map[string]interface{}{"exists": false, "ip": address})
			return
		}
		logger.WithError(err).Error("profile check failed")
		respondError(w, http.StatusInternalServerError, "profile lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"exists": true, "profile": identity})
}

type profileSetupRequest struct {
	Address  string `json:"ip_client"`
	Username string `json:"username"`
	Photo    string `json:"photo"`
}

func (s *Server) handleProfileSetup(w http.ResponseWriter, r *http.Request) {
	var req profileSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity := &types.Identity{
		Address:  clientAddress(r, req.Address),
		Username: req.Username,
		Photo:    req.Photo,
	}
	if err := identity.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.identities.Upsert(r.Context(), identity)
	if err != nil {
		logger.WithError(err).Error("profile setup failed")
		respondError(w, http.StatusInternalServerError, "profile save failed")
		return
	}
	logger.WithFields(logrus.Fields{
		"address":  saved.Address,
		"username": saved.Username,
	}).Info("profile saved")
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "profile": saved})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	identities, err := s.identities.All(r.Context())
	if err != nil {
		logger.WithError(err).Error("list profiles failed")
		respondError(w, http.StatusInternalServerError, "profile list failed")
		return
	}
	if identities == nil {
		identities = []*types.Identity{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"profiles": identities})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	// The HTTP read path defaults to a wider window than the connect replay.
	limit := defaultHTTPHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := s.pipeline.History(r.Context(), limit)
	if err != nil {
		logger.WithError(err).Error("read messages failed")
		respondError(w, http.StatusInternalServerError, "message read failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.messages.Clear(r.Context()); err != nil {
		logger.WithError(err).Error("clear messages failed")
		respondError(w, http.StatusInternalServerError, "message clear failed")
		return
	}
	logger.Info("message log cleared")
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
