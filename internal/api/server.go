// Package api exposes the purchase workflow over HTTP.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"solana-presale/internal/notify"
	"solana-presale/internal/observability"
	"solana-presale/internal/purchase"
	"solana-presale/internal/storage"
)

// Options wires the server to the running components.
type Options struct {
	Session   *purchase.Session
	Submitter *purchase.Submitter
	History   storage.HistoryStore
	Feed      *notify.Feed
	// Backend names the history backend in /status.
	Backend string
	// Logger for request failures. Nil uses log.Default().
	Logger *log.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Server serves the HTTP API.
type Server struct {
	session   *purchase.Session
	submitter *purchase.Submitter
	history   storage.HistoryStore
	feed      *notify.Feed
	backend   string
	logger    *log.Logger
	now       func() time.Time
	started   time.Time
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Feed == nil {
		opts.Feed = notify.NewFeed(notify.DefaultFeedSize)
	}
	return &Server{
		session:   opts.Session,
		submitter: opts.Submitter,
		history:   opts.History,
		feed:      opts.Feed,
		backend:   opts.Backend,
		logger:    opts.Logger,
		now:       opts.Now,
		started:   opts.Now(),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", s.handleWallet)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
		})
		r.Get("/balance", s.handleBalance)
		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", s.handleListPurchases)
			r.Post("/", s.handleCreatePurchase)
			r.Get("/{id}", s.handleGetPurchase)
		})
		r.Get("/notifications", s.handleNotifications)
	})

	return r
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("[api] encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
