package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trips/internal/auth"
	"github.com/example/trips/internal/lifecycle"
	"github.com/example/trips/internal/notify"
	"github.com/example/trips/internal/push"
)

type Server struct {
	Engine   *lifecycle.Engine
	Verifier auth.Verifier
	Queue    notify.Queue
	Push     *push.Registry

	logger  *slog.Logger
	limiter *rateLimiter
	mux     *mux.Router
}

// NewServer wires the request handler layer. rpm/burst tune the
// per-client rate limiter; rpm <= 0 disables it.
func NewServer(engine *lifecycle.Engine, verifier auth.Verifier, queue notify.Queue, pushReg *push.Registry, logger *slog.Logger, rpm, burst int) *Server {
	s := &Server{
		Engine:   engine,
		Verifier: verifier,
		Queue:    queue,
		Push:     pushReg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	if rpm > 0 {
		s.limiter = newRateLimiter(rpm, burst)
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	// internal hook for the expiry scheduler; not behind caller auth
	s.mux.HandleFunc("/internal/rides/{id}/expire", s.handleExpireRide).Methods("POST")

	s.mux.Handle("/ride", s.requireAuth(s.handleCreateRide)).Methods("POST")
	s.mux.Handle("/rides", s.requireAuth(s.handleListRides)).Methods("GET")
	s.mux.Handle("/rides/{id}/accept", s.requireAuth(s.handleAcceptRide)).Methods("PUT")
	s.mux.Handle("/rides/{id}/cancel", s.requireAuth(s.handleCancelRide)).Methods("POST")
	s.mux.Handle("/rides/{id}", s.requireAuth(s.handleGetRide)).Methods("GET")
	s.mux.Handle("/rides/{id}", s.requireAuth(s.handleUpdateRide)).Methods("PUT")
	s.mux.Handle("/ws/rides", s.requireAuth(s.handleWS)).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
