package push

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/trips/internal/models"
)

// Session is a connected participant's websocket.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) send(ride *models.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ride)
}

// Registry holds one session per user id and pushes ride status changes
// to connected participants. Pushes are best-effort: a failed or absent
// session is dropped silently, the ride state in the store is the truth.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[string]*Session
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, sessions: make(map[string]*Session)}
}

func (r *Registry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[userID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[userID] = &Session{conn: conn}
}

func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		_ = s.conn.Close()
		delete(r.sessions, userID)
	}
}

// Notify pushes the updated ride to every connected participant.
func (r *Registry) Notify(ride *models.Ride) {
	targets := []string{ride.PassengerID}
	if ride.DriverID != nil {
		targets = append(targets, *ride.DriverID)
	}
	for _, userID := range targets {
		r.mu.RLock()
		s, ok := r.sessions[userID]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if err := s.send(ride); err != nil {
			r.log.Warn("ws push failed, dropping session", "user_id", userID, "error", err)
			r.Remove(userID)
		}
	}
}
