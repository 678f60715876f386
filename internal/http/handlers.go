package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/trips/internal/auth"
	"github.com/example/trips/internal/lifecycle"
	"github.com/example/trips/internal/models"
	"github.com/example/trips/internal/notify"
	"github.com/example/trips/internal/observability"
)

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", lifecycle.ErrValidation, err))
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.Engine.Create(r.Context(), caller.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.enqueueRideRequest(r.Context(), ride)
	s.writeJSON(w, http.StatusCreated, ride)
}

// enqueueRideRequest hands the new ride off to the matcher. Enqueue
// failure is logged and counted, never surfaced: the ride is already
// committed and the caller's response must not depend on delivery.
func (s *Server) enqueueRideRequest(ctx context.Context, ride *models.Ride) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	ev := notify.RideRequested{RideID: ride.ID, PassengerID: ride.PassengerID, RequestedAt: ride.RequestedAt}
	if err := s.Queue.Enqueue(ctx, ev); err != nil {
		observability.NotificationFailures.Inc()
		s.logger.Error("ride request enqueue failed", "ride_id", ride.ID, "error", err)
		return
	}
	observability.NotificationsEnqueued.Inc()
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	ride, err := s.Engine.Accept(r.Context(), mux.Vars(r)["id"], caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Push.Notify(ride)
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleUpdateRide(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	var upd models.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", lifecycle.ErrValidation, err))
		return
	}
	ride, err := s.Engine.UpdateStatus(r.Context(), mux.Vars(r)["id"], caller.ID, upd.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Push.Notify(ride)
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	ride, err := s.Engine.Cancel(r.Context(), mux.Vars(r)["id"], caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Push.Notify(ride)
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	ride, err := s.Engine.Get(r.Context(), mux.Vars(r)["id"], caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	rides, err := s.Engine.List(r.Context(), caller.ID, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rides == nil {
		rides = []*models.Ride{}
	}
	s.writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleExpireRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Engine.Expire(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Push.Notify(ride)
	s.writeJSON(w, http.StatusOK, ride)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Warn("ws upgrade failed", "user_id", caller.ID, "error", err)
		return
	}
	s.Push.Add(caller.ID, conn)
}
