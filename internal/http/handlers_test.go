package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/trips/internal/auth"
	"github.com/example/trips/internal/lifecycle"
	"github.com/example/trips/internal/models"
	"github.com/example/trips/internal/notify"
	"github.com/example/trips/internal/push"
	"github.com/example/trips/internal/storage"
)

const testSecret = "handler-test-secret"

func newTestServer(t *testing.T, queue notify.Queue) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := lifecycle.NewEngine(storage.NewMemoryStore(), auth.ClaimRoles{})
	if queue == nil {
		queue = notify.NewMemoryQueue(16)
	}
	return NewServer(engine, auth.NewHS256Verifier(testSecret), queue, push.NewRegistry(log), log, 0, 0)
}

func token(t *testing.T, id, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": id, "role": role})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decodeRide(t *testing.T, w *httptest.ResponseRecorder) models.Ride {
	t.Helper()
	var r models.Ride
	if err := json.NewDecoder(w.Body).Decode(&r); err != nil {
		t.Fatalf("decode ride: %v", err)
	}
	return r
}

func createBody(olat, olon, dlat, dlon float64) map[string]float64 {
	return map[string]float64{
		"origin_lat": olat, "origin_lon": olon,
		"destination_lat": dlat, "destination_lon": dlon,
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil)

	if w := do(t, s, "POST", "/ride", "", createBody(1, 1, 2, 2)); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w := do(t, s, "POST", "/ride", "garbage", createBody(1, 1, 2, 2)); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}
}

func TestCreateRide(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	w := do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body)
	}
	ride := decodeRide(t, w)
	if ride.PassengerID != "P" || ride.Status != models.StatusNotAccepted {
		t.Fatalf("ride = %+v", ride)
	}

	// the handoff event is queued with the new ride's id
	ev, err := s.Queue.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if ev.RideID != ride.ID || ev.PassengerID != "P" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestRideResponseIsFlat(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	w := do(t, s, "POST", "/ride", p, createBody(1.5, 2.5, 3.5, 4.5))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for key, want := range map[string]float64{
		"origin_lat": 1.5, "origin_lon": 2.5,
		"destination_lat": 3.5, "destination_lon": 4.5,
	} {
		got, ok := body[key].(float64)
		if !ok || got != want {
			t.Errorf("%s = %v, want %v", key, body[key], want)
		}
	}
	// coordinates are top-level fields, never nested objects
	for _, key := range []string{"origin", "destination"} {
		if _, ok := body[key]; ok {
			t.Errorf("unexpected %q object in response", key)
		}
	}
}

func TestCreateRideValidation(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	if w := do(t, s, "POST", "/ride", p, createBody(95, 1, 2, 2)); w.Code != http.StatusBadRequest {
		t.Fatalf("latitude 95: %d", w.Code)
	}
	req := httptest.NewRequest("POST", "/ride", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+p)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", w.Code)
	}
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, notify.RideRequested) error {
	return errors.New("queue down")
}
func (failingQueue) Dequeue(context.Context, time.Duration) (notify.RideRequested, error) {
	return notify.RideRequested{}, notify.ErrQueueEmpty
}

func TestCreateSucceedsWhenEnqueueFails(t *testing.T) {
	s := newTestServer(t, failingQueue{})
	p := token(t, "P", auth.RolePassenger)

	if w := do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2)); w.Code != http.StatusCreated {
		t.Fatalf("create with dead queue: %d %s", w.Code, w.Body)
	}
}

func TestLifecycleThroughEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)
	d := token(t, "D", auth.RoleDriver)

	ride := decodeRide(t, do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2)))
	base := "/rides/" + ride.ID

	w := do(t, s, "PUT", base+"/accept", d, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body)
	}
	got := decodeRide(t, w)
	if got.Status != models.StatusAccepted || got.DriverID == nil || *got.DriverID != "D" || got.AcceptedAt == nil {
		t.Fatalf("after accept: %+v", got)
	}

	w = do(t, s, "PUT", base, d, models.StatusUpdate{Status: models.StatusInProgress})
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body)
	}

	w = do(t, s, "PUT", base, d, models.StatusUpdate{Status: models.StatusDone})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body)
	}
	got = decodeRide(t, w)
	if got.Status != models.StatusDone || got.ArrivedAt == nil {
		t.Fatalf("after complete: %+v", got)
	}

	// terminal ride: everything conflicts
	if w := do(t, s, "PUT", base, d, models.StatusUpdate{Status: models.StatusInProgress}); w.Code != http.StatusConflict {
		t.Fatalf("start after done: %d", w.Code)
	}
	if w := do(t, s, "POST", base+"/cancel", p, nil); w.Code != http.StatusConflict {
		t.Fatalf("cancel after done: %d", w.Code)
	}
}

func TestAcceptRequiresDriverRole(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	ride := decodeRide(t, do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2)))
	if w := do(t, s, "PUT", "/rides/"+ride.ID+"/accept", p, nil); w.Code != http.StatusForbidden {
		t.Fatalf("passenger accept: %d", w.Code)
	}
	d := token(t, "D", auth.RoleDriver)
	if w := do(t, s, "PUT", "/rides/nope/accept", d, nil); w.Code != http.StatusNotFound {
		t.Fatalf("accept unknown: %d", w.Code)
	}
}

func TestCancelByStrangerForbidden(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)
	x := token(t, "X", auth.RolePassenger)

	ride := decodeRide(t, do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2)))
	if w := do(t, s, "POST", "/rides/"+ride.ID+"/cancel", x, nil); w.Code != http.StatusForbidden {
		t.Fatalf("stranger cancel: %d", w.Code)
	}
	w := do(t, s, "POST", "/rides/"+ride.ID+"/cancel", p, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("own cancel: %d %s", w.Code, w.Body)
	}
	if got := decodeRide(t, w); got.Status != models.StatusCanceledByPassenger {
		t.Fatalf("status = %v", got.Status)
	}
}

func TestSecondActiveRideConflicts(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	if w := do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2)); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	if w := do(t, s, "POST", "/ride", p, createBody(3, 3, 4, 4)); w.Code != http.StatusConflict {
		t.Fatalf("second create: %d", w.Code)
	}
}

func TestExpireInternalHook(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	ride := decodeRide(t, do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2)))
	w := do(t, s, "POST", "/internal/rides/"+ride.ID+"/expire", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expire: %d %s", w.Code, w.Body)
	}
	if got := decodeRide(t, w); got.Status != models.StatusExpired {
		t.Fatalf("status = %v", got.Status)
	}
	if w := do(t, s, "POST", "/internal/rides/"+ride.ID+"/expire", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("double expire: %d", w.Code)
	}
}

func TestGetAndListRides(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)
	x := token(t, "X", auth.RolePassenger)

	ride := decodeRide(t, do(t, s, "POST", "/ride", p, createBody(1, 1, 2, 2)))

	if w := do(t, s, "GET", "/rides/"+ride.ID, p, nil); w.Code != http.StatusOK {
		t.Fatalf("get own ride: %d", w.Code)
	}
	if w := do(t, s, "GET", "/rides/"+ride.ID, x, nil); w.Code != http.StatusForbidden {
		t.Fatalf("get foreign ride: %d", w.Code)
	}

	w := do(t, s, "GET", "/rides?limit=10", p, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var rides []models.Ride
	if err := json.NewDecoder(w.Body).Decode(&rides); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rides) != 1 || rides[0].ID != ride.ID {
		t.Fatalf("list = %v", rides)
	}

	w = do(t, s, "GET", "/rides", x, nil)
	var empty []models.Ride
	if err := json.NewDecoder(w.Body).Decode(&empty); err != nil {
		t.Fatalf("decode empty list: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("stranger sees %d rides", len(empty))
	}
}

type headerCountingRecorder struct {
	*httptest.ResponseRecorder
	headerWrites int
}

func (h *headerCountingRecorder) WriteHeader(code int) {
	h.headerWrites++
	h.ResponseRecorder.WriteHeader(code)
}

func TestWSUpgradeFailureWritesOnce(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	// a plain GET without the upgrade headers is rejected by the
	// upgrader itself; the handler must not write a second response
	req := httptest.NewRequest("GET", "/ws/rides", nil)
	req.Header.Set("Authorization", "Bearer "+p)
	rec := &headerCountingRecorder{ResponseRecorder: httptest.NewRecorder()}
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("plain GET on ws endpoint: %d", rec.Code)
	}
	if rec.headerWrites != 1 {
		t.Fatalf("WriteHeader called %d times, want 1", rec.headerWrites)
	}
}

func TestRateLimit(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := lifecycle.NewEngine(storage.NewMemoryStore(), auth.ClaimRoles{})
	s := NewServer(engine, auth.NewHS256Verifier(testSecret), notify.NewMemoryQueue(4), push.NewRegistry(log), log, 60, 2)

	var limited bool
	for i := 0; i < 5; i++ {
		w := do(t, s, "GET", "/healthz", "", nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("burst of 5 never rate limited with burst=2")
	}
}

func TestStatusCodesBody(t *testing.T) {
	s := newTestServer(t, nil)
	p := token(t, "P", auth.RolePassenger)

	w := do(t, s, "GET", "/rides/nope", p, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get unknown: %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == "" {
		t.Fatal("error body empty")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
}
