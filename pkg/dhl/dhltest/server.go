// Package dhltest provides an in-process fake of the DHL Parcel UK API for
// testing clients against real HTTP round trips.
package dhltest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DefaultToken is the bearer token issued by a new Server.
const DefaultToken = "dhltest-access-token"

// DefaultLabel is the decoded label document served by a new Server.
var DefaultLabel = []byte("%PDF-1.4 dhltest label")

// Server is a fake DHL Parcel UK API. Hooks replace the default handler of a
// route; the zero value of every other field gives a well-behaved carrier.
type Server struct {
	*httptest.Server

	Token        string
	LabelContent []byte

	// SimulateErrors makes every shipment, label, cancel and tracking call
	// answer 500 with a carrier error list.
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnAuthenticate   http.HandlerFunc
	OnCreateShipment http.HandlerFunc
	OnGetLabel       http.HandlerFunc
	OnCancelShipment http.HandlerFunc
	OnTrackShipment  http.HandlerFunc

	authCalls     atomic.Int64
	shipmentCalls atomic.Int64

	mu           sync.Mutex
	lastShipment map[string]any
	lastAuth     string
}

// New starts a fake carrier and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Token:        DefaultToken,
		LabelContent: DefaultLabel,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// AuthCalls returns how many token requests reached the server.
func (s *Server) AuthCalls() int64 {
	return s.authCalls.Load()
}

// ShipmentCalls returns how many authenticated API calls reached the server.
func (s *Server) ShipmentCalls() int64 {
	return s.shipmentCalls.Load()
}

// LastShipment returns the decoded body of the last create-shipment call.
func (s *Server) LastShipment() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastShipment
}

// LastAuthorization returns the Authorization header of the last API call.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// EncodedLabel returns LabelContent as the carrier sends it.
func (s *Server) EncodedLabel() string {
	return base64.StdEncoding.EncodeToString(s.LabelContent)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/parceluk/auth/v1/accesstoken", s.hooked(func() http.HandlerFunc { return s.OnAuthenticate }, s.authenticate))

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/parceluk/shipping/v1/label", s.hooked(func() http.HandlerFunc { return s.OnCreateShipment }, s.createShipment))
		r.Get("/parceluk/reprintlabels/v1/labels", s.hooked(func() http.HandlerFunc { return s.OnGetLabel }, s.getLabel))
		r.Delete("/parceluk/shipping/v1/shipments/{shipmentID}", s.hooked(func() http.HandlerFunc { return s.OnCancelShipment }, s.cancelShipment))
		r.Get("/parceluk/tracking/v1/shipments", s.hooked(func() http.HandlerFunc { return s.OnTrackShipment }, s.trackShipment))
	})

	return r
}

// hooked serves the hook returned by hook when set, else def. The hook is read
// per request so tests may install it after New.
func (s *Server) hooked(hook func() http.HandlerFunc, def http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.SimulateLatency > 0 {
			time.Sleep(s.SimulateLatency)
		}
		if h := hook(); h != nil {
			h(w, r)
			return
		}
		def(w, r)
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	s.authCalls.Add(1)

	if err := r.ParseForm(); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed form"})
		return
	}
	if r.PostForm.Get("client_id") == "" || r.PostForm.Get("client_secret") == "" {
		WriteJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid client credentials"})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": s.Token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shipmentCalls.Add(1)

		auth := r.Header.Get("Authorization")
		s.mu.Lock()
		s.lastAuth = auth
		s.mu.Unlock()

		if auth != "Bearer "+s.Token {
			WriteJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		if s.SimulateErrors {
			WriteJSON(w, http.StatusInternalServerError, CarrierErrors("Simulated failure", "dhltest error"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createShipment(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed shipment"})
		return
	}
	s.mu.Lock()
	s.lastShipment = body
	s.mu.Unlock()

	format := r.URL.Query().Get("format")
	WriteJSON(w, http.StatusCreated, map[string]any{
		"shipments": []map[string]any{
			{
				"shipmentId": "SHIP-" + strings.ToUpper(uuid.New().String()[:8]),
				"labels": []map[string]any{
					{"format": format, "label": s.EncodedLabel()},
				},
			},
		},
	})
}

func (s *Server) getLabel(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("shipmentId") == "" {
		WriteJSON(w, http.StatusBadRequest, CarrierErrors("Invalid request", "shipmentId is required"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"labels": []map[string]any{
			{"format": r.URL.Query().Get("format"), "label": s.EncodedLabel()},
		},
	})
}

func (s *Server) cancelShipment(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) trackShipment(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"trackingNumber": r.URL.Query().Get("trackingNumber"),
		"events": []map[string]any{
			{"status": "IN_TRANSIT", "description": "Parcel at hub"},
		},
	})
}

// CarrierErrors builds the carrier's error-list body with a single entry.
func CarrierErrors(title, detail string) map[string]any {
	return map[string]any{
		"errors": []map[string]any{
			{"title": title, "detail": detail},
		},
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
