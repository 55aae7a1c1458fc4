package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/dhlparcel/internal/shipmentinput"
	"github.com/tournevent/dhlparcel/pkg/dhl"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ShipmentAPI is the part of *dhl.Client the bridge uses.
type ShipmentAPI interface {
	CreateShipment(ctx context.Context, req *dhl.ShipmentRequest, format string) (*dhl.ShipmentResponse, error)
	GetLabelInDir(ctx context.Context, shipmentID, format, dir string) (*dhl.LabelFile, error)
	GetLabelContent(ctx context.Context, shipmentID, format string) ([]byte, error)
	CancelShipment(ctx context.Context, shipmentID string) error
	TrackShipment(ctx context.Context, trackingNumber string) (*dhl.TrackingResponse, error)
}

// TokenRefresher forces a new access token.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
}

// Config holds server configuration.
type Config struct {
	Port          int
	LabelDir      string // parent of the per-download directories, temp dir when empty
	PickupAccount string // used when a posted shipment names none
}

// Server is the HTTP bridge in front of the DHL client.
type Server struct {
	cfg      Config
	client   ShipmentAPI
	tokens   TokenRefresher
	logger   *otelzap.Logger
	gatherer prometheus.Gatherer
	router   chi.Router
}

// New creates a new server instance. A nil gatherer exposes the default
// Prometheus registry.
func New(cfg Config, client ShipmentAPI, tokens TokenRefresher, logger *otelzap.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.LabelDir == "" {
		cfg.LabelDir = os.TempDir()
	}

	s := &Server{
		cfg:      cfg,
		client:   client,
		tokens:   tokens,
		logger:   logger,
		gatherer: gatherer,
	}
	s.router = s.routes()
	return s
}

// Handler returns the bridge's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/shipments", s.handleCreateShipment)
		r.Delete("/shipments/{shipmentID}", s.handleCancelShipment)
		r.Get("/shipments/{shipmentID}/label", s.handleGetLabel)
		r.Get("/shipments/{shipmentID}/label/content", s.handleGetLabelContent)
		r.Get("/tracking/{trackingNumber}", s.handleTrackShipment)
		r.Post("/auth/refresh", s.handleRefreshToken)
	})

	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Label calls may take the full carrier timeout before streaming starts.
		WriteTimeout: 90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", shipmentinput.ErrInvalidDocument, err))
		return
	}

	doc, err := shipmentinput.Parse(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := doc.ToRequest(s.cfg.PickupAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.client.CreateShipment(ctx, req, r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID := chi.URLParam(r, "shipmentID")

	// Each download gets its own directory so concurrent downloads of one
	// shipment never share a file.
	dir := filepath.Join(s.cfg.LabelDir, uuid.NewString())
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Ctx(ctx).Warn("Failed to remove label directory", zap.String("dir", dir), zap.Error(err))
		}
	}()

	label, err := s.client.GetLabelInDir(ctx, shipmentID, r.URL.Query().Get("format"), dir)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() {
		if err := label.Close(); err != nil {
			s.logger.Ctx(ctx).Warn("Failed to delete label file", zap.String("file_path", label.Path), zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", label.ContentType)
	w.Header().Set("Content-Disposition", label.ContentDisposition())
	w.Header().Set("Content-Length", strconv.FormatInt(label.Size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, label); err != nil {
		s.logger.Ctx(ctx).Warn("Label stream interrupted",
			zap.String("shipment_id", shipmentID),
			zap.Error(err),
		)
	}
}

type labelContentResponse struct {
	ShipmentID string `json:"shipmentId"`
	Format     string `json:"format"`
	SizeBytes  int    `json:"sizeBytes"`
	Label      []byte `json:"label"`
}

func (s *Server) handleGetLabelContent(w http.ResponseWriter, r *http.Request) {
	shipmentID := chi.URLParam(r, "shipmentID")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = dhl.DefaultFormat
	}

	content, err := s.client.GetLabelContent(r.Context(), shipmentID, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, labelContentResponse{
		ShipmentID: shipmentID,
		Format:     format,
		SizeBytes:  len(content),
		Label:      content,
	})
}

func (s *Server) handleCancelShipment(w http.ResponseWriter, r *http.Request) {
	if err := s.client.CancelShipment(r.Context(), chi.URLParam(r, "shipmentID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrackShipment(w http.ResponseWriter, r *http.Request) {
	resp, err := s.client.TrackShipment(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Payload)
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if _, err := s.tokens.RefreshAccessToken(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
}
