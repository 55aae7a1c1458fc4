package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tournevent/dhlparcel/internal/shipmentinput"
	"github.com/tournevent/dhlparcel/pkg/dhl"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error         string            `json:"error"`
	Kind          string            `json:"kind"`
	CarrierStatus int               `json:"carrierStatus,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error to the bridge's HTTP status and error kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, dhl.ErrInvalidShipment), errors.Is(err, shipmentinput.ErrInvalidDocument):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, dhl.ErrAuthentication):
		return http.StatusBadGateway, "authentication"
	case errors.Is(err, dhl.ErrAPI):
		return http.StatusBadGateway, "api"
	case errors.Is(err, dhl.ErrDownloadLabel):
		return http.StatusBadGateway, "label"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}

	var apiErr *dhl.APIError
	if errors.As(err, &apiErr) {
		resp.CarrierStatus = apiErr.StatusCode
	}
	var vErr *dhl.ValidationError
	if errors.As(err, &vErr) {
		resp.Fields = vErr.Fields()
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}

	s.logger.Ctx(r.Context()).Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
