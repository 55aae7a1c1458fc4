package server_test

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/dhlparcel/internal/server"
	"github.com/tournevent/dhlparcel/internal/telemetry"
	"github.com/tournevent/dhlparcel/pkg/dhl"
	"github.com/tournevent/dhlparcel/pkg/dhl/dhltest"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const shipmentBody = `{
  "dropoffType": "PICKUP",
  "pickup": {"date": "2024-01-15"},
  "sender": {"companyName": "Acme Ltd", "name": "Warehouse", "address1": "1 Industrial Estate", "city": "Manchester", "postalCode": "M1 1AA", "country": "GB"},
  "consignee": {"recipientType": "residential", "addressType": "doorstep", "name": "Jane Smith", "address1": "10 Downing Street", "city": "London", "postalCode": "SW1A 2AA", "country": "GB"},
  "details": {"orderedProduct": "220", "totalPieces": 1, "totalWeight": 2.5}
}`

type testEnv struct {
	carrier  *dhltest.Server
	handler  http.Handler
	labelDir string
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	registry := prometheus.NewRegistry()
	opts := dhl.Options{Logger: logger, Metrics: telemetry.NewMetrics(registry)}

	carrier := dhltest.New(t)
	auth, err := dhl.NewAuthenticationService(dhl.AuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      carrier.URL,
	}, nil, nil, opts)
	require.NoError(t, err)

	labelDir := t.TempDir()
	client := dhl.New(dhl.Config{BaseURL: carrier.URL}, nil, auth, dhl.NewLabelPersister(labelDir, opts), opts)

	srv := server.New(server.Config{Port: 8080, LabelDir: labelDir, PickupAccount: "ACC-123"}, client, auth, logger, registry)

	return &testEnv{carrier: carrier, handler: srv.Handler(), labelDir: labelDir, registry: registry}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_CreateShipment(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/shipments?format=png", shipmentBody)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["shipmentId"])
	labels := body["labels"].([]any)
	require.Len(t, labels, 1)
	assert.Equal(t, "PNG", labels[0].(map[string]any)["format"])

	assert.Equal(t, "ACC-123", env.carrier.LastShipment()["pickupAccount"])
}

func TestServer_CreateShipment_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/shipments", strings.Replace(shipmentBody, `"city": "London", `, "", 1))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "validation", body["kind"])
	assert.Contains(t, body["fields"], "shipmentRequestParts.Consignee.City")
	assert.Equal(t, int64(0), env.carrier.ShipmentCalls())
}

func TestServer_CreateShipment_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/shipments", `{"dropoffType":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody(t, rec)["kind"])
}

func TestServer_CreateShipment_CarrierError(t *testing.T) {
	env := newTestEnv(t)
	env.carrier.OnCreateShipment = func(w http.ResponseWriter, _ *http.Request) {
		dhltest.WriteJSON(w, http.StatusInternalServerError, dhltest.CarrierErrors("Invalid address", "city required"))
	}

	rec := env.do(http.MethodPost, "/v1/shipments", shipmentBody)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "api", body["kind"])
	assert.Equal(t, float64(500), body["carrierStatus"])
	assert.Contains(t, body["error"], "Invalid address: city required")
}

func TestServer_GetLabel_StreamsAndDeletes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/shipments/SHIP123/label?format=PDF", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="SHIP123.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, dhltest.DefaultLabel, rec.Body.Bytes())

	entries, err := os.ReadDir(env.labelDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServer_GetLabel_MissingLabel(t *testing.T) {
	env := newTestEnv(t)
	env.carrier.OnGetLabel = func(w http.ResponseWriter, _ *http.Request) {
		dhltest.WriteJSON(w, http.StatusOK, map[string]any{"labels": []any{}})
	}

	rec := env.do(http.MethodGet, "/v1/shipments/SHIP123/label", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "label", decodeBody(t, rec)["kind"])

	entries, err := os.ReadDir(env.labelDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServer_GetLabelContent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/shipments/SHIP123/label/content?format=ZPL", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "SHIP123", body["shipmentId"])
	assert.Equal(t, "ZPL", body["format"])
	assert.Equal(t, float64(len(dhltest.DefaultLabel)), body["sizeBytes"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(dhltest.DefaultLabel), body["label"])
}

func TestServer_CancelShipment(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodDelete, "/v1/shipments/SHIP123", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_TrackShipment(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/tracking/JD0001", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "JD0001", decodeBody(t, rec)["trackingNumber"])
}

func TestServer_TrackShipment_EscapesTrackingNumber(t *testing.T) {
	env := newTestEnv(t)
	var query map[string][]string
	env.carrier.OnTrackShipment = func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		dhltest.WriteJSON(w, http.StatusOK, map[string]any{"trackingNumber": r.URL.Query().Get("trackingNumber")})
	}

	rec := env.do(http.MethodGet, "/v1/tracking/x&foo=bar", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"x&foo=bar"}, query["trackingNumber"])
	assert.NotContains(t, query, "foo")
}

func TestServer_RefreshToken(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/auth/refresh", "").Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/auth/refresh", "").Code)

	assert.Equal(t, int64(2), env.carrier.AuthCalls())
}

func TestServer_AuthenticationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.carrier.OnAuthenticate = func(w http.ResponseWriter, _ *http.Request) {
		dhltest.WriteJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid client"})
	}

	rec := env.do(http.MethodDelete, "/v1/shipments/SHIP123", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "authentication", decodeBody(t, rec)["kind"])
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/v1/shipments/SHIP123", "").Code)

	rec := env.do(http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dhl_requests_total{operation="cancel_shipment",status="204"} 1`)
	assert.Contains(t, rec.Body.String(), `dhl_token_lookups_total{result="miss"} 1`)
}
