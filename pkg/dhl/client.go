// Package dhl provides a client for the DHL Parcel UK shipping API: OAuth
// token handling, shipment creation, label retrieval and label persistence.
package dhl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds every shipment and label call.
const DefaultRequestTimeout = 60 * time.Second

// Config holds API client configuration.
type Config struct {
	Sandbox bool
	BaseURL string        // overrides the environment base URL when set
	Timeout time.Duration // per call, defaults to DefaultRequestTimeout
}

// Client calls the DHL Parcel UK shipping API with a cached bearer token.
type Client struct {
	config     Config
	baseURL    string
	httpClient HTTPDoer
	auth       TokenProvider
	labels     *LabelPersister
	opts       Options
}

// New creates a new API client. A nil httpClient means http.DefaultClient and
// a nil labels persister writes to the system temp directory.
func New(cfg Config, httpClient HTTPDoer, auth TokenProvider, labels *LabelPersister, opts Options) *Client {
	opts = opts.withDefaults()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if labels == nil {
		labels = NewLabelPersister("", opts)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL(cfg.Sandbox)
	}

	return &Client{
		config:     cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
		labels:     labels,
		opts:       opts,
	}
}

// IsSandbox reports whether the client targets the UAT environment.
func (c *Client) IsSandbox() bool {
	return c.config.Sandbox
}

// CreateShipment books a shipment and returns its id and labels. An empty
// format means PDF.
func (c *Client) CreateShipment(ctx context.Context, req *ShipmentRequest, format string) (*ShipmentResponse, error) {
	if format == "" {
		format = DefaultFormat
	}
	ctx, span := c.opts.startSpan(ctx, "dhl.CreateShipment", attribute.String("dhl.format", format))
	start := time.Now()

	c.opts.Logger.Ctx(ctx).Info("Creating DHL shipment",
		zap.String("pickup_account", req.PickupAccount()),
		zap.String("ordered_product", req.Details().OrderedProduct),
		zap.String("format", format),
	)

	result, code, err := c.createShipment(ctx, req, format)
	c.finish(ctx, span, "create_shipment", start, code, err)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("dhl.shipment_id", result.ShipmentID))
	c.opts.Logger.Ctx(ctx).Info("DHL shipment created",
		zap.String("shipment_id", result.ShipmentID),
		zap.Int("label_count", len(result.Labels)),
	)
	return result, nil
}

func (c *Client) createShipment(ctx context.Context, req *ShipmentRequest, format string) (*ShipmentResponse, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, NewAPIError("failed to encode shipment request").WithCause(err)
	}

	resp, err := c.do(ctx, http.MethodPost, CreateShipmentEndpoint(format), body)
	if err != nil {
		return nil, 0, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return nil, resp.StatusCode, handleErrorResponse("Failed to create shipment", resp.StatusCode, resp.Body)
	}

	result, err := parseShipmentResponse(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, NewAPIError("failed to create shipment").
			WithStatusCode(resp.StatusCode).
			WithCause(err)
	}
	return result, resp.StatusCode, nil
}

// GetLabel retrieves a label, persists it in the persister's default
// directory and returns it opened for reading. Closing the returned file
// deletes it.
func (c *Client) GetLabel(ctx context.Context, shipmentID, format string) (*LabelFile, error) {
	return c.GetLabelInDir(ctx, shipmentID, format, "")
}

// GetLabelInDir is GetLabel writing into dir instead of the default directory.
func (c *Client) GetLabelInDir(ctx context.Context, shipmentID, format, dir string) (*LabelFile, error) {
	if format == "" {
		format = DefaultFormat
	}
	ctx, span := c.opts.startSpan(ctx, "dhl.GetLabel", labelAttributes(shipmentID, format)...)
	start := time.Now()

	c.opts.Logger.Ctx(ctx).Info("Retrieving DHL label",
		zap.String("shipment_id", shipmentID),
		zap.String("format", format),
	)

	label, code, err := c.getLabel(ctx, shipmentID, format, dir)
	c.finish(ctx, span, "get_label", start, code, err)
	if err != nil {
		return nil, err
	}

	c.opts.Logger.Ctx(ctx).Info("DHL label retrieved",
		zap.String("shipment_id", shipmentID),
		zap.String("file_path", label.Path),
	)
	return label, nil
}

func (c *Client) getLabel(ctx context.Context, shipmentID, format, dir string) (*LabelFile, int, error) {
	payload, code, err := c.fetchLabel(ctx, shipmentID, format)
	if err != nil {
		return nil, code, err
	}

	filename := fmt.Sprintf("%s.%s", shipmentID, strings.ToLower(format))
	path, err := c.labels.Save(ctx, payload, filename, dir)
	if err != nil {
		return nil, code, err
	}

	label, err := openLabelFile(path, filepath.Base(path), ContentTypeForFormat(format))
	if err != nil {
		_ = os.Remove(path)
		return nil, code, NewDownloadLabelError("failed to open saved label").WithCause(err)
	}
	return label, code, nil
}

// GetLabelContent retrieves a label and returns its decoded bytes without
// touching the filesystem.
func (c *Client) GetLabelContent(ctx context.Context, shipmentID, format string) ([]byte, error) {
	if format == "" {
		format = DefaultFormat
	}
	ctx, span := c.opts.startSpan(ctx, "dhl.GetLabelContent", labelAttributes(shipmentID, format)...)
	start := time.Now()

	c.opts.Logger.Ctx(ctx).Info("Retrieving DHL label content",
		zap.String("shipment_id", shipmentID),
		zap.String("format", format),
	)

	payload, code, err := c.fetchLabel(ctx, shipmentID, format)
	var content []byte
	if err == nil {
		content, err = decodeLabel(payload)
	}
	c.finish(ctx, span, "get_label_content", start, code, err)
	if err != nil {
		return nil, err
	}

	c.opts.Logger.Ctx(ctx).Info("DHL label content retrieved",
		zap.String("shipment_id", shipmentID),
		zap.Int("size_bytes", len(content)),
	)
	return content, nil
}

// fetchLabel returns the base64 payload of the first label.
func (c *Client) fetchLabel(ctx context.Context, shipmentID, format string) (string, int, error) {
	resp, err := c.do(ctx, http.MethodGet, GetLabelEndpoint(shipmentID, format), nil)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, handleErrorResponse("Failed to retrieve label", resp.StatusCode, resp.Body)
	}

	if !json.Valid(resp.Body) {
		return "", resp.StatusCode, NewAPIError("failed to decode label response").
			WithStatusCode(resp.StatusCode)
	}

	payload, ok := firstLabel(resp.Body)
	if !ok {
		return "", resp.StatusCode, NewDownloadLabelError("label data not found in DHL API response")
	}
	return payload, resp.StatusCode, nil
}

// firstLabel extracts labels[0].label from a JSON body. Any other shape,
// including a non-string or empty label, reports false.
func firstLabel(body []byte) (string, bool) {
	var resp labelResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	var labels []json.RawMessage
	if err := json.Unmarshal(resp.Labels, &labels); err != nil || len(labels) == 0 {
		return "", false
	}
	var entry labelEntry
	if err := json.Unmarshal(labels[0], &entry); err != nil {
		return "", false
	}
	var payload string
	if err := json.Unmarshal(entry.Label, &payload); err != nil || payload == "" {
		return "", false
	}
	return payload, true
}

// CancelShipment cancels a booked shipment.
func (c *Client) CancelShipment(ctx context.Context, shipmentID string) error {
	ctx, span := c.opts.startSpan(ctx, "dhl.CancelShipment", attribute.String("dhl.shipment_id", shipmentID))
	start := time.Now()

	c.opts.Logger.Ctx(ctx).Info("Cancelling DHL shipment", zap.String("shipment_id", shipmentID))

	var code int
	resp, err := c.do(ctx, http.MethodDelete, CancelShipmentEndpoint(shipmentID), nil)
	if err == nil {
		code = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		default:
			err = handleErrorResponse("Failed to cancel shipment", resp.StatusCode, resp.Body)
		}
	}
	c.finish(ctx, span, "cancel_shipment", start, code, err)
	return err
}

// TrackShipment returns the carrier tracking payload for a tracking number.
func (c *Client) TrackShipment(ctx context.Context, trackingNumber string) (*TrackingResponse, error) {
	ctx, span := c.opts.startSpan(ctx, "dhl.TrackShipment", attribute.String("dhl.tracking_number", trackingNumber))
	start := time.Now()

	c.opts.Logger.Ctx(ctx).Info("Tracking DHL shipment", zap.String("tracking_number", trackingNumber))

	result, code, err := c.trackShipment(ctx, trackingNumber)
	c.finish(ctx, span, "track_shipment", start, code, err)
	return result, err
}

func (c *Client) trackShipment(ctx context.Context, trackingNumber string) (*TrackingResponse, int, error) {
	resp, err := c.do(ctx, http.MethodGet, TrackShipmentEndpoint(trackingNumber), nil)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, handleErrorResponse("Failed to track shipment", resp.StatusCode, resp.Body)
	}
	if !json.Valid(resp.Body) {
		return nil, resp.StatusCode, NewAPIError("failed to decode tracking response").WithStatusCode(resp.StatusCode)
	}
	return &TrackingResponse{
		TrackingNumber: trackingNumber,
		Payload:        json.RawMessage(compactJSON(resp.Body)),
	}, resp.StatusCode, nil
}

// ============================================================================
// HTTP Helpers
// ============================================================================

type apiResponse struct {
	StatusCode int
	Body       []byte
}

// do performs an authenticated call and reads the whole body within the
// request timeout. Transport failures become *APIError; authentication
// failures are returned unchanged.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*apiResponse, error) {
	token, err := c.auth.GetAccessToken(ctx)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, NewAuthenticationError("failed to retrieve access token").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, NewAPIError("failed to create request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewAPIError("transport error").WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewAPIError("failed to read response body").
			WithStatusCode(resp.StatusCode).
			WithCause(err)
	}
	return &apiResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) finish(ctx context.Context, span trace.Span, operation string, start time.Time, code int, err error) {
	status := "error"
	if code != 0 {
		status = strconv.Itoa(code)
		span.SetAttributes(attribute.Int("http.response.status_code", code))
	}
	c.opts.Metrics.RecordRequest(operation, status, time.Since(start).Seconds())

	if err != nil {
		c.opts.Metrics.RecordError(operation, errorType(err))
		c.opts.Logger.Ctx(ctx).Error("DHL API error",
			zap.String("operation", operation),
			zap.String("status", status),
			zap.Error(err),
		)
	}
	endSpan(span, err)
}

func labelAttributes(shipmentID, format string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("dhl.shipment_id", shipmentID),
		attribute.String("dhl.format", format),
	}
}

// handleErrorResponse turns a failed carrier response into an *APIError. The
// carrier reports either a list of {title, detail} entries or a single
// message; anything else is reported as the raw body.
func handleErrorResponse(message string, status int, body []byte) *APIError {
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil || parsed == nil {
		return NewAPIError(fmt.Sprintf("%s (Status: %d) - Could not parse error response", message, status)).
			WithStatusCode(status)
	}

	return NewAPIError(fmt.Sprintf("%s (Status: %d) - %s", message, status, carrierErrorDetail(parsed, body))).
		WithStatusCode(status)
}

func carrierErrorDetail(parsed map[string]json.RawMessage, raw []byte) string {
	var msgs []string

	var entries []json.RawMessage
	if rawErrs, ok := parsed["errors"]; ok && json.Unmarshal(rawErrs, &entries) == nil && entries != nil {
		for _, rawEntry := range entries {
			var entry map[string]any
			if json.Unmarshal(rawEntry, &entry) != nil {
				continue
			}
			title, detail := entry["title"], entry["detail"]
			if title == nil || detail == nil {
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%v: %v", title, detail))
		}
	} else if rawMsg, ok := parsed["message"]; ok && string(rawMsg) != "null" {
		var msg string
		if json.Unmarshal(rawMsg, &msg) == nil {
			msgs = append(msgs, msg)
		} else {
			msgs = append(msgs, string(rawMsg))
		}
	}

	if len(msgs) > 0 {
		return strings.Join(msgs, " | ")
	}
	return compactJSON(raw)
}

// compactJSON returns body without insignificant whitespace, or the trimmed
// text when body is not JSON.
func compactJSON(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return strings.TrimSpace(string(body))
	}
	return buf.String()
}
