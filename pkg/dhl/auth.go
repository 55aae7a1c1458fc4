package dhl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tokenCacheKey = "dhl_access_token"

// defaultAuthTimeout bounds a single authentication call.
const defaultAuthTimeout = 30 * time.Second

// maxResponseBytes caps how much of a carrier response body is read.
const maxResponseBytes = 16 << 20

// HTTPDoer is the transport used for carrier calls. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthConfig holds the OAuth client credentials.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	Sandbox      bool
	BaseURL      string // overrides the environment base URL when set
}

// TokenProvider supplies bearer tokens to the API client.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// AuthenticationService obtains, caches and refreshes the DHL bearer token.
type AuthenticationService struct {
	config     AuthConfig
	baseURL    string
	httpClient HTTPDoer
	cache      *TokenCache
	opts       Options
}

// NewAuthenticationService validates the credentials and creates the service.
// Missing credentials are reported immediately with ErrNotConfigured.
// A nil httpClient gets a client with a 30 second timeout; a nil cache gets an
// in-memory cache with TokenTTL.
func NewAuthenticationService(cfg AuthConfig, httpClient HTTPDoer, cache *TokenCache, opts Options) (*AuthenticationService, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: set DHL_CLIENT_ID and DHL_CLIENT_SECRET", ErrNotConfigured)
	}

	opts = opts.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultAuthTimeout}
	}
	if cache == nil {
		cache = NewTokenCache(nil, TokenTTL, opts)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL(cfg.Sandbox)
	}

	return &AuthenticationService{
		config:     cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cache:      cache,
		opts:       opts,
	}, nil
}

// GetAccessToken returns a valid token, authenticating only on a cache miss.
func (s *AuthenticationService) GetAccessToken(ctx context.Context) (string, error) {
	ctx, span := s.opts.startSpan(ctx, "dhl.GetAccessToken")

	token, err := s.cache.GetOrPopulate(ctx, tokenCacheKey, func(ctx context.Context) (string, error) {
		s.opts.Logger.Ctx(ctx).Info("DHL access token cache miss, authenticating")
		return s.authenticate(ctx)
	})
	if err != nil {
		if !errors.Is(err, ErrAuthentication) {
			err = NewAuthenticationError("failed to retrieve access token").WithCause(err)
		}
		s.opts.Logger.Ctx(ctx).Error("Failed to get DHL access token", zap.Error(err))
	}

	endSpan(span, err)
	return token, err
}

// RefreshAccessToken drops the cached token and authenticates again.
func (s *AuthenticationService) RefreshAccessToken(ctx context.Context) (string, error) {
	s.opts.Logger.Ctx(ctx).Info("Forcing DHL access token refresh")

	if err := s.cache.Evict(ctx, tokenCacheKey); err != nil {
		authErr := NewAuthenticationError("failed to refresh access token").WithCause(err)
		s.opts.Logger.Ctx(ctx).Error("Failed to refresh DHL access token", zap.Error(authErr))
		return "", authErr
	}
	s.opts.Metrics.RecordTokenLookup("refresh")

	return s.GetAccessToken(ctx)
}

// ClearCache drops the cached token. Failures are logged, never returned.
func (s *AuthenticationService) ClearCache(ctx context.Context) {
	if err := s.cache.Evict(ctx, tokenCacheKey); err != nil {
		s.opts.Logger.Ctx(ctx).Warn("Failed to clear DHL access token cache", zap.Error(err))
		return
	}
	s.opts.Logger.Ctx(ctx).Info("DHL access token cache cleared")
}

// IsSandbox reports whether the service targets the UAT environment.
func (s *AuthenticationService) IsSandbox() bool {
	return s.config.Sandbox
}

func (s *AuthenticationService) authenticate(ctx context.Context) (string, error) {
	ctx, span := s.opts.startSpan(ctx, "dhl.Authenticate",
		attribute.Bool("dhl.sandbox", s.config.Sandbox),
	)
	start := time.Now()

	token, status, err := s.requestToken(ctx)
	s.opts.Metrics.RecordRequest("authenticate", status, time.Since(start).Seconds())
	if err != nil {
		s.opts.Metrics.RecordError("authenticate", errorType(err))
		s.opts.Logger.Ctx(ctx).Error("DHL authentication failed", zap.String("status", status), zap.Error(err))
	} else {
		s.opts.Logger.Ctx(ctx).Info("DHL authentication successful")
	}

	endSpan(span, err)
	return token, err
}

func (s *AuthenticationService) requestToken(ctx context.Context) (string, string, error) {
	form := url.Values{
		"client_id":     {s.config.ClientID},
		"client_secret": {s.config.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+AuthTokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", "request_error", NewAuthenticationError("failed to create authentication request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "transport_error", NewAuthenticationError("transport error during authentication").WithCause(err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", status, NewAuthenticationError("failed to read authentication response").
			WithStatusCode(resp.StatusCode).
			WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := compactJSON(body)
		return "", status, NewAuthenticationError(
			fmt.Sprintf("authentication failed with status code %d: %s", resp.StatusCode, errBody),
		).WithStatusCode(resp.StatusCode).WithBody(errBody)
	}

	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", status, NewAuthenticationError("invalid authentication response").
			WithStatusCode(resp.StatusCode).
			WithCause(err)
	}
	if data.AccessToken == "" {
		return "", status, NewAuthenticationError("access token not found in response").
			WithStatusCode(resp.StatusCode)
	}

	return data.AccessToken, status, nil
}
