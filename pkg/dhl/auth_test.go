package dhl_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/dhlparcel/pkg/dhl"
	"github.com/tournevent/dhlparcel/pkg/dhl/dhltest"
)

func TestNewAuthenticationService_MissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  dhl.AuthConfig
	}{
		{"both empty", dhl.AuthConfig{}},
		{"missing secret", dhl.AuthConfig{ClientID: "id"}},
		{"missing id", dhl.AuthConfig{ClientSecret: "secret"}},
		{"blank id", dhl.AuthConfig{ClientID: "   ", ClientSecret: "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := dhl.NewAuthenticationService(tt.cfg, nil, nil, dhl.Options{})
			assert.Nil(t, svc)
			assert.ErrorIs(t, err, dhl.ErrNotConfigured)
		})
	}
}

func TestAuthenticationService_GetAccessToken(t *testing.T) {
	carrier := dhltest.New(t)
	auth := newTestAuth(t, carrier.URL)
	ctx := context.Background()

	tok, err := auth.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, dhltest.DefaultToken, tok)

	tok, err = auth.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, dhltest.DefaultToken, tok)

	assert.Equal(t, int64(1), carrier.AuthCalls())
	assert.True(t, auth.IsSandbox())
}

func TestAuthenticationService_SendsFormCredentials(t *testing.T) {
	carrier := dhltest.New(t)

	var form map[string][]string
	var contentType string
	carrier.OnAuthenticate = func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		form = r.PostForm
		dhltest.WriteJSON(w, http.StatusOK, map[string]any{"access_token": "form-token"})
	}

	tok, err := newTestAuth(t, carrier.URL).GetAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "form-token", tok)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, []string{"client-id"}, form["client_id"])
	assert.Equal(t, []string{"client-secret"}, form["client_secret"])
}

func TestAuthenticationService_ConcurrentCallersAuthenticateOnce(t *testing.T) {
	carrier := dhltest.New(t)
	carrier.SimulateLatency = 100 * time.Millisecond
	auth := newTestAuth(t, carrier.URL)

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = auth.GetAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), carrier.AuthCalls())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, dhltest.DefaultToken, tokens[i])
	}
}

func TestAuthenticationService_RefreshAlwaysAuthenticates(t *testing.T) {
	carrier := dhltest.New(t)
	auth := newTestAuth(t, carrier.URL)
	ctx := context.Background()

	_, err := auth.GetAccessToken(ctx)
	require.NoError(t, err)

	carrier.Token = "rotated-token"
	tok, err := auth.RefreshAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rotated-token", tok)

	tok, err = auth.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rotated-token", tok)
	assert.Equal(t, int64(2), carrier.AuthCalls())
}

func TestAuthenticationService_ClearCache(t *testing.T) {
	carrier := dhltest.New(t)
	auth := newTestAuth(t, carrier.URL)
	ctx := context.Background()

	_, err := auth.GetAccessToken(ctx)
	require.NoError(t, err)
	auth.ClearCache(ctx)
	_, err = auth.GetAccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), carrier.AuthCalls())
}

func TestAuthenticationService_Failures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantMsg    string
	}{
		{
			name: "rejected credentials",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				dhltest.WriteJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid client"})
			},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    `authentication failed with status code 401: {"message":"invalid client"}`,
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				dhltest.WriteJSON(w, http.StatusOK, map[string]any{"token_type": "Bearer"})
			},
			wantStatus: http.StatusOK,
			wantMsg:    "access token not found in response",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>"))
			},
			wantStatus: http.StatusOK,
			wantMsg:    "invalid authentication response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carrier := dhltest.New(t)
			carrier.OnAuthenticate = tt.handler
			auth := newTestAuth(t, carrier.URL)

			_, err := auth.GetAccessToken(context.Background())
			require.ErrorIs(t, err, dhl.ErrAuthentication)

			var authErr *dhl.AuthenticationError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantStatus, authErr.StatusCode)
			assert.Contains(t, authErr.Message, tt.wantMsg)
		})
	}
}

func TestAuthenticationService_TransportError(t *testing.T) {
	carrier := dhltest.New(t)
	auth := newTestAuth(t, carrier.URL)
	carrier.Close()

	_, err := auth.GetAccessToken(context.Background())

	require.ErrorIs(t, err, dhl.ErrAuthentication)
	assert.Contains(t, err.Error(), "transport error during authentication")
}
