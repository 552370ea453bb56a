package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_CachesUntilExpiry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, graphScope, r.PostForm.Get("scope"))
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "abc", ExpiresIn: 3600})
	}))
	defer server.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := newTokenCache(server.URL, "id", "secret", server.Client())
	tc.now = func() time.Time { return now }

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	now = now.Add(50 * time.Minute)
	_, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Inside the expiry buffer.
	now = now.Add(6 * time.Minute)
	_, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenCache_ForceRefresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		tok := "first"
		if n > 1 {
			tok = "second"
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: tok, ExpiresIn: 3600})
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "id", "secret", server.Client())

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	tok, err = tc.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
}

func TestTokenCache_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "bad status", status: http.StatusUnauthorized, body: `{"error":"invalid_client"}`, wantErr: "token endpoint returned 401"},
		{name: "invalid json", status: http.StatusOK, body: `not json`, wantErr: "failed to parse token response"},
		{name: "missing token", status: http.StatusOK, body: `{"expires_in":3600}`, wantErr: "missing access_token"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tc := newTokenCache(server.URL, "id", "secret", server.Client())
			_, err := tc.Token(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
