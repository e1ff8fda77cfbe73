package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
)

func geminiOK(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}],"role":"model"},"finishReason":"STOP"}],
		"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`, text)
}

func newTestClient(t *testing.T, endpoint string) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(config.AIConfig{
		APIKey:     "test-key",
		Endpoint:   endpoint,
		APITimeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestGeminiComplete(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		fmt.Fprint(w, geminiOK("42 units"))
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).Complete(context.Background(), "how many units?")
	require.NoError(t, err)
	assert.Equal(t, "42 units", got)
}

func TestGeminiRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, geminiOK("recovered"))
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiAuthErrorIsPermanent(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrAuthFailed)
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestGeminiMalformedResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": []}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, schemas.ErrMalformedResponse)
}

func TestGeminiContextCancellation(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable) // would retry forever
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv.URL).Complete(ctx, "prompt")
	require.Error(t, err)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	t.Parallel()
	_, err := NewGeminiClient(config.AIConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, schemas.ErrAuthFailed)
}

func TestNewProvider(t *testing.T) {
	t.Parallel()
	p, err := NewProvider(config.AIConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, p, "empty provider means AI extraction disabled")

	p, err = NewProvider(config.AIConfig{Provider: ProviderGemini, APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = NewProvider(config.AIConfig{Provider: "openai"}, zap.NewNop())
	assert.Error(t, err)
}
