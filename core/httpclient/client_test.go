package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flakyServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRetriesIdempotentRequestsOnTransientStatus(t *testing.T) {
	srv, hits := flakyServer(t, 2)
	client := New(Options{Retries: 3, RetryBackoff: time.Millisecond, IdempotentOnly: true})

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDoesNotReplayNonIdempotentRequests(t *testing.T) {
	srv, hits := flakyServer(t, 5)
	client := New(Options{Retries: 3, RetryBackoff: time.Millisecond, IdempotentOnly: true})

	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	srv, hits := flakyServer(t, 10)
	client := New(Options{Retries: 2, RetryBackoff: time.Millisecond, IdempotentOnly: true})

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}
