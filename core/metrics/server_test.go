package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	Transitions.WithLabelValues("idle", "mailing.awaiting_start").Inc()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "surveybot_dialog_transitions_total"))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "transport_error", ResultLabel(0))
	assert.Equal(t, "2xx", ResultLabel(201))
	assert.Equal(t, "4xx", ResultLabel(400))
	assert.Equal(t, "5xx", ResultLabel(503))
}
