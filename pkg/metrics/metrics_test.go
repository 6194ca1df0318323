package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCommand(t *testing.T) {
	m := New()

	m.ObserveCommand("send_message", ResultOK)
	m.ObserveCommand("send_message", ResultOK)
	m.ObserveCommand("get_chat", ResultInvalid)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("send_message", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("get_chat", ResultInvalid)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ActiveSessions.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "opti_ws_active_sessions 3")
}

func TestNewUsesIsolatedRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
