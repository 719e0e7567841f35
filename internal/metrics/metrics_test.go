package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	ActionsApplied.Reset()
	ActionsApplied.WithLabelValues("mark_as_read").Add(3)
	MessagesSynced.Add(2)

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rulemaster_actions_applied_total{action_type="mark_as_read"} 3`)
	assert.Contains(t, string(body), "rulemaster_messages_synced_total")
}

func TestCounterVecLabels(t *testing.T) {
	SyncFailures.Reset()
	SyncFailures.WithLabelValues("fetch").Inc()
	SyncFailures.WithLabelValues("fetch").Inc()
	SyncFailures.WithLabelValues("store").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(SyncFailures.WithLabelValues("fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(SyncFailures.WithLabelValues("store")))
}
