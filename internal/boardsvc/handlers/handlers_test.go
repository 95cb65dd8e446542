package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mekdim/clinic-services/internal/boardsvc/broker"
	"github.com/mekdim/clinic-services/internal/boardsvc/ws"
)

func healthData(t *testing.T, h *Handler) map[string]bool {
	t.Helper()
	w := httptest.NewRecorder()
	h.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var rsp struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rsp))
	return rsp.Data
}

func TestHealthHandlerReportsAgentLiveness(t *testing.T) {
	s := ws.NewWs()
	h := NewHandler(s)

	assert.False(t, healthData(t, h)["scan_agent_alive"], "no broker wired yet")

	b := broker.NewBroker(nil, s.GetConnection, s.ForEachConnection)
	s.Broker = b
	assert.False(t, healthData(t, h)["scan_agent_alive"], "no heartbeat seen yet")

	b.LastHeartbeatMap.Store("agent-1", time.Now())
	assert.True(t, healthData(t, h)["scan_agent_alive"])
}
