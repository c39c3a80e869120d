package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	su := NewStatsUpdater()
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	assert.NotNil(t, su.vars.Get("Uptime"), "expected Uptime metric to be registered")
}

func TestStatsUpdater_Updates(t *testing.T) {
	su := NewStatsUpdater()
	su.RegisterMetric(NumSessions)
	su.RegisterMetric(NumOnlineUsers)
	su.RegisterMetric(NumSweptMessages)
	su.Run()
	defer su.Stop()

	su.Incr(NumSessions)
	su.Incr(NumSessions)
	su.Decr(NumSessions)
	su.Set(NumOnlineUsers, 7)
	su.Add(NumSweptMessages, 42)

	assert.Eventually(t, func() bool {
		return su.vars.Get(NumSessions).String() == "1" &&
			su.vars.Get(NumOnlineUsers).String() == "7" &&
			su.vars.Get(NumSweptMessages).String() == "42"
	}, time.Second, 10*time.Millisecond)
}

func TestStatsUpdater_ServeHTTP(t *testing.T) {
	su := NewStatsUpdater()
	su.RegisterMetric(NumMessages)

	rr := httptest.NewRecorder()
	su.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "Uptime")
	assert.Equal(t, float64(0), body[NumMessages])
}
