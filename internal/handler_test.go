package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/14-game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*internal.Manager, *internal.Queue, http.Handler) {
	logger := testLogger()
	manager := internal.NewManager(&seqTokens{}, logger)
	queue := internal.NewQueue()
	handler := internal.NewHandler(manager, queue, logger)
	return manager, queue, handler.Routes()
}

// TestHandler_Root 測試存活探測
func TestHandler_Root(t *testing.T) {
	_, _, router := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "OK")
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	_, _, router := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
}

// TestHandler_Stats 測試統計端點
func TestHandler_Stats(t *testing.T) {
	manager, queue, router := newTestHandler()

	c1 := newTestClient("conn_1")
	c2 := newTestClient("conn_2")
	c3 := newTestClient("conn_3")
	manager.Register(c1, "duel")
	manager.Register(c2, "duel")
	manager.Register(c3, "")
	queue.Pair(c3)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["total_rooms"])
	assert.Equal(t, float64(3), resp["total_connections"])
	assert.Equal(t, float64(2), resp["players_in_rooms"])
	assert.Equal(t, true, resp["queue_waiting"])
}

// TestHandler_UnknownPath 測試其他路徑維持一般 HTTP 回應
func TestHandler_UnknownPath(t *testing.T) {
	_, _, router := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/no/such/path", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
