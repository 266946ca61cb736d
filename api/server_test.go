package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iface "OnnxInspector/interface"
	"OnnxInspector/inspector"
	"OnnxInspector/store"
)

type stubController struct {
	mu      sync.Mutex
	busy    bool
	started []string
	snap    iface.Progress
	updates chan iface.Progress
}

func (s *stubController) Start(_ context.Context, dir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return "", inspector.ErrBusy
	}
	s.busy = true
	s.started = append(s.started, dir)
	return "run-1", nil
}

func (s *stubController) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *stubController) Snapshot() iface.Progress {
	return s.snap
}

func (s *stubController) Subscribe() (<-chan iface.Progress, func()) {
	return s.updates, func() {}
}

type stubRuns struct{ limit int }

func (r *stubRuns) Recent(_ context.Context, limit int) ([]store.RunRecord, error) {
	r.limit = limit
	return []store.RunRecord{{ID: "run-0", State: "completed", Total: 3}}, nil
}

func newTestServer(ctrl *stubController, runs RunLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(context.Background(), ctrl, runs, "/data/default", nil).Router()
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	rec := do(newTestServer(&stubController{}, nil), http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	ctrl := &stubController{snap: iface.Progress{RunID: "r", State: iface.StateRunning, Current: 2, Total: 4, Percent: 50}}
	rec := do(newTestServer(ctrl, nil), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body.Data["state"])
	assert.Equal(t, float64(50), body.Data["percent"])
}

func TestStartRun(t *testing.T) {
	ctrl := &stubController{}
	r := newTestServer(ctrl, nil)

	rec := do(r, http.MethodPost, "/api/runs", `{"dir":"/data/line3"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runId":"run-1"`)

	rec = do(r, http.MethodPost, "/api/runs", `{"dir":"/data/line4"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []string{"/data/line3"}, ctrl.started)

	rec = do(r, http.MethodPost, "/api/runs", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRun_DefaultDir(t *testing.T) {
	ctrl := &stubController{}
	rec := do(newTestServer(ctrl, nil), http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"/data/default"}, ctrl.started)
}

func TestCancelRun(t *testing.T) {
	ctrl := &stubController{}
	r := newTestServer(ctrl, nil)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/runs/cancel", "").Code)
	ctrl.busy = true
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/runs/cancel", "").Code)
}

func TestListRuns(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, do(newTestServer(&stubController{}, nil), http.MethodGet, "/api/runs", "").Code)

	runs := &stubRuns{}
	r := newTestServer(&stubController{}, runs)
	rec := do(r, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.limit)
	assert.Contains(t, rec.Body.String(), `"id":"run-0"`)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/runs?limit=abc", "").Code)
}

func TestProgressStream(t *testing.T) {
	ctrl := &stubController{updates: make(chan iface.Progress, 2)}
	ctrl.updates <- iface.Progress{RunID: "r", State: iface.StateRunning, Current: 1, Total: 2}
	ctrl.updates <- iface.Progress{RunID: "r", State: iface.StateCompleted, Current: 2, Total: 2}

	srv := httptest.NewServer(newTestServer(ctrl, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "running", first["state"])
	assert.Equal(t, "completed", second["state"])
	assert.Equal(t, float64(2), second["current"])
}
