package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/statesurf/pkg/logger"
	"github.com/junbin-yang/statesurf/pkg/machines/hsm"
	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
	"github.com/junbin-yang/statesurf/pkg/statemachine/store"
)

type testServer struct {
	*Server
	url string
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	opts = append([]Option{WithLogger(logger.New(io.Discard, logger.ErrorLevel))}, opts...)
	s := New(hsm.Definition(), hsm.Chart(), func(string) sm.Hooks { return hsm.NewHost() }, opts...)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return &testServer{Server: s, url: ts.URL}
}

func (ts *testServer) do(t *testing.T, method, path string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, ts.url+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (ts *testServer) json(t *testing.T, method, path string, want int, v any) {
	t.Helper()
	code, body := ts.do(t, method, path)
	require.Equal(t, want, code, body)
	require.NoError(t, json.Unmarshal([]byte(body), v))
}

func TestServer_Chart(t *testing.T) {
	ts := newTestServer(t)

	var info chartResponse
	ts.json(t, http.MethodGet, "/chart", http.StatusOK, &info)
	assert.Equal(t, "hsm", info.Name)
	assert.Equal(t, hsm.S211, info.Initial)
	assert.Equal(t, hsm.EventA, info.DefaultEvent)
	assert.Contains(t, info.Leaves, hsm.S11)
	assert.Contains(t, info.Events, hsm.EventTerminate)

	code, body := ts.do(t, http.MethodGet, "/chart?format=mermaid&guards")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "stateDiagram-v2\n[*] --> s2\n"))
	assert.Contains(t, body, "[isFooTrue]")

	code, _ = ts.do(t, http.MethodGet, "/chart?format=svg")
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = ts.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)
}

func TestServer_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	var m machineResponse
	ts.json(t, http.MethodPut, "/machines/a", http.StatusCreated, &m)
	assert.Equal(t, machineResponse{ID: "a", State: hsm.S211, Started: true}, m)

	var e errorResponse
	ts.json(t, http.MethodPut, "/machines/a", http.StatusConflict, &e)
	assert.Contains(t, e.Error, "a")

	var calls struct {
		ID    string   `json:"id"`
		Calls []string `json:"calls"`
	}
	ts.json(t, http.MethodGet, "/machines/a/calls", http.StatusOK, &calls)
	assert.Equal(t, []string{
		"action setFooFalse(s, A)",
		"entry s",
		"entry s2",
		"entry s21",
		"entry s211",
	}, calls.Calls)
	ts.json(t, http.MethodGet, "/machines/a/calls", http.StatusOK, &calls)
	assert.Empty(t, calls.Calls)

	var d dispatchResponse
	ts.json(t, http.MethodPost, "/machines/a/events/G", http.StatusOK, &d)
	assert.Equal(t, hsm.S11, d.State)
	assert.True(t, d.Declared)
	assert.Equal(t, hsm.EventG, d.Event)

	ts.json(t, http.MethodPost, "/machines/a/events/nope", http.StatusOK, &d)
	assert.Equal(t, hsm.S11, d.State)
	assert.False(t, d.Declared)

	ts.json(t, http.MethodGet, "/machines/a", http.StatusOK, &m)
	assert.Equal(t, hsm.S11, m.State)

	ts.json(t, http.MethodPost, "/machines/a/events/TERMINATE", http.StatusOK, &d)
	assert.Equal(t, sm.FinalPseudoState, d.State)
	assert.True(t, d.Terminated)

	ts.json(t, http.MethodPost, "/machines/a/reset", http.StatusOK, &m)
	assert.Equal(t, machineResponse{ID: "a", State: hsm.S211, Started: true}, m)

	code, _ := ts.do(t, http.MethodDelete, "/machines/a")
	assert.Equal(t, http.StatusNoContent, code)
	ts.json(t, http.MethodGet, "/machines/a", http.StatusNotFound, &e)
	ts.json(t, http.MethodPost, "/machines/a/events/G", http.StatusNotFound, &e)

	code, _ = ts.do(t, http.MethodPatch, "/machines/a")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestServer_Broadcast(t *testing.T) {
	ts := newTestServer(t)

	var m machineResponse
	ts.json(t, http.MethodPut, "/machines/a", http.StatusCreated, &m)
	ts.json(t, http.MethodPut, "/machines/b", http.StatusCreated, &m)
	ts.json(t, http.MethodPost, "/machines/b/events/G", http.StatusOK, &dispatchResponse{})

	// a 在 s211，C 由 s2 声明；b 在 s11，C 由 s1 声明
	var resp struct {
		Event    sm.Event                   `json:"event"`
		Machines map[string]broadcastResult `json:"machines"`
	}
	ts.json(t, http.MethodPost, "/events/C", http.StatusOK, &resp)
	assert.Equal(t, hsm.EventC, resp.Event)
	assert.Equal(t, map[string]broadcastResult{
		"a": {State: hsm.S11},
		"b": {State: hsm.S211},
	}, resp.Machines)

	var list struct {
		Machines map[string]sm.State `json:"machines"`
	}
	ts.json(t, http.MethodGet, "/machines", http.StatusOK, &list)
	assert.Len(t, list.Machines, 2)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, WithNamespace("test"))

	ts.json(t, http.MethodPut, "/machines/a", http.StatusCreated, &machineResponse{})
	ts.json(t, http.MethodPost, "/machines/a/events/G", http.StatusOK, &dispatchResponse{})
	ts.json(t, http.MethodPost, "/machines/a/events/nope", http.StatusOK, &dispatchResponse{})

	code, body := ts.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `test_starts_total{chart="hsm"} 1`)
	assert.Contains(t, body, `test_events_total{chart="hsm"} 2`)
	assert.Contains(t, body, `test_transitions_total{chart="hsm"} 1`)
	assert.Contains(t, body, `test_discarded_total{chart="hsm"} 1`)
	assert.Contains(t, body, `test_sessions{chart="hsm"} 1`)
}

func TestServer_Store(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ts := newTestServer(t, WithStore(st))
	var m machineResponse
	ts.json(t, http.MethodPut, "/machines/a", http.StatusCreated, &m)
	assert.False(t, m.Restored)
	ts.json(t, http.MethodPost, "/machines/a/events/G", http.StatusOK, &dispatchResponse{})
	ts.json(t, http.MethodPost, "/machines/a/snapshot", http.StatusOK, &m)

	snap, err := st.Load("a")
	require.NoError(t, err)
	assert.Equal(t, hsm.S11, snap.State)
	assert.Equal(t, "serve", snap.Metadata["source"])

	// 关闭时保存，再次创建时恢复
	ts.json(t, http.MethodPost, "/machines/a/events/C", http.StatusOK, &dispatchResponse{})
	require.NoError(t, ts.Close())

	ts.json(t, http.MethodPut, "/machines/a", http.StatusCreated, &m)
	assert.Equal(t, machineResponse{ID: "a", State: hsm.S211, Started: true, Restored: true}, m)
}

func TestServer_NoStore(t *testing.T) {
	ts := newTestServer(t)

	ts.json(t, http.MethodPut, "/machines/a", http.StatusCreated, &machineResponse{})
	var e errorResponse
	ts.json(t, http.MethodPost, "/machines/a/snapshot", http.StatusServiceUnavailable, &e)
	assert.Equal(t, ErrNoStore.Error(), e.Error)
}
