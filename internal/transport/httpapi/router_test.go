package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsculpt.ai/internal/protocol"
	"flowsculpt.ai/internal/sim/controller"
)

type fakeSim struct {
	mu      sync.Mutex
	cmds    []controller.Command
	err     error
	snapErr error
	frame   uint64
}

func (f *fakeSim) ID() string { return "sim_test" }

func (f *fakeSim) Metrics() controller.Metrics {
	return controller.Metrics{ID: "sim_test", Frame: f.frame, StepsPerFrame: 10, Viscosity: 0.02, BarrierCells: 7}
}

func (f *fakeSim) OnInput(cmd controller.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeSim) RequestSnapshot(ctx context.Context) (uint64, error) {
	return f.frame, f.snapErr
}

func init() { gin.SetMode(gin.TestMode) }

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthzAndState(t *testing.T) {
	r := NewRouter(&fakeSim{frame: 12}, Options{}, nil)

	rec, _ := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec, out := do(t, r, http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sim_test", out["sim_id"])
	m := out["metrics"].(map[string]any)
	assert.EqualValues(t, 12, m["frame"])
}

func TestMetrics_PrometheusText(t *testing.T) {
	r := NewRouter(&fakeSim{frame: 3}, Options{ExtraMetrics: func(w io.Writer) {
		fmt.Fprintf(w, "flowsculpt_extra 1\n")
	}}, nil)
	rec, _ := do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `flowsculpt_frame{sim="sim_test"} 3`)
	assert.Contains(t, body, `flowsculpt_barrier_cells{sim="sim_test"} 7`)
	assert.Contains(t, body, `flowsculpt_inputs_total{sim="sim_test",result="dropped"} 0`)
	assert.Contains(t, body, "flowsculpt_extra 1")
}

func TestControlEndpoints_EnqueueCommands(t *testing.T) {
	sim := &fakeSim{frame: 4}
	r := NewRouter(sim, Options{}, nil)

	cases := []struct {
		path string
		body string
		want []controller.Command
	}{
		{"/v1/undo", "", []controller.Command{{Kind: controller.KindUndo}}},
		{"/v1/undo", `{"count":2}`, []controller.Command{{Kind: controller.KindUndo}, {Kind: controller.KindUndo}}},
		{"/v1/clear", "", []controller.Command{{Kind: controller.KindClearBarrier}}},
		{"/v1/pause", "", []controller.Command{{Kind: controller.KindTogglePause}}},
		{"/v1/pause", `{"paused":false}`, []controller.Command{{Kind: controller.KindSetPaused, On: false}}},
		{"/v1/viscosity", `{"value":0.05}`, []controller.Command{{Kind: controller.KindSetViscosity, Value: 0.05}}},
		{"/v1/steps", `{"value":0}`, []controller.Command{{Kind: controller.KindSetStepsPerFrame, Value: 0}}},
		{"/v1/stat", `{"stat":"speed"}`, []controller.Command{{Kind: controller.KindSetStat, Stat: "speed"}}},
		{"/v1/equilibrium", "", []controller.Command{{Kind: controller.KindResetEquilibrium}}},
		{"/v1/equilibrium", `{"ux":0.1,"rho":1}`, []controller.Command{{Kind: controller.KindResetEquilibrium, Flow: &controller.Flow{UX: 0.1, Rho: 1}}}},
		{"/v1/mode", `{"mode":"line","line_width":3}`, []controller.Command{
			{Kind: controller.KindSetMode, Mode: "line"},
			{Kind: controller.KindSetLineWidth, Value: 3},
		}},
	}
	for _, tc := range cases {
		sim.cmds = nil
		rec, out := do(t, r, http.MethodPost, tc.path, tc.body)
		require.Equal(t, http.StatusAccepted, rec.Code, "%s %s: %s", tc.path, tc.body, rec.Body.String())
		assert.Equal(t, true, out["ok"])
		assert.EqualValues(t, 5, out["frame"])
		assert.Equal(t, tc.want, sim.cmds, "%s %s", tc.path, tc.body)
	}
}

func TestControlEndpoints_RejectBadArguments(t *testing.T) {
	sim := &fakeSim{}
	r := NewRouter(sim, Options{}, nil)

	for _, tc := range []struct{ path, body string }{
		{"/v1/viscosity", `{"value":-1}`},
		{"/v1/viscosity", `{}`},
		{"/v1/steps", `{"value":5000}`},
		{"/v1/steps", `{"value":1.5}`},
		{"/v1/stat", `{"stat":"pressure"}`},
		{"/v1/mode", `{"mode":"spray"}`},
		{"/v1/mode", `{"line_width":2}`},
		{"/v1/mode", `{}`},
		{"/v1/equilibrium", `{"rho":0}`},
		{"/v1/undo", `{"count":100}`},
		{"/v1/pause", `not json`},
	} {
		rec, out := do(t, r, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s %s", tc.path, tc.body)
		assert.Equal(t, protocol.ErrBadRequest, out["code"], "%s %s", tc.path, tc.body)
	}
	assert.Empty(t, sim.cmds)
}

func TestControlEndpoints_QueueErrors(t *testing.T) {
	sim := &fakeSim{err: controller.ErrQueueFull}
	r := NewRouter(sim, Options{}, nil)
	rec, out := do(t, r, http.MethodPost, "/v1/clear", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, protocol.ErrQueueFull, out["code"])

	sim.err = controller.ErrStopped
	rec, out = do(t, r, http.MethodPost, "/v1/clear", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, protocol.ErrUnavailable, out["code"])

	sim.err = errors.New("boom")
	rec, out = do(t, r, http.MethodPost, "/v1/clear", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, protocol.ErrInternal, out["code"])
}

func TestSnapshotEndpoint(t *testing.T) {
	sim := &fakeSim{frame: 9}
	r := NewRouter(sim, Options{}, nil)
	rec, out := do(t, r, http.MethodPost, "/v1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 9, out["frame"])

	sim.snapErr = controller.ErrNoSnapshotSink
	rec, out = do(t, r, http.MethodPost, "/v1/snapshot", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.Contains(t, out["error"], "sink")
}

func TestStreamMount(t *testing.T) {
	r := NewRouter(&fakeSim{}, Options{Stream: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})}, nil)
	rec, _ := do(t, r, http.MethodGet, "/v1/stream", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec, _ = do(t, NewRouter(&fakeSim{}, Options{}, nil), http.MethodGet, "/v1/stream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
