package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/RELAX/internal/config"
	"github.com/molforge/RELAX/internal/geometry"
	"github.com/molforge/RELAX/internal/logging"
	"github.com/molforge/RELAX/internal/potential"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Optimization.DefaultBackend = "quasinewton"
	cfg.Optimization.DefaultPreset = "QCHEM"
	cfg.Optimization.MaxIterationsCap = 1000
	cfg.Optimization.MaxConcurrentSessions = 2
	return cfg
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	logger := logging.New(logging.ErrorLevel, os.Stderr)
	srv := NewServer(testConfig(), logger, prometheus.NewRegistry(), opts...)
	t.Cleanup(func() { srv.Close() })

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return srv, ts
}

func submit(t *testing.T, ts *httptest.Server, body map[string]interface{}) (string, *http.Response) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/v1/optimizations", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", resp
	}
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out["id"], resp
}

func getJob(t *testing.T, ts *httptest.Server, id string) Job {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/v1/optimizations/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	return job
}

func argonPair() map[string]interface{} {
	return map[string]interface{}{
		"symbols":     []string{"Ar", "Ar"},
		"coordinates": []float64{0, 0, 0, 0, 0, 4.0},
	}
}

func TestSubmitAndComplete(t *testing.T) {
	_, ts := newTestServer(t)

	// A huge force tolerance converges on the very first evaluation, making
	// the terminal job state deterministic.
	body := argonPair()
	body["criteria"] = map[string]float64{"max_force": 1e6}
	id, _ := submit(t, ts, body)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return getJob(t, ts, id).Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	job := getJob(t, ts, id)
	assert.Equal(t, true, job.Result["converged"].Value)
	assert.Equal(t, "converged", job.Result["termination_reason"].Value)
	assert.Equal(t, float64(1), job.Result["n_iterations"].Value, "JSON numbers decode as float64")
	assert.Contains(t, job.Result, "energy_change", "schema is stable even for inactive metrics")
}

func TestSubmitValidation(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"empty geometry", map[string]interface{}{"symbols": []string{}, "coordinates": []float64{}}},
		{"unknown target", withField(argonPair(), "target", "inflection")},
		{"unknown backend", withField(argonPair(), "backend", "simplex")},
		{"unknown preset", withField(argonPair(), "preset", "SPARTAN")},
		{"unknown metric", withField(argonPair(), "criteria", map[string]float64{"max_torque": 1})},
		{"bad hessian update", withField(withField(argonPair(), "backend", "quasinewton"), "hessian_update", "dfp")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := submit(t, ts, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func withField(m map[string]interface{}, key string, value interface{}) map[string]interface{} {
	m[key] = value
	return m
}

func TestUnknownJob(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/optimizations/no-such-job")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRunningJob(t *testing.T) {
	// A blocking evaluator keeps the job running until cancelled.
	release := make(chan struct{})
	slow := potential.Func(func(ctx context.Context, g *geometry.Geometry) (float64, []float64, error) {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-release:
			return 0, make([]float64, len(g.Coords)), nil
		}
	})
	_, ts := newTestServer(t, WithEvaluator(slow))
	defer close(release)

	id, _ := submit(t, ts, argonPair())
	require.Eventually(t, func() bool {
		return getJob(t, ts, id).Status == StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/optimizations/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool {
		return getJob(t, ts, id).Status == StatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	// Cancelling again conflicts.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFailedEvaluationMarksJobFailed(t *testing.T) {
	failing := potential.Func(func(ctx context.Context, g *geometry.Geometry) (float64, []float64, error) {
		return 0, nil, potential.Errorf("scf did not converge")
	})
	_, ts := newTestServer(t, WithEvaluator(failing))

	id, _ := submit(t, ts, argonPair())
	require.Eventually(t, func() bool {
		return getJob(t, ts, id).Status == StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	job := getJob(t, ts, id)
	assert.Equal(t, "evaluator_failure", job.Result["termination_reason"].Value)
	assert.NotEmpty(t, job.Error)
}

func TestSteepestEndToEnd(t *testing.T) {
	// Relax an argon pair with the simple backend and loose criteria.
	_, ts := newTestServer(t)

	body := argonPair()
	body["backend"] = "steepest"
	body["preset"] = "GAU_LOOSE"
	id, _ := submit(t, ts, body)

	require.Eventually(t, func() bool {
		job := getJob(t, ts, id)
		return job.Status == StatusCompleted || job.Status == StatusFailed
	}, 10*time.Second, 20*time.Millisecond)

	job := getJob(t, ts, id)
	require.Equal(t, StatusCompleted, job.Status, "error: %s", job.Error)
	assert.Contains(t, []interface{}{"converged", "max_iterations"}, job.Result["termination_reason"].Value)
}
