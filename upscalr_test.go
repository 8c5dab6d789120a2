package upscalr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestFacadeBuildArgs(t *testing.T) {
	s := NewSettings(
		Entry{Key: "path", Value: String("/bin/engine")},
		Entry{Key: "n", Value: Int(2)},
		Entry{Key: "j", Value: Null()},
		Entry{Key: "x", Value: Bool(true)},
	)
	assert.Equal(t, []string{"/bin/engine", "-n", "2", "-x"}, BuildArgs(s))
}

func TestFacadeRunnerEndToEnd(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	engine := filepath.Join(dir, "engine")
	require.NoError(t, os.WriteFile(engine, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	d, err := NewDriver(NewSettings(Entry{Key: "path", Value: String(engine)}))
	require.NoError(t, err)
	r := NewRunner(d)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sum, err := r.Run(ctx, []Job{{Input: "/in/a.png", Output: "/out/a.png"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.True(t, sum.OK())
}

func TestFacadeHTTPServer(t *testing.T) {
	d, err := NewDriver(NewSettings(Entry{Key: "path", Value: String("/bin/engine")}))
	require.NoError(t, err)
	srv := NewHTTPServer(":0", "/api", NewRunner(d))

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var jobs []JobStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	assert.Empty(t, jobs)
}

func TestMetricsHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetricsDefault())

	rr := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "go_goroutines"))
}

func TestNewHistorySink(t *testing.T) {
	s, err := NewHistorySink(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	closer, ok := s.(interface{ Close() error })
	require.True(t, ok)
	require.NoError(t, closer.Close())

	_, err = NewHistorySink("")
	assert.Error(t, err)
}
