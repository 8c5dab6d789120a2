package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/upscalr/internal/auth"
	"github.com/loykin/upscalr/internal/batch"
	"github.com/loykin/upscalr/internal/metrics"
)

// fakeJobs records submissions without launching anything.
type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]batch.JobStatus
	order   []string
	failing bool
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[string]batch.JobStatus{}} }

func (f *fakeJobs) Submit(j batch.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	st := batch.JobStatus{ID: id, Input: j.Input, Output: j.Output, Phase: batch.PhaseRunning}
	var err error
	if f.failing {
		st.Phase = batch.PhaseFailed
		err = errors.New("failed to start engine: no such file")
	}
	f.jobs[id] = st
	f.order = append(f.order, id)
	return id, err
}

func (f *fakeJobs) Get(id string) (batch.JobStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.jobs[id]
	return st, ok
}

func (f *fakeJobs) List() []batch.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]batch.JobStatus, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.jobs[id])
	}
	return out
}

func (f *fakeJobs) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.jobs[id]
	if !ok {
		return batch.ErrJobNotFound
	}
	if st.Phase.Finished() {
		return batch.ErrJobFinished
	}
	st.Phase = batch.PhaseCancelled
	f.jobs[id] = st
	return nil
}

func setupRouter(t *testing.T, base string) (http.Handler, *fakeJobs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jobs := newFakeJobs()
	return NewRouter(jobs, base).Handler(), jobs
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func submit(t *testing.T, h http.Handler, base string) string {
	t.Helper()
	rec := doReq(t, h, http.MethodPost, base+"/upscale", batch.Job{Input: absImage("a.png"), Output: absImage("a_2x.png")})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp submitResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := uuid.Parse(resp.ID); err != nil {
		t.Fatalf("id is not a uuid: %q", resp.ID)
	}
	return resp.ID
}

func TestUpscaleAndGet(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	id := submit(t, h, "/api")

	rec := doReq(t, h, http.MethodGet, "/api/jobs/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st batch.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ID != id || st.Input != absImage("a.png") || st.Phase != batch.PhaseRunning {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestUpscaleRejectsBadPaths(t *testing.T) {
	h, jobs := setupRouter(t, "")
	cases := []any{
		batch.Job{Input: "rel/a.png", Output: absImage("b.png")},
		batch.Job{Input: absImage("a.png")},
		batch.Job{Input: absImage("../etc/passwd"), Output: absImage("b.png")},
		"not an object",
	}
	for i, body := range cases {
		rec := doReq(t, h, http.MethodPost, "/upscale", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, rec.Code)
		}
	}
	if len(jobs.List()) != 0 {
		t.Fatal("rejected requests must not submit jobs")
	}
}

func TestUpscaleLaunchFailure(t *testing.T) {
	h, jobs := setupRouter(t, "")
	jobs.failing = true
	rec := doReq(t, h, http.MethodPost, "/upscale", batch.Job{Input: absImage("a.png"), Output: absImage("b.png")})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no such file") || !strings.Contains(rec.Body.String(), `"id"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestListAndFilter(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	first := submit(t, h, "/api")
	submit(t, h, "/api")
	if rec := doReq(t, h, http.MethodPost, "/api/jobs/"+first+"/cancel", nil); rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rec.Code)
	}

	var all []batch.JobStatus
	rec := doReq(t, h, http.MethodGet, "/api/jobs", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &all)
	if len(all) != 2 || all[0].ID != first {
		t.Fatalf("unexpected list: %+v", all)
	}

	var cancelled []batch.JobStatus
	rec = doReq(t, h, http.MethodGet, "/api/jobs?phase=Cancelled", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &cancelled)
	if len(cancelled) != 1 || cancelled[0].ID != first {
		t.Fatalf("unexpected filtered list: %+v", cancelled)
	}
}

func TestCancelStatusCodes(t *testing.T) {
	h, _ := setupRouter(t, "")
	id := submit(t, h, "")

	if rec := doReq(t, h, http.MethodPost, "/jobs/"+id+"/cancel", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodPost, "/jobs/"+id+"/cancel", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodPost, "/jobs/"+uuid.NewString()+"/cancel", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodGet, "/jobs/not-a-uuid", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodGet, "/jobs/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}
	metrics.IncLaunch("server-test")

	h := NewRouter(newFakeJobs(), "/api").WithMetrics(true).Handler()
	rec := doReq(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upscalr_engine_launches_total") {
		t.Fatal("metrics body missing launches_total")
	}

	off := NewRouter(newFakeJobs(), "/api").Handler()
	if rec := doReq(t, off, http.MethodGet, "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics should be off by default, got %d", rec.Code)
	}
}

func TestMountEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobs := newFakeJobs()
	e := echo.New()
	MountEcho(e, NewRouter(jobs, "/w2x"))

	id := submit(t, e, "/w2x")
	rec := doReq(t, e, http.MethodGet, "/w2x/jobs/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 through echo, got %d", rec.Code)
	}
}

func TestAuthProtectsJobRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash := func(pw string) string {
		h, err := auth.HashPassword(pw, bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		return h
	}
	svc, err := auth.NewService(auth.Config{
		Enabled: true,
		Accounts: []auth.Account{
			{Username: "ops", PasswordHash: hash("pw"), Roles: []string{"operator"}},
			{Username: "eye", PasswordHash: hash("pw"), Roles: []string{"viewer"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewRouter(newFakeJobs(), "/api").WithAuth(svc).Handler()

	if rec := doReq(t, h, http.MethodGet, "/api/jobs", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list = %d", rec.Code)
	}

	rec := doReq(t, h, http.MethodPost, "/api/auth/login", map[string]string{"username": "ops", "password": "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var res auth.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.Token == nil {
		t.Fatalf("login body: %s", rec.Body.String())
	}

	withToken := func(method, path string, body any) int {
		var rdr io.Reader
		if body != nil {
			b, _ := json.Marshal(body)
			rdr = bytes.NewReader(b)
		}
		req := httptest.NewRequest(method, path, rdr)
		req.Header.Set("Authorization", "Bearer "+res.Token.Value)
		r := httptest.NewRecorder()
		h.ServeHTTP(r, req)
		return r.Code
	}
	if code := withToken(http.MethodPost, "/api/upscale", batch.Job{Input: absImage("a.png"), Output: absImage("b.png")}); code != http.StatusAccepted {
		t.Fatalf("operator submit = %d", code)
	}
	if code := withToken(http.MethodGet, "/api/jobs", nil); code != http.StatusOK {
		t.Fatalf("operator list = %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upscale", strings.NewReader(`{}`))
	req.SetBasicAuth("eye", "pw")
	viewer := httptest.NewRecorder()
	h.ServeHTTP(viewer, req)
	if viewer.Code != http.StatusForbidden {
		t.Fatalf("viewer submit = %d", viewer.Code)
	}
}
