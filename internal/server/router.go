package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/upscalr/internal/auth"
	"github.com/loykin/upscalr/internal/batch"
	"github.com/loykin/upscalr/internal/metrics"
)

// Jobs is the job registry the API drives. *batch.Runner implements it.
type Jobs interface {
	Submit(job batch.Job) (string, error)
	Get(id string) (batch.JobStatus, bool)
	List() []batch.JobStatus
	Cancel(id string) error
}

// Router provides embeddable HTTP handlers for engine jobs.
// Endpoints:
//
//	POST {basePath}/upscale            body: {"input": "/abs/in.png", "output": "/abs/out.png"}
//	GET  {basePath}/jobs               list of job statuses
//	GET  {basePath}/jobs/:id           one job status
//	POST {basePath}/jobs/:id/cancel    kill a running engine
//	POST {basePath}/auth/login         body: {"username": "...", "password": "..."}, when auth is enabled
//	GET  /metrics                      Prometheus metrics, when enabled
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	jobs     Jobs
	basePath string
	metrics  bool
	auth     *auth.Middleware
}

// NewRouter constructs a Router. Example basePath: "/api" results in
// /api/upscale, /api/jobs and so on.
func NewRouter(jobs Jobs, basePath string) *Router {
	return &Router{jobs: jobs, basePath: sanitizeBase(basePath)}
}

// WithMetrics serves /metrics from the same handler.
func (r *Router) WithMetrics(on bool) *Router {
	r.metrics = on
	return r
}

// WithAuth requires a bearer token or basic credentials on every job route.
// Reads need the read permission, submissions and cancels need write.
func (r *Router) WithAuth(svc *auth.Service) *Router {
	if svc != nil {
		r.auth = auth.NewMiddleware(svc)
	}
	return r
}

// BasePath returns the sanitized mount point.
func (r *Router) BasePath() string { return r.basePath }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	read, write := gin.HandlersChain{}, gin.HandlersChain{}
	if r.auth != nil {
		group.POST("/auth/login", r.auth.Login)
		group.Use(r.auth.Authenticate())
		read = append(read, r.auth.Require(auth.ActionRead))
		write = append(write, r.auth.Require(auth.ActionWrite))
	}
	group.POST("/upscale", append(write, r.handleUpscale)...)
	group.GET("/jobs", append(read, r.handleList)...)
	group.GET("/jobs/:id", append(read, r.handleGet)...)
	group.POST("/jobs/:id/cancel", append(write, r.handleCancel)...)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type submitResp struct {
	ID string `json:"id"`
}

func (r *Router) handleUpscale(c *gin.Context) {
	var job batch.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := checkJobPath("input", job.Input); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if err := checkJobPath("output", job.Output); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	// ok: safe path checked
	id, err := r.jobs.Submit(job)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		}{id, err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, submitResp{ID: id})
}

func (r *Router) handleList(c *gin.Context) {
	phase := batch.Phase(c.Query("phase"))
	all := r.jobs.List()
	if phase == "" {
		writeJSON(c, http.StatusOK, all)
		return
	}
	out := make([]batch.JobStatus, 0, len(all))
	for _, st := range all {
		if st.Phase == phase {
			out = append(out, st)
		}
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) jobID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid job id"})
		return "", false
	}
	return id, true
}

func (r *Router) handleGet(c *gin.Context) {
	id, ok := r.jobID(c)
	if !ok {
		return
	}
	st, found := r.jobs.Get(id)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: batch.ErrJobNotFound.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleCancel(c *gin.Context) {
	id, ok := r.jobID(c)
	if !ok {
		return
	}
	err := r.jobs.Cancel(id)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, okResp{OK: true})
	case errors.Is(err, batch.ErrJobNotFound):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, batch.ErrJobFinished):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}
