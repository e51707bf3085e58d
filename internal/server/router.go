package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"

	"github.com/loykin/crashwatch/internal/history"
	"github.com/loykin/crashwatch/internal/monitor"
	"github.com/loykin/crashwatch/internal/registry"
	"github.com/loykin/crashwatch/internal/tracker"
)

// Workloads is the control-plane view of the registry.
type Workloads interface {
	Add(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// States exposes what the monitor loop has observed.
type States interface {
	Tracker() *tracker.Tracker
	LastReport() (monitor.CycleReport, bool)
}

// Router provides embeddable HTTP handlers for managing watched workloads.
// Endpoints:
//
//	GET    {basePath}/workloads        list registered names
//	POST   {basePath}/workloads        body: {"name": "..."}
//	DELETE {basePath}/workloads/:name
//	GET    {basePath}/states           tracker snapshot + last cycle report
//	GET    {basePath}/events           query: workload=...&limit=N (needs a readable history sink)
//	GET    /live, /ready               health checks
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	workloads Workloads
	states    States
	events    history.Reader
	basePath  string
	log       *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// states and events may be nil.
func NewRouter(w Workloads, states States, events history.Reader, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		workloads: w,
		states:    states,
		events:    events,
		basePath:  sanitizeBase(basePath),
		log:       log.With("component", "server"),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	// names may contain escaped slashes
	g.UseRawPath = true
	g.Use(gin.Recovery(), requestLogger(r.log))

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("registry", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return r.workloads.Ping(ctx)
	})
	g.GET("/live", gin.WrapH(health))
	g.GET("/ready", gin.WrapH(health))

	group := g.Group(r.basePath)
	group.GET("/workloads", r.handleList)
	group.POST("/workloads", r.handleAdd)
	group.DELETE("/workloads/:name", r.handleRemove)
	group.GET("/states", r.handleStates)
	group.GET("/events", r.handleEvents)
	return g
}

// NewServer builds an http.Server for this router. The caller starts it.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
// TLS is used when srv.TLSConfig is set.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type workloadsResp struct {
	Workloads []string `json:"workloads"`
}

type addReq struct {
	Name string `json:"name"`
}

type addResp struct {
	Name  string `json:"name"`
	Added bool   `json:"added"`
}

type removeResp struct {
	Name    string `json:"name"`
	Removed bool   `json:"removed"`
}

type statesResp struct {
	States     map[string]bool      `json:"states"`
	LastReport *monitor.CycleReport `json:"last_report,omitempty"`
}

type eventsResp struct {
	Events []history.Event `json:"events"`
}

// writeError maps registry errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	var ve *registry.ValidationError
	if errors.As(err, &ve) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
}

func (r *Router) handleList(c *gin.Context) {
	names, err := r.workloads.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, workloadsResp{Workloads: names})
}

func (r *Router) handleAdd(c *gin.Context) {
	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	added, err := r.workloads.Add(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	name, _ := registry.Normalize(req.Name)
	if added {
		r.log.Info("workload added", "workload", name)
	}
	writeJSON(c, http.StatusCreated, addResp{Name: name, Added: added})
}

func (r *Router) handleRemove(c *gin.Context) {
	name := c.Param("name")
	removed, err := r.workloads.Remove(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	if removed {
		r.log.Info("workload removed", "workload", name)
	}
	writeJSON(c, http.StatusOK, removeResp{Name: name, Removed: removed})
}

func (r *Router) handleStates(c *gin.Context) {
	resp := statesResp{States: map[string]bool{}}
	if r.states != nil {
		resp.States = r.states.Tracker().Snapshot()
		if rep, ok := r.states.LastReport(); ok {
			resp.LastReport = &rep
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.events == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "history sink does not support queries"})
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	evs, err := r.events.Recent(c.Request.Context(), c.Query("workload"), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, eventsResp{Events: evs})
}
