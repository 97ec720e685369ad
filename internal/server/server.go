// Package server exposes the task store over a small REST API.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"taskboard/internal/logging"
	"taskboard/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReplayedHeader is set to "true" when a create was answered from the dedup record.
const ReplayedHeader = "Idempotent-Replayed"

// TaskStore is the persistence the API serves. *store.Store implements it.
type TaskStore interface {
	Create(ctx context.Context, req model.CreateTaskRequest) (model.Task, bool, error)
	List(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	Get(ctx context.Context, id string) (model.Task, error)
	Update(ctx context.Context, id string, req model.UpdateTaskRequest) (model.Task, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type Options struct {
	Logger logr.Logger
	// Registry receives the HTTP metrics and is served on /metrics. Nil creates a private one.
	Registry *prometheus.Registry
}

// Server is the taskboard API server
type Server struct {
	store    TaskStore
	router   *gin.Engine
	log      logr.Logger
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates the API server
func New(st TaskStore, opts Options) *Server {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		store:    st,
		router:   gin.New(),
		log:      opts.Logger.WithName("server"),
		registry: opts.Registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	s.registry.MustRegister(s.requests, s.duration)

	s.router.Use(gin.Recovery(), s.observe)

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	{
		api.GET("/tasks", s.handleList)
		api.POST("/tasks", s.handleCreate)
		api.GET("/tasks/:id", s.handleGet)
		api.PATCH("/tasks/:id", s.handleUpdate)
		api.DELETE("/tasks/:id", s.handleDelete)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// observe tags each request with an id, logs it and records metrics.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	reqID := c.GetHeader("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	c.Header("X-Request-ID", reqID)

	log := s.log.WithValues("requestID", reqID, "method", c.Request.Method, "path", c.Request.URL.Path)
	c.Request = c.Request.WithContext(logging.IntoContext(c.Request.Context(), log))

	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	code := c.Writer.Status()
	elapsed := time.Since(start)
	s.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(code)).Inc()
	s.duration.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())
	log.V(logging.DEBUG).Info("request served", "status", code, "duration", elapsed)
}
