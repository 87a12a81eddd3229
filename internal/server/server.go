// Package server exposes the job queue over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"transcriptiond/internal/config"
	"transcriptiond/internal/domain"
	"transcriptiond/internal/jobs"
)

// JobReader is the read side of the job store.
type JobReader interface {
	Get(ctx context.Context, id string) (domain.Job, error)
	List(ctx context.Context) ([]domain.Job, error)
	Ping(ctx context.Context) error
}

// Submitter enqueues uploaded media.
type Submitter interface {
	Submit(ctx context.Context, filename string, src io.Reader) (domain.Job, error)
}

// Exporter renders the job report.
type Exporter interface {
	JobsXLSX(ctx context.Context) ([]byte, error)
}

// WorkerStatus reports the state of the processing loop.
type WorkerStatus interface {
	Running() bool
	Current() (domain.Job, bool)
}

// Settings reads and patches settings.json.
type Settings interface {
	Snapshot() (config.Snapshot, error)
	Update(patch config.SettingsPatch) (domain.Settings, error)
}

// Deps collects the collaborators the handlers call.
type Deps struct {
	Jobs        JobReader
	Intake      Submitter
	Export      Exporter
	Worker      WorkerStatus
	Events      *jobs.EventBus
	Settings    Settings
	Diagnostics func(ctx context.Context) domain.DiagnosticReport
	ResultsDir  string
	CORSOrigins []string
	Logger      *slog.Logger
}

type handlers struct {
	Deps
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handlers{Deps: deps}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))

	if len(deps.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = deps.CORSOrigins
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		corsConfig.ExposeHeaders = []string{"Content-Disposition"}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.POST("/jobs", h.submitJobs)
		api.GET("/jobs", h.listJobs)
		api.GET("/jobs/export.xlsx", h.exportJobs)
		api.GET("/jobs/:id", h.getJob)
		api.GET("/jobs/:id/result", h.getResult)
		api.GET("/events", h.events)
		api.GET("/worker", h.worker)
		api.GET("/diagnostics", h.diagnostics)
		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.putSettings)
	}
	return router
}

// Server runs the router until its context is cancelled.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

func New(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
