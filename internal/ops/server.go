// Package ops serves the operational HTTP surface: health, stats, job
// listing, and manual triggers.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"market-pulse-bot/internal/config"
	"market-pulse-bot/internal/dedupe"
	"market-pulse-bot/internal/pipeline"
	"market-pulse-bot/internal/ratelimit"
	"market-pulse-bot/internal/schedule"
	"market-pulse-bot/internal/scheduler"
	"market-pulse-bot/internal/version"
)

// Control is the scheduler surface the ops server drives.
type Control interface {
	Trigger(ctx context.Context, source string) error
	Jobs() []scheduler.JobInfo
	Plan() schedule.Plan
}

// PipelineStats reads the pipeline counters.
type PipelineStats interface {
	Stats() pipeline.Stats
}

// JournalStats reads the dedup journal counters.
type JournalStats interface {
	Stats(ctx context.Context) (dedupe.Stats, error)
}

// LimiterStats reads rate limiter window occupancy.
type LimiterStats interface {
	Stats(ctx context.Context) (ratelimit.Stats, error)
}

// Dependencies wires the collaborators surfaced over HTTP.
type Dependencies struct {
	Control  Control
	Pipeline PipelineStats
	Journal  JournalStats
	Limiter  LimiterStats
}

// Server hosts the ops endpoints on a plain http.Server so shutdown can
// drain in-flight requests.
type Server struct {
	cfg     config.OpsConfig
	deps    Dependencies
	logger  zerolog.Logger
	httpSrv *http.Server
	started time.Time
}

// NewServer assembles the router and endpoints. Nothing listens until
// Start is called.
func NewServer(cfg config.OpsConfig, deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With().Str("component", "ops").Logger(),
		started: time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/stats", s.handleStats)
	router.GET("/jobs", s.handleJobs)
	router.POST("/trigger/:source", s.handleTrigger)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the HTTP mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins serving in the background. The returned channel yields the
// listener error, if any, and closes when the server exits.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("ops server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Pipeline != nil {
		resp["pipeline"] = s.deps.Pipeline.Stats()
	}
	if s.deps.Limiter != nil {
		stats, err := s.deps.Limiter.Stats(c.Request.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["error"] = err.Error()
		} else if stats.LastPost != nil {
			resp["last_post"] = stats.LastPost
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	resp := gin.H{}

	if s.deps.Pipeline != nil {
		resp["pipeline"] = s.deps.Pipeline.Stats()
	}
	if s.deps.Journal != nil {
		journal, err := s.deps.Journal.Stats(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["dedupe"] = journal
	}
	if s.deps.Limiter != nil {
		limiter, err := s.deps.Limiter.Stats(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["ratelimit"] = limiter
	}
	if s.deps.Control != nil {
		plan := s.deps.Control.Plan()
		alloc := make(map[string]int, len(plan.Allocation))
		for name, slots := range plan.Allocation {
			alloc[string(name)] = slots
		}
		resp["allocation"] = alloc
		resp["daily_cap"] = plan.DailyCap
		resp["capped_slots"] = plan.CappedSlots()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleJobs(c *gin.Context) {
	jobs := s.deps.Control.Jobs()
	c.JSON(http.StatusOK, gin.H{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

func (s *Server) handleTrigger(c *gin.Context) {
	source := c.Param("source")
	err := s.deps.Control.Trigger(c.Request.Context(), source)

	var unknown *scheduler.UnknownSourceError
	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, gin.H{
			"success":   false,
			"error":     unknown.Error(),
			"available": unknown.Valid,
		})
	case err != nil:
		s.logger.Error().Err(err).Str("source", source).Msg("manual trigger failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"source":  source,
		})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	}
}
