// Package admin is the local HTTP control surface of a running agent: health,
// diagnostics, manual triggers, journal and Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bnema/forum-agent/internal/application"
	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
)

const (
	defaultJournalLimit = 20
	maxJournalLimit     = 500
	defaultWaitTimeout  = 5 * time.Minute
	shutdownTimeout     = 10 * time.Second
)

// Supervisor is the slice of the application supervisor the API drives.
type Supervisor interface {
	Running() bool
	Snapshot(ctx context.Context) domain.Diagnostics
	TriggerBrowse() (*application.Job, error)
	TriggerPost(force bool) (*application.PostJob, error)
}

type Deps struct {
	Supervisor Supervisor
	Journal    ports.Journal
	Metrics    http.Handler
	Middleware []gin.HandlerFunc
	Logger     logging.Logger
	Version    string
}

type Server struct {
	engine      *gin.Engine
	supervisor  Supervisor
	journal     ports.Journal
	logger      logging.Logger
	version     string
	waitTimeout time.Duration
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	s := &Server{
		engine:      gin.New(),
		supervisor:  deps.Supervisor,
		journal:     deps.Journal,
		logger:      deps.Logger,
		version:     deps.Version,
		waitTimeout: defaultWaitTimeout,
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.Use(deps.Middleware...)

	s.engine.GET("/healthz", s.health)
	s.engine.GET("/status", s.status)
	s.engine.GET("/journal", s.listJournal)
	s.engine.POST("/trigger/browse", s.triggerBrowse)
	s.engine.POST("/trigger/post", s.triggerPost)
	if deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// the server down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.WithField("addr", listener.Addr().String()).Info("admin api listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve admin api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin api: %w", err)
	}
	<-errCh
	s.logger.Info("admin api stopped")
	return nil
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.WithFields(logging.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("admin request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Running: s.supervisor.Running(),
		Version: s.version,
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.supervisor.Snapshot(c.Request.Context()))
}

func (s *Server) listJournal(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "journal not configured"})
		return
	}

	limit, err := intQuery(c, "limit", defaultJournalLimit)
	if err != nil || limit < 1 || limit > maxJournalLimit {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("limit must be between 1 and %d", maxJournalLimit)})
		return
	}

	entries, err := s.journal.Recent(c.Request.Context(), domain.JournalKind(strings.TrimSpace(c.Query("type"))), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	out := make([]JournalEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, NewJournalEntry(entry))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) triggerBrowse(c *gin.Context) {
	job, err := s.supervisor.TriggerBrowse()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	if !boolQuery(c, "wait") {
		c.JSON(http.StatusAccepted, TriggerResponse{JobID: job.ID})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.waitTimeout)
	defer cancel()

	resp := TriggerResponse{JobID: job.ID, Done: true}
	if err := job.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			c.JSON(http.StatusGatewayTimeout, TriggerResponse{JobID: job.ID, Error: ctx.Err().Error()})
			return
		}
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) triggerPost(c *gin.Context) {
	job, err := s.supervisor.TriggerPost(boolQuery(c, "force"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	if !boolQuery(c, "wait") {
		c.JSON(http.StatusAccepted, TriggerResponse{JobID: job.ID})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.waitTimeout)
	defer cancel()

	result, err := job.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		c.JSON(http.StatusGatewayTimeout, TriggerResponse{JobID: job.ID, Error: ctx.Err().Error()})
		return
	}

	resp := TriggerResponse{JobID: job.ID, Done: true, Result: &result}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func boolQuery(c *gin.Context, key string) bool {
	raw, ok := c.GetQuery(key)
	if !ok {
		return false
	}
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
