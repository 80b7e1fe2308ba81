// Package api exposes the HTTP surface: health, metrics, status, the
// authenticated manual sync trigger and the credential setup endpoint.
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/models"
	syncsvc "github.com/biosync/biosync/internal/sync"
	"github.com/gin-gonic/gin"
)

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	config       config.ServerConfig
	apiConfig    config.APIConfig
	creds        *credstore.CredStore
	orchestrator *syncsvc.Orchestrator
	scheduler    *syncsvc.Scheduler
	metrics      *metrics.Metrics
	logger       *logging.Logger
	httpServer   *http.Server
	tlsConfig    config.TLSConfig
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, creds *credstore.CredStore, orchestrator *syncsvc.Orchestrator, scheduler *syncsvc.Scheduler, m *metrics.Metrics, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		router:       gin.New(),
		config:       cfg,
		apiConfig:    apiCfg,
		creds:        creds,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		metrics:      m,
		logger:       logger,
		tlsConfig:    cfg.TLS,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		runID := c.GetHeader("X-Run-ID")
		if runID == "" {
			runID = logging.NewRunID()
		}

		ctx := logging.WithRunID(c.Request.Context(), runID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start).Seconds()
		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", duration,
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	// Status - NO authentication required, exposes no secrets
	s.router.GET("/status", s.handleStatus)

	authMiddleware := BearerAuth(s.apiConfig.Auth.Secret, s.logger)

	protected := s.router.Group("")
	protected.Use(authMiddleware)
	{
		protected.POST("/sync", s.handleSync)
		protected.POST("/setup", s.handleSetup)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// statusResponse is the public view of credential and scheduler state.
type statusResponse struct {
	CredentialPresent   bool   `json:"credential_present"`
	BearerValid         bool   `json:"bearer_valid"`
	BearerExpiresAt     string `json:"bearer_expires_at,omitempty"`
	RefreshTokenPresent bool   `json:"refresh_token_present"`
	DisplayName         string `json:"display_name,omitempty"`
	LastRun             string `json:"last_run,omitempty"`
	SchedulerRunning    bool   `json:"scheduler_running"`
	NextRun             string `json:"next_run,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		DisplayName: s.creds.DisplayName(),
	}

	if _, err := s.creds.OAuth1(); err == nil {
		resp.CredentialPresent = true
	}

	if bearer, err := s.creds.OAuth2(); err == nil && bearer != nil {
		resp.BearerValid = !bearer.Expired(time.Now())
		resp.BearerExpiresAt = bearer.ExpiresAt.UTC().Format(time.RFC3339)
		// Informational only: refresh is always re-derivation from the
		// long-lived credential.
		resp.RefreshTokenPresent = bearer.RefreshToken != ""
	}

	if lastRun := s.creds.LastRun(); !lastRun.IsZero() {
		resp.LastRun = lastRun.UTC().Format(time.RFC3339)
	}

	if s.scheduler != nil {
		resp.SchedulerRunning = s.scheduler.IsRunning()
		if next := s.scheduler.NextRun(); !next.IsZero() {
			resp.NextRun = next.UTC().Format(time.RFC3339)
		}
	}

	c.JSON(http.StatusOK, resp)
}

type syncRequest struct {
	Days int `json:"days"`
}

type dateResultResponse struct {
	Date       string         `json:"date"`
	Counts     map[string]int `json:"counts"`
	TotalRows  int            `json:"total_rows"`
	DurationMS int64          `json:"duration_ms"`
}

// handleSync runs a backfill over the trailing N dates. Resource-level
// failures show up as zero counts in a 200 response; only credential or
// exchange failures produce a 500.
func (s *Server) handleSync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "bad_request",
				Message: "invalid request body: " + err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
	}
	if req.Days < 1 {
		req.Days = 1
	}

	results, err := s.orchestrator.Run(c.Request.Context(), req.Days)
	if err != nil {
		s.metrics.RecordSyncRun("manual", "failure")
		status := http.StatusInternalServerError
		c.JSON(status, ErrorResponse{
			Error:   "sync_failed",
			Message: err.Error(),
			Code:    status,
		})
		return
	}

	s.metrics.RecordSyncRun("manual", "success")
	response := make([]dateResultResponse, 0, len(results))
	for _, r := range results {
		counts := make(map[string]int, len(r.Counts))
		for resource, count := range r.Counts {
			counts[string(resource)] = count
		}
		response = append(response, dateResultResponse{
			Date:       r.Date,
			Counts:     counts,
			TotalRows:  r.TotalRows(),
			DurationMS: r.Duration.Milliseconds(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": response})
}

type setupRequest struct {
	OAuthToken       string `json:"oauth_token" binding:"required"`
	OAuthTokenSecret string `json:"oauth_token_secret" binding:"required"`
	MFAToken         string `json:"mfa_token"`
	Domain           string `json:"domain"`
	DisplayName      string `json:"display_name"`
}

// handleSetup stores the long-lived credential and immediately proves it by
// exchanging once and resolving the account profile.
func (s *Server) handleSetup(c *gin.Context) {
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: "oauth_token and oauth_token_secret are required",
			Code:    http.StatusBadRequest,
		})
		return
	}

	credential := &models.OAuth1Token{
		Token:       req.OAuthToken,
		TokenSecret: req.OAuthTokenSecret,
		MFAToken:    req.MFAToken,
		Domain:      req.Domain,
	}
	if err := s.creds.SetOAuth1(credential); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "store_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if req.DisplayName != "" {
		if err := s.creds.SetDisplayName(req.DisplayName); err != nil {
			s.logger.ErrorWithContext(c.Request.Context(), "failed to store display name", "error", err.Error())
		}
	}

	name, err := s.orchestrator.ValidateCredential(c.Request.Context())
	if err != nil {
		var exErr *errors.ErrExchange
		if stderrors.As(err, &exErr) {
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "credential_invalid",
				Message: exErr.Error(),
				Code:    http.StatusBadGateway,
			})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
			Code:    http.StatusBadGateway,
		})
		return
	}

	s.logger.InfoWithContext(c.Request.Context(), "credential setup complete", "display_name", name)
	c.JSON(http.StatusOK, gin.H{"display_name": name})
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.tlsConfig.Enabled {
		return s.RunTLS()
	}

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// RunTLS starts the HTTPS server with TLS configuration
func (s *Server) RunTLS() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	s.logger.Info("starting HTTPS server", "addr", addr, "cert_file", s.tlsConfig.CertFile, "min_version", s.tlsConfig.MinVersion)

	srv, err := NewHTTPSServerWithConfig(addr, s.tlsConfig.CertFile, s.tlsConfig.KeyFile, s.tlsConfig.MinVersion, s.router)
	if err != nil {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	s.httpServer = srv

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and the scheduler
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.Error("scheduler stop error", "error", err.Error())
		}
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return &errors.ErrServerShutdown{Err: err}
		}
	}
	return nil
}
