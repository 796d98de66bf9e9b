package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoangtvse170014/checkout/internal/health"
	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/phase"
	"github.com/hoangtvse170014/checkout/internal/service"
	"github.com/hoangtvse170014/checkout/internal/store"
)

// Server is the thin read-only status surface: a dashboard (run as a
// separate process/UI) polls /healthz and /status rather than this process
// serving any UI itself.
type Server struct {
	*service.ServiceBase
	addr       string
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine
	health     *health.Manager
	store      *store.Store
	clock      phase.Clock
	version    string
	startTime  time.Time
}

// NewServer creates the status web server bound to addr (e.g. ":8090"). st
// and clock let /status read today's phase, frozen baseline, live
// present/missing counts, and the active MissingPeriod fresh on every
// request instead of caching any of it in-process.
func NewServer(addr string, healthMgr *health.Manager, st *store.Store, clock phase.Clock, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		addr:        addr,
		logger:      log,
		router:      router,
		health:      healthMgr,
		store:       st,
		clock:       clock,
		version:     "dev",
		startTime:   time.Now(),
	}
	s.setupRoutes()
	return s
}

// SetVersion sets the application version reported by /status.
func (s *Server) SetVersion(version string) {
	s.version = version
}

// Start starts the web server.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.LogInfo("starting web server", "address", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.LogError("web server error", err, "address", s.addr)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		s.LogInfo("web server started", "address", s.addr)
		return nil
	}
}

// Stop stops the web server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.LogInfo("stopping web server")
	return s.httpServer.Shutdown(ctx)
}

// Name returns the service name.
func (s *Server) Name() string {
	return "web-server"
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/status", s.handleStatus)
}

// handleHealthz is a liveness probe: it never consults the health manager,
// only reports the process is accepting connections.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStatus reports component health plus the live domain picture - phase,
// frozen baseline, present/missing, and any active shortfall - all read
// fresh from the Store on every request rather than cached in-process.
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()
	uptime := time.Since(s.startTime)

	report := s.health.Check(ctx)
	statusCode := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":         report.Status,
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"version":        s.version,
		"timestamp":      now.Format(time.RFC3339),
		"checks":         report.Checks,
		"services":       report.Services,
		"phase":          string(s.clock.At(now)),
	}

	dailyState, err := s.store.DailyState(ctx, now)
	if err != nil {
		s.LogError("status: failed to read daily state", err)
	} else {
		body["total_morning"] = dailyState.TotalMorning
		body["is_frozen"] = dailyState.IsFrozen

		dayStart := s.clock.PhaseStartTime(phase.MorningCount, now)
		in, out, err := s.store.CountsSince(ctx, dayStart, now)
		if err != nil {
			s.LogError("status: failed to read counts", err)
		} else {
			present := in - out
			body["present"] = present
			body["missing"] = max(0, dailyState.TotalMorning-present)
		}
	}

	active, err := s.store.ActiveMissingPeriod(ctx, now)
	if err != nil {
		s.LogError("status: failed to read active missing period", err)
	} else if active != nil {
		body["active_missing_period"] = gin.H{
			"id":            active.ID,
			"session":       active.Session,
			"start_time":    active.StartTime.Format(time.RFC3339),
			"missing_count": active.MissingCountObserved,
		}
	}

	c.JSON(statusCode, body)
}

// ginLogger creates a Gin middleware for request logging.
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware allows local-network dashboards to poll this endpoint.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
