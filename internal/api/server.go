// Package api exposes the judging platform's HTTP and websocket surface
// over gin, grounded on the teacher's internal/gateway package for route
// grouping, middleware shape, and rate limiting.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/judgeboard/platform/internal/auth"
	"github.com/judgeboard/platform/internal/eventbus"
	"github.com/judgeboard/platform/internal/leaderboard"
	"github.com/judgeboard/platform/internal/queue"
	"github.com/judgeboard/platform/internal/sandbox"
	"github.com/judgeboard/platform/internal/store"
	"github.com/judgeboard/platform/pkg/messaging"
)

// Server is the HTTP front door: submission intake, auth, admin control,
// leaderboard reads, and the websocket handshake.
type Server struct {
	router      *gin.Engine
	auth        *auth.Service
	store       *store.Store
	rq          *queue.RedisQueue
	hub         *eventbus.Hub
	leaderboard *leaderboard.Controller
	executor    *sandbox.Executor
	msg         *messaging.Client
	logger      *zap.Logger
	rateLimiter *RateLimiter
}

// Config holds the pieces of server setup that vary by deployment.
type Config struct {
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// NewServer wires every component the API depends on and registers
// routes.
func NewServer(cfg Config, authSvc *auth.Service, st *store.Store, rq *queue.RedisQueue, hub *eventbus.Hub, lb *leaderboard.Controller, executor *sandbox.Executor, msg *messaging.Client, logger *zap.Logger) *Server {
	s := &Server{
		router:      gin.New(),
		auth:        authSvc,
		store:       st,
		rq:          rq,
		hub:         hub,
		leaderboard: lb,
		executor:    executor,
		msg:         msg,
		logger:      logger,
		rateLimiter: NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.tracingMiddleware())
	s.setupRoutes()
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/register", s.rateLimitMiddleware(), s.register)
		v1.POST("/auth/login", s.rateLimitMiddleware(), s.login)

		v1.POST("/submissions", s.authMiddleware(), s.rateLimitMiddleware(), s.createSubmission)
		v1.GET("/submissions/:id", s.authMiddleware(), s.getSubmission)

		v1.GET("/contests/:id/leaderboard", s.getLeaderboard)
		v1.GET("/contests/:id/status", s.getContestStatus)

		v1.GET("/ws/token", s.authMiddleware(), s.issueSocketToken)
		v1.GET("/ws", s.handleSocket)

		admin := v1.Group("/admin", s.authMiddleware(), s.adminMiddleware())
		{
			admin.POST("/submissions/:id/rejudge", s.rejudgeSubmission)
			admin.POST("/queue/pause", s.pauseQueue)
			admin.POST("/queue/resume", s.resumeQueue)
			admin.POST("/queue/clean", s.cleanQueue)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	toolchains := s.executor.ToolchainHealth()
	status := "healthy"
	for _, state := range toolchains {
		if state == "open" {
			status = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "toolchains": toolchains})
}

func (s *Server) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet("claims").(*auth.Claims)
		if !claims.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if claimsVal, ok := c.Get("claims"); ok {
			key = claimsVal.(*auth.Claims).TeamID
		}
		if !s.rateLimiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// RateLimiter is a per-key sliding window limiter, lifted from the
// teacher's gateway.RateLimiter.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter constructs a RateLimiter allowing up to limit requests
// per window, per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow reports whether a request under key is allowed right now,
// recording it if so.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	valid := make([]time.Time, 0, len(rl.requests[key]))
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}
