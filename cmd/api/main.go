package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"roomlog/internal/auth"
	"roomlog/internal/config"
	"roomlog/internal/eventlog"
	"roomlog/internal/httpmiddleware"
	"roomlog/internal/lunch"
	"roomlog/internal/queue"
	"roomlog/internal/reasons"
	"roomlog/internal/roster"
	"roomlog/internal/syncsvc"
	"roomlog/internal/wellbeing"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "production" || env == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	installID := cfg.InstallID
	if installID == "" {
		installID = uuid.NewString()
		logger.Info("generated install id", zap.String("install_id", installID))
	}

	logStore := eventlog.NewStore(cfg.EventLogPath(), logger)
	taxonomy := reasons.Load(cfg.ReasonsPath(), logger)
	tally := lunch.NewTally(cfg.LunchTallyPath(), logStore, logger)
	rosterStore := roster.NewStore(cfg.RosterPath(), logger)

	redisClient := syncsvc.NewClient(cfg.RedisAddr)

	var syncer *syncsvc.Service
	if cfg.SyncEnabled {
		syncer = syncsvc.New(redisClient, cfg.SyncKey, installID, logger)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient, "roomlog:nudges")
	}

	svc := wellbeing.New(logStore, taxonomy, tally, rosterStore, q, syncer, logger)
	devices := auth.NewRegistry()

	r := newRouter(cfg, svc, devices)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

func newRouter(cfg config.App, svc *wellbeing.Service, devices *auth.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		syncHealthy := svc.Sync().Healthy(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sync": syncHealthy})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := devices.Register(req.DeviceID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.DeviceID, "device", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// Refresh trades a valid refresh token for a new pair. The device must
	// have registered with this process; a restart wipes the registry and
	// sends devices back through /register.
	r.POST("/v1/devices/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, err := auth.Parse(req.RefreshToken, cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		if !devices.Known(claims.Subject) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "device not registered"})
			return
		}
		tokens, err := auth.Issue(claims.Subject, claims.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	api := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Sign-in / sign-out. Lunch is tally-only and rejected here.
	api.POST("/rooms/:room/signin", func(c *gin.Context) {
		room, ok := eventlog.ParseRoomSlug(c.Param("room"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		var req wellbeing.SignInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		evt, err := svc.SignIn(c.Request.Context(), room, req)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"student": evt.StudentName,
			"room":    evt.Room,
			"action":  evt.Action,
			"at":      evt.Timestamp.Format(eventlog.TimeLayout),
		})
	})

	api.POST("/rooms/:room/signout", func(c *gin.Context) {
		room, ok := eventlog.ParseRoomSlug(c.Param("room"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		var req struct {
			Name   string `json:"name" binding:"required"`
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		evt, err := svc.SignOut(c.Request.Context(), room, req.Name, req.Reason)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"student": evt.StudentName,
			"room":    evt.Room,
			"action":  evt.Action,
			"at":      evt.Timestamp.Format(eventlog.TimeLayout),
		})
	})

	// Presence and head counts.
	api.GET("/rooms/:room/present", func(c *gin.Context) {
		room, ok := eventlog.ParseRoomSlug(c.Param("room"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		if room == eventlog.RoomLunch {
			c.JSON(http.StatusOK, gin.H{"room": string(room), "count": svc.LunchCount()})
			return
		}
		presence, err := svc.PresentInRoom(room)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, presence)
	})

	api.GET("/headcount", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.HeadCounts())
	})

	api.GET("/students/available", func(c *gin.Context) {
		students, warnings := svc.AvailableStudents()
		c.JSON(http.StatusOK, gin.H{"students": students, "warnings": warnings})
	})

	// Statistics.
	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Statistics())
	})

	api.GET("/stats/:room", func(c *gin.Context) {
		room, ok := eventlog.ParseRoomSlug(c.Param("room"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		c.JSON(http.StatusOK, svc.RoomStatistics(room))
	})

	// Lunch tally.
	api.GET("/lunch", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": svc.LunchCount()})
	})

	api.POST("/lunch/increment", func(c *gin.Context) {
		n, err := svc.LunchIncrement(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	})

	api.POST("/lunch/reset", func(c *gin.Context) {
		if err := svc.LunchReset(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": 0})
	})

	// Reason taxonomy.
	api.GET("/reasons", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"entry": svc.Taxonomy().EntryReasons(),
			"exit":  svc.Taxonomy().ExitReasons(),
		})
	})

	api.PUT("/reasons", func(c *gin.Context) {
		var req struct {
			Entry []string `json:"entry"`
			Exit  []string `json:"exit"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Taxonomy().Replace(req.Entry, req.Exit); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"entry": svc.Taxonomy().EntryReasons(),
			"exit":  svc.Taxonomy().ExitReasons(),
		})
	})

	api.POST("/reasons/import", func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
			return
		}
		if err := svc.Taxonomy().ImportCSV(string(body)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"entry": svc.Taxonomy().EntryReasons(),
			"exit":  svc.Taxonomy().ExitReasons(),
		})
	})

	api.POST("/reasons/reset", func(c *gin.Context) {
		if err := svc.Taxonomy().ResetDefaults(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"entry": svc.Taxonomy().EntryReasons(),
			"exit":  svc.Taxonomy().ExitReasons(),
		})
	})

	// Roster.
	api.GET("/roster", func(c *gin.Context) {
		students, err := svc.Roster().List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	api.PUT("/roster", func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 32<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
			return
		}
		students, err := svc.Roster().ImportCSV(string(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"imported": len(students)})
	})

	api.GET("/roster/export", func(c *gin.Context) {
		csv, err := svc.Roster().ExportCSV()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="students.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
	})

	api.POST("/roster/students", func(c *gin.Context) {
		var st roster.Student
		if err := c.ShouldBindJSON(&st); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Roster().Add(st); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, st)
	})

	api.DELETE("/roster/students", func(c *gin.Context) {
		var st roster.Student
		if err := c.ShouldBindJSON(&st); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Roster().Remove(st); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.DELETE("/roster", func(c *gin.Context) {
		if err := svc.Roster().Clear(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Log maintenance.
	api.GET("/log/export", func(c *gin.Context) {
		csv, err := svc.Log().Export()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(svc.Log().Path())+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
	})

	api.GET("/log/count", func(c *gin.Context) {
		n, err := svc.Log().RowCount()
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"rows": 0, "warning": "log unreadable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": n})
	})

	api.DELETE("/log", func(c *gin.Context) {
		if err := svc.ClearLog(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Sync status and counts.
	api.GET("/sync/status", func(c *gin.Context) {
		if svc.Sync() == nil {
			c.JSON(http.StatusOK, gin.H{"enabled": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": true, "status": svc.Sync().Status()})
	})

	api.GET("/sync/counts", func(c *gin.Context) {
		counts, err := svc.PullCounts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, counts)
	})

	api.POST("/sync/push", func(c *gin.Context) {
		if err := svc.PushCounts(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pushed": true})
	})

	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, wellbeing.ErrAlreadyPresent):
		return http.StatusConflict
	case errors.Is(err, wellbeing.ErrNotPresent):
		return http.StatusConflict
	case errors.Is(err, wellbeing.ErrInvalidRoom):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
