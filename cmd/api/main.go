package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"residency/internal/audit"
	"residency/internal/auth"
	"residency/internal/config"
	"residency/internal/directory"
	"residency/internal/evaluation"
	"residency/internal/handler"
	"residency/internal/httpmiddleware"
	"residency/internal/queue"
	"residency/internal/report"
	"residency/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "residency:notifications")
	}

	audits := audit.NewLog(db.Client)
	dirService := directory.NewService(directory.NewRepository(db.Client), audits)
	evalService := evaluation.NewService(evaluation.NewRepository(db.Client))
	reportService := report.NewService(evalService, dirService)
	revoker := auth.NewRedisRevoker(redisClient.Client)

	h := handler.New(cfg, dirService, evalService, reportService, audits, revoker, q)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", h.Login)

	authed := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer, revoker, dirService.IsActive))
	authed.POST("/auth/logout", h.Logout)

	admin := authed.Group("/admin", auth.RequireRoles(directory.RoleHOD))
	admin.POST("/batches", h.CreateBatch)
	admin.GET("/batches", h.ListBatches)
	admin.POST("/batches/:batchId/archive", h.ArchiveBatch)
	admin.DELETE("/batches/:batchId", h.DeleteBatch)
	admin.POST("/faculty", h.CreateFaculty)
	admin.PUT("/faculty/:id", h.UpdateFaculty)
	admin.DELETE("/faculty/:id", h.DeleteFaculty)
	admin.GET("/faculty", h.ListFaculty)
	admin.GET("/interns", h.ListInterns)
	admin.PUT("/users/:id/active", h.SetUserActive)
	admin.GET("/audit", h.ListAudit)
	admin.GET("/export/batch/:batchId", h.ExportBatch)
	admin.GET("/export/intern/:internId", h.ExportIntern)

	authed.GET("/performance/:internId", auth.RequireRoles(directory.RoleHOD), h.Performance)

	registerModule(authed, h, "surgery")
	registerModule(authed, h, "wetlab")
	registerModule(authed, h, "academic")

	opd := authed.Group("/opd/:moduleCode")
	opd.POST("/:internId/attempts", auth.RequireRoles(directory.RoleFaculty, directory.RoleHOD), h.SubmitAttempt(opdModuleCode))
	opd.PUT("/:internId/attempts/:n", auth.RequireRoles(directory.RoleFaculty, directory.RoleHOD), h.EditAttempt(opdModuleCode))
	opd.GET("/:internId", h.GetContainer(opdModuleCode))
	opd.GET("/:internId/streak", h.GetStreak)
	opd.POST("/:internId/attempts/:n/acknowledge", auth.RequireRoles(directory.RoleIntern), h.AcknowledgeAttempt(opdModuleCode))

	r.StaticFile("/", cfg.WebDir+"/index.html")
	r.Static("/static", cfg.WebDir+"/static")

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func registerModule(authed *gin.RouterGroup, h *handler.Handler, code string) {
	g := authed.Group("/" + code)
	g.POST("/:internId/attempts", auth.RequireRoles(directory.RoleFaculty, directory.RoleHOD), h.SubmitAttempt(fixedModuleCode(code)))
	g.PUT("/:internId/attempts/:n", auth.RequireRoles(directory.RoleFaculty, directory.RoleHOD), h.EditAttempt(fixedModuleCode(code)))
	g.GET("/:internId", h.GetContainer(fixedModuleCode(code)))
	g.POST("/:internId/attempts/:n/acknowledge", auth.RequireRoles(directory.RoleIntern), h.AcknowledgeAttempt(fixedModuleCode(code)))
}

func fixedModuleCode(code string) func(*gin.Context) string {
	return func(*gin.Context) string { return code }
}

func opdModuleCode(c *gin.Context) string {
	return "opd:" + c.Param("moduleCode")
}

// CORS middleware for browser requests
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

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
