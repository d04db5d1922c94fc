package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tallerpro/taller-erp/internal/config"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/handler"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/service"
	"github.com/tallerpro/taller-erp/internal/middleware"
	"github.com/tallerpro/taller-erp/internal/shared/dte"
	"github.com/tallerpro/taller-erp/internal/shared/notify"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting taller-erp service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Fatal("Database migration failed", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	rdb := initRedis(cfg.Redis)

	builder := dte.NewClient(cfg.SII.BaseURL, cfg.SII.APIKey, cfg.SII.APISecret)

	var archiver *dte.Archiver
	if cfg.MinIO.Endpoint != "" {
		archiver, err = dte.NewArchiver(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
		if err != nil {
			zapLogger.Fatal("Failed to init document archiver", zap.Error(err))
		}
	} else {
		zapLogger.Warn("MinIO not configured, document archiving disabled")
	}

	notifier := notify.NewNotifier(cfg.Notify.WebhookURL)

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, db, rdb, builder, archiver, notifier, zapLogger)
	handlers := handler.NewHandlers(services)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		quotations := authorized.Group("/quotations")
		{
			quotations.POST("", h.Quotation.Create)
			quotations.GET("", h.Quotation.List)
			quotations.GET("/:id", h.Quotation.Get)
			quotations.POST("/:id/send", h.Quotation.Send)
			quotations.POST("/:id/approve", h.Quotation.Approve)
			quotations.POST("/:id/reject", h.Quotation.Reject)
			quotations.POST("/:id/convert", h.Quotation.Convert)
			quotations.GET("/:id/pipeline", h.Pipeline.Status)
		}

		workOrders := authorized.Group("/work-orders")
		{
			workOrders.GET("", h.WorkOrder.List)
			workOrders.GET("/:id", h.WorkOrder.Get)
			workOrders.POST("/:id/dispatch", h.WorkOrder.Dispatch)
			workOrders.POST("/:id/complete", h.WorkOrder.Complete)
			workOrders.GET("/:id/invoice-check", h.WorkOrder.ValidateInvoice)
			workOrders.POST("/:id/invoice", h.WorkOrder.Invoice)
		}

		invoices := authorized.Group("/invoices")
		{
			invoices.GET("", h.Invoice.List)
			invoices.GET("/:id", h.Invoice.Get)
		}

		authorized.POST("/caf-folios", middleware.RequireRole("taller_admin"), h.Invoice.RegisterCaf)

		inventory := authorized.Group("/inventory")
		{
			inventory.GET("", h.Inventory.List)
			inventory.POST("", h.Inventory.Create)
			inventory.GET("/movements", h.Inventory.Movements)
			inventory.GET("/movements/export", h.Inventory.ExportMovements)
			inventory.GET("/:id", h.Inventory.Get)
			inventory.PUT("/:id", h.Inventory.Update)
			inventory.POST("/receive", h.Inventory.Receive)
			inventory.POST("/adjust", h.Inventory.Adjust)
		}
	}
}
