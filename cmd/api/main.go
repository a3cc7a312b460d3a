package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nutriadmin/admin-api/internal/config"
	"github.com/nutriadmin/admin-api/internal/handler"
	measurementHandler "github.com/nutriadmin/admin-api/internal/handler/measurement"
	"github.com/nutriadmin/admin-api/internal/middleware"
	"github.com/nutriadmin/admin-api/internal/repository/postgres"
	"github.com/nutriadmin/admin-api/internal/router"
	measurementService "github.com/nutriadmin/admin-api/internal/service/measurement"
	"github.com/nutriadmin/admin-api/internal/spreadsheet"
	"github.com/nutriadmin/admin-api/pkg/auth"
	"github.com/nutriadmin/admin-api/pkg/logger"
	"github.com/nutriadmin/admin-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	if cfg.JWT.Secret == "" {
		appLogger.Fatal(nil, "jwt.secret must be set")
	}

	layout, err := cfg.Spreadsheet.Layout()
	if err != nil {
		appLogger.Fatal(err, "invalid spreadsheet layout")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	importStore := postgres.NewImportStore(baseRepo)
	queryRepo := postgres.NewMeasurementQueryRepository(baseRepo)

	// Initialize services
	appMetrics := metrics.NewMetrics(cfg.Metrics.Namespace, "import", nil)
	measurementSvc := measurementService.NewService(
		importStore,
		queryRepo,
		spreadsheet.NewParser(layout),
		appLogger,
		appMetrics,
	)

	// Initialize handlers
	h := handler.NewHandler(db, nil)
	measurementH := measurementHandler.NewHandler(measurementSvc, cfg.Upload.MaxBytes)
	authMiddleware := middleware.NewAuthMiddleware(
		auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL),
	)

	r, err := router.NewRouter(authMiddleware, h, measurementH, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		RateClientTTL:    cfg.RateLimit.ClientTTL,
		MaxUploadBytes:   cfg.Upload.MaxBytes,
		RequestTimeout:   time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		MetricsPrefix:    cfg.Metrics.Namespace + "_http",
	})
	if err != nil {
		appLogger.Fatal(err, "failed to build router")
	}
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal(err, "server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}
