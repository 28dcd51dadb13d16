package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fiocam/panel/internal/app"
	"github.com/fiocam/panel/internal/auth"
	"github.com/fiocam/panel/internal/consumption"
	"github.com/fiocam/panel/internal/home"
	"github.com/fiocam/panel/internal/locations"
	"github.com/fiocam/panel/internal/materials"
	"github.com/fiocam/panel/internal/observability"
	"github.com/fiocam/panel/internal/photos"
	"github.com/fiocam/panel/internal/plans"
	"github.com/fiocam/panel/internal/platform/cache"
	"github.com/fiocam/panel/internal/platform/db"
	"github.com/fiocam/panel/internal/platform/storage"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/sites"
	"github.com/fiocam/panel/internal/users"
	"github.com/fiocam/panel/internal/view"
	"github.com/fiocam/panel/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	loc := cfg.Location()

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	objects, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.StorageEndpoint,
		Region:    cfg.StorageRegion,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
	})
	if err != nil {
		logger.Error("init object storage", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "panel_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	resolver := rbac.NewResolver(rbac.ResolverConfig{
		Lookup:   rbac.NewPGRoleLookup(dbpool),
		Cache:    redisClient,
		CacheTTL: cfg.RBACRoleCacheTTL,
		Timeout:  cfg.RBACResolveTimeout,
		Logger:   logger,
	})
	guard := rbac.NewGuard(rbac.DefaultTable(), cfg.Matcher(), rbac.DefaultDeniedPath)
	gate := rbac.Gate{
		Resolver: resolver,
		Guard:    guard,
		Nav:      rbac.NewFilter(guard, rbac.DefaultNav()),
		Logger:   logger,
		Recorder: metrics,
	}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, resolver)

	usersService := users.NewService(users.NewRepository(dbpool), authService, resolver, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager)
	homeHandler := home.NewHandler(logger, usersService, templates, csrfManager, loc, guard.DeniedPath())

	sitesService := sites.NewService(sites.NewRepository(dbpool), objects, sites.Buckets{
		Photos:   cfg.PhotosBucket,
		Plans:    cfg.PlansBucket,
		PhotoTTL: cfg.PhotoURLTTL,
		PlanTTL:  cfg.PlanURLTTL,
	}, auditLogger, logger)
	sitesHandler := sites.NewHandler(logger, sitesService, templates, csrfManager)

	materialsService := materials.NewService(materials.NewRepository(dbpool), auditLogger, logger)
	materialsHandler := materials.NewHandler(logger, materialsService, templates, csrfManager)

	consumptionService := consumption.NewService(consumption.NewRepository(dbpool), auditLogger, logger)
	consumptionHandler := consumption.NewHandler(logger, consumptionService, templates, csrfManager)

	photosService := photos.NewService(photos.NewRepository(dbpool), objects, objects, photos.Options{
		Bucket:   cfg.PhotosBucket,
		TTL:      cfg.PhotoURLTTL,
		Location: loc,
	}, logger)
	photosHandler := photos.NewHandler(logger, photosService, templates, csrfManager)

	plansService := plans.NewService(plans.NewRepository(dbpool), objects, cfg.PlansBucket, cfg.PlanURLTTL)
	plansHandler := plans.NewHandler(logger, plansService, templates, csrfManager)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts, time.Duration(cfg.TrackingSteps)*cfg.TrackingInterval)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	locationsService := locations.NewService(locations.NewRepository(dbpool))
	locationsHandler := locations.NewHandler(logger, locationsService, jobClient, templates, csrfManager)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Gate:               gate,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		HomeHandler:        homeHandler,
		UsersHandler:       usersHandler,
		SitesHandler:       sitesHandler,
		MaterialsHandler:   materialsHandler,
		ConsumptionHandler: consumptionHandler,
		PhotosHandler:      photosHandler,
		PlansHandler:       plansHandler,
		LocationsHandler:   locationsHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
