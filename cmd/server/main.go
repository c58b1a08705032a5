package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/managex/internal/config"
	"github.com/quocanhngo/managex/internal/database"
	"github.com/quocanhngo/managex/internal/fanout"
	"github.com/quocanhngo/managex/internal/handler"
	"github.com/quocanhngo/managex/internal/middleware"
	"github.com/quocanhngo/managex/internal/presence"
	"github.com/quocanhngo/managex/internal/repository"
	"github.com/quocanhngo/managex/internal/service"
	"github.com/quocanhngo/managex/migrations"
	"github.com/quocanhngo/managex/pkg/auth"
	"github.com/quocanhngo/managex/pkg/geo"
	"github.com/quocanhngo/managex/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// @title           ManageX API
// @version         1.0
// @description     Device fleet presence, remote lock commands and software usage telemetry.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize logger")
	}
	log := logger.WithComponent("server")
	log.Info().Str("env", cfg.App.Env).Msg("starting ManageX API server")

	production := cfg.App.Env == "production"

	// ==================== Database ====================
	db := openDatabase(cfg, production, log)

	// ==================== Redis ====================
	rdb := connectRedis(cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	// ==================== Fanout ====================
	broker, closeBroker := newBroker(cfg, rdb)
	defer closeBroker()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if runner, ok := broker.(fanout.Runner); ok {
		go runner.Run(bgCtx)
	}

	// ==================== Geolocation ====================
	var locator geo.Locator = geo.Noop{}
	if cfg.Geo.DBPath != "" {
		mm, err := geo.OpenMaxMind(cfg.Geo.DBPath)
		if err != nil {
			log.Warn().Err(err).Msg("ip geolocation disabled")
		} else {
			defer mm.Close()
			locator = mm
			log.Info().Str("path", cfg.Geo.DBPath).Msg("ip geolocation enabled")
		}
	}

	// ==================== Initialize Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if rdb != nil {
		revoker = auth.NewRedisRevoker(rdb)
	}

	// Repositories
	deviceRepo := repository.NewDeviceRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	adminRepo := repository.NewAdminRepository(db)

	// Services
	evaluator := presence.NewEvaluator(cfg.Presence.Window, nil)
	deviceService := service.NewDeviceService(deviceRepo, usageRepo,
		auth.NewDeviceTokens(cfg.Device.TokenSecret), evaluator, broker, locator, cfg.Geo.Timeout,
		logger.WithComponent("devices"))
	commandService := service.NewCommandService(deviceRepo, broker, logger.WithComponent("commands"))
	usageService := service.NewUsageService(usageRepo, cfg.Usage.Aliases, nil, logger.WithComponent("usage"))
	adminService := service.NewAdminService(adminRepo, jwtManager, revoker, logger.WithComponent("admin"))

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := adminService.EnsureAdmin(context.Background(), cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatal().Err(err).Msg("failed to seed admin account")
		}
	}

	// Presence sweeper
	sweeper := presence.NewSweeper(deviceRepo, broker, evaluator, cfg.Presence.SweepInterval,
		logger.WithComponent("sweeper"))
	go sweeper.Run(bgCtx)

	// ==================== Gin Router ====================
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	httpLog := logger.WithComponent("http")
	router := handler.NewRouter(handler.Routes{
		Auth:        handler.NewAuthHandler(adminService),
		Device:      handler.NewDeviceHandler(deviceService, commandService),
		Usage:       handler.NewUsageHandler(usageService),
		WS:          handler.NewWSHandler(broker, cfg.CORS.Origins, logger.WithComponent("ws")),
		AdminAuth:   middleware.AdminAuth(jwtManager, revoker, httpLog),
		AdminWSAuth: middleware.AdminAuthQuery(jwtManager, revoker, httpLog),
		DeviceAuth:  middleware.DeviceAuth(deviceService, httpLog),
	}, cfg.CORS.Origins, httpLog)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("fanout", cfg.Fanout.Backend).
		Str("db", cfg.DB.Driver).
		Msg("ManageX API listening")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	bgCancel()
	log.Info().Msg("server exited")
}

func openDatabase(cfg *config.Config, production bool, log zerolog.Logger) *gorm.DB {
	if cfg.DB.Driver == "sqlite" {
		db, err := database.OpenSQLite(cfg.DB.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open sqlite database")
		}
		if err := database.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		log.Info().Str("path", cfg.DB.Path).Msg("using sqlite database")
		return db
	}

	db, err := database.OpenPostgres(cfg.DB.DSN(), production)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().Msg("connected to PostgreSQL")

	if err := migrations.Run(cfg.DB.URL(), logger.WithComponent("migrations")); err != nil {
		log.Warn().Err(err).Msg("migration failed, falling back to GORM AutoMigrate")
		if err := database.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}
	return db
}

// connectRedis returns nil when Redis is not needed or not reachable. Only
// the redis fanout backend treats an unreachable server as fatal.
func connectRedis(cfg *config.Config, log zerolog.Logger) *redis.Client {
	if cfg.Fanout.Backend == "memory" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		if cfg.Fanout.Backend == "redis" {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		log.Warn().Err(err).Msg("redis unavailable, token revocation kept in memory")
		_ = rdb.Close()
		return nil
	}

	log.Info().Str("addr", cfg.Redis.Addr()).Msg("connected to Redis")
	return rdb
}

// newBroker selects the fanout backend
func newBroker(cfg *config.Config, rdb *redis.Client) (fanout.Broker, func()) {
	log := logger.WithComponent("fanout")

	switch cfg.Fanout.Backend {
	case "nats":
		nc, err := fanout.ConnectNATS(cfg.NATS.URL, log)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect to NATS")
		}
		return fanout.NewNATSRelay(nc, log), nc.Close
	case "redis":
		return fanout.NewRedisRelay(rdb, log), func() {}
	case "memory":
		return fanout.NewLocal(log), func() {}
	default:
		log.Fatal().Str("backend", cfg.Fanout.Backend).Msg("unknown FANOUT_BACKEND (memory, redis, nats)")
		return nil, nil
	}
}
