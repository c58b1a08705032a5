package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/quocanhngo/managex/internal/config"
	"github.com/quocanhngo/managex/internal/database"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/repository"
	"github.com/quocanhngo/managex/internal/service"
	"github.com/quocanhngo/managex/migrations"
	"github.com/quocanhngo/managex/pkg/auth"
	"github.com/quocanhngo/managex/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultAdminEmail    = "admin@managex.local"
	defaultAdminPassword = "password123"
	demoDevices          = 5
)

func main() {
	rollback := flag.Bool("rollback", false, "Revert the last PostgreSQL migration and exit")
	flag.Parse()

	cfg := config.Load()
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize logger")
	}
	log := logger.WithComponent("seeder")

	if *rollback {
		if cfg.DB.Driver != "postgres" {
			log.Fatal().Str("driver", cfg.DB.Driver).Msg("rollback only applies to postgres migrations")
		}
		if err := migrations.Rollback(cfg.DB.URL(), logger.WithComponent("migrations")); err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		return
	}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.DB.Driver == "sqlite" {
		db, err = database.OpenSQLite(cfg.DB.Path)
	} else {
		db, err = database.OpenPostgres(cfg.DB.DSN(), true)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("connected to database")

	ctx := context.Background()

	email, password := cfg.Admin.Email, cfg.Admin.Password
	if email == "" || password == "" {
		email, password = defaultAdminEmail, defaultAdminPassword
	}

	admins := service.NewAdminService(repository.NewAdminRepository(db),
		auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry), auth.NewMemoryRevoker(), log)
	if err := admins.EnsureAdmin(ctx, email, password); err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin")
	}
	log.Info().Str("email", email).Msg("admin ready")

	// Demo devices, seen a minute ago. Their tokens are printed once.
	tokens := auth.NewDeviceTokens(cfg.Device.TokenSecret)
	devices := repository.NewDeviceRepository(db)
	seen := time.Now().UTC().Add(-time.Minute)

	for i := 1; i <= demoDevices; i++ {
		id := fmt.Sprintf("DEMO-%02d", i)
		token, err := tokens.Issue(id)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}

		err = devices.UpsertRegistration(ctx, &model.Device{
			DeviceID:  id,
			Username:  fmt.Sprintf("user%d", i),
			OS:        "Windows 11 Pro",
			Model:     "Demo Laptop",
			TokenHash: auth.HashToken(token),
			Online:    true,
			LastSeen:  &seen,
		})
		if err != nil {
			log.Error().Err(err).Str("device_id", id).Msg("failed to seed device")
			continue
		}
		fmt.Printf("%s\t%s\n", id, token)
	}

	log.Info().Int("devices", demoDevices).Msg("seeding complete")
}
