package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hmis/hmis/internal/config"
	"github.com/hmis/hmis/internal/domain/antenatal"
	"github.com/hmis/hmis/internal/domain/birth"
	"github.com/hmis/hmis/internal/domain/death"
	"github.com/hmis/hmis/internal/domain/immunization"
	"github.com/hmis/hmis/internal/domain/patient"
	"github.com/hmis/hmis/internal/domain/surveillance"
	syncdomain "github.com/hmis/hmis/internal/domain/sync"
	"github.com/hmis/hmis/internal/domain/user"
	"github.com/hmis/hmis/internal/platform/auth"
	"github.com/hmis/hmis/internal/platform/db"
	"github.com/hmis/hmis/internal/platform/middleware"
	"github.com/hmis/hmis/internal/platform/reporting"
	"github.com/hmis/hmis/internal/platform/webhook"
)

// webhookPublisher adapts the webhook manager to the sync event publisher,
// avoiding a direct dependency from the sync package on the webhook layer.
type webhookPublisher struct {
	manager *webhook.Manager
	logger  zerolog.Logger
}

func (p *webhookPublisher) Publish(ctx context.Context, event string, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	results := p.manager.Deliver(ctx, webhook.Event{
		ID:        uuid.NewString(),
		Type:      event,
		Payload:   raw,
		Timestamp: time.Now(),
	})
	for _, r := range results {
		if !r.Success {
			p.logger.Warn().Str("endpoint", r.EndpointID).Str("event", event).
				Str("error", r.Error).Msg("webhook delivery failed")
		}
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hmis-server",
		Short: "HMIS API server with offline device sync",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HMIS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSec) * time.Second))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.SyncUploadLimit))
	e.Use(middleware.Audit(logger))

	// Staff auth middleware, applied per group so the device token exchange
	// endpoint stays reachable with only a device secret.
	var userAuth echo.MiddlewareFunc
	if cfg.IsDev() {
		userAuth = auth.DevAuthMiddleware()
	} else {
		userAuth = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: []byte(cfg.JWTSecret),
		})
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", db.HealthHandler(pool))

	// -- Domain services --

	userRepo := user.NewUserRepoPG(pool)
	userSvc := user.NewService(userRepo)
	directory := user.NewDirectory(userSvc)

	patientRepo := patient.NewPatientRepoPG(pool)
	patientSvc := patient.NewService(patientRepo)

	birthRepo := birth.NewBirthRepoPG(pool)
	birthSvc := birth.NewService(birthRepo)

	deathRepo := death.NewDeathRepoPG(pool)
	deathSvc := death.NewService(deathRepo)

	antenatalRepo := antenatal.NewVisitRepoPG(pool)
	antenatalSvc := antenatal.NewService(antenatalRepo)

	immRepo := immunization.NewImmunizationRepoPG(pool)
	immSvc := immunization.NewService(immRepo)

	surveilRepo := surveillance.NewCaseRepoPG(pool)
	surveilSvc := surveillance.NewService(surveilRepo)

	// -- Sync subsystem --

	engine := syncdomain.NewEngine()
	engine.Register(patient.NewSyncStore(patientSvc))
	engine.Register(birth.NewSyncStore(birthSvc))
	engine.Register(death.NewSyncStore(deathSvc))
	engine.Register(antenatal.NewSyncStore(antenatalSvc))
	engine.Register(immunization.NewSyncStore(immSvc))
	engine.Register(surveillance.NewSyncStore(surveilSvc))

	webhookManager := webhook.NewManager(webhook.NewEndpointRepoPG(pool), webhook.NewDeliveryRepoPG(pool), logger)
	publisher := &webhookPublisher{manager: webhookManager, logger: logger}

	patientSvc.SetEvents(publisher)
	birthSvc.SetEvents(publisher)
	deathSvc.SetEvents(publisher)
	antenatalSvc.SetEvents(publisher)
	immSvc.SetEvents(publisher)
	surveilSvc.SetEvents(publisher)

	deviceRepo := syncdomain.NewDeviceRepoPG(pool)
	recordRepo := syncdomain.NewRecordRepoPG(pool)
	sessionRepo := syncdomain.NewSessionRepoPG(pool)

	registry := syncdomain.NewRegistry(deviceRepo, directory, logger)
	tokens := syncdomain.NewTokenService(deviceRepo, directory,
		[]byte(cfg.ResolvedDeviceTokenSecret()),
		time.Duration(cfg.DeviceTokenTTL)*24*time.Hour)
	orchestrator := syncdomain.NewOrchestrator(deviceRepo, recordRepo, sessionRepo, engine, pool, publisher, logger)
	resolver := syncdomain.NewResolver(deviceRepo, recordRepo, engine, pool, logger)

	syncHandler := syncdomain.NewHandler(registry, tokens, orchestrator, resolver)
	syncHandler.RegisterRoutes(apiV1, userAuth)

	// -- Entity routes (staff JWT required) --

	secured := apiV1.Group("", userAuth)
	patient.NewHandler(patientSvc).RegisterRoutes(secured)
	birth.NewHandler(birthSvc).RegisterRoutes(secured)
	death.NewHandler(deathSvc).RegisterRoutes(secured)
	antenatal.NewHandler(antenatalSvc).RegisterRoutes(secured)
	immunization.NewHandler(immSvc).RegisterRoutes(secured)
	surveillance.NewHandler(surveilSvc).RegisterRoutes(secured)
	user.NewHandler(userSvc).RegisterRoutes(secured)

	reporting.NewHandler(pool).RegisterRoutes(secured)

	webhook.NewHandler(webhookManager).RegisterRoutes(secured.Group("/webhooks", auth.RequireRole("admin")))

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
