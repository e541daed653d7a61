// FixtureCast schedules push notifications for upcoming fixtures on an
// external campaign-delivery platform and keeps both sides converged.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/matchops/fixturecast/app/handlers"
	"github.com/matchops/fixturecast/app/middleware"
	"github.com/matchops/fixturecast/app/router"
	"github.com/matchops/fixturecast/app/scheduler"
	"github.com/matchops/fixturecast/app/services"
	businessflow "github.com/matchops/fixturecast/business_flow"
	"github.com/matchops/fixturecast/config"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application holds the wired components
type Application struct {
	router    router.Router
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting FixtureCast application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers before closing the server
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	// TranslateError is required: the ledger reservation protocol relies on
	// gorm.ErrDuplicatedKey from the partial unique index
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Redis connection established")
	return rc, nil
}

func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires the full dependency graph
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	var stopFuncs []func()
	if redisClient != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), redisClient, cfg.Cache.PingPeriod))
	}

	// Repositories
	fixtureRepo := repository.NewFixtureRepository(db)
	ledgerRepo := repository.NewNotificationLedgerRepository(db)
	lockRepo := repository.NewScheduleLockRepository(db)
	confirmationRepo := repository.NewDeliveryConfirmationRepository(db)
	outcomeRepo := repository.NewRunOutcomeRepository(db)
	notableRepo := repository.NewNotableParticipantRepository(db)
	aliasRepo := repository.NewParticipantAliasRepository(db)
	translationRepo := repository.NewTranslationRepository(db)

	// Services
	audienceService := services.NewAudienceService(notableRepo, aliasRepo, redisClient, &cfg.Cache)
	localizationService := services.NewLocalizationService(translationRepo, redisClient, &cfg.Cache)
	tokenService, err := services.NewTokenService(cfg.JWT.SecretKey, cfg.JWT.AccessTokenTTL, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Scheduler engine
	runLogger := scheduler.NewRunLogger(cfg.Logging)
	platformClient := scheduler.NewHTTPPlatformClient(cfg.Platform)

	convergence := scheduler.NewConvergenceScheduler(
		fixtureRepo, ledgerRepo, outcomeRepo, lockRepo,
		audienceService, localizationService, platformClient,
		cfg.Scheduler, cfg.Platform.SourceTag, runLogger,
	)
	reconciler := scheduler.NewReconciler(
		ledgerRepo, outcomeRepo, lockRepo, platformClient,
		cfg.Scheduler, cfg.Platform.SourceTag, runLogger,
	)
	verifier := scheduler.NewVerifier(
		ledgerRepo, confirmationRepo, outcomeRepo, lockRepo, platformClient,
		cfg.Scheduler, cfg.Platform.SourceTag, cfg.Webhook.CorrelationWindow, runLogger,
	)
	gapDetector := scheduler.NewGapDetector(
		fixtureRepo, ledgerRepo, outcomeRepo, lockRepo,
		audienceService, convergence, cfg.Scheduler, runLogger,
	)

	if cfg.Scheduler.Enabled {
		runner := scheduler.NewRunner(cfg.Scheduler, convergence, reconciler, verifier, gapDetector, runLogger)
		if err := runner.Start(); err != nil {
			return nil, fmt.Errorf("failed to start scheduler runner: %w", err)
		}
		stopFuncs = append(stopFuncs, func() { <-runner.Stop().Done() })
	} else {
		log.Println("Scheduler disabled; background runs will not execute")
	}

	// Business flows
	webhookFlow := businessflow.NewWebhookFlow(ledgerRepo, confirmationRepo, outcomeRepo, db, cfg.Webhook.CorrelationWindow, runLogger)
	ledgerFlow := businessflow.NewLedgerFlow(fixtureRepo, ledgerRepo, platformClient, convergence, runLogger)
	runFlow := businessflow.NewRunFlow(convergence, reconciler, verifier, gapDetector,
		outcomeRepo, platformClient, localizationService, cfg.Platform.SourceTag, runLogger)

	// HTTP layer
	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	webhookHandler := handlers.NewWebhookHandler(webhookFlow)
	ledgerHandler := handlers.NewLedgerHandler(ledgerFlow)
	runHandler := handlers.NewRunHandler(runFlow)

	r := router.NewFiberRouter(cfg, authMiddleware, webhookHandler, ledgerHandler, runHandler)

	return &Application{
		router:    r,
		server:    r.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
