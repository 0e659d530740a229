package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caregraph/caregraph/internal/config"
	"github.com/caregraph/caregraph/internal/domain/accounts"
	"github.com/caregraph/caregraph/internal/domain/family"
	"github.com/caregraph/caregraph/internal/domain/grants"
	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/domain/lifecycle"
	"github.com/caregraph/caregraph/internal/domain/records"
	"github.com/caregraph/caregraph/internal/platform/auth"
	"github.com/caregraph/caregraph/internal/platform/blobstore"
	"github.com/caregraph/caregraph/internal/platform/db"
	"github.com/caregraph/caregraph/internal/platform/middleware"
	"github.com/caregraph/caregraph/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caregraph-server",
		Short: "Patient access and linked accounts API server",
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
		Short: "Start the API server",
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
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	signingKey := []byte(cfg.SessionSigningKey)
	if len(signingKey) == 0 {
		// Development only; Validate rejects a missing key elsewhere. A random
		// key means switched sessions do not survive a restart.
		buf := make([]byte, 32)
		if _, err := crypto_rand.Read(buf); err != nil {
			logger.Fatal().Err(err).Msg("failed to generate session signing key")
		}
		signingKey = []byte(hex.EncodeToString(buf))
		logger.Warn().Msg("SESSION_SIGNING_KEY not set; using an ephemeral random key")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Object storage
	var blobs blobstore.Store
	switch cfg.BlobBackend {
	case "s3":
		s3Store, err := blobstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize S3 blob store")
		}
		blobs = s3Store
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("using S3 blob store")
	default:
		blobs = blobstore.NewMemoryStore()
		logger.Warn().Msg("using in-memory blob store; attachments do not survive a restart")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M", "100M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: signingKey,
		}))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// -- Wire domain services --

	txRunner := db.NewTxRunner(pool)
	issuer := auth.NewTokenIssuer(signingKey, cfg.AuthIssuer, time.Hour)

	identitySvc := identity.NewService(identity.NewUserRepoPG(pool))
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	var emailSender notification.EmailSender = notification.LogEmailSender{Log: logger}
	if cfg.EmailBackend == "ses" {
		ses, err := notification.NewSESEmailSender(ctx, cfg.SESFromAddress, cfg.SESFromName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize SES email sender")
		}
		emailSender = ses
		logger.Info().Str("from", cfg.SESFromAddress).Msg("using SES email sender")
	}
	mailer := notification.NewManager(
		emailSender,
		notification.LogSMSSender{Log: logger},
		notification.NewTemplateEngine(),
	)

	familyRepo := family.NewRepoPG(pool)
	familyNotifier := family.NewMailNotifier(mailer, familyRepo, identitySvc,
		logger.With().Str("component", "family").Logger())
	familySvc := family.NewService(familyRepo, identitySvc, txRunner, familyNotifier)
	family.NewHandler(familySvc).RegisterRoutes(apiV1)

	grantTTL := time.Duration(cfg.GrantDefaultTTLHours) * time.Hour
	grantsNotifier := grants.NewMailNotifier(mailer, identitySvc,
		logger.With().Str("component", "grants").Logger())
	grantsSvc := grants.NewService(grants.NewRepoPG(pool), identitySvc, txRunner, grantTTL, grantsNotifier)
	grants.NewHandler(grantsSvc).RegisterRoutes(apiV1)

	accountsSvc := accounts.NewService(accounts.NewRepoPG(pool), identitySvc, txRunner, issuer)
	accounts.NewHandler(accountsSvc).RegisterRoutes(apiV1)

	recordsSvc := records.NewService(records.NewRepoPG(pool), grantsSvc, blobs, txRunner,
		logger.With().Str("component", "records").Logger())
	records.NewHandler(recordsSvc).RegisterRoutes(apiV1)

	lifecycleLog := logger.With().Str("component", "lifecycle").Logger()
	coordinator := lifecycle.NewCoordinator(identitySvc, recordsSvc, grantsSvc, familySvc,
		accountsSvc, lifecycle.LoggingCredentialStore{Log: logger},
		lifecycle.NewMailNotifier(mailer, lifecycleLog), lifecycleLog)
	lifecycle.NewHandler(coordinator).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	return nil
}
