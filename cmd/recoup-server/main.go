package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/recoup/recoup/internal/config"
	"github.com/recoup/recoup/internal/domain/assignment"
	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/document"
	"github.com/recoup/recoup/internal/domain/draftclaim"
	"github.com/recoup/recoup/internal/domain/illness"
	"github.com/recoup/recoup/internal/platform/auth"
	"github.com/recoup/recoup/internal/platform/db"
	"github.com/recoup/recoup/internal/platform/ingest"
	"github.com/recoup/recoup/internal/platform/middleware"
	"github.com/recoup/recoup/internal/platform/scheduler"
	"github.com/recoup/recoup/internal/platform/submit"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "recoup-server",
		Short: "Reimbursement tracker for medical insurance claims",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(generateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env := os.Getenv("ENV"); env == "development" || env == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// application is the wired service graph shared by the server and the
// one-shot CLI commands.
type application struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *pgxpool.Pool // nil when running on the in-memory store
	ping      func(context.Context) error
	docs      *document.Service
	claims    *claim.Service
	illnesses *illness.Service
	matching  *assignment.Service
	drafts    *draftclaim.Service
	sched     *scheduler.Scheduler
}

// newApplication wires repositories, services, and the scheduler. With
// DATABASE_URL set the graph runs on Postgres; otherwise everything lives
// in memory and vanishes on exit, which is the development default.
func newApplication(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*application, func(), error) {
	var (
		pool        *pgxpool.Pool
		docRepo     document.Repository
		scrapedRepo claim.ScrapedRepository
		claimRepo   claim.Repository
		asgRepo     assignment.Repository
		draftRepo   draftclaim.Repository
		illRepo     illness.Repository
	)

	cleanup := func() {}
	if cfg.DatabaseURL != "" {
		p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		pool = p
		cleanup = p.Close
		docRepo = document.NewRepoPG(p)
		scrapedRepo = claim.NewScrapedRepoPG(p)
		claimRepo = claim.NewRepoPG(p)
		asgRepo = assignment.NewRepoPG(p)
		draftRepo = draftclaim.NewRepoPG(p)
		illRepo = illness.NewRepoPG(p)
		logger.Info().Msg("connected to database")
	} else {
		docRepo = document.NewMemoryRepository()
		scrapedRepo = claim.NewScrapedMemoryRepository()
		claimRepo = claim.NewMemoryRepository()
		asgRepo = assignment.NewMemoryRepository()
		draftRepo = draftclaim.NewMemoryRepository()
		illRepo = illness.NewMemoryRepository()
		logger.Info().Msg("running on the in-memory store")
	}

	resolver := document.NewPaymentResolver(cfg.DefaultCurrency)
	docsSvc := document.NewService(docRepo, resolver)
	claimsSvc := claim.NewService(scrapedRepo, claimRepo)
	illSvc := illness.NewService(illRepo)
	scorer := assignment.NewScorer(cfg.MatchingThresholds(), nil)
	matchSvc := assignment.NewService(asgRepo, scorer, docRepo, scrapedRepo, resolver, illSvc)
	proofs := draftclaim.NewAmountProofResolver(cfg.ProofTolerance, cfg.ProofWindowDays)
	draftsSvc := draftclaim.NewService(draftRepo, docRepo, resolver, proofs, matchSvc, claimsSvc, cfg.MemberRef)

	// The mailbox, calendar, and insurer-portal collaborators run outside
	// this process. Until their feeds are connected, scans are no-ops and
	// submission reports upstream.
	ingestSvc := ingest.NewService(docsSvc, claimsSvc,
		ingest.NoSource{}, ingest.NoSource{}, ingest.NoSource{},
		logger.With().Str("component", "ingest").Logger())
	outbox := submit.NewService(claimsSvc, submit.Disabled{},
		logger.With().Str("component", "submit").Logger())

	sched := scheduler.New(ingestSvc, matchSvc, draftsSvc, outbox, scheduler.Config{
		IngestInterval:    cfg.IngestInterval,
		ReconcileInterval: cfg.ReconcileInterval,
		SubmitInterval:    cfg.SubmitInterval,
		GenerationWindow:  draftclaim.Window(cfg.GenerationWindow),
	}, logger.With().Str("component", "scheduler").Logger())

	ping := func(ctx context.Context) error {
		if pool != nil {
			return pool.Ping(ctx)
		}
		_, err := docRepo.Count(ctx)
		return err
	}

	return &application{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		ping:      ping,
		docs:      docsSvc,
		claims:    claimsSvc,
		illnesses: illSvc,
		matching:  matchSvc,
		drafts:    draftsSvc,
		sched:     sched,
	}, cleanup, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the claims tracker API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	app, cleanup, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire application")
	}
	defer cleanup()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.SyncBodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	authCfg := auth.Config{
		Secret:   []byte(cfg.AuthSecret),
		Issuer:   cfg.AuthIssuer,
		TokenTTL: cfg.TokenTTL,
	}
	if cfg.IsDevelopment() {
		e.Use(auth.DevMiddleware())
	} else {
		e.Use(auth.Middleware(authCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// ETag validation and response caching on reads
	apiV1.Use(middleware.ETagMiddleware(middleware.DefaultCacheConfig()))
	apiV1.Use(middleware.ConditionalRequestMiddleware())
	if cfg.CacheTTL > 0 {
		store := middleware.NewMemoryCacheStore(cfg.CacheTTL, 10*time.Minute)
		apiV1.Use(middleware.ResponseCacheMiddleware(store, cfg.CacheTTL))
	}

	// Token issuance
	auth.NewHandler(authCfg, cfg.OwnerPassword).RegisterRoutes(e)

	// Domain handlers
	document.NewHandler(app.docs).RegisterRoutes(apiV1)
	claim.NewHandler(app.claims).RegisterRoutes(apiV1)
	assignment.NewHandler(app.matching).RegisterRoutes(apiV1)
	draftclaim.NewHandler(app.drafts).RegisterRoutes(apiV1)
	illness.NewHandler(app.illnesses).RegisterRoutes(apiV1)

	// Ops triggers sit at the root, behind the same auth
	scheduler.NewHandler(app.sched).RegisterRoutes(e.Group(""))

	// Health checks
	e.GET("/healthz", func(c echo.Context) error {
		pingCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := app.ping(pingCtx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		storage := "memory"
		if app.pool != nil {
			storage = "postgres"
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"storage": storage,
			"version": version,
		})
	})
	if app.pool != nil {
		e.GET("/health/db", db.HealthHandler(app.pool))
	}

	// Background loops
	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	go app.sched.Start(schedCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSched()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set; migrations need a database")
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
	upCmd.Flags().String("dir", "", "Path to migrations directory (default from config)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set; migrations need a database")
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default from config)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// runWithApp loads config, wires the service graph, runs fn against it once,
// and tears everything down. The one-shot commands all go through here.
func runWithApp(fn func(ctx context.Context, app *application) error) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	app, cleanup, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(ctx, app)
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan evidence sources once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, _ := cmd.Flags().GetBool("calendar")
			return runWithApp(func(ctx context.Context, app *application) error {
				var (
					res *ingest.ScanResult
					err error
				)
				if calendar {
					res, err = app.sched.ScanCalendar(ctx)
				} else {
					res, err = app.sched.ScanDocuments(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Scan complete: fetched=%d created=%d updated=%d failed=%d\n",
					res.Fetched, res.Created, res.Updated, res.Failed)
				return nil
			})
		},
	}
	cmd.Flags().Bool("calendar", false, "Scan the calendar feed instead of the document mailbox")
	return cmd
}

func matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Run one full matching pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(func(ctx context.Context, app *application) error {
				res, err := app.sched.RunMatching(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Matching complete: documents=%d claims=%d cleared=%d created=%d\n",
					res.DocumentsScanned, res.ClaimsScanned, res.CandidatesCleared, res.CandidatesCreated)
				return nil
			})
		},
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate draft claims for unmatched documents and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, _ := cmd.Flags().GetString("window")
			return runWithApp(func(ctx context.Context, app *application) error {
				w := draftclaim.Window(app.cfg.GenerationWindow)
				if window != "" {
					w = draftclaim.Window(window)
					if !w.Valid() {
						return fmt.Errorf("unknown window %q (want forever, last_month, or last_week)", window)
					}
				}
				res, err := app.sched.GenerateDrafts(ctx, w)
				if err != nil {
					return err
				}
				fmt.Printf("Generated %d draft(s) for window %s.\n", res.Created, res.Window)
				for _, d := range res.Drafts {
					fmt.Printf("  %s  %.2f %s  (%d document(s))\n",
						d.ID, d.Payment.Amount, d.Payment.Currency, len(d.DocumentIDs))
				}
				return nil
			})
		},
	}
	cmd.Flags().String("window", "", "Generation window: forever, last_month, or last_week (default from config)")
	return cmd
}
