/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the credit bot server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config file and environment
  2. Initialize SQLite store and ledger
  3. Build the command router and metrics registry
  4. Optionally register slash commands with the chat platform
  5. Start HTTP server and maintenance scheduler with graceful shutdown

COMMAND-LINE FLAGS:
  -config    YAML config file (optional)
  -addr      Overrides listen_addr
  -db        Overrides database_path. Use ":memory:" for in-memory database
  -register  Register slash commands before serving
  -register-only  Register slash commands and exit

ENVIRONMENT:
  DISCORD_TOKEN, DISCORD_PUBLIC_KEY, DISCORD_APPLICATION_ID,
  ADMIN_API_TOKEN, DATABASE_PATH, LOG_LEVEL, GUILD_IDS, ADMIN_ROLES,
  STOCK_ALERT_USER_IDS.
  A .env file in the working directory is loaded if present.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and close the database

SEE ALSO:
  - config/config.go: Configuration
  - api/server.go: Router configuration
  - bot/router.go: Command dispatch
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/warp/credit-bot/api"
	"github.com/warp/credit-bot/auth"
	"github.com/warp/credit-bot/bot"
	"github.com/warp/credit-bot/config"
	"github.com/warp/credit-bot/discord"
	"github.com/warp/credit-bot/ledger"
	"github.com/warp/credit-bot/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	register := flag.Bool("register", false, "Register slash commands before serving")
	registerOnly := flag.Bool("register-only", false, "Register slash commands and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	logger := cfg.NewLogger()

	if err := run(cfg, logger, *register || *registerOnly, *registerOnly); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, register, registerOnly bool) error {
	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	l := ledger.New(store)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := bot.NewMetrics(reg)

	// Command router
	gate := auth.NewGate(l, cfg.Authorizer())
	router := bot.NewRouter(l, gate, logger).
		WithMetrics(metrics).
		WithAdminRoleLabel(cfg.Discord.AdminRoleLabel)
	if cfg.Discord.BotToken != "" && len(cfg.Discord.StockAlertUserIDs) > 0 {
		router.WithStockAlerts(discord.NewNotifier(discord.NotifierConfig{
			BaseURL:  cfg.Discord.APIBaseURL,
			BotToken: cfg.Discord.BotToken,
			UserIDs:  cfg.Discord.StockAlertUserIDs,
			Logger:   logger,
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if register {
		if cfg.Discord.BotToken == "" || cfg.Discord.ApplicationID == "" {
			return errors.New("registering commands needs DISCORD_TOKEN and DISCORD_APPLICATION_ID")
		}
		registrar := discord.NewRegistrar(discord.RegistrarConfig{
			BaseURL:       cfg.Discord.APIBaseURL,
			ApplicationID: cfg.Discord.ApplicationID,
			BotToken:      cfg.Discord.BotToken,
			Logger:        logger,
		})
		if err := registrar.Sync(ctx, cfg.Discord.GuildIDs, router.Commands()); err != nil {
			return fmt.Errorf("register commands: %w", err)
		}
		if registerOnly {
			return nil
		}
	}

	publicKey, err := discord.ParsePublicKey(cfg.Discord.PublicKey)
	if err != nil {
		return fmt.Errorf("DISCORD_PUBLIC_KEY: %w", err)
	}

	handler := api.NewRouter(api.ServerConfig{
		Interactions: api.NewInteractions(publicKey, router, logger),
		Admin:        api.NewHandler(l, metrics, logger),
		AdminToken:   cfg.API.Token,
		CORSOrigins:  cfg.API.CORSOrigins,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:       store.Ping,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler := api.NewMaintenanceScheduler(l, logger)
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", cfg.ListenAddr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
