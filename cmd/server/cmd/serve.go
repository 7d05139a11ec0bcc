package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/planora/server/internal/api"
	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/config"
	"github.com/planora/server/internal/domain/events"
	"github.com/planora/server/internal/domain/registrations"
	"github.com/planora/server/internal/domain/users"
	"github.com/planora/server/internal/email"
	"github.com/planora/server/internal/jobs"
	"github.com/planora/server/internal/media"
	"github.com/planora/server/internal/storage/postgres"
)

var (
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Planora HTTP server",
	Long: `Start the HTTP server and the background job workers.

The server loads configuration from environment variables (a .env file is
read when present), connects to Postgres, starts the River job client for
confirmation emails and media sweeps, and shuts down gracefully on
SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting planora server")

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(poolCtx, cfg.Database.URL, int32(cfg.Database.MaxConnections))
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrapAdminUser(bootCtx, pool, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootCancel()

	eventRepo, err := postgres.NewEventRepository(pool)
	if err != nil {
		return err
	}
	regRepo, err := postgres.NewRegistrationRepository(pool)
	if err != nil {
		return err
	}
	userRepo, err := postgres.NewUserRepository(pool)
	if err != nil {
		return err
	}

	store, mediaDir, err := newMediaStore(cfg.Media)
	if err != nil {
		return fmt.Errorf("media store init failed: %w", err)
	}

	var sender email.Sender
	if cfg.Email.Enabled {
		sender = email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
	}
	emailService := email.NewService(sender, cfg.Email.Enabled, logger)

	workers := jobs.NewWorkers(
		jobs.ConfirmationWorker{
			Users:  userRepo,
			Events: eventRepo,
			Email:  emailService,
			Logger: logger,
		},
		jobs.MediaSweepWorker{
			Store:  store,
			Pool:   pool,
			Logger: logger,
		},
	)
	riverClient, err := jobs.NewClient(pool, workers,
		slog.New(slog.NewJSONHandler(os.Stderr, nil)), jobs.NewPeriodicJobs())
	if err != nil {
		return fmt.Errorf("river client init failed: %w", err)
	}

	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("river start failed: %w", err)
	}
	logger.Info().Msg("job workers started")

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	queue := jobs.NewQueue(riverClient)

	handler := api.NewRouter(api.Deps{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		JWT:        jwt,
		Events:     events.NewService(eventRepo),
		Lifecycle:  events.NewLifecycleService(eventRepo, store, logger),
		Admissions: registrations.NewService(regRepo, eventRepo, queue, logger),
		Users:      users.NewService(userRepo, jwt, logger),
		MediaDir:   mediaDir,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("job workers shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// newMediaStore returns the configured blob store. The second return value
// is the local directory to serve statically, empty for remote stores.
func newMediaStore(cfg config.MediaConfig) (media.Store, string, error) {
	switch cfg.Provider {
	case "cloudinary":
		store, err := media.NewCloudinaryStore(cfg.CloudinaryURL)
		return store, "", err
	default:
		store, err := media.NewDiskStore(cfg.UploadDir, cfg.BasePath)
		return store, cfg.UploadDir, err
	}
}
