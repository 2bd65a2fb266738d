package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/dropbucket/internal/config"
	"github.com/abduss/dropbucket/internal/logger"
	"github.com/abduss/dropbucket/internal/metrics"
	"github.com/abduss/dropbucket/internal/server"
	"github.com/abduss/dropbucket/internal/storage"
	"github.com/abduss/dropbucket/internal/sweeper"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	cfg        config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dropbucket",
	Short: "Expiring file buckets with short links",
	Long: `dropbucket stores files in owner-scoped buckets that expire on a schedule.
Every file gets a short link, and a bucket can be fetched as a text summary
or a zip archive.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		if _, err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
			log.Warn().Err(err).Msg("logging configured with defaults")
		}
		return nil
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the expiry sweeper",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired buckets once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = log.Logger.WithContext(ctx)

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := sweeper.New(a.buckets, cfg.Expiry.SweepInterval, log.Logger).Sweep(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("expired", result.Expired).
			Int("deleted", result.Deleted).
			Int("failed", result.Failed).
			Msg("sweep complete")
		if result.Failed > 0 {
			return fmt.Errorf("%d expired buckets could not be deleted", result.Failed)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostgreSQL schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())

		pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := storage.Migrate(ctx, pool); err != nil {
			return err
		}
		log.Info().Str("database", cfg.Postgres.Database).Msg("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $DROPBUCKET_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	metrics.InitMetrics()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router := server.NewRouter(server.Dependencies{
		Config:        cfg,
		DB:            a.db,
		Store:         a.store,
		AuthService:   a.auth,
		BucketService: a.buckets,
		FileService:   a.files,
		Bundles:       a.bundles,
		Logger:        log.Logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepDone := make(chan struct{})
	if cfg.Expiry.SweepEnabled {
		s := sweeper.New(a.buckets, cfg.Expiry.SweepInterval, log.Logger)
		go func() {
			defer close(sweepDone)
			_ = s.Run(ctx)
		}()
	} else {
		close(sweepDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Address()).
			Str("database", cfg.Database.Driver).
			Str("storage", cfg.Storage.Driver).
			Msg("dropbucket API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-sweepDone
			return fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	<-sweepDone
	return nil
}
