package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/database"
	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/router"
	"github.com/iliyamo/task-manager/internal/service"
	"github.com/iliyamo/task-manager/internal/utils"
)

func serveCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *logLevel)
		},
	}
}

func migrateCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*logLevel)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := database.Migrate(cmd.Context(), db, cfg.DB.Driver)
			if err != nil {
				return err
			}
			log.Info("migrations applied", slog.Int("count", n), slog.String("driver", cfg.DB.Driver))
			return nil
		},
	}
}

func cleanupTokensCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Delete expired refresh tokens once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*logLevel)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			tokens, err := newTokenService(cfg)
			if err != nil {
				return err
			}
			n, err := newAuthService(cfg, db, tokens, nil, log).CleanupExpiredTokens(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired refresh tokens\n", n)
			return nil
		},
	}
}

func seedCmd(logLevel *string) *cobra.Command {
	var (
		email string
		count int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create random tasks for an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*logLevel)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
			n, err := service.SeedTasks(cmd.Context(), repository.NewUserRepo(db), repository.NewTaskRepo(db), email, count, rng)
			if err != nil {
				return err
			}
			log.Info("tasks seeded", slog.Int("count", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email of the user that owns the seeded tasks")
	cmd.Flags().IntVar(&count, "count", 50, "Number of tasks to create")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runServe(parent context.Context, logLevel string) error {
	cfg, log, err := setup(logLevel)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DB.Driver == database.DriverSQLite {
		// embedded store: keep the schema current without a separate step
		if _, err := database.Migrate(ctx, db, cfg.DB.Driver); err != nil {
			return err
		}
	}

	var events service.EventPublisher = service.NoopPublisher{}
	if cfg.Events.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.Events.RabbitURL, log)
		defer pub.Close()
		events = pub
	}

	tokens, err := newTokenService(cfg)
	if err != nil {
		return err
	}
	auth := newAuthService(cfg, db, tokens, events, log)
	tasks := service.NewTaskService(repository.NewTaskRepo(db), events, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps := router.Deps{
		Auth:    handler.NewAuthHandler(auth, cfg.RequestTimeout),
		Tasks:   handler.NewTaskHandler(tasks, cfg.RequestTimeout),
		Tokens:  tokens,
		Metrics: middleware.NewMetrics(reg),
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		deps.RateLimit = middleware.NewTokenBucket(cfg.RateLimit, rdb, log)
		deps.Cache = middleware.NewRedisCache(cfg.Cache, rdb, log).Middleware()
		log.Info("redis connected", slog.String("addr", cfg.Redis.Address()))
	} else {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	}

	e := router.New(cfg, log, deps)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.RunTokenSweeper(ctx, auth, cfg.Auth.CleanupInterval, log)
	}()
	if cfg.Events.ConsumerEnabled && cfg.Events.RabbitURL != "" {
		consumer := &queue.Consumer{URL: cfg.Events.RabbitURL, LogPath: cfg.Events.ActivityLogPath, Log: log}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("activity consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env), slog.String("version", Version))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
	wg.Wait()
	return nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(database.Options{
		Driver:     cfg.DB.Driver,
		User:       cfg.DB.User,
		Pass:       cfg.DB.Pass,
		Host:       cfg.DB.Host,
		Port:       cfg.DB.Port,
		Name:       cfg.DB.Name,
		SQLitePath: cfg.DB.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newTokenService(cfg *config.Config) (*utils.TokenService, error) {
	return utils.NewTokenService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
}

func newAuthService(cfg *config.Config, db *sql.DB, tokens *utils.TokenService, events service.EventPublisher, log *slog.Logger) *service.AuthService {
	return service.NewAuthService(
		repository.NewUserRepo(db),
		repository.NewTokenRepo(db),
		utils.NewBcryptHasher(cfg.Auth.BcryptCost),
		tokens,
		events,
		log,
	)
}
