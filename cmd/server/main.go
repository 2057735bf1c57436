// Command server runs the group notification API.
//
// @title       Group Notify API
// @version     1.0
// @description Group messaging fan-out with delivery tracking: send to a group or a person, reconcile provider status callbacks, and browse message history.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-group-notify/docs"
	"github.com/tbourn/go-group-notify/internal/config"
	httpapi "github.com/tbourn/go-group-notify/internal/http"
	"github.com/tbourn/go-group-notify/internal/jobs"
	"github.com/tbourn/go-group-notify/internal/observability"
	"github.com/tbourn/go-group-notify/internal/provider"
	"github.com/tbourn/go-group-notify/internal/repo"
	"github.com/tbourn/go-group-notify/internal/services"
	"github.com/tbourn/go-group-notify/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	cl := &cleanup{log: logger}
	defer cl.run()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	cl.add("otel", shutdownOTel)

	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cl.add("db", func(context.Context) error { return closeDB(db) })

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}

	dir := repo.NewDirectory(db)
	limiter := services.NewLimiter(cfg.Dispatch.MaxPerHour, cfg.Dispatch.CostPerMessage, nil)
	dispatcher := &services.Dispatcher{
		DB:          db,
		Resolver:    &services.Resolver{Dir: dir, Logger: logger},
		Sender:      sender,
		Limiter:     limiter,
		Composer:    services.Composer{Template: cfg.Dispatch.GuardianTemplate},
		Workers:     cfg.Dispatch.Workers,
		SendTimeout: cfg.Dispatch.SendTimeout,
		Logger:      logger,
	}
	reconciler := &services.Reconciler{DB: db, AuthToken: cfg.Provider.AuthToken, Logger: logger}
	history := &services.History{DB: db, Dir: dir, Logger: logger}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:         db,
		Dispatcher: dispatcher,
		Reconciler: reconciler,
		History:    history,
		Rates:      limiter,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}

	hk := jobs.NewHousekeeper(db, logger)
	if err := hk.Start(cfg.HousekeepingCron); err != nil {
		_ = ln.Close()
		return fmt.Errorf("housekeeping: %w", err)
	}
	cl.add("housekeeping", func(ctx context.Context) error {
		hk.Stop(ctx)
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("provider", sender.Name()).
			Str("db", cfg.DB.Driver).
			Msg("listening")
		sysutil.NotifyReady()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sysutil.NotifyStopping()
		logger.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// cleanup runs shutdown steps in reverse order of registration, so
// resources are released on every return path of run.
type cleanup struct {
	log   zerolog.Logger
	steps []cleanupStep
}

type cleanupStep struct {
	name string
	fn   func(context.Context) error
}

func (c *cleanup) add(name string, fn func(context.Context) error) {
	c.steps = append(c.steps, cleanupStep{name: name, fn: fn})
}

func (c *cleanup) run() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(c.steps) - 1; i >= 0; i-- {
		st := c.steps[i]
		if err := st.fn(ctx); err != nil {
			c.log.Warn().Err(err).Str("step", st.name).Msg("shutdown step failed")
			continue
		}
		c.log.Debug().Str("step", st.name).Msg("shutdown step done")
	}
	c.steps = nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// openDB connects, instruments, migrates and optionally seeds the roster.
func openDB(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	target := cfg.DB.Path
	if cfg.DB.Driver == repo.DriverPostgres {
		target = cfg.DB.URL
	}
	db, err := repo.Open(cfg.DB.Driver, target)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	fail := func(err error) (*gorm.DB, error) {
		_ = closeDB(db)
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.Instrument(db); err != nil {
			return fail(fmt.Errorf("instrument db: %w", err))
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fail(fmt.Errorf("migrate: %w", err))
	}

	if cfg.DB.RosterPath != "" {
		raw, err := os.ReadFile(cfg.DB.RosterPath)
		if err != nil {
			return fail(fmt.Errorf("read roster: %w", err))
		}
		st, err := repo.SeedRoster(ctx, db, raw)
		if err != nil {
			return fail(fmt.Errorf("seed roster: %w", err))
		}
		logger.Info().
			Str("path", cfg.DB.RosterPath).
			Int("people", st.People).
			Int("groups", st.Groups).
			Int("members", st.Members).
			Int("guardian_links", st.Links).
			Msg("roster seeded")
	}
	return db, nil
}

// newSender builds the channel sender selected by SMS_PROVIDER.
func newSender(cfg config.Config, logger zerolog.Logger) (provider.Sender, error) {
	switch cfg.Provider.Name {
	case config.ProviderTwilio:
		return provider.NewTwilioSender(provider.TwilioConfig{
			AccountSID:          cfg.Provider.AccountSID,
			AuthToken:           cfg.Provider.AuthToken,
			From:                cfg.Provider.FromNumber,
			MessagingServiceSID: cfg.Provider.MessagingServiceSID,
			BaseURL:             cfg.Provider.BaseURL,
			StatusCallback:      cfg.WebhookURL(),
		}, nil, logger), nil
	case config.ProviderLog:
		logger.Warn().Msg("SMS_PROVIDER=log: messages are logged, not delivered")
		return provider.NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unsupported SMS provider %q", cfg.Provider.Name)
	}
}
