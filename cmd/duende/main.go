package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/dukerupert/duende/internal/calendar"
	"github.com/dukerupert/duende/internal/config"
	"github.com/dukerupert/duende/internal/database"
	"github.com/dukerupert/duende/internal/ics"
	"github.com/dukerupert/duende/internal/logging"
	"github.com/dukerupert/duende/internal/server"
	"github.com/dukerupert/duende/internal/snapshot"
	"github.com/dukerupert/duende/internal/store"
	ws "github.com/dukerupert/duende/internal/websocket"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "duende",
		Usage: "Appointment scheduling with conflict checks and order sync.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "duende.yaml", Usage: "path to the YAML config file", EnvVars: []string{"DUENDE_CONFIG"}},
		},
		Commands: []*cli.Command{
			serveCommand(),
			reconcileCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("duende failed", "error", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.Setup(cfg.LogLevel, cfg.LogFormat), nil
}

func snapshotConfig(cfg *config.Config) snapshot.Config {
	return snapshot.Config{
		Endpoint:  cfg.S3.Endpoint,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Prefix:    cfg.S3.Prefix,
		Keep:      cfg.S3.Keep,
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, live order sync and scheduled jobs.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			events := store.NewEventStore(db)
			orders := store.NewOrderStore(db, logging.Component(logger, "orders"))
			hub := ws.NewHub(logging.Component(logger, "websocket"))

			sched := calendar.New(events, calendar.Options{
				StoreTimeout: cfg.StoreTimeout,
				Logger:       logging.Component(logger, "scheduler"),
				Notify:       server.ChangeNotifier(hub),
			})

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sched.Load(ctx); err != nil {
				return fmt.Errorf("load calendar: %w", err)
			}

			snapshots := snapshot.NewManager(snapshotConfig(cfg), sched.Events, logging.Component(logger, "snapshot"))

			go func() {
				if err := sched.Run(ctx, orders); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("order sync stopped", "error", err)
				}
			}()

			jobs, err := scheduleJobs(ctx, cfg, orders, snapshots, logger)
			if err != nil {
				return err
			}
			jobs.Start()
			defer func() { <-jobs.Stop().Done() }()

			srv := server.New(db, sched, orders, snapshots, hub, server.Options{
				WriteRateLimit: cfg.WriteRateLimit,
			}, logger)
			go srv.RateLimiter().RunCleanup(ctx, time.Minute)

			httpServer := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      srv.Router(),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("duende listening", "addr", httpServer.Addr, "events", len(sched.Events()))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hub.Close()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}

func scheduleJobs(ctx context.Context, cfg *config.Config, orders *store.OrderStore, snapshots *snapshot.Manager, logger *slog.Logger) (*cron.Cron, error) {
	jobs := cron.New()

	if cfg.ResyncCron != "" {
		if _, err := jobs.AddFunc(cfg.ResyncCron, func() { orders.Publish(ctx) }); err != nil {
			return nil, fmt.Errorf("parse resync schedule %q: %w", cfg.ResyncCron, err)
		}
	}

	if cfg.SnapshotCron != "" && snapshots.Enabled() {
		log := logging.Component(logger, "snapshot")
		if _, err := jobs.AddFunc(cfg.SnapshotCron, func() {
			key, err := snapshots.Upload(ctx)
			if err != nil {
				log.Error("scheduled snapshot failed", "error", err)
				return
			}
			log.Info("scheduled snapshot uploaded", "key", key)
		}); err != nil {
			return nil, fmt.Errorf("parse snapshot schedule %q: %w", cfg.SnapshotCron, err)
		}
	}
	return jobs, nil
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Create calendar events for confirmed orders once and exit.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			orders := store.NewOrderStore(db, logging.Component(logger, "orders"))
			sched := calendar.New(store.NewEventStore(db), calendar.Options{
				StoreTimeout: cfg.StoreTimeout,
				Logger:       logging.Component(logger, "scheduler"),
			})

			if err := sched.Load(c.Context); err != nil {
				return fmt.Errorf("load calendar: %w", err)
			}
			confirmed, err := orders.ListConfirmed(c.Context)
			if err != nil {
				return fmt.Errorf("list confirmed orders: %w", err)
			}
			created, err := sched.Reconcile(c.Context, confirmed)
			logger.Info("reconcile finished", "orders", len(confirmed), "created", len(created))
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the calendar as iCalendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file; stdout when empty"},
			&cli.BoolFlag{Name: "upload", Usage: "upload a snapshot to the configured bucket instead"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			sched := calendar.New(store.NewEventStore(db), calendar.Options{
				StoreTimeout: cfg.StoreTimeout,
				Logger:       logging.Component(logger, "scheduler"),
			})
			if err := sched.Load(c.Context); err != nil {
				return fmt.Errorf("load calendar: %w", err)
			}

			if c.Bool("upload") {
				mgr := snapshot.NewManager(snapshotConfig(cfg), sched.Events, logging.Component(logger, "snapshot"))
				key, err := mgr.Upload(c.Context)
				if err != nil {
					return fmt.Errorf("upload snapshot: %w", err)
				}
				logger.Info("snapshot uploaded", "key", key)
				return nil
			}

			var w io.Writer = os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create %s: %w", path, err)
				}
				defer f.Close()
				w = f
			}
			if err := ics.Encode(w, sched.Events(), time.Now()); err != nil {
				return fmt.Errorf("encode calendar: %w", err)
			}
			return nil
		},
	}
}
