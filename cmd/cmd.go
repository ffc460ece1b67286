package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/melbourne-sensors/internal/pkg/config"
	"github.com/anicoll/melbourne-sensors/internal/pkg/database"
	"github.com/anicoll/melbourne-sensors/internal/pkg/database/migration"
	"github.com/anicoll/melbourne-sensors/internal/pkg/melbourne"
	"github.com/anicoll/melbourne-sensors/internal/pkg/model"
	"github.com/anicoll/melbourne-sensors/internal/pkg/pipeline"
)

// Flags is the fetch command's flag set. Flags carry no defaults of their
// own; those are declared once, on the config struct's env tags.
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:     "database-url",
		EnvVars:  []string{"DATABASE_URL"},
		Required: true,
	},
	&cli.StringFlag{
		Name:    "api-key",
		EnvVars: []string{"MELBOURNE_API_KEY"},
	},
	&cli.StringFlag{
		Name:    "api-base-url",
		EnvVars: []string{"MELBOURNE_API_BASE_URL"},
	},
	&cli.StringFlag{
		Name:    "migrations-folder",
		EnvVars: []string{"MIGRATIONS_FOLDER"},
	},
	&cli.IntFlag{
		Name:    "page-size",
		EnvVars: []string{"PAGE_SIZE"},
	},
	&cli.IntFlag{
		Name:    "batch-size",
		EnvVars: []string{"BATCH_SIZE"},
	},
	&cli.DurationFlag{
		Name:    "request-timeout",
		EnvVars: []string{"REQUEST_TIMEOUT"},
	},
	&cli.StringFlag{
		Name:    "schedule",
		EnvVars: []string{"FETCH_SCHEDULE"},
		Usage:   "optional cron expression; empty runs once and exits",
	},
	&cli.StringFlag{
		Name:    "log-level",
		EnvVars: []string{"LOG_LEVEL"},
	},
}

func FetchCommand(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}
	return run(ctx.Context, cfg)
}

// buildConfig starts from the environment-parsed config and lets flags set
// on the command line override it.
func buildConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("database-url") {
		cfg.DatabaseURL = ctx.String("database-url")
	}
	if ctx.IsSet("api-key") {
		cfg.APIKey = ctx.String("api-key")
	}
	if ctx.IsSet("api-base-url") {
		cfg.APIBaseURL = ctx.String("api-base-url")
	}
	if ctx.IsSet("migrations-folder") {
		cfg.MigrationsFolder = ctx.String("migrations-folder")
	}
	if ctx.IsSet("page-size") {
		cfg.PageSize = ctx.Int("page-size")
	}
	if ctx.IsSet("batch-size") {
		cfg.BatchSize = ctx.Int("batch-size")
	}
	if ctx.IsSet("request-timeout") {
		cfg.RequestTimeout = ctx.Duration("request-timeout")
	}
	if ctx.IsSet("schedule") {
		cfg.Schedule = ctx.String("schedule")
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.Level = level
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if cfg.MigrationsFolder != "" {
		if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
			return err
		}
	}

	if cfg.Schedule == "" {
		return runOnce(ctx, cfg, logger)
	}

	// scheduled mode: run immediately, then on every cron tick. A failed run
	// is logged and retried on the next tick rather than killing the process.
	if err := runOnce(ctx, cfg, logger); err != nil {
		logger.Error("fetch run failed", zap.Error(err))
	}
	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := runOnce(ctx, cfg, logger); err != nil {
			logger.Error("scheduled fetch run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	c.Run()
	return nil
}

// runOnce executes both dataset pipelines as separate, isolated attempts.
// Each holds its own short-lived connection; a failure in one never blocks
// the other.
func runOnce(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// First-run schema setup happens here, from a single session, before the
	// dataset attempts connect. Two sessions racing CREATE TABLE IF NOT
	// EXISTS can still collide inside postgres.
	setup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	if err := setup.EnsureSchema(ctx); err != nil {
		_ = setup.Close()
		return err
	}
	if err := setup.Close(); err != nil {
		return err
	}

	client := melbourne.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.PageSize, cfg.RequestTimeout)

	var parkingErr, pedestrianErr error
	eg := errgroup.Group{}
	eg.Go(func() error {
		parkingErr = runParking(ctx, cfg, client, logger)
		return nil
	})
	eg.Go(func() error {
		pedestrianErr = runPedestrian(ctx, cfg, client, logger)
		return nil
	})
	_ = eg.Wait()

	return errors.Join(parkingErr, pedestrianErr)
}

func runParking(ctx context.Context, cfg *config.Config, client *melbourne.Client, logger *zap.Logger) error {
	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ds := pipeline.Dataset[model.ParkingBayStatus]{
		Name:      "parking",
		Watermark: db.ParkingWatermark,
		FetchPage: func(ctx context.Context, watermark *time.Time, offset int) (*melbourne.Page, error) {
			return client.FetchPage(ctx, melbourne.DatasetQuery{
				Dataset:   melbourne.ParkingDataset,
				TimeField: melbourne.ParkingTimeField,
				Watermark: watermark,
			}, offset)
		},
		Decode: melbourne.DecodeParkingPage,
		Write:  db.WriteParkingBatch,
	}

	_, err = pipeline.Run(ctx, ds, cfg.BatchSize, logger)
	return err
}

func runPedestrian(ctx context.Context, cfg *config.Config, client *melbourne.Client, logger *zap.Logger) error {
	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ds := pipeline.Dataset[model.PedestrianCount]{
		Name:      "pedestrian",
		Watermark: db.PedestrianWatermark,
		FetchPage: func(ctx context.Context, watermark *time.Time, offset int) (*melbourne.Page, error) {
			return client.FetchPage(ctx, melbourne.DatasetQuery{
				Dataset:   melbourne.PedestrianDataset,
				TimeField: melbourne.PedestrianTimeField,
				Watermark: watermark,
			}, offset)
		},
		Decode: melbourne.DecodePedestrianPage,
		Write:  db.WritePedestrianBatch,
	}

	_, err = pipeline.Run(ctx, ds, cfg.BatchSize, logger)
	return err
}

func connect(ctx context.Context, cfg *config.Config) (*database.Database, error) {
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", database.ErrStoreUnavailable, err)
	}
	return database.New(conn), nil
}
