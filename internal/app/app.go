// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/clock/system"
	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/quotes-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/quotes-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/quotes-crawler/internal/hash/sha256"
	"github.com/JakeFAU/quotes-crawler/internal/headless/detector"
	"github.com/JakeFAU/quotes-crawler/internal/id/uuid"
	"github.com/JakeFAU/quotes-crawler/internal/loader"
	"github.com/JakeFAU/quotes-crawler/internal/planner"
	"github.com/JakeFAU/quotes-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/quotes-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/quotes-crawler/internal/records"
	"github.com/JakeFAU/quotes-crawler/internal/storage/gcs"
	"github.com/JakeFAU/quotes-crawler/internal/storage/local"
	"github.com/JakeFAU/quotes-crawler/internal/storage/memory"
	"github.com/JakeFAU/quotes-crawler/internal/storage/postgres"
	"github.com/JakeFAU/quotes-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/quotes-crawler/internal/store"
	"github.com/JakeFAU/quotes-crawler/internal/tracker"
	"github.com/JakeFAU/quotes-crawler/internal/worker"
)

// App holds all the shared, long-lived services for the application.
// It is built once at startup and handed to the CLI commands and the HTTP server.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	repo    store.Repository
	tracker *tracker.Tracker
	log     *records.Log
	source  crawler.CandidateSource
	worker  *worker.Worker
	runs    crawler.RunStore
	closers []func() error
}

type options struct {
	repo      store.Repository
	source    crawler.CandidateSource
	fetcher   crawler.PageFetcher
	publisher crawler.Publisher
	blobs     crawler.BlobStore
	throttle  crawler.Throttle
	clock     crawler.Clock
}

// Option overrides a service New would otherwise build from config.
type Option func(*options)

// WithRepository uses repo instead of the configured database driver.
func WithRepository(repo store.Repository) Option {
	return func(o *options) { o.repo = repo }
}

// WithCandidateSource replaces the catalog.
func WithCandidateSource(src crawler.CandidateSource) Option {
	return func(o *options) { o.source = src }
}

// WithFetcher replaces the detail page fetcher.
func WithFetcher(f crawler.PageFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher replaces the notification publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithBlobStore replaces the archive backend.
func WithBlobStore(b crawler.BlobStore) Option {
	return func(o *options) { o.blobs = b }
}

// WithThrottle replaces the per-host rate limiter.
func WithThrottle(t crawler.Throttle) Option {
	return func(o *options) { o.throttle = t }
}

// WithClock overrides the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New creates and initializes an App from cfg. It fails fast if any
// configured service cannot be reached; services opened before the failure
// are closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}

	a := &App{cfg: cfg, logger: logger, runs: memory.NewRunStore()}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()
	logger.Info("initializing application services")

	var err error
	if a.repo, err = a.openRepository(ctx, o.repo); err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err = a.repo.Migrate(ctx, store.MigrateOptions{}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	stateStore, err := tracker.NewFileStore(cfg.Crawler.StateFile)
	if err != nil {
		return nil, fmt.Errorf("init state store: %w", err)
	}
	a.tracker = tracker.Open(ctx, stateStore, logger.Named("tracker"))

	if a.log, err = records.NewLog(cfg.LogPath()); err != nil {
		return nil, fmt.Errorf("init record log: %w", err)
	}

	headers := make(http.Header, len(cfg.HTTP.Headers))
	for k, v := range cfg.HTTP.Headers {
		headers.Set(k, v)
	}
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		Headers:       headers,
	})

	a.source = o.source
	if a.source == nil {
		if a.source, err = collyfetcher.NewCatalog(static, cfg.Crawler.CatalogURLs, logger); err != nil {
			return nil, fmt.Errorf("init catalog: %w", err)
		}
	}

	fetcher := o.fetcher
	if fetcher == nil {
		if fetcher, err = a.pageFetcher(static, headers); err != nil {
			return nil, err
		}
	}

	workerOpts := []worker.Option{
		worker.WithClock(o.clock),
		worker.WithIDGenerator(uuid.NewGenerator(cfg.Crawler.RunIDPrefix)),
		worker.WithRunStore(a.runs),
		worker.WithHasher(sha256.New()),
		worker.WithLogger(logger),
	}
	throttle := o.throttle
	if throttle == nil {
		throttle = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Crawler.RatePerSecond,
			DefaultBurst: cfg.Crawler.Burst,
			Jitter:       cfg.Jitter(),
		})
	}
	workerOpts = append(workerOpts, worker.WithThrottle(throttle))

	blobs := o.blobs
	if blobs == nil {
		if blobs, err = a.openBlobStore(ctx); err != nil {
			return nil, err
		}
	}
	if blobs != nil {
		archive, archErr := records.NewArchive(blobs, cfg.Storage.Prefix, o.clock)
		if archErr != nil {
			return nil, fmt.Errorf("init archive: %w", archErr)
		}
		workerOpts = append(workerOpts, worker.WithArchive(archive))
	}

	publisher := o.publisher
	if publisher == nil && cfg.PubSub.Enabled {
		logger.Info("connecting to pub/sub", zap.String("project", cfg.PubSub.ProjectID))
		ps, psErr := pubsubpublisher.Open(ctx, cfg.PubSub.ProjectID)
		if psErr != nil {
			return nil, fmt.Errorf("init pubsub: %w", psErr)
		}
		a.closers = append(a.closers, ps.Close)
		publisher = ps
	}
	if publisher != nil {
		workerOpts = append(workerOpts, worker.WithPublisher(publisher, worker.Config{
			RecordTopic: cfg.PubSub.RecordTopic,
			BatchTopic:  cfg.PubSub.BatchTopic,
		}))
	}

	if a.worker, err = worker.New(fetcher, a.log, a.tracker, workerOpts...); err != nil {
		return nil, fmt.Errorf("init worker: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("archive", cfg.Storage.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Int("processed", a.tracker.Len()),
	)
	ready = true
	return a, nil
}

func (a *App) openRepository(ctx context.Context, injected store.Repository) (store.Repository, error) {
	if injected != nil {
		return injected, nil
	}
	switch a.cfg.DB.Driver {
	case config.DriverPostgres:
		a.logger.Info("connecting to postgres", zap.String("schema", a.cfg.DB.Schema))
		repo, err := postgres.New(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			Schema:          a.cfg.DB.Schema,
			MaxConns:        a.cfg.DB.MaxConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.ConnMaxLifetimeMin) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return repo, nil
	case config.DriverSQLite:
		a.logger.Info("opening sqlite", zap.String("path", a.cfg.DB.SQLitePath))
		repo, err := sqlite.Open(a.cfg.DB.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		return repo, nil
	case config.DriverMemory:
		a.logger.Warn("using in-memory database; loaded rows are lost on exit")
		return memory.NewRepository(), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", a.cfg.DB.Driver)
	}
}

func (a *App) pageFetcher(static *collyfetcher.Fetcher, headers http.Header) (crawler.PageFetcher, error) {
	if !a.cfg.Headless.Enabled {
		return static, nil
	}
	f, err := headless.NewChromedp(headless.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawler.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		Settle:            time.Duration(a.cfg.Headless.SettleMs) * time.Millisecond,
		Headers:           headers,
	})
	if err != nil {
		return nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	a.closers = append(a.closers, func() error {
		f.Close()
		return nil
	})
	if !a.cfg.Headless.Promote {
		return f, nil
	}
	p, err := detector.NewPromoter(static, f, detector.NewHeuristic(a.cfg.Headless.PromoteThreshold), a.logger)
	if err != nil {
		return nil, fmt.Errorf("init headless promoter: %w", err)
	}
	return p, nil
}

// openBlobStore returns nil when archiving is disabled.
func (a *App) openBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.ArchiveLocal:
		bs, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return bs, nil
	case config.ArchiveGCS:
		a.logger.Info("using gcs archive", zap.String("bucket", a.cfg.Storage.GCSBucket))
		bs, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.closers = append(a.closers, bs.Close)
		return bs, nil
	case config.ArchiveMemory:
		return memory.NewBlobStore(), nil
	case config.ArchiveNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", a.cfg.Storage.Backend)
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Crawl lists the catalog and runs one batch over w.
func (a *App) Crawl(ctx context.Context, w planner.Window) (crawler.RunSummary, error) {
	cands, err := a.source.Candidates(ctx)
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("list candidates: %w", err)
	}
	return a.worker.RunBatch(ctx, cands, w)
}

// Load merges records into the store. path may be a directory of units or
// a single record file.
func (a *App) Load(ctx context.Context, path string, policy store.ChildPolicy) (loader.Summary, error) {
	pipeline, err := loader.New(a.repo,
		loader.WithChildPolicy(policy),
		loader.WithBackfill(a.cfg.Loader.Backfill),
		loader.WithLogger(a.logger),
	)
	if err != nil {
		return loader.Summary{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return loader.Summary{}, fmt.Errorf("load %s: %w", path, err)
	}
	if info.IsDir() {
		return pipeline.LoadDir(ctx, path)
	}
	report, err := pipeline.LoadFile(ctx, path)
	summary := loader.Summary{Totals: report}
	if err != nil {
		return summary, err
	}
	summary.Units = []loader.Report{report}
	return summary, nil
}

// Migrate creates the schema, dropping existing tables first when reset is set.
func (a *App) Migrate(ctx context.Context, reset bool) error {
	if reset {
		a.logger.Warn("resetting schema; all movies and quotes are dropped")
	}
	if err := a.repo.Migrate(ctx, store.MigrateOptions{Reset: reset}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Records returns every record in the raw log.
func (a *App) Records(ctx context.Context) ([]crawler.RawRecord, error) {
	return a.log.ReadAll(ctx)
}

// Processed returns a snapshot of the processed set.
func (a *App) Processed() tracker.Set {
	return a.tracker.Snapshot()
}

// Stats summarizes the store.
func (a *App) Stats(ctx context.Context) (store.Stats, error) {
	return a.repo.Stats(ctx)
}

// Ping checks the store connection.
func (a *App) Ping(ctx context.Context) error {
	return a.repo.Ping(ctx)
}

// ListRuns returns the runs executed by this process.
func (a *App) ListRuns(ctx context.Context) ([]crawler.RunSummary, error) {
	return a.runs.ListRuns(ctx)
}

// GetRun returns one run executed by this process.
func (a *App) GetRun(ctx context.Context, runID string) (crawler.RunSummary, error) {
	return a.runs.GetRun(ctx, runID)
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.repo != nil {
		a.repo.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
}
