package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/infrastructure/export"
	"UpdatesDigest/internal/infrastructure/fetch"
	"UpdatesDigest/internal/infrastructure/httpapi"
	"UpdatesDigest/internal/infrastructure/lease"
	"UpdatesDigest/internal/infrastructure/llm"
	"UpdatesDigest/internal/infrastructure/metrics"
	"UpdatesDigest/internal/infrastructure/ml"
	"UpdatesDigest/internal/infrastructure/parser"
	"UpdatesDigest/internal/infrastructure/scheduler"
	"UpdatesDigest/internal/infrastructure/storage"
	"UpdatesDigest/internal/infrastructure/telegram"
	"UpdatesDigest/internal/logging"
	"UpdatesDigest/internal/ports"
	"UpdatesDigest/internal/scanner"
	"UpdatesDigest/internal/usecase"
)

// ErrRunInProgress is returned when another run holds the run lease.
var ErrRunInProgress = errors.New("another run is in progress")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	repo       *storage.Repository
	metrics    *metrics.Metrics
	dispatcher *scanner.Dispatcher
	pipeline   *usecase.Pipeline
	scheduler  *usecase.Scheduler
	closers    []func() error
}

// New opens storage and builds every adapter named in cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(cfg.Fetch,
		fetch.WithLogger(logging.Component(baseLogger, "fetch")),
		fetch.WithMetrics(a.metrics),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build fetcher: %w", err)
	}
	a.dispatcher, err = buildDispatcher(fetcher, cfg.Pipeline, baseLogger)
	if err != nil {
		a.Close()
		return nil, err
	}

	generator, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build text generator: %w", err)
	}

	var classifier ports.Classifier
	if c := ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey); c != nil {
		classifier = c
	}

	var publisher ports.Publisher
	if n := telegram.NewNotifier(cfg.Notifications.Telegram); n.Configured() {
		publisher = n
	}

	detector := usecase.NewDetector(a.dispatcher, a.repo, a.metrics, logging.Component(baseLogger, "detector"))
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Detector:   detector,
		Sources:    a.repo,
		Items:      a.repo,
		Digests:    a.repo,
		Generator:  generator,
		Publisher:  publisher,
		Classifier: classifier,
		Telemetry:  a.metrics,
		Logger:     logging.Component(baseLogger, "pipeline"),
		Settings: usecase.Settings{
			SystemPrompt:      cfg.LLM.SystemPrompt,
			TranslationPrompt: cfg.LLM.TranslationPrompt,
			TranslateTo:       cfg.Pipeline.TranslateTo,
			MaxTokens:         cfg.LLM.MaxTokens,
			Temperature:       cfg.LLM.Temperature,
			GenerationTimeout: cfg.Pipeline.GenerationTimeout,
			PublishTimeout:    cfg.Pipeline.PublishTimeout,
			RecentWindowDays:  cfg.Pipeline.RecentWindowDays,
			MissedWindowDays:  cfg.Pipeline.MissedWindowDays,
			Location:          cfg.Scheduler.Location(),
		},
	})

	runLease, err := a.buildLease(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scheduler = usecase.NewScheduler(nil, a.pipeline, runLease, usecase.ScheduleOptions{
		Mode:     cfg.Scheduler.Mode,
		Publish:  cfg.Scheduler.Publish,
		LeaseTTL: cfg.Redis.LeaseTTL,
	}, logging.Component(baseLogger, "scheduler"))

	return a, nil
}

func (a *Application) openStorage(ctx context.Context) error {
	dialect, err := storage.ParseDialect(a.cfg.Database.Driver)
	if err != nil {
		return err
	}
	if dialect == storage.Postgres && a.cfg.Database.AutoMigrate {
		if err := storage.MigratePostgres(a.cfg.Database.DSN, "up", 0, a.logger); err != nil {
			return err
		}
	}

	db, dialect, err := storage.Open(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	a.repo = storage.NewRepository(db, dialect)
	a.closers = append(a.closers, db.Close)
	return nil
}

func (a *Application) buildLease(ctx context.Context) (ports.RunLease, error) {
	if a.cfg.Redis.Addr == "" {
		return lease.NewMemory(), nil
	}
	l, err := lease.Dial(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, l.Close)
	return l, nil
}

// buildDispatcher orders strategies: dedicated site layouts first, then
// feeds, with the generic extractor as the fallback.
func buildDispatcher(fetcher parser.PageFetcher, cfg config.PipelineConfig, log *slog.Logger) (*scanner.Dispatcher, error) {
	limits := parser.Limits{MinTitleLength: cfg.MinTitleLength, SnippetLength: cfg.SnippetLength}
	genericLimits := limits
	genericLimits.MaxItems = cfg.GenericMaxItems

	strategies := []scanner.Strategy{
		parser.NewArxivStrategy(fetcher, limits, logging.Component(log, "strategy.arxiv")),
	}
	for _, s := range parser.BuiltinSiteStrategies(fetcher, limits, log) {
		strategies = append(strategies, s)
	}
	strategies = append(strategies, parser.NewFeedStrategy(fetcher, limits, logging.Component(log, "strategy.feed")))

	fallback := parser.NewGenericStrategy(fetcher, genericLimits, logging.Component(log, "strategy.generic"))
	d, err := scanner.NewDispatcher(fallback, strategies...)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}
	return d, nil
}

// Strategies lists the registered extraction strategies in priority order.
func (a *Application) Strategies() []string {
	return a.dispatcher.Names()
}

// RunDaily executes one daily cycle under the run lease.
func (a *Application) RunDaily(ctx context.Context, req usecase.RunRequest) (usecase.RunResult, error) {
	res, ran := a.scheduler.RunDaily(ctx, req)
	if !ran {
		return res, ErrRunInProgress
	}
	return res, nil
}

// RunRolling executes one rolling-window cycle under the run lease.
func (a *Application) RunRolling(ctx context.Context, req usecase.RollingRequest) (usecase.RunResult, error) {
	res, ran := a.scheduler.RunRolling(ctx, req)
	if !ran {
		return res, ErrRunInProgress
	}
	return res, nil
}

// SyncSources upserts the configured source list.
func (a *Application) SyncSources(ctx context.Context) (int, error) {
	sources := SourcesFromConfig(a.cfg.Sources)
	if err := a.repo.UpsertSources(ctx, sources); err != nil {
		return 0, err
	}
	a.logger.Info("sources synced", "count", len(sources))
	return len(sources), nil
}

// SourcesFromConfig converts seed entries, skipping those without an id.
func SourcesFromConfig(seeds []config.SourceConfig) []domain.Source {
	out := make([]domain.Source, 0, len(seeds))
	for _, s := range seeds {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		lang := s.Language
		if lang == "" {
			lang = "en"
		}
		name := s.Name
		if name == "" {
			name = id
		}
		out = append(out, domain.Source{
			ID:       id,
			Name:     name,
			SiteURL:  s.SiteURL,
			NewsURL:  s.NewsURL,
			Language: lang,
			Active:   s.IsActive(),
		})
	}
	return out
}

// ExportDigest writes the stored digest for date to a .docx file.
func (a *Application) ExportDigest(ctx context.Context, date, path string) error {
	d, err := a.repo.DigestByDate(ctx, date)
	if err != nil {
		return err
	}
	return export.WriteDigestDocx(path, d)
}

// SetServerAddress overrides the configured listen address.
func (a *Application) SetServerAddress(addr string) {
	a.cfg.Server.Address = addr
}

// Serve runs the HTTP trigger API and, when a cron expression is configured,
// the scheduled trigger until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	var cron *scheduler.CronScheduler
	if expr := strings.TrimSpace(a.cfg.Scheduler.CronExpression); expr != "" {
		var err error
		cron, err = scheduler.NewCronScheduler(expr, a.cfg.Scheduler.Location())
		if err != nil {
			return err
		}
		a.scheduler = a.scheduler.WithDriver(cron)
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.logger.Info("scheduler started", "cron", expr, "next", cron.Next(time.Now()))
	}

	srv := httpapi.New(a.scheduler, a.repo, a.metrics.Handler(), a.cfg.Scheduler.Location(), logging.Component(a.logger, "http"))
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Address)
		errCh <- srv.Start(a.cfg.Server.Address)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	return serveErr
}

// Close releases storage and lease connections.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", "error", err)
		}
	}
	a.closers = nil
}
