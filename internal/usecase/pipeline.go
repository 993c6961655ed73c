package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

// Settings are the pipeline knobs taken from configuration.
type Settings struct {
	SystemPrompt string
	// TranslationPrompt may contain one %s for the target language.
	TranslationPrompt string
	TranslateTo       string
	MaxTokens         int
	Temperature       float64
	GenerationTimeout time.Duration
	PublishTimeout    time.Duration
	RecentWindowDays  int
	MissedWindowDays  int
	// Location decides which calendar day "today" is.
	Location *time.Location
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Detector   *Detector
	Sources    ports.SourceRepository
	Items      ports.ItemRepository
	Digests    ports.DigestRepository
	Generator  ports.TextGenerator
	Publisher  ports.Publisher
	Classifier ports.Classifier
	Telemetry  ports.Telemetry
	Logger     *slog.Logger
	Settings   Settings
	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline implements the ingestion and digest workflow.
type Pipeline struct {
	detector   *Detector
	sources    ports.SourceRepository
	items      ports.ItemRepository
	digests    ports.DigestRepository
	generator  ports.TextGenerator
	publisher  ports.Publisher
	classifier ports.Classifier
	telemetry  ports.Telemetry
	logger     *slog.Logger
	settings   Settings
	now        func() time.Time
}

// RunRequest parameterises a daily run. A zero TargetDate means today.
type RunRequest struct {
	TargetDate      time.Time
	ForceRegenerate bool
	SkipFetch       bool
	Publish         bool
}

// RunResult is returned by every entry point, including failed runs.
type RunResult struct {
	OK              bool           `json:"ok"`
	RunID           string         `json:"runId"`
	Mode            string         `json:"mode"`
	TargetDate      string         `json:"targetDate"`
	SourcesChecked  int            `json:"sourcesChecked"`
	ItemsFetched    int            `json:"itemsFetched"`
	ItemsStored     int            `json:"itemsStored"`
	RecentItems     int            `json:"recentItems,omitempty"`
	MissedItems     int            `json:"missedItems,omitempty"`
	DigestGenerated bool           `json:"digestGenerated"`
	FromCache       bool           `json:"fromCache"`
	DryRun          bool           `json:"dryRun,omitempty"`
	Published       bool           `json:"published"`
	MessageIDs      []string       `json:"messageIds,omitempty"`
	Errors          []string       `json:"errors"`
	Digest          *domain.Digest `json:"digest,omitempty"`
}

func (r *RunResult) addError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// fail marks the run as aborted by a storage or unexpected fault.
func (r *RunResult) fail(err error) {
	r.OK = false
	r.addError(err)
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		detector:   deps.Detector,
		sources:    deps.Sources,
		items:      deps.Items,
		digests:    deps.Digests,
		generator:  deps.Generator,
		publisher:  deps.Publisher,
		classifier: deps.Classifier,
		telemetry:  deps.Telemetry,
		logger:     deps.Logger,
		settings:   deps.Settings,
		now:        deps.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.settings.Location == nil {
		p.settings.Location = time.UTC
	}
	if p.settings.RecentWindowDays <= 0 {
		p.settings.RecentWindowDays = 1
	}
	if p.settings.MissedWindowDays <= 0 {
		p.settings.MissedWindowDays = 7
	}
	return p
}

// Run performs one daily cycle. It never returns an error: faults end up in
// RunResult.Errors and storage faults additionally clear RunResult.OK.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (res RunResult) {
	started := p.now()
	res = RunResult{OK: true, RunID: uuid.NewString(), Mode: "daily", Errors: []string{}}

	day := req.TargetDate
	if day.IsZero() {
		day = started
	}
	day = startOfDay(day, p.settings.Location)
	res.TargetDate = domain.DateKey(day)

	log := p.logger
	if log != nil {
		log = log.With("run_id", res.RunID, "mode", res.Mode, "date", res.TargetDate)
	}
	defer p.finish(&res, started, log)

	cached, hasCached, err := p.cachedDigest(ctx, res.TargetDate, req.ForceRegenerate)
	if err != nil {
		res.fail(err)
		return res
	}

	if !req.SkipFetch {
		if _, err := p.ingest(ctx, &res, true); err != nil {
			res.fail(err)
			return res
		}
	}

	if hasCached {
		res.FromCache = true
		res.Digest = &cached
		p.info(log, "digest served from cache")
	} else {
		items, err := p.items.UndigestedItems(ctx, ports.ItemFilter{
			From: day.AddDate(0, 0, -1).UTC(),
			To:   day.AddDate(0, 0, 1).UTC(),
		})
		if err != nil {
			res.fail(fmt.Errorf("load undigested items: %w", err))
			return res
		}
		if !p.composeAndStore(ctx, &res, res.TargetDate, items, false) {
			return res
		}
	}

	if req.Publish && res.Digest != nil {
		p.publish(ctx, *res.Digest, &res)
	}
	return res
}

func (p *Pipeline) cachedDigest(ctx context.Context, date string, force bool) (domain.Digest, bool, error) {
	if force {
		return domain.Digest{}, false, nil
	}
	d, err := p.digests.DigestByDate(ctx, date)
	switch {
	case err == nil:
		return d, true, nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.Digest{}, false, nil
	default:
		return domain.Digest{}, false, fmt.Errorf("load digest %s: %w", date, err)
	}
}

// ingest checks every dispatchable source in order. Per-source faults are
// recorded and skipped; a storage fault is returned. With persist unset the
// detector only peeks and nothing is written.
func (p *Pipeline) ingest(ctx context.Context, res *RunResult, persist bool) ([]domain.StoredItem, error) {
	sources, err := p.sources.ActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	type pending struct {
		source    domain.Source
		detection Detection
	}

	fetchedAt := p.now().UTC()
	var (
		batch   []domain.StoredItem
		commits []pending
	)
	for _, src := range sources {
		if !src.Dispatchable() {
			continue
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ingest: %w", ctx.Err())
		}
		res.SourcesChecked++

		det := p.checkSource(ctx, src)
		if det.Err != nil {
			res.addError(det.Err)
			continue
		}
		res.ItemsFetched += len(det.Items)
		for _, c := range det.Items {
			batch = append(batch, domain.NewStoredItem(src, c, fetchedAt))
		}
		if len(det.Items) > 0 {
			commits = append(commits, pending{source: src, detection: det})
		}
	}

	p.classify(ctx, batch, res)
	if !persist {
		return batch, nil
	}

	if len(batch) > 0 {
		stored, err := p.items.InsertItems(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("store items: %w", err)
		}
		res.ItemsStored = stored
		if p.telemetry != nil {
			p.telemetry.ItemsStored(stored)
		}
	}

	// Watermarks move only once the items behind them are stored.
	for i := range commits {
		if err := p.detector.Commit(ctx, commits[i].source, &commits[i].detection); err != nil {
			res.addError(err)
		}
	}
	return batch, nil
}

// checkSource isolates a single source, including panics raised by strategies.
func (p *Pipeline) checkSource(ctx context.Context, src domain.Source) (det Detection) {
	defer func() {
		if r := recover(); r != nil {
			p.warn("source check panicked", "source", src.Name, "panic", r)
			det = Detection{Err: fmt.Errorf("source %s: panic: %v", src.Name, r)}
		}
	}()
	return p.detector.Peek(ctx, src)
}

func (p *Pipeline) classify(ctx context.Context, items []domain.StoredItem, res *RunResult) {
	if p.classifier == nil || len(items) == 0 {
		return
	}
	var (
		failed  int
		lastErr error
	)
	for i := range items {
		imp, err := p.classifier.Classify(ctx, items[i])
		if err != nil {
			failed++
			lastErr = err
			continue
		}
		if imp.Valid() {
			items[i].Importance = &imp
		}
	}
	if failed > 0 {
		p.warn("classification failed", "failed", failed, "total", len(items), "error", lastErr)
		res.addError(fmt.Errorf("classify %d of %d items: %w", failed, len(items), lastErr))
	}
}

// composeAndStore generates, persists and marks a digest for items. It
// reports false when the run must stop (storage fault).
func (p *Pipeline) composeAndStore(ctx context.Context, res *RunResult, date string, items []domain.StoredItem, dryRun bool) bool {
	if len(items) == 0 {
		p.digestOutcome(res.Mode, "empty")
		p.info(p.logger, "no items to digest", "run_id", res.RunID, "date", date)
		return true
	}

	digest, err := p.compose(ctx, date, items)
	if err != nil {
		p.digestOutcome(res.Mode, "generation_failed")
		p.warn("digest generation failed", "run_id", res.RunID, "date", date, "error", err)
		res.addError(err)
		return true
	}

	if !dryRun {
		if err := p.digests.UpsertDigest(ctx, digest); err != nil {
			res.fail(fmt.Errorf("store digest %s: %w", date, err))
			return false
		}
		ids := make([]int64, 0, len(items))
		for _, it := range items {
			if it.ID != 0 {
				ids = append(ids, it.ID)
			}
		}
		if err := p.items.MarkDigested(ctx, ids, date); err != nil {
			res.fail(fmt.Errorf("mark items digested: %w", err))
			return false
		}
	}

	p.digestOutcome(res.Mode, "generated")
	res.DigestGenerated = true
	res.Digest = &digest
	p.info(p.logger, "digest composed", "run_id", res.RunID, "date", date, "items", len(items), "dry_run", dryRun)
	return true
}

func (p *Pipeline) finish(res *RunResult, started time.Time, log *slog.Logger) {
	if r := recover(); r != nil {
		res.fail(fmt.Errorf("unexpected panic: %v", r))
	}
	elapsed := p.now().Sub(started)
	if p.telemetry != nil {
		p.telemetry.RunDuration(res.Mode, elapsed.Seconds())
	}
	if log == nil {
		return
	}
	level := slog.LevelInfo
	if !res.OK {
		level = slog.LevelError
	}
	log.Log(context.Background(), level, "run finished",
		"ok", res.OK,
		"sources", res.SourcesChecked,
		"fetched", res.ItemsFetched,
		"stored", res.ItemsStored,
		"digest", res.DigestGenerated,
		"cached", res.FromCache,
		"published", res.Published,
		"errors", len(res.Errors),
		"elapsed", elapsed)
}

func (p *Pipeline) digestOutcome(mode, outcome string) {
	if p.telemetry != nil {
		p.telemetry.Digest(mode, outcome)
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (p *Pipeline) info(log *slog.Logger, msg string, args ...any) {
	if log != nil {
		log.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
