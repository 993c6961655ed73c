package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
	"UpdatesDigest/internal/scanner"
)

// StrategySelector picks the extraction strategy for a locator.
type StrategySelector interface {
	Select(url string) scanner.Strategy
}

// Detection is the outcome of one change check for a source.
type Detection struct {
	// Items are new since the watermark, newest first.
	Items    []domain.CandidateItem
	Strategy string
	// Newest is the locator the watermark advances to on commit.
	Newest    string
	Committed bool
	// Err is set when the check failed; Items is then empty.
	Err error
}

// Detector computes new items per source using the URL watermark.
type Detector struct {
	selector  StrategySelector
	sources   ports.SourceRepository
	telemetry ports.Telemetry
	logger    *slog.Logger
	now       func() time.Time
}

// NewDetector wires the dispatcher and the watermark store.
func NewDetector(selector StrategySelector, sources ports.SourceRepository, telemetry ports.Telemetry, log *slog.Logger) *Detector {
	return &Detector{
		selector:  selector,
		sources:   sources,
		telemetry: telemetry,
		logger:    log,
		now:       time.Now,
	}
}

// Check detects new items and advances the watermark when there are any.
func (d *Detector) Check(ctx context.Context, src domain.Source) Detection {
	det := d.Peek(ctx, src)
	if det.Err != nil || len(det.Items) == 0 {
		return det
	}
	if err := d.Commit(ctx, src, &det); err != nil {
		return Detection{Strategy: det.Strategy, Err: err}
	}
	return det
}

// Peek detects new items without touching the watermark.
func (d *Detector) Peek(ctx context.Context, src domain.Source) Detection {
	if !src.Dispatchable() {
		return Detection{}
	}

	strategy := d.selector.Select(src.NewsURL)
	det := Detection{Strategy: strategy.Name()}

	items, err := strategy.Extract(ctx, src.NewsURL, src, scanner.Epoch)
	if err != nil {
		d.record(det.Strategy, "error")
		d.warn("source check failed", "source", src.Name, "strategy", det.Strategy, "url", src.NewsURL, "error", err)
		det.Err = fmt.Errorf("source %s: %w", src.Name, err)
		return det
	}

	det.Items = newSinceWatermark(items, src.Watermark())
	if len(det.Items) == 0 {
		d.record(det.Strategy, "unchanged")
		d.debug("no new content", "source", src.Name, "strategy", det.Strategy, "visible", len(items))
		return det
	}

	det.Newest = items[0].URL
	d.record(det.Strategy, "new")
	if d.telemetry != nil {
		d.telemetry.ItemsDetected(src.Name, len(det.Items))
	}
	d.debug("new content detected", "source", src.Name, "strategy", det.Strategy, "new", len(det.Items), "visible", len(items))
	return det
}

// Commit persists det.Newest as the source watermark.
func (d *Detector) Commit(ctx context.Context, src domain.Source, det *Detection) error {
	if det.Newest == "" || det.Committed {
		return nil
	}
	if err := d.sources.UpdateWatermark(ctx, src.ID, det.Newest, d.now().UTC()); err != nil {
		d.warn("watermark update failed", "source", src.Name, "error", err)
		return fmt.Errorf("source %s: update watermark: %w", src.Name, err)
	}
	det.Committed = true
	return nil
}

// newSinceWatermark returns the newest-first prefix before the watermark. A
// missing watermark yields only the newest item; a watermark no longer in the
// list yields everything.
func newSinceWatermark(items []domain.CandidateItem, watermark string) []domain.CandidateItem {
	if len(items) == 0 {
		return nil
	}
	if watermark == "" {
		return items[:1:1]
	}
	for i, it := range items {
		if it.URL == watermark {
			return append([]domain.CandidateItem(nil), items[:i]...)
		}
	}
	return append([]domain.CandidateItem(nil), items...)
}

func (d *Detector) record(strategy, outcome string) {
	if d.telemetry != nil {
		d.telemetry.SourceCheck(strategy, outcome)
	}
}

func (d *Detector) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func (d *Detector) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
