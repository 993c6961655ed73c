package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

// RollingRequest parameterises a rolling-window run. Zero windows fall back
// to the configured defaults.
type RollingRequest struct {
	RecentWindowDays int
	MissedWindowDays int
	FetchFresh       bool
	Publish          bool
	// DryRun peeks sources and composes without writing, marking or publishing.
	DryRun bool
}

// RunRolling digests recent undigested items plus older high-importance ones
// that a skipped run left behind. The union is stored under today's date.
func (p *Pipeline) RunRolling(ctx context.Context, req RollingRequest) (res RunResult) {
	started := p.now()
	res = RunResult{OK: true, RunID: uuid.NewString(), Mode: "rolling", DryRun: req.DryRun, Errors: []string{}}

	recentDays, missedDays := p.windows(req)
	today := startOfDay(started, p.settings.Location)
	res.TargetDate = domain.DateKey(today)

	log := p.logger
	if log != nil {
		log = log.With("run_id", res.RunID, "mode", res.Mode, "date", res.TargetDate, "dry_run", req.DryRun)
	}
	defer p.finish(&res, started, log)

	var fresh []domain.StoredItem
	if req.FetchFresh {
		batch, err := p.ingest(ctx, &res, !req.DryRun)
		if err != nil {
			res.fail(err)
			return res
		}
		if req.DryRun {
			fresh = batch
		}
	}

	recent, err := p.items.UndigestedItems(ctx, ports.ItemFilter{
		From: started.Add(-time.Duration(recentDays) * 24 * time.Hour).UTC(),
	})
	if err != nil {
		res.fail(fmt.Errorf("load recent items: %w", err))
		return res
	}

	high := domain.ImportanceHigh
	missed, err := p.items.UndigestedItems(ctx, ports.ItemFilter{
		From:       started.Add(-time.Duration(missedDays) * 24 * time.Hour).UTC(),
		Importance: &high,
	})
	if err != nil {
		res.fail(fmt.Errorf("load missed items: %w", err))
		return res
	}

	primary := unionItems(fresh, recent)
	union := unionItems(primary, missed)
	res.RecentItems = len(primary)
	res.MissedItems = len(union) - len(primary)

	if !p.composeAndStore(ctx, &res, res.TargetDate, union, req.DryRun) {
		return res
	}
	if req.Publish && !req.DryRun && res.Digest != nil {
		p.publish(ctx, *res.Digest, &res)
	}
	return res
}

func (p *Pipeline) windows(req RollingRequest) (int, int) {
	recent := req.RecentWindowDays
	if recent <= 0 {
		recent = p.settings.RecentWindowDays
	}
	missed := req.MissedWindowDays
	if missed <= 0 {
		missed = p.settings.MissedWindowDays
	}
	if missed < recent {
		missed = recent
	}
	return recent, missed
}

// unionItems keeps primary order and appends extra items not already present.
// Fingerprints identify items whether or not they have been stored yet.
func unionItems(primary, extra []domain.StoredItem) []domain.StoredItem {
	seen := map[string]struct{}{}
	key := func(it domain.StoredItem) string {
		if it.Fingerprint != "" {
			return it.Fingerprint
		}
		return fmt.Sprintf("id:%d", it.ID)
	}

	out := make([]domain.StoredItem, 0, len(primary)+len(extra))
	for _, list := range [][]domain.StoredItem{primary, extra} {
		for _, it := range list {
			k := key(it)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}
