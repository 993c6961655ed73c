package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

func TestRunIsolatesFailingSource(t *testing.T) {
	t.Parallel()

	var sources []domain.Source
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		sources = append(sources, activeSource(id))
	}
	h := newHarness(sources...)
	for _, src := range sources {
		h.strategy.items[src.NewsURL] = candidates(src.NewsURL+"/new", src.NewsURL+"/old")
	}
	h.strategy.errs[sources[2].NewsURL] = errors.New("fetch failed: http 500")

	res := h.pipeline.Run(context.Background(), RunRequest{})

	if !res.OK {
		t.Fatalf("expected ok run, got %+v", res)
	}
	if res.SourcesChecked != 5 || res.ItemsStored != 4 {
		t.Fatalf("unexpected counts: checked=%d stored=%d", res.SourcesChecked, res.ItemsStored)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Source s3") {
		t.Fatalf("expected one error for s3, got %v", res.Errors)
	}
	if !res.DigestGenerated || res.Digest == nil || res.Digest.ItemCount != 4 {
		t.Fatalf("expected digest over 4 items, got %+v", res.Digest)
	}
	if res.TargetDate != "2025-03-10" {
		t.Fatalf("unexpected target date %s", res.TargetDate)
	}
	if h.store.source("s3").LastSeenItemURL != nil {
		t.Fatal("failed source must keep its watermark")
	}
	if h.store.source("s1").Watermark() != sources[0].NewsURL+"/new" {
		t.Fatal("healthy source watermark must advance")
	}
	for _, it := range h.store.allItems() {
		if it.DigestedOn == nil || *it.DigestedOn != "2025-03-10" {
			t.Fatalf("item %s not marked with the target date", it.URL)
		}
		if it.Language != "en" {
			t.Fatalf("item %s lost the source language", it.URL)
		}
	}
}

func TestRunRecoversFromStrategyPanic(t *testing.T) {
	t.Parallel()

	a, b := activeSource("a"), activeSource("b")
	h := newHarness(a, b)
	h.strategy.panics[a.NewsURL] = true
	h.strategy.items[b.NewsURL] = candidates(b.NewsURL + "/1")

	res := h.pipeline.Run(context.Background(), RunRequest{})
	if !res.OK || res.ItemsStored != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "panic") {
		t.Fatalf("expected panic to be recorded, got %v", res.Errors)
	}
}

func TestRunWithoutItemsSkipsGeneration(t *testing.T) {
	t.Parallel()

	h := newHarness(activeSource("s1"))

	res := h.pipeline.Run(context.Background(), RunRequest{})
	if !res.OK || res.DigestGenerated || res.Digest != nil {
		t.Fatalf("expected no digest, got %+v", res)
	}
	if h.generator.calls() != 0 {
		t.Fatalf("generator must not be called, got %d calls", h.generator.calls())
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")

	first := h.pipeline.Run(context.Background(), RunRequest{})
	second := h.pipeline.Run(context.Background(), RunRequest{})

	if !first.DigestGenerated || first.FromCache {
		t.Fatalf("first run must generate, got %+v", first)
	}
	if !second.FromCache || second.DigestGenerated {
		t.Fatalf("second run must be served from cache, got %+v", second)
	}
	if second.Digest == nil || second.Digest.Text != first.Digest.Text || second.Digest.Date != first.Digest.Date {
		t.Fatalf("cached digest differs: %+v vs %+v", second.Digest, first.Digest)
	}
	if h.generator.calls() != 1 {
		t.Fatalf("expected a single generation call, got %d", h.generator.calls())
	}
	if first.RunID == second.RunID {
		t.Fatal("run ids must be unique")
	}
}

func TestForcedRegenerationNeverReusesDigestedItems(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")

	_ = h.pipeline.Run(context.Background(), RunRequest{})
	res := h.pipeline.Run(context.Background(), RunRequest{ForceRegenerate: true, SkipFetch: true})

	if res.FromCache || res.DigestGenerated {
		t.Fatalf("already digested items must not be composed again: %+v", res)
	}
	if h.generator.calls() != 1 {
		t.Fatalf("expected no extra generation, got %d calls", h.generator.calls())
	}
}

func TestRunTargetWindow(t *testing.T) {
	t.Parallel()

	h := newHarness()
	inWindow := fixedNow.AddDate(0, 0, -1)
	h.store.addItem(domain.StoredItem{SourceName: "A", Title: "Yesterday item", URL: "https://a/1", FetchedAt: inWindow})
	h.store.addItem(domain.StoredItem{SourceName: "B", Title: "Old item", URL: "https://b/1", FetchedAt: fixedNow.AddDate(0, 0, -3)})

	res := h.pipeline.Run(context.Background(), RunRequest{SkipFetch: true})
	if res.Digest == nil || res.Digest.ItemCount != 1 || len(res.Digest.Sources) != 1 || res.Digest.Sources[0] != "A" {
		t.Fatalf("expected only the in-window item, got %+v", res.Digest)
	}
	for _, it := range h.store.allItems() {
		if it.URL == "https://b/1" && it.DigestedOn != nil {
			t.Fatal("out-of-window item must stay undigested")
		}
	}
}

func TestRunStorageFaultIsFatal(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")
	h.store.failInsert = errors.New("connection reset")

	res := h.pipeline.Run(context.Background(), RunRequest{})
	if res.OK {
		t.Fatal("storage faults must fail the run")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[len(res.Errors)-1], "store items") {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if h.store.source("s1").LastSeenItemURL != nil {
		t.Fatal("watermark must not advance when items were not stored")
	}
}

func TestRunGenerationFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")
	h.generator.respond = func(ports.CompletionRequest, int) (string, error) {
		return "", errors.New("rate limited")
	}

	res := h.pipeline.Run(context.Background(), RunRequest{Publish: true})
	if !res.OK || res.DigestGenerated || res.Published {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected the generation error, got %v", res.Errors)
	}
	for _, it := range h.store.allItems() {
		if it.DigestedOn != nil {
			t.Fatal("items must stay undigested when generation fails")
		}
	}
}

func TestRunPublishesChunks(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.publisher.limit = 60
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")
	body := strings.Repeat("First paragraph sentence. ", 3) + "\n\n" + strings.Repeat("Second paragraph words ", 4)
	h.generator.respond = func(ports.CompletionRequest, int) (string, error) { return body, nil }

	res := h.pipeline.Run(context.Background(), RunRequest{Publish: true})
	if !res.Published {
		t.Fatalf("expected publish, got %+v", res)
	}
	if len(h.publisher.sent) < 2 || len(res.MessageIDs) != len(h.publisher.sent) {
		t.Fatalf("expected several chunks, sent %d ids %v", len(h.publisher.sent), res.MessageIDs)
	}
	for i, msg := range h.publisher.sent {
		if len([]rune(msg.Text)) > 60 {
			t.Fatalf("chunk %d exceeds limit: %q", i, msg.Text)
		}
		if msg.Silent != (i > 0) {
			t.Fatalf("chunk %d silent=%v", i, msg.Silent)
		}
	}
}

func TestRunPublishFailureKeepsDigest(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.publisher.failFrom = 1
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")

	res := h.pipeline.Run(context.Background(), RunRequest{Publish: true})
	if !res.OK || res.Published || !res.DigestGenerated {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := h.store.DigestByDate(context.Background(), res.TargetDate); err != nil {
		t.Fatalf("digest must be stored despite publish failure: %v", err)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "publish") {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
}

func TestRunTranslationFallsBack(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.pipeline.settings.TranslateTo = "German"
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")
	h.generator.respond = func(req ports.CompletionRequest, call int) (string, error) {
		if call == 1 {
			return "Digest body.", nil
		}
		return "", errors.New("overloaded")
	}

	res := h.pipeline.Run(context.Background(), RunRequest{})
	if res.Digest == nil || res.Digest.TranslatedText == nil {
		t.Fatalf("expected translated text slot, got %+v", res.Digest)
	}
	if *res.Digest.TranslatedText != TranslationFallback {
		t.Fatalf("expected fallback, got %q", *res.Digest.TranslatedText)
	}
	if h.generator.calls() != 1+translationAttempts {
		t.Fatalf("expected %d calls, got %d", 1+translationAttempts, h.generator.calls())
	}
	if got := h.generator.requests[1].System; got != "translate into German" {
		t.Fatalf("unexpected translation prompt %q", got)
	}
}

func TestRunClassifiesItems(t *testing.T) {
	t.Parallel()

	src := activeSource("s1")
	h := newHarness(src)
	h.pipeline.classifier = fixedClassifier{byURL: map[string]domain.Importance{src.NewsURL + "/1": domain.ImportanceHigh}}
	h.strategy.items[src.NewsURL] = candidates(src.NewsURL + "/1")

	_ = h.pipeline.Run(context.Background(), RunRequest{})
	items := h.store.allItems()
	if len(items) != 1 || !items[0].IsHighImportance() {
		t.Fatalf("expected classified item, got %+v", items)
	}
}

func TestRunExplicitTargetDate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	target := time.Date(2025, time.February, 1, 15, 0, 0, 0, time.UTC)
	h.store.addItem(domain.StoredItem{SourceName: "A", Title: "February item", URL: "https://a/feb", FetchedAt: target})

	res := h.pipeline.Run(context.Background(), RunRequest{TargetDate: target, SkipFetch: true})
	if res.TargetDate != "2025-02-01" || !res.DigestGenerated {
		t.Fatalf("unexpected result %+v", res)
	}
}
