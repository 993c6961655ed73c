package parser

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/scanner"
)

func TestGenericFirstTemplateWins(t *testing.T) {
	t.Parallel()

	const loc = "https://example.com/updates"
	page := `<html><body>
<article><h2>The only article element</h2><a href="/updates/a">Read</a></article>
<div class="card"><h3>Card that must be ignored</h3><a href="/updates/card-1">Read</a></div>
<div class="card"><h3>Another ignored card here</h3><a href="/updates/card-2">Read</a></div>
</body></html>`
	g := NewGenericStrategy(&fakeFetcher{payloads: map[string]string{loc: page}}, Limits{}, nil)

	items, err := g.Extract(context.Background(), loc, domain.Source{}, scanner.Epoch)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://example.com/updates/a" {
		t.Fatalf("expected only the article template to be used, got %+v", items)
	}
}

func TestGenericFallsThroughToCards(t *testing.T) {
	t.Parallel()

	const loc = "https://example.com/updates"
	page := `<html><body>
<a class="card" href="/updates/x"><span>Anchor card without heading</span></a>
<div class="card"><h3>Card with a heading</h3><a href="/updates/y">Read</a></div>
</body></html>`
	g := NewGenericStrategy(&fakeFetcher{payloads: map[string]string{loc: page}}, Limits{}, nil)

	items, err := g.Extract(context.Background(), loc, domain.Source{}, scanner.Epoch)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 card items, got %+v", items)
	}
	if items[0].Title != "Anchor card without heading" || items[0].URL != "https://example.com/updates/x" {
		t.Fatalf("unexpected anchor card %+v", items[0])
	}
}

func TestGenericCapsItems(t *testing.T) {
	t.Parallel()

	const loc = "https://example.com/updates"
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, `<article><h2>Article number %02d</h2><a href="/updates/%d">Read</a></article>`, i, i)
	}
	g := NewGenericStrategy(&fakeFetcher{payloads: map[string]string{loc: b.String()}}, Limits{}, nil)

	items, err := g.Extract(context.Background(), loc, domain.Source{}, scanner.Epoch)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != DefaultGenericMaxItems {
		t.Fatalf("expected cap of %d, got %d", DefaultGenericMaxItems, len(items))
	}
	if items[0].Title != "Article number 00" {
		t.Fatalf("expected document order, got %s", items[0].Title)
	}
}

func TestGenericAlwaysAccepts(t *testing.T) {
	t.Parallel()

	if !NewGenericStrategy(nil, Limits{}, nil).CanHandle("anything") {
		t.Fatal("generic strategy must accept every locator")
	}
}
