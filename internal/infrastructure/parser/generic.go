package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/scanner"
)

// DefaultGenericMaxItems caps what the fallback emits per pass.
const DefaultGenericMaxItems = 20

type template struct {
	name      string
	container string
}

// Ordered from semantic article markup down to bare grid layouts.
var genericTemplates = []template{
	{name: "article", container: "article"},
	{name: "post-class", container: "div[class*='post'], div[class*='Post'], div[class*='entry'], div[class*='news-item']"},
	{name: "card", container: "div[class*='card'], div[class*='Card'], a[class*='card'], a[class*='Card']"},
	{name: "list-entry", container: "li[class*='post'], li[class*='entry'], li[class*='item'], li[class*='news']"},
	{name: "grid", container: "[class*='grid'] > div, [class*='grid'] > a"},
	{name: "column", container: "[class*='col'] > div, [class*='col'] > a"},
}

const (
	genericTitle   = "h1, h2, h3, h4, [class*='title'], [class*='Title']"
	genericDate    = "time, [class*='date'], [class*='Date'], [itemprop='datePublished']"
	genericExcerpt = "p, [class*='excerpt'], [class*='summary'], [class*='description']"
)

// GenericStrategy is the fallback for pages no other strategy recognises.
type GenericStrategy struct {
	fetcher PageFetcher
	limits  Limits
	logger  *slog.Logger
}

var _ scanner.Strategy = (*GenericStrategy)(nil)

// NewGenericStrategy builds the fallback. A zero MaxItems uses DefaultGenericMaxItems.
func NewGenericStrategy(fetcher PageFetcher, limits Limits, log *slog.Logger) *GenericStrategy {
	if limits.MaxItems <= 0 {
		limits.MaxItems = DefaultGenericMaxItems
	}
	return &GenericStrategy{fetcher: fetcher, limits: limits, logger: log}
}

// Name identifies the strategy inside the dispatcher.
func (g *GenericStrategy) Name() string {
	return "generic"
}

// CanHandle always accepts.
func (g *GenericStrategy) CanHandle(string) bool {
	return true
}

// Extract uses the first template that matches any container.
func (g *GenericStrategy) Extract(ctx context.Context, raw string, source domain.Source, since time.Time) ([]domain.CandidateItem, error) {
	doc, base, err := fetchDocument(ctx, g.fetcher, raw)
	if err != nil {
		return nil, fmt.Errorf("generic: %w", err)
	}
	items, used := g.extract(doc, base, since)
	g.debug("generic page parsed", "source", source.Name, "template", used, "items", len(items))
	return items, nil
}

func (g *GenericStrategy) extract(doc *goquery.Document, base *url.URL, since time.Time) ([]domain.CandidateItem, string) {
	for _, tpl := range genericTemplates {
		containers := doc.Find(tpl.container)
		if containers.Length() == 0 {
			continue
		}
		col := newCollector(base, g.limits, since)
		containers.EachWithBreak(func(_ int, c *goquery.Selection) bool {
			title := firstText(c, genericTitle)
			if title == "" && goquery.NodeName(c) == "a" {
				title = CollapseSpace(c.Text())
			}
			col.add(title, linkOf(c, ""), firstText(c, genericExcerpt), dateFrom(c.Find(genericDate).First()))
			return !col.full()
		})
		return col.items, tpl.name
	}
	return nil, ""
}

func (g *GenericStrategy) debug(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}
