package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/infrastructure/fetch"
	"UpdatesDigest/internal/scanner"
)

var feedSuffixes = []string{".xml", ".rss", ".atom", ".rdf"}

var feedSegments = map[string]struct{}{
	"feed":  {},
	"feeds": {},
	"rss":   {},
	"atom":  {},
}

// FeedStrategy parses RSS and Atom documents.
type FeedStrategy struct {
	fetcher PageFetcher
	limits  Limits
	logger  *slog.Logger
}

var _ scanner.Strategy = (*FeedStrategy)(nil)

// NewFeedStrategy wires the fetcher used for feed downloads.
func NewFeedStrategy(fetcher PageFetcher, limits Limits, log *slog.Logger) *FeedStrategy {
	return &FeedStrategy{fetcher: fetcher, limits: limits, logger: log}
}

// Name identifies the strategy inside the dispatcher.
func (f *FeedStrategy) Name() string {
	return "feed"
}

// CanHandle recognises feed locators by suffix and path conventions.
func (f *FeedStrategy) CanHandle(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if strings.HasPrefix(host, "feed.") || strings.HasPrefix(host, "feeds.") || strings.HasPrefix(host, "rss.") {
		return true
	}
	path := strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	for _, suffix := range feedSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	for _, segment := range strings.Split(path, "/") {
		if _, ok := feedSegments[segment]; ok {
			return true
		}
	}
	q := u.Query()
	return q.Get("format") == "rss" || q.Get("format") == "atom" || q.Has("feed")
}

// Extract downloads and parses the feed; items are returned newest-first.
func (f *FeedStrategy) Extract(ctx context.Context, raw string, source domain.Source, since time.Time) ([]domain.CandidateItem, error) {
	res := f.fetcher.Fetch(ctx, raw, fetch.Options{})
	if !res.OK {
		return nil, fmt.Errorf("feed %s: %w", raw, res.Err())
	}
	return f.parse(res.Payload, raw, since)
}

func (f *FeedStrategy) parse(payload []byte, raw string, since time.Time) ([]domain.CandidateItem, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", raw, err)
	}

	base, err := parseBase(raw)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", raw, err)
	}
	if feed.Link != "" {
		if fl, err := parseBase(feed.Link); err == nil {
			base = fl
		}
	}

	items := orderNewestFirst(feed.Items)
	col := newCollector(base, f.limits, since)
	for _, it := range items {
		excerpt := it.Description
		if strings.TrimSpace(excerpt) == "" {
			excerpt = it.Content
		}
		col.add(TextFromHTML(it.Title), itemLink(it), TextFromHTML(excerpt), itemDate(it))
	}

	f.debug("feed parsed", "url", raw, "format", feed.FeedType, "entries", len(feed.Items), "kept", len(col.items))
	return col.items, nil
}

// itemDate prefers the dialect's publish field (pubDate / published) and
// falls back to the update field.
func itemDate(it *gofeed.Item) *time.Time {
	switch {
	case it.PublishedParsed != nil:
		t := it.PublishedParsed.UTC()
		return &t
	case it.UpdatedParsed != nil:
		t := it.UpdatedParsed.UTC()
		return &t
	default:
		return nil
	}
}

func itemLink(it *gofeed.Item) string {
	if strings.TrimSpace(it.Link) != "" {
		return it.Link
	}
	for _, l := range it.Links {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	if strings.HasPrefix(it.GUID, "http://") || strings.HasPrefix(it.GUID, "https://") {
		return it.GUID
	}
	return ""
}

// orderNewestFirst sorts by date only when every entry carries one; otherwise
// document order is trusted.
func orderNewestFirst(items []*gofeed.Item) []*gofeed.Item {
	for _, it := range items {
		if itemDate(it) == nil {
			return items
		}
	}
	sorted := append([]*gofeed.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return itemDate(sorted[i]).After(*itemDate(sorted[j]))
	})
	return sorted
}

func (f *FeedStrategy) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
