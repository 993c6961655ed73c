package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/infrastructure/fetch"
	"UpdatesDigest/internal/scanner"
)

// SiteProfile hard-codes one site's markup idiom.
type SiteProfile struct {
	Name string
	// Hosts are matched without a leading "www.".
	Hosts      []string
	PathPrefix string

	Container string
	Title     string
	// Link is optional; when empty the container itself (if an anchor) or its
	// first anchor provides the href.
	Link    string
	Date    string
	Excerpt string
}

// SiteStrategy extracts items using a SiteProfile.
type SiteStrategy struct {
	profile SiteProfile
	fetcher PageFetcher
	limits  Limits
	logger  *slog.Logger
}

var _ scanner.Strategy = (*SiteStrategy)(nil)

// NewSiteStrategy binds a profile to a fetcher.
func NewSiteStrategy(profile SiteProfile, fetcher PageFetcher, limits Limits, log *slog.Logger) *SiteStrategy {
	return &SiteStrategy{profile: profile, fetcher: fetcher, limits: limits, logger: log}
}

// Name identifies the strategy inside the dispatcher.
func (s *SiteStrategy) Name() string {
	return "site:" + s.profile.Name
}

// CanHandle matches host and path prefix.
func (s *SiteStrategy) CanHandle(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, h := range s.profile.Hosts {
		if host == h {
			return strings.HasPrefix(u.Path, s.profile.PathPrefix)
		}
	}
	return false
}

// Extract fetches the page and walks the profile's containers in document order.
func (s *SiteStrategy) Extract(ctx context.Context, raw string, source domain.Source, since time.Time) ([]domain.CandidateItem, error) {
	doc, base, err := fetchDocument(ctx, s.fetcher, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	items := s.extract(doc, base, since)
	s.debug("site page parsed", "strategy", s.Name(), "source", source.Name, "items", len(items))
	return items, nil
}

func (s *SiteStrategy) extract(doc *goquery.Document, base *url.URL, since time.Time) []domain.CandidateItem {
	col := newCollector(base, s.limits, since)
	doc.Find(s.profile.Container).Each(func(_ int, container *goquery.Selection) {
		title := firstText(container, s.profile.Title)
		href := linkOf(container, s.profile.Link)
		excerpt := firstText(container, s.profile.Excerpt)
		var published *time.Time
		if s.profile.Date != "" {
			published = dateFrom(container.Find(s.profile.Date).First())
		}
		col.add(title, href, excerpt, published)
	})
	return col.items
}

func (s *SiteStrategy) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// fetchDocument downloads raw and parses it as HTML.
func fetchDocument(ctx context.Context, f PageFetcher, raw string) (*goquery.Document, *url.URL, error) {
	base, err := parseBase(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("page %s: %w", raw, err)
	}
	res := f.Fetch(ctx, raw, fetch.Options{})
	if !res.OK {
		return nil, nil, fmt.Errorf("page %s: %w", raw, res.Err())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Payload))
	if err != nil {
		return nil, nil, fmt.Errorf("parse page %s: %w", raw, err)
	}
	return doc, base, nil
}

func firstText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return CollapseSpace(sel.Find(selector).First().Text())
}

// linkOf resolves the href for a container.
func linkOf(container *goquery.Selection, selector string) string {
	if selector != "" {
		if href, ok := container.Find(selector).First().Attr("href"); ok {
			return href
		}
	}
	if goquery.NodeName(container) == "a" {
		href, _ := container.Attr("href")
		return href
	}
	href, _ := container.Find("a[href]").First().Attr("href")
	return href
}
