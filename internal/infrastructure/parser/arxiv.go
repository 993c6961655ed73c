package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/scanner"
)

var arxivDateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivStrategy reads arXiv listing pages (dl > dt/dd pairs).
type ArxivStrategy struct {
	fetcher  PageFetcher
	limits   Limits
	pageSize int
	logger   *slog.Logger
}

var _ scanner.Strategy = (*ArxivStrategy)(nil)

// NewArxivStrategy wires the fetcher; pageSize defaults to 200.
func NewArxivStrategy(fetcher PageFetcher, limits Limits, log *slog.Logger) *ArxivStrategy {
	return &ArxivStrategy{fetcher: fetcher, limits: limits, pageSize: 200, logger: log}
}

// Name identifies the strategy inside the dispatcher.
func (a *ArxivStrategy) Name() string {
	return "site:arxiv"
}

// CanHandle accepts arxiv.org listing pages.
func (a *ArxivStrategy) CanHandle(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "arxiv.org" && host != "export.arxiv.org" {
		return false
	}
	return strings.HasPrefix(u.Path, "/list/")
}

// Extract reads the first listing page. arXiv lists newest first.
func (a *ArxivStrategy) Extract(ctx context.Context, raw string, source domain.Source, since time.Time) ([]domain.CandidateItem, error) {
	pageURL, err := buildPageURL(raw, 0, a.pageSize)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}
	doc, base, err := fetchDocument(ctx, a.fetcher, pageURL)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}
	items := a.extract(doc, base, since)
	a.debug("arxiv listing parsed", "source", source.Name, "items", len(items))
	return items, nil
}

func (a *ArxivStrategy) extract(doc *goquery.Document, base *url.URL, since time.Time) []domain.CandidateItem {
	col := newCollector(base, a.limits, since)
	doc.Find("dl > dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		e := parseEntry(dt, dt.NextFiltered("dd"))
		col.add(e.title, e.href, e.abstract, e.published)
		return !col.full()
	})
	return col.items
}

type arxivEntry struct {
	id        string
	title     string
	href      string
	abstract  string
	published *time.Time
}

func parseEntry(dt, dd *goquery.Selection) arxivEntry {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")

	id := strings.TrimSpace(link.Text())
	if id == "" {
		id = strings.TrimPrefix(href, "/abs/")
	}

	title := CollapseSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	abstract := CollapseSpace(dd.Find("p.mathjax").First().Text())
	abstract = strings.TrimSpace(strings.TrimPrefix(abstract, "Abstract:"))

	dateText := dd.Find(".list-date").First().Text()
	if strings.TrimSpace(dateText) == "" {
		dateText = dd.Find(".list-dateline").First().Text()
	}

	var published *time.Time
	if match := arxivDateExpr.FindString(dateText); match != "" {
		if t, err := time.Parse("2 Jan 2006", match); err == nil {
			published = &t
		}
	}

	return arxivEntry{id: id, title: title, href: href, abstract: abstract, published: published}
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (a *ArxivStrategy) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
