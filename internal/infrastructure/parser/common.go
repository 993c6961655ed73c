package parser

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/infrastructure/fetch"
	"UpdatesDigest/internal/scanner"
)

// PageFetcher is the part of the fetcher strategies depend on.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts fetch.Options) fetch.Result
}

// Limits bound what a strategy emits per extraction pass.
type Limits struct {
	MinTitleLength int
	SnippetLength  int
	// MaxItems caps the output; zero means unlimited.
	MaxItems int
}

// DefaultLimits mirrors the pipeline defaults.
func DefaultLimits() Limits {
	return Limits{MinTitleLength: 10, SnippetLength: 280}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MinTitleLength <= 0 {
		l.MinTitleLength = def.MinTitleLength
	}
	if l.SnippetLength <= 0 {
		l.SnippetLength = def.SnippetLength
	}
	return l
}

var errNoBase = errors.New("source url is not absolute")

var trackingParams = map[string]struct{}{
	"gclid":   {},
	"dclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"_hsenc":  {},
	"_hsmi":   {},
}

// CanonicalURL lowercases scheme/host, drops default ports, the fragment and
// tracking parameters (utm_*, fbclid, ...), and re-encodes the query in key order.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	host := strings.ToLower(c.Host)
	if h, port, ok := strings.Cut(host, ":"); ok {
		if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
			host = h
		}
	}
	c.Host = host
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}

	query := c.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			query.Del(key)
			continue
		}
		if _, drop := trackingParams[lower]; drop {
			query.Del(key)
		}
	}
	c.RawQuery = query.Encode()
	return c.String()
}

// ResolveLink turns href into an absolute canonical URL against base.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Host == "" || (abs.Scheme != "http" && abs.Scheme != "https") {
		return "", false
	}
	return CanonicalURL(abs), true
}

func parseBase(raw string) (*url.URL, error) {
	base, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, errNoBase
	}
	return base, nil
}

var wsExpr = regexp.MustCompile(`\s+`)

// CollapseSpace trims and folds runs of whitespace into single spaces.
func CollapseSpace(s string) string {
	return strings.TrimSpace(wsExpr.ReplaceAllString(s, " "))
}

// TextFromHTML strips markup from an HTML fragment.
func TextFromHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return CollapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CollapseSpace(fragment)
	}
	return CollapseSpace(doc.Text())
}

// Snippet cuts text to at most limit runes on a word boundary.
func Snippet(text string, limit int) string {
	text = CollapseSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	cut = strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return cut + "…"
}

var dateFragments = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:?\d{2})?)?`),
	regexp.MustCompile(`(?i)(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4}`),
	regexp.MustCompile(`(?i)\d{1,2} (?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{4}`),
}

// ParseDate reads free-form date text; nil means no date was recognised.
// Text without a year ("Mar 2", "10:30") counts as undated.
func ParseDate(text string) *time.Time {
	text = CollapseSpace(text)
	if text == "" {
		return nil
	}
	if t, ok := parseDated(text); ok {
		return &t
	}
	for _, expr := range dateFragments {
		match := expr.FindString(text)
		if match == "" {
			continue
		}
		if t, ok := parseDated(strings.ReplaceAll(match, ".", "")); ok {
			return &t
		}
	}
	return nil
}

func parseDated(text string) (time.Time, bool) {
	t, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	t = t.UTC()
	// dateparse fills a missing year with zero.
	if t.Before(scanner.Epoch) {
		return time.Time{}, false
	}
	return t, true
}

// dateFrom inspects machine-readable attributes before falling back to text.
func dateFrom(sel *goquery.Selection) *time.Time {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	for _, attr := range []string{"datetime", "content", "data-date"} {
		if v, ok := sel.Attr(attr); ok {
			if t := ParseDate(v); t != nil {
				return t
			}
		}
	}
	return ParseDate(sel.Text())
}

// collector applies the per-pass rules shared by every strategy: title noise
// filter, link normalization, in-pass dedup by URL, the date rule and the cap.
type collector struct {
	base   *url.URL
	limits Limits
	since  time.Time
	seen   map[string]struct{}
	items  []domain.CandidateItem
}

func newCollector(base *url.URL, limits Limits, since time.Time) *collector {
	return &collector{
		base:   base,
		limits: limits.withDefaults(),
		since:  since,
		seen:   map[string]struct{}{},
	}
}

// full reports whether the item cap has been reached.
func (c *collector) full() bool {
	return c.limits.MaxItems > 0 && len(c.items) >= c.limits.MaxItems
}

func (c *collector) add(title, href, excerpt string, published *time.Time) bool {
	if c.full() {
		return false
	}
	title = CollapseSpace(title)
	if utf8.RuneCountInString(title) < c.limits.MinTitleLength {
		return false
	}
	link, ok := ResolveLink(c.base, href)
	if !ok {
		return false
	}
	if _, dup := c.seen[link]; dup {
		return false
	}
	if !scanner.IncludeByDate(published, c.since) {
		return false
	}
	c.seen[link] = struct{}{}

	excerpt = CollapseSpace(excerpt)
	c.items = append(c.items, domain.CandidateItem{
		Title:       title,
		URL:         link,
		PublishedAt: published,
		Excerpt:     excerpt,
		Snippet:     Snippet(excerpt, c.limits.SnippetLength),
	})
	return true
}
