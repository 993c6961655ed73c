package parser

import "log/slog"

// Profiles for sites whose news pages have no usable feed. Selectors track
// the live markup and need updating when a site redesigns.
var builtinProfiles = []SiteProfile{
	{
		Name:       "anthropic-news",
		Hosts:      []string{"anthropic.com"},
		PathPrefix: "/news",
		Container:  "a[class*='PostCard'], a[class*='postCard'], article a[href*='/news/']",
		Title:      "h2, h3, h4, [class*='title']",
		Date:       "time, [class*='date']",
		Excerpt:    "p",
	},
	{
		Name:       "openai-news",
		Hosts:      []string{"openai.com"},
		PathPrefix: "/news",
		Container:  "li:has(a[href*='/index/']), div[class*='card']:has(a[href*='/index/'])",
		Title:      "h3, [class*='title'], a[href*='/index/']",
		Link:       "a[href*='/index/']",
		Date:       "time",
		Excerpt:    "p",
	},
	{
		Name:       "huggingface-blog",
		Hosts:      []string{"huggingface.co"},
		PathPrefix: "/blog",
		Container:  "a[href^='/blog/']:has(h2), a[href^='/blog/']:has(h3), a[href^='/blog/']:has(h4)",
		Title:      "h2, h3, h4",
		Date:       "time, span[class*='date']",
		Excerpt:    "p",
	},
	{
		Name:       "github-changelog",
		Hosts:      []string{"github.blog"},
		PathPrefix: "/changelog",
		Container:  "article, li[class*='changelog']",
		Title:      "h3, h2, [class*='title']",
		Link:       "h3 a, h2 a, a[class*='title']",
		Date:       "time, [class*='date']",
		Excerpt:    "p, [class*='excerpt']",
	},
}

// BuiltinProfiles returns a copy of the shipped site profiles.
func BuiltinProfiles() []SiteProfile {
	out := make([]SiteProfile, len(builtinProfiles))
	copy(out, builtinProfiles)
	return out
}

// BuiltinSiteStrategies binds every shipped profile to the fetcher.
func BuiltinSiteStrategies(fetcher PageFetcher, limits Limits, log *slog.Logger) []*SiteStrategy {
	out := make([]*SiteStrategy, 0, len(builtinProfiles))
	for _, p := range builtinProfiles {
		var l *slog.Logger
		if log != nil {
			l = log.With("strategy", p.Name)
		}
		out = append(out, NewSiteStrategy(p, fetcher, limits, l))
	}
	return out
}
