package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

// ErrNoGenerator is reported when composition is needed but no text
// generator is configured.
var ErrNoGenerator = errors.New("text generator is not configured")

const (
	shortTextLimit      = 500
	translationAttempts = 2
	// TranslationFallback replaces the secondary-language text when every
	// translation attempt failed.
	TranslationFallback = "Translation is temporarily unavailable."
)

// compose runs the generation call(s) for items and returns the digest to
// store under date. Translation failures degrade to TranslationFallback.
func (p *Pipeline) compose(ctx context.Context, date string, items []domain.StoredItem) (domain.Digest, error) {
	if p.generator == nil {
		return domain.Digest{}, ErrNoGenerator
	}

	payload, err := buildDigestJSON(date, items)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("build digest payload: %w", err)
	}

	text, err := p.complete(ctx, ports.CompletionRequest{
		System:      p.settings.SystemPrompt,
		User:        string(payload),
		MaxTokens:   p.settings.MaxTokens,
		Temperature: p.settings.Temperature,
	})
	if err != nil {
		return domain.Digest{}, fmt.Errorf("generate digest: %w", err)
	}

	now := p.now().UTC()
	digest := domain.Digest{
		Date:      date,
		Text:      text,
		ShortText: shortText(text, shortTextLimit),
		Sources:   sourceNames(items),
		ItemCount: len(items),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if p.settings.TranslateTo != "" {
		translated := p.translate(ctx, text)
		digest.TranslatedText = &translated
	}
	return digest, nil
}

func (p *Pipeline) complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if p.settings.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.GenerationTimeout)
		defer cancel()
	}
	out, err := p.generator.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

func (p *Pipeline) translate(ctx context.Context, text string) string {
	prompt := p.settings.TranslationPrompt
	if strings.Contains(prompt, "%s") {
		prompt = fmt.Sprintf(prompt, p.settings.TranslateTo)
	}

	req := ports.CompletionRequest{
		System:      prompt,
		User:        text,
		MaxTokens:   p.settings.MaxTokens,
		Temperature: p.settings.Temperature,
	}
	for attempt := 1; attempt <= translationAttempts; attempt++ {
		out, err := p.complete(ctx, req)
		if err == nil {
			return out
		}
		p.warn("translation attempt failed", "attempt", attempt, "language", p.settings.TranslateTo, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return TranslationFallback
}

func buildDigestJSON(date string, items []domain.StoredItem) ([]byte, error) {
	type item struct {
		Source     string `json:"source"`
		Title      string `json:"title"`
		URL        string `json:"url"`
		Published  string `json:"published,omitempty"`
		Summary    string `json:"summary,omitempty"`
		Importance string `json:"importance,omitempty"`
		Language   string `json:"language,omitempty"`
	}

	payload := struct {
		Date  string `json:"date"`
		Items []item `json:"items"`
	}{Date: date, Items: make([]item, 0, len(items))}

	for _, it := range items {
		entry := item{
			Source:   it.SourceName,
			Title:    it.Title,
			URL:      it.URL,
			Summary:  it.Snippet,
			Language: it.Language,
		}
		if it.PublishedAt != nil {
			entry.Published = it.PublishedAt.UTC().Format(domain.DateLayout)
		}
		if it.Importance != nil {
			entry.Importance = string(*it.Importance)
		}
		payload.Items = append(payload.Items, entry)
	}

	return json.Marshal(payload)
}

// shortText keeps the first paragraph, cut on a word boundary.
func shortText(text string, limit int) string {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n\n")
	first = strings.TrimSpace(first)
	if utf8.RuneCountInString(first) <= limit {
		return first
	}
	cut := string([]rune(first)[:limit])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func sourceNames(items []domain.StoredItem) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, it := range items {
		if it.SourceName == "" {
			continue
		}
		if _, ok := seen[it.SourceName]; ok {
			continue
		}
		seen[it.SourceName] = struct{}{}
		names = append(names, it.SourceName)
	}
	sort.Strings(names)
	return names
}
