package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

// Client talks to an external ML service that scores update importance.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Classifier = (*Client)(nil)

// NewClient creates a reusable HTTP client. An empty endpoint returns nil.
func NewClient(endpoint, apiKey string) *Client {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Classify sends the title and excerpt for scoring. Unknown labels fall back
// to normal importance.
func (c *Client) Classify(ctx context.Context, item domain.StoredItem) (domain.Importance, error) {
	payload := map[string]any{
		"title":    item.Title,
		"excerpt":  item.Excerpt,
		"source":   item.SourceName,
		"language": item.Language,
		"url":      item.URL,
	}

	var resp struct {
		Importance string  `json:"importance"`
		Score      float64 `json:"score"`
	}
	if err := c.post(ctx, "/classify", payload, &resp); err != nil {
		return "", err
	}

	imp := domain.Importance(strings.ToLower(strings.TrimSpace(resp.Importance)))
	if !imp.Valid() {
		return domain.ImportanceNormal, nil
	}
	return imp, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
