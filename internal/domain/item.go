package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Importance is the classification slot filled by an external classifier.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceNormal Importance = "normal"
	ImportanceLow    Importance = "low"
)

// Valid reports whether the value is one of the known classifications.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceHigh, ImportanceNormal, ImportanceLow:
		return true
	default:
		return false
	}
}

// CandidateItem is an extraction result that has not been persisted yet.
type CandidateItem struct {
	Title       string
	URL         string
	PublishedAt *time.Time
	Excerpt     string
	Snippet     string
}

// StoredItem is a persisted candidate owned by a Source.
type StoredItem struct {
	ID          int64
	SourceID    string
	SourceName  string
	Language    string
	Fingerprint string
	Title       string
	URL         string
	PublishedAt *time.Time
	Excerpt     string
	Snippet     string
	Importance  *Importance
	// DigestedOn is the YYYY-MM-DD date of the digest that consumed the item.
	DigestedOn *string
	FetchedAt  time.Time
}

// Fingerprint derives the storage dedup key from an item's URL and title.
func Fingerprint(url, title string) string {
	sum := sha256.Sum256([]byte(url + "\n" + title))
	return hex.EncodeToString(sum[:])
}

// NewStoredItem normalizes a candidate into its persisted form.
func NewStoredItem(src Source, c CandidateItem, fetchedAt time.Time) StoredItem {
	return StoredItem{
		SourceID:    src.ID,
		SourceName:  src.Name,
		Language:    src.Language,
		Fingerprint: Fingerprint(c.URL, c.Title),
		Title:       c.Title,
		URL:         c.URL,
		PublishedAt: c.PublishedAt,
		Excerpt:     c.Excerpt,
		Snippet:     c.Snippet,
		FetchedAt:   fetchedAt.UTC(),
	}
}

// IsHighImportance reports whether the classifier flagged the item as high.
func (i StoredItem) IsHighImportance() bool {
	return i.Importance != nil && *i.Importance == ImportanceHigh
}
