package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by repositories when a keyed lookup has no row.
var ErrNotFound = errors.New("not found")

// Source is a monitored site whose update page is scanned for new items.
type Source struct {
	ID       string
	Name     string
	SiteURL  string
	NewsURL  string
	Language string
	Active   bool

	// LastSeenItemURL is the watermark: the URL of the newest item observed
	// by the last committed change detection.
	LastSeenItemURL *string
	LastSeenAt      *time.Time
}

// Dispatchable reports whether the source can be handed to a strategy.
func (s Source) Dispatchable() bool {
	return s.Active && strings.TrimSpace(s.NewsURL) != ""
}

// Watermark returns the stored watermark URL or an empty string.
func (s Source) Watermark() string {
	if s.LastSeenItemURL == nil {
		return ""
	}
	return *s.LastSeenItemURL
}
