package scanner

import (
	"context"
	"fmt"
	"time"

	"UpdatesDigest/internal/domain"
)

// Epoch disables date filtering when passed as the since boundary.
var Epoch = time.Unix(0, 0).UTC()

// Strategy turns a source's news page into candidate items.
type Strategy interface {
	Name() string
	// CanHandle is a cheap offline check on the locator.
	CanHandle(url string) bool
	// Extract fetches url and returns candidates newest-first. Items without a
	// date are kept; dated items are kept when not before since.
	Extract(ctx context.Context, url string, source domain.Source, since time.Time) ([]domain.CandidateItem, error)
}

// Dispatcher selects the first strategy, in registration order, that accepts a locator.
type Dispatcher struct {
	strategies []Strategy
	fallback   Strategy
}

// NewDispatcher builds a dispatcher; fallback must accept every locator and is
// consulted last. The priority order is the order of strategies.
func NewDispatcher(fallback Strategy, strategies ...Strategy) (*Dispatcher, error) {
	if fallback == nil {
		return nil, fmt.Errorf("dispatcher requires a fallback strategy")
	}
	ordered := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	return &Dispatcher{strategies: ordered, fallback: fallback}, nil
}

// Select never returns nil.
func (d *Dispatcher) Select(url string) Strategy {
	for _, s := range d.strategies {
		if s.CanHandle(url) {
			return s
		}
	}
	return d.fallback
}

// Names lists strategies in priority order, fallback last.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.strategies)+1)
	for _, s := range d.strategies {
		names = append(names, s.Name())
	}
	return append(names, d.fallback.Name())
}

// IncludeByDate applies the shared date rule: undated items are included.
func IncludeByDate(published *time.Time, since time.Time) bool {
	if published == nil {
		return true
	}
	return !published.Before(since)
}
