package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
	"UpdatesDigest/internal/scanner"
)

var fixedNow = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// memStore implements every repository port in memory.
type memStore struct {
	mu      sync.Mutex
	order   []string
	sources map[string]domain.Source
	items   []domain.StoredItem
	nextID  int64
	digests map[string]domain.Digest

	failInsert    error
	failWatermark error
	failDigest    error
}

var (
	_ ports.SourceRepository = (*memStore)(nil)
	_ ports.ItemRepository   = (*memStore)(nil)
	_ ports.DigestRepository = (*memStore)(nil)
)

func newMemStore(sources ...domain.Source) *memStore {
	s := &memStore{sources: map[string]domain.Source{}, digests: map[string]domain.Digest{}}
	_ = s.UpsertSources(context.Background(), sources)
	return s
}

func (s *memStore) ActiveSources(context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Source
	for _, id := range s.order {
		if src := s.sources[id]; src.Active {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *memStore) UpsertSources(_ context.Context, sources []domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range sources {
		if _, ok := s.sources[src.ID]; !ok {
			s.order = append(s.order, src.ID)
		}
		s.sources[src.ID] = src
	}
	return nil
}

func (s *memStore) UpdateWatermark(_ context.Context, id, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWatermark != nil {
		return s.failWatermark
	}
	src, ok := s.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	src.LastSeenItemURL = &url
	src.LastSeenAt = &at
	s.sources[id] = src
	return nil
}

func (s *memStore) source(id string) domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources[id]
}

func (s *memStore) InsertItems(_ context.Context, items []domain.StoredItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return 0, s.failInsert
	}
	inserted := 0
	for _, it := range items {
		dup := false
		for _, existing := range s.items {
			if existing.Fingerprint == it.Fingerprint {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.nextID++
		it.ID = s.nextID
		s.items = append(s.items, it)
		inserted++
	}
	return inserted, nil
}

func (s *memStore) UndigestedItems(_ context.Context, f ports.ItemFilter) ([]domain.StoredItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StoredItem
	for _, it := range s.items {
		if it.DigestedOn != nil {
			continue
		}
		if !f.From.IsZero() && it.FetchedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !it.FetchedAt.Before(f.To) {
			continue
		}
		if f.Importance != nil && (it.Importance == nil || *it.Importance != *f.Importance) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *memStore) MarkDigested(_ context.Context, ids []int64, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.items {
		if want[s.items[i].ID] && s.items[i].DigestedOn == nil {
			d := date
			s.items[i].DigestedOn = &d
		}
	}
	return nil
}

func (s *memStore) addItem(it domain.StoredItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	it.ID = s.nextID
	if it.Fingerprint == "" {
		it.Fingerprint = domain.Fingerprint(it.URL, it.Title)
	}
	s.items = append(s.items, it)
}

func (s *memStore) allItems() []domain.StoredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StoredItem(nil), s.items...)
}

func (s *memStore) DigestByDate(_ context.Context, date string) (domain.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.digests[date]
	if !ok {
		return domain.Digest{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *memStore) UpsertDigest(_ context.Context, d domain.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDigest != nil {
		return s.failDigest
	}
	if prev, ok := s.digests[d.Date]; ok {
		d.CreatedAt = prev.CreatedAt
	}
	s.digests[d.Date] = d
	return nil
}

// scriptedStrategy serves canned extraction results keyed by locator.
type scriptedStrategy struct {
	mu     sync.Mutex
	items  map[string][]domain.CandidateItem
	errs   map[string]error
	panics map[string]bool
	calls  int
}

func newScripted() *scriptedStrategy {
	return &scriptedStrategy{
		items:  map[string][]domain.CandidateItem{},
		errs:   map[string]error{},
		panics: map[string]bool{},
	}
}

func (s *scriptedStrategy) Name() string          { return "scripted" }
func (s *scriptedStrategy) CanHandle(string) bool { return true }
func (s *scriptedStrategy) Select(string) scanner.Strategy {
	return s
}

func (s *scriptedStrategy) Extract(_ context.Context, url string, _ domain.Source, since time.Time) ([]domain.CandidateItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if !since.Equal(scanner.Epoch) {
		return nil, fmt.Errorf("detector must not filter by date, got since=%v", since)
	}
	if s.panics[url] {
		panic("markup changed")
	}
	if err := s.errs[url]; err != nil {
		return nil, err
	}
	return s.items[url], nil
}

func candidates(urls ...string) []domain.CandidateItem {
	out := make([]domain.CandidateItem, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.CandidateItem{Title: "Update at " + u, URL: u})
	}
	return out
}

// fakeGenerator returns scripted completions and records every request.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []ports.CompletionRequest
	respond  func(req ports.CompletionRequest, call int) (string, error)
}

func (g *fakeGenerator) Complete(_ context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.respond == nil {
		return ports.Completion{Text: "Digest body."}, nil
	}
	text, err := g.respond(req, len(g.requests))
	return ports.Completion{Text: text}, err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakePublisher struct {
	limit    int
	sent     []ports.Message
	failFrom int
}

func (p *fakePublisher) Send(_ context.Context, msg ports.Message) (ports.SendResult, error) {
	if p.failFrom > 0 && len(p.sent)+1 >= p.failFrom {
		return ports.SendResult{}, errors.New("channel unavailable")
	}
	p.sent = append(p.sent, msg)
	return ports.SendResult{MessageID: fmt.Sprintf("m%d", len(p.sent))}, nil
}

func (p *fakePublisher) MaxMessageLength() int { return p.limit }

type fixedClassifier struct {
	byURL map[string]domain.Importance
	err   error
}

func (c fixedClassifier) Classify(_ context.Context, it domain.StoredItem) (domain.Importance, error) {
	if c.err != nil {
		return "", c.err
	}
	if imp, ok := c.byURL[it.URL]; ok {
		return imp, nil
	}
	return domain.ImportanceNormal, nil
}

func activeSource(id string) domain.Source {
	return domain.Source{
		ID:       id,
		Name:     "Source " + id,
		NewsURL:  "https://" + id + ".example.com/news",
		Language: "en",
		Active:   true,
	}
}

func strPtr(s string) *string { return &s }

type harness struct {
	store     *memStore
	strategy  *scriptedStrategy
	generator *fakeGenerator
	publisher *fakePublisher
	pipeline  *Pipeline
}

func newHarness(sources ...domain.Source) *harness {
	h := &harness{
		store:     newMemStore(sources...),
		strategy:  newScripted(),
		generator: &fakeGenerator{},
		publisher: &fakePublisher{limit: 4096},
	}
	detector := NewDetector(h.strategy, h.store, nil, nil)
	detector.now = clock
	h.pipeline = NewPipeline(PipelineDeps{
		Detector:  detector,
		Sources:   h.store,
		Items:     h.store,
		Digests:   h.store,
		Generator: h.generator,
		Publisher: h.publisher,
		Settings: Settings{
			SystemPrompt:      "digest",
			TranslationPrompt: "translate into %s",
			GenerationTimeout: time.Second,
			PublishTimeout:    time.Second,
		},
		Now: clock,
	})
	return h
}
