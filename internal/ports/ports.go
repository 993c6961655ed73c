package ports

import (
	"context"
	"time"

	"UpdatesDigest/internal/domain"
)

// SourceRepository stores monitored sources and their watermarks.
type SourceRepository interface {
	ActiveSources(ctx context.Context) ([]domain.Source, error)
	UpsertSources(ctx context.Context, sources []domain.Source) error
	UpdateWatermark(ctx context.Context, sourceID, itemURL string, seenAt time.Time) error
}

// ItemFilter narrows undigested item queries. Zero values disable a bound.
type ItemFilter struct {
	From       time.Time
	To         time.Time
	Importance *domain.Importance
}

// ItemRepository persists items keyed by fingerprint.
type ItemRepository interface {
	// InsertItems ignores fingerprint conflicts and returns the inserted count.
	InsertItems(ctx context.Context, items []domain.StoredItem) (int, error)
	UndigestedItems(ctx context.Context, filter ItemFilter) ([]domain.StoredItem, error)
	// MarkDigested sets the digest marker on rows where it is still null.
	MarkDigested(ctx context.Context, ids []int64, date string) error
}

// DigestRepository stores one digest per date.
type DigestRepository interface {
	DigestByDate(ctx context.Context, date string) (domain.Digest, error)
	UpsertDigest(ctx context.Context, digest domain.Digest) error
}

// CompletionRequest is a single prompt for a text-generation vendor.
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completion is the generated text.
type Completion struct {
	Text  string
	Model string
}

// TextGenerator is implemented by every LLM vendor adapter.
type TextGenerator interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// Message is one outbound chunk.
type Message struct {
	Text string
	// Silent suppresses the recipient notification (continuation chunks).
	Silent bool
}

// SendResult carries the channel's identifier for the delivered message.
type SendResult struct {
	MessageID string
}

// Publisher delivers digests to a messaging channel.
type Publisher interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
	MaxMessageLength() int
}

// Classifier assigns an importance level to freshly detected items.
type Classifier interface {
	Classify(ctx context.Context, item domain.StoredItem) (domain.Importance, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// RunLease guards against overlapping scheduled runs.
type RunLease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Telemetry receives pipeline counters. Implementations must tolerate being
// called from any step of a run.
type Telemetry interface {
	SourceCheck(strategy, outcome string)
	ItemsDetected(source string, n int)
	ItemsStored(n int)
	Digest(mode, outcome string)
	PublishedChunk(outcome string)
	RunDuration(mode string, seconds float64)
}
