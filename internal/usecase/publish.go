package usecase

import (
	"context"
	"errors"
	"fmt"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

var errNoPublisher = errors.New("publish requested but no publisher is configured")

// publish sends the digest, then its translation, as chunked messages. Only
// the very first chunk notifies. A failed send stops publishing; the digest
// stays stored either way.
func (p *Pipeline) publish(ctx context.Context, digest domain.Digest, res *RunResult) {
	if p.publisher == nil {
		res.addError(errNoPublisher)
		return
	}

	texts := []string{digest.Text}
	if digest.TranslatedText != nil && *digest.TranslatedText != "" {
		texts = append(texts, *digest.TranslatedText)
	}

	limit := p.publisher.MaxMessageLength()
	first := true
	for _, text := range texts {
		for i, chunk := range SplitMessage(text, limit) {
			id, err := p.send(ctx, ports.Message{Text: chunk, Silent: !first})
			if err != nil {
				p.publishedChunk("error")
				p.warn("publish failed", "run_id", res.RunID, "chunk", i, "error", err)
				res.addError(fmt.Errorf("publish chunk %d: %w", i, err))
				return
			}
			first = false
			p.publishedChunk("ok")
			if id != "" {
				res.MessageIDs = append(res.MessageIDs, id)
			}
		}
	}
	res.Published = !first
}

func (p *Pipeline) send(ctx context.Context, msg ports.Message) (string, error) {
	if p.settings.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.PublishTimeout)
		defer cancel()
	}
	out, err := p.publisher.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (p *Pipeline) publishedChunk(outcome string) {
	if p.telemetry != nil {
		p.telemetry.PublishedChunk(outcome)
	}
}
