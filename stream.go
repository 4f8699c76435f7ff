package unillm

import (
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/hpn/hpn-unillm/internal/adapter"
	"github.com/hpn/hpn-unillm/internal/domain"
	"github.com/hpn/hpn-unillm/internal/transport"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChunkStream is a finite, single-consumer sequence of chunks. Chunks arrive
// in the order the provider sent them and only the last one has IsFinal set.
type ChunkStream struct {
	events   *transport.EventStream
	decoder  adapter.ChunkDecoder
	provider ProviderKind
	model    string
	span     trace.Span
	logger   *slog.Logger

	chunks int
	done   bool
	err    error

	endOnce sync.Once
}

func newChunkStream(events *transport.EventStream, decoder adapter.ChunkDecoder, provider ProviderKind, model string, span trace.Span, logger *slog.Logger) *ChunkStream {
	return &ChunkStream{
		events:   events,
		decoder:  decoder,
		provider: provider,
		model:    model,
		span:     span,
		logger:   logger,
	}
}

// Next returns the next chunk. After the final chunk it returns io.EOF; after
// a failure it keeps returning that failure.
func (s *ChunkStream) Next() (StreamChunk, error) {
	if s.done {
		if s.err != nil {
			return StreamChunk{}, s.err
		}
		return StreamChunk{}, io.EOF
	}

	for {
		ev, err := s.events.Next()
		if errors.Is(err, io.EOF) {
			if chunk, ok := s.decoder.End(); ok {
				return s.deliver(chunk), nil
			}
			return StreamChunk{}, s.fail(&domain.MalformedResponseError{
				Provider: s.provider,
				Reason:   "stream ended before the final chunk",
			})
		}
		if err != nil {
			return StreamChunk{}, s.fail(err)
		}

		chunk, ok, err := s.decoder.Decode(ev.Name, ev.Data)
		if err != nil {
			return StreamChunk{}, s.fail(err)
		}
		if !ok {
			continue
		}
		return s.deliver(chunk), nil
	}
}

// Chunks adapts the stream to a range-over-func loop. Breaking out of the
// loop closes the stream.
func (s *ChunkStream) Chunks() iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(StreamChunk{}, err)
				return
			}
			if !yield(chunk, nil) || chunk.IsFinal {
				return
			}
		}
	}
}

// Collect drains the stream into a Response and closes it.
func (s *ChunkStream) Collect() (Response, error) {
	var (
		segments []string
		usage    Usage
		reason   = domain.FinishCompleted
	)
	for chunk, err := range s.Chunks() {
		if err != nil {
			return Response{}, err
		}
		if chunk.Delta != "" {
			segments = append(segments, chunk.Delta)
		}
		if chunk.IsFinal {
			reason = chunk.FinishReason
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		}
	}
	return domain.NewResponse(segments, usage, reason, map[string]any{
		domain.MetaModel: s.model,
		"streamed":       true,
	}), nil
}

// Close releases the connection without draining it. It is safe to call
// more than once and from another goroutine.
func (s *ChunkStream) Close() error {
	err := s.events.Close()
	s.end()
	return err
}

func (s *ChunkStream) deliver(chunk StreamChunk) StreamChunk {
	s.chunks++
	if !chunk.IsFinal {
		return chunk
	}

	s.done = true
	s.span.SetAttributes(
		attrChunks.Int(s.chunks),
		attrFinishReason.String(string(chunk.FinishReason)),
	)
	if chunk.Usage != nil {
		s.span.SetAttributes(
			attrPromptTokens.Int(chunk.Usage.Prompt),
			attrCompletionTokens.Int(chunk.Usage.Completion),
		)
	}
	s.span.SetStatus(codes.Ok, "")
	_ = s.events.Close()
	s.end()
	return chunk
}

func (s *ChunkStream) fail(err error) error {
	s.done = true
	s.err = err
	if !errors.Is(err, domain.ErrStreamClosed) {
		s.logger.Warn("stream failed",
			slog.String("provider", string(s.provider)),
			slog.Int("chunks", s.chunks),
			slog.String("error", err.Error()),
		)
		s.span.SetAttributes(attrChunks.Int(s.chunks))
		failSpan(s.span, err)
	}
	_ = s.events.Close()
	s.end()
	return err
}

func (s *ChunkStream) end() {
	s.endOnce.Do(func() {
		s.span.End()
	})
}
