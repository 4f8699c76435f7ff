package transport

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/hpn/hpn-unillm/internal/domain"
)

// maxEventSize is the largest single SSE line accepted.
const maxEventSize = 1024 * 1024

// Event is a single Server-Sent Event.
type Event struct {
	// Name is the "event:" field, empty when absent.
	Name string

	// Data is the joined "data:" lines.
	Data []byte
}

// EventStream lazily reads Server-Sent Events from a response body.
// It is consumed once, by one goroutine. Close releases the connection
// immediately and may be called from any goroutine.
type EventStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func newEventStream(ctx context.Context, body io.ReadCloser, cancel context.CancelFunc) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &EventStream{
		ctx:     ctx,
		body:    body,
		scanner: scanner,
		cancel:  cancel,
	}
}

// NewEventStream wraps an arbitrary reader. Closing the stream closes r.
func NewEventStream(r io.ReadCloser) *EventStream {
	return newEventStream(context.Background(), r, func() {})
}

// Next returns the next event. It returns io.EOF when the body ends and
// domain.ErrStreamClosed after Close.
func (s *EventStream) Next() (Event, error) {
	if s.isClosed() {
		return Event{}, domain.ErrStreamClosed
	}

	var (
		name      string
		dataLines []string
		hasData   bool
	)

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line = event boundary
		if line == "" {
			if hasData {
				return Event{Name: name, Data: []byte(strings.Join(dataLines, "\n"))}, nil
			}
			name = ""
			continue
		}

		// Comment lines are keep-alives
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		}
	}

	if err := s.scanner.Err(); err != nil {
		if s.isClosed() {
			return Event{}, domain.ErrStreamClosed
		}
		return Event{}, classify(s.ctx, "stream", err)
	}

	// Trailing event without a blank line
	if hasData {
		return Event{Name: name, Data: []byte(strings.Join(dataLines, "\n"))}, nil
	}
	if s.isClosed() {
		return Event{}, domain.ErrStreamClosed
	}
	return Event{}, io.EOF
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *EventStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
