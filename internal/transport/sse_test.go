package transport

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s *EventStream) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestEventStream_Parsing(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Event
	}{
		{
			name:  "data only",
			input: "data: hello\n\ndata: world\n\n",
			want:  []Event{{Data: []byte("hello")}, {Data: []byte("world")}},
		},
		{
			name:  "named events",
			input: "event: message_start\ndata: {\"a\":1}\n\nevent: ping\ndata: {}\n\n",
			want: []Event{
				{Name: "message_start", Data: []byte(`{"a":1}`)},
				{Name: "ping", Data: []byte(`{}`)},
			},
		},
		{
			name:  "multi-line data",
			input: "data: line1\ndata: line2\n\n",
			want:  []Event{{Data: []byte("line1\nline2")}},
		},
		{
			name:  "comments and retry ignored",
			input: ": keep-alive\nretry: 1000\ndata: x\n\n",
			want:  []Event{{Data: []byte("x")}},
		},
		{
			name:  "no space after colon",
			input: "data:{\"k\":true}\n\n",
			want:  []Event{{Data: []byte(`{"k":true}`)}},
		},
		{
			name:  "trailing event without blank line",
			input: "data: a\n\ndata: b",
			want:  []Event{{Data: []byte("a")}, {Data: []byte("b")}},
		},
		{
			name:  "crlf line endings",
			input: "data: a\r\n\r\n",
			want:  []Event{{Data: []byte("a")}},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEventStream(io.NopCloser(strings.NewReader(tt.input)))
			assert.Equal(t, tt.want, readAll(t, s))
		})
	}
}

func TestEventStream_EOFIsSticky(t *testing.T) {
	s := NewEventStream(io.NopCloser(strings.NewReader("data: a\n\n")))
	_, err := s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}
