package sse

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func readAll(t *testing.T, body string) ([]Event, error) {
	t.Helper()
	var events []Event
	for result := range Events(context.Background(), io.NopCloser(strings.NewReader(body))) {
		if result.Err != nil {
			return events, result.Err
		}
		events = append(events, *result.Event)
	}
	return events, nil
}

func TestEvents(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Event
	}{
		{
			name: "data only frames",
			body: "data: one\n\ndata: two\n\n",
			want: []Event{{Data: []byte("one")}, {Data: []byte("two")}},
		},
		{
			name: "typed events",
			body: "event: message_start\ndata: {\"a\":1}\n\nevent: ping\ndata: {}\n\n",
			want: []Event{
				{Type: "message_start", Data: []byte(`{"a":1}`)},
				{Type: "ping", Data: []byte("{}")},
			},
		},
		{
			name: "done sentinel ends stream",
			body: "data: one\n\ndata: [DONE]\n\ndata: never\n\n",
			want: []Event{{Data: []byte("one")}},
		},
		{
			name: "crlf line endings",
			body: "data: one\r\n\r\n",
			want: []Event{{Data: []byte("one")}},
		},
		{
			name: "trailing event without blank line",
			body: "data: last",
			want: []Event{{Data: []byte("last")}},
		},
		{
			name: "multiple data lines join with newline",
			body: "data: first\ndata: second\n\n",
			want: []Event{{Data: []byte("first\nsecond")}},
		},
		{
			name: "comments and unknown fields ignored",
			body: ": keepalive\nretry: 100\ndata: one\n\n",
			want: []Event{{Data: []byte("one")}},
		},
		{
			name: "blank lines without data produce nothing",
			body: "\n\n\ndata: one\n\n",
			want: []Event{{Data: []byte("one")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readAll(t, tt.body)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i].Type != tt.want[i].Type || string(got[i].Data) != string(tt.want[i].Data) {
					t.Errorf("event %d = {%q %q}, want {%q %q}",
						i, got[i].Type, got[i].Data, tt.want[i].Type, tt.want[i].Data)
				}
			}
		})
	}
}

// errReader fails after yielding its prefix, simulating a dropped
// connection mid-stream.
type errReader struct {
	data string
	read bool
	err  error
}

func (r *errReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func (r *errReader) Close() error { return nil }

func TestEventsReadError(t *testing.T) {
	r := &errReader{data: "data: one\n\n", err: io.ErrUnexpectedEOF}

	var events []Event
	var gotErr error
	for result := range Events(context.Background(), r) {
		if result.Err != nil {
			gotErr = result.Err
			continue
		}
		events = append(events, *result.Event)
	}

	if len(events) != 1 || string(events[0].Data) != "one" {
		t.Errorf("events = %+v, want the frame before the failure", events)
	}
	if gotErr == nil {
		t.Error("expected a read error result")
	}
}

func TestEventsCanceledConsumerCloses(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 100; i++ {
		body.WriteString("data: x\n\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := Events(ctx, io.NopCloser(strings.NewReader(body.String())))

	if result := <-ch; result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	cancel()

	// The reader must stop sending and close the channel even though
	// nobody drains the remaining events.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel did not close after cancellation")
		}
	}
}
