// Package sse decodes server-sent event streams. The reader tolerates
// arbitrary chunk boundaries: framing is reassembled line by line, so an
// event split across network reads is never delivered partially.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// doneSentinel is the OpenAI-style end-of-stream marker.
const doneSentinel = "[DONE]"

// Event is one decoded server-sent event. Type is empty for streams that
// use only data lines.
type Event struct {
	Type string
	Data []byte
}

// Result wraps an event or a transport read error.
type Result struct {
	Event *Event
	Err   error
}

// Events reads the body until EOF, the [DONE] sentinel, a read error, or
// context cancellation, sending one Result per decoded event. The body is
// closed when reading stops and the returned channel is closed after the
// last result. Once ctx is canceled no further results are sent, so a
// consumer may abandon the channel without stranding the reader.
func Events(ctx context.Context, body io.ReadCloser) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		defer body.Close()

		send := func(r Result) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		// Media payloads can produce large frames.
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 4*1024*1024)

		var eventType string
		var data strings.Builder

		dispatch := func() bool {
			if data.Len() == 0 {
				eventType = ""
				return true
			}
			typ, payload := eventType, data.String()
			eventType, data = "", strings.Builder{}
			if payload == doneSentinel {
				return false
			}
			return send(Result{Event: &Event{Type: typ, Data: []byte(payload)}})
		}

		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")

			// Blank line terminates the current event.
			if line == "" {
				if !dispatch() {
					return
				}
				continue
			}

			switch {
			case strings.HasPrefix(line, "event:"):
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				// Multiple data lines in one event join with a newline.
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
			// Comment lines (":") and unknown fields are ignored.
		}

		if err := scanner.Err(); err != nil {
			send(Result{Err: fmt.Errorf("stream read error: %w", err)})
			return
		}

		// Flush a trailing event not followed by a blank line before EOF.
		dispatch()
	}()
	return out
}
