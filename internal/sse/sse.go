// Package sse implements the wire format and connection lifecycle for
// Server-Sent Events (W3C EventSource), trimmed to what the research engine
// needs: one writer per request, three event kinds, and a keepalive comment
// line. It does not implement a client-side decoder; nothing in this repo
// consumes an SSE stream, it only produces one.
package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrNoContent  = errors.New("sse: message has no content")
	ErrNotFlusher = errors.New("sse: response writer does not support flushing")
)

var lineBreakReplacer = strings.NewReplacer("\n", "\\n", "\r", "\\r")

const (
	fieldID    = "id"
	fieldEvent = "event"
	fieldData  = "data"
	delimiter  = ":"
)

// Message is one SSE event: Event names the stream's event type, Data is
// its JSON payload, ID lets a reconnecting client resume from this point.
type Message struct {
	ID    string
	Event string
	Data  []byte
}

func encode(msg Message) ([]byte, error) {
	if msg.ID == "" && msg.Event == "" && len(msg.Data) == 0 {
		return nil, ErrNoContent
	}

	var buf bytes.Buffer
	if msg.ID != "" {
		fmt.Fprintf(&buf, "%s%s %s\n", fieldID, delimiter, lineBreakReplacer.Replace(msg.ID))
	}
	if msg.Event != "" {
		fmt.Fprintf(&buf, "%s%s %s\n", fieldEvent, delimiter, lineBreakReplacer.Replace(msg.Event))
	}
	for _, line := range bytes.Split(msg.Data, []byte("\n")) {
		buf.WriteString(fieldData)
		buf.WriteString(delimiter)
		buf.WriteByte(' ')
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// comment writes a ": <text>" keepalive line, ignored by EventSource clients
// but enough to keep an idle proxy from closing the connection.
func comment(text string) []byte {
	return []byte(delimiter + " " + text + "\n\n")
}

// Writer streams Messages to one client over an http.ResponseWriter. Send
// and Ping are safe to call from concurrent goroutines (internal/streaming
// drives the graph and the keepalive ticker from two goroutines racing on
// the same writer): a mutex guards every write/flush so frames from one
// never interleave with the other's.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	nextID  int
}

// NewWriter sets the SSE response headers and wraps w. Returns ErrNotFlusher
// if the response writer can't stream incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNotFlusher
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Connection", "keep-alive")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-cache")
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event with a monotonically increasing ID.
func (sw *Writer) Send(event string, data []byte) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return errors.New("sse: writer closed")
	}
	sw.nextID++
	encoded, err := encode(Message{ID: strconv.Itoa(sw.nextID), Event: event, Data: data})
	if err != nil {
		return err
	}
	if _, err := sw.w.Write(encoded); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Ping writes a keepalive comment line.
func (sw *Writer) Ping(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed || ctx.Err() != nil {
		return nil
	}
	if _, err := sw.w.Write(comment("ping")); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Close marks the writer closed; further Send calls return an error and
// further Ping calls write nothing.
func (sw *Writer) Close() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.closed = true
}
