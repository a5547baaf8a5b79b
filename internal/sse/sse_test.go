package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_WritesIDEventAndDataLines(t *testing.T) {
	out, err := encode(Message{ID: "1", Event: "update", Data: []byte(`{"a":1}`)})
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, "id: 1\n"))
	assert.Contains(t, s, "event: update\n")
	assert.Contains(t, s, `data: {"a":1}`)
	assert.True(t, strings.HasSuffix(s, "\n\n"))
}

func TestEncode_SplitsMultilineData(t *testing.T) {
	out, err := encode(Message{Event: "e", Data: []byte("line1\nline2")})
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "data: line1\n")
	assert.Contains(t, s, "data: line2\n")
}

func TestEncode_RejectsEmptyMessage(t *testing.T) {
	_, err := encode(Message{})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestNewWriter_RejectsNonFlusher(t *testing.T) {
	_, err := NewWriter(nonFlushingWriter{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrNotFlusher)
}

// nonFlushingWriter hides httptest.ResponseRecorder's Flush method behind an
// interface that only exposes http.ResponseWriter, so the type assertion in
// NewWriter fails the way a real non-flushing writer would.
type nonFlushingWriter struct {
	rec *httptest.ResponseRecorder
}

func (n nonFlushingWriter) Header() http.Header         { return n.rec.Header() }
func (n nonFlushingWriter) Write(b []byte) (int, error) { return n.rec.Write(b) }
func (n nonFlushingWriter) WriteHeader(code int)        { n.rec.WriteHeader(code) }

func TestWriter_SendIncrementsID(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send("update", []byte("a")))
	require.NoError(t, w.Send("update", []byte("b")))

	body := rec.Body.String()
	assert.Contains(t, body, "id: 1\n")
	assert.Contains(t, body, "id: 2\n")
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestWriter_SendAfterCloseFails(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	w.Close()
	assert.Error(t, w.Send("update", []byte("a")))
}

func TestWriter_PingWritesCommentLine(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Ping(context.Background()))
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}

func TestWriter_PingAfterClosedContextIsNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Ping(ctx))
	assert.Empty(t, rec.Body.String())
}
