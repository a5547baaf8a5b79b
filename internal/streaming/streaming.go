// Package streaming implements the Streaming Facade (spec §4.7): the HTTP
// handlers that validate a ResearchRequest, drive the Research Graph, and
// emit either a Server-Sent Events stream or a single JSON response.
package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tangerg-labs/deepresearch/internal/graph"
	"github.com/tangerg-labs/deepresearch/internal/sse"
	"github.com/tangerg-labs/deepresearch/internal/state"
)

// Facade wires the Research Graph to HTTP. Build is called once per request
// so every run gets an isolated graph closure over its own engine state.
type Facade struct {
	Build             func() *graph.Graph
	RequestDeadline   time.Duration
	KeepaliveInterval time.Duration
	Logger            *zap.Logger
	Version           string
}

func (f *Facade) logger() *zap.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return zap.NewNop()
}

// decodeRequest reads and validates the common POST body for both endpoints.
func decodeRequest(r *http.Request) (*state.ResearchRequest, error) {
	var req state.ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %s", state.ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Stream implements POST /research/stream (spec §4.7).
func (f *Facade) Stream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Preamble comment: proxies holding back the first byte until headers
	// look "real" flush as soon as something hits the wire (spec §4.7 step 4).
	if err := writer.Ping(r.Context()); err != nil {
		f.logger().Warn("sse preamble write failed", zap.Error(err))
		return
	}

	st := state.NewResearchState(req)
	reqLogger := f.logger().With(zap.String("request_id", st.RequestID))
	reqLogger.Info("research stream started", zap.String("topic", req.Topic))

	deadline := f.RequestDeadline
	if deadline <= 0 {
		deadline = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()

	keepalive := f.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer stopKeepalive()
		return f.driveGraph(gctx, st, writer)
	})
	group.Go(func() error {
		return keepaliveLoop(keepaliveCtx, keepalive, writer)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		reqLogger.Warn("research stream ended with error", zap.Error(err))
	} else {
		reqLogger.Info("research stream finished")
	}
}

// driveGraph runs the graph to completion, emitting one update event per
// node and a final complete/error event (spec §4.7 steps 5-7). It never
// returns a non-nil error for a graph-level failure; that failure is
// reported to the client as an `error` SSE event instead, matching the
// facade's "close the stream" behavior rather than the errgroup's.
func (f *Facade) driveGraph(ctx context.Context, st *state.ResearchState, writer *sse.Writer) error {
	defer writer.Close()

	observer := func(ctx context.Context, node string, s any, nodeErr error) {
		if nodeErr != nil {
			return
		}
		payload, err := json.Marshal(state.StreamEvent{Type: state.EventUpdate, RequestID: st.RequestID, Node: node, State: st})
		if err != nil {
			return
		}
		_ = writer.Send(string(state.EventUpdate), payload)
	}

	runErr := f.Build().Run(ctx, st, observer)

	if runErr != nil {
		payload, _ := json.Marshal(state.StreamEvent{Type: state.EventError, RequestID: st.RequestID, Message: runErr.Error()})
		_ = writer.Send(string(state.EventError), payload)
		return nil
	}

	payload, err := json.Marshal(state.StreamEvent{Type: state.EventComplete, RequestID: st.RequestID, State: st})
	if err == nil {
		_ = writer.Send(string(state.EventComplete), payload)
	}
	return nil
}

// keepaliveLoop emits a comment line every interval until ctx is done — either
// the request deadline, client disconnect, or driveGraph finishing (spec
// §4.7 step 5). Returning nil on ctx.Done() keeps a finished graph run from
// surfacing a spurious context-canceled error from the errgroup.
func keepaliveLoop(ctx context.Context, interval time.Duration, writer *sse.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := writer.Ping(ctx); err != nil {
				return err
			}
		}
	}
}

// Research implements POST /research, the synchronous mirror (spec §12/§6):
// it runs the same graph without streaming and returns the terminal state.
func (f *Facade) Research(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	st := state.NewResearchState(req)
	reqLogger := f.logger().With(zap.String("request_id", st.RequestID))

	deadline := f.RequestDeadline
	if deadline <= 0 {
		deadline = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()

	if err := f.Build().Run(ctx, st, nil); err != nil {
		reqLogger.Warn("research run failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

type healthPayload struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health implements GET /health (spec §6/§12).
func (f *Facade) Health(w http.ResponseWriter, r *http.Request) {
	version := f.Version
	if version == "" {
		version = "dev"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthPayload{Status: "ok", Version: version})
}
