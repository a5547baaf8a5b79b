// Package retrieval implements the Retrieval Adapter (spec §4.2): embed a
// query, search a Qdrant collection, and turn scored points into SourceHits.
// This is a read-only simplification of the teacher's qdrant VectorStore,
// which also handles ingestion (Create/Delete); this engine never ingests,
// so only the Retrieve half is adapted.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/tangerg-labs/deepresearch/internal/llm"
	"github.com/tangerg-labs/deepresearch/internal/state"
)

// ErrUnavailable wraps any failure reaching the vector store (spec §7,
// ErrRetrievalUnavailable origin).
var ErrUnavailable = errors.New("retrieval: vector store unavailable")

const (
	payloadTextKey       = "text"
	payloadSourceKey     = "source"
	payloadChunkIndexKey = "chunk_index"
	payloadPageKey       = "page"
)

// Request is one RAG lookup (spec §4.2).
type Request struct {
	Collection string
	Query      string
	TopK       int
	MinScore   float32
}

// Adapter is the Retrieval Adapter: embeds a query and searches one
// collection in Qdrant.
type Adapter struct {
	client         *qdrant.Client
	embedder       llm.EmbeddingModel
	embeddingModel string
}

// NewAdapter wires a Qdrant client and an embedding model.
func NewAdapter(client *qdrant.Client, embedder llm.EmbeddingModel, embeddingModel string) *Adapter {
	return &Adapter{client: client, embedder: embedder, embeddingModel: embeddingModel}
}

// Retrieve embeds req.Query and runs a top-K similarity search against
// req.Collection, returning SourceHits built from the scored points'
// payload (text, source, chunk_index, page).
func (a *Adapter) Retrieve(ctx context.Context, req Request) ([]state.SourceHit, error) {
	if req.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", ErrUnavailable)
	}
	if req.TopK <= 0 {
		req.TopK = 4
	}

	vectors, err := a.embedder.Embed(ctx, a.embeddingModel, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %s", ErrUnavailable, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedding call returned no vectors", ErrUnavailable)
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: req.Collection,
		Limit:          ptrUint64(uint64(req.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Query:          qdrant.NewQuery(vectors[0]...),
	}
	if req.MinScore > 0 {
		queryPoints.ScoreThreshold = ptrFloat32(req.MinScore)
	}

	scored, err := a.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("%w: query against collection %q failed: %s", ErrUnavailable, req.Collection, err)
	}

	return hitsFromScoredPoints(scored, req.Collection), nil
}

// hitsFromScoredPoints converts Qdrant's scored points into SourceHits. Kept
// as a pure function (no client/context) so it can be unit tested directly.
// Points with no payload text are discarded (spec §4.2 step 4: "Hits with
// missing text are discarded"); the citation is built from the payload's own
// source/chunk_index/page fields, not the point ID or the loop position.
func hitsFromScoredPoints(scored []*qdrant.ScoredPoint, collection string) []state.SourceHit {
	hits := make([]state.SourceHit, 0, len(scored))
	for _, point := range scored {
		payload := point.GetPayload()

		text := ""
		if v, ok := payload[payloadTextKey]; ok {
			text = v.GetStringValue()
		}
		if text == "" {
			continue
		}

		name := collection
		if v, ok := payload[payloadSourceKey]; ok && v.GetStringValue() != "" {
			name = v.GetStringValue()
		}

		chunkIndex := 0
		if v, ok := payload[payloadChunkIndexKey]; ok {
			chunkIndex = int(v.GetIntegerValue())
		}

		var page *int
		if v, ok := payload[payloadPageKey]; ok {
			p := int(v.GetIntegerValue())
			page = &p
		}

		citation := state.Citation{
			Document: &state.DocumentCitation{
				Name:       name,
				ChunkIndex: chunkIndex,
				Page:       page,
			},
		}
		hits = append(hits, state.NewSourceHit(text, state.OriginRAG, citation))
	}
	return hits
}

func ptrUint64(v uint64) *uint64     { return &v }
func ptrFloat32(v float32) *float32 { return &v }
