// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manager

import (
	"context"

	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/vectorstore"
)

// vectorSourceStore resolves chunk ids back to retrievable text and
// citation metadata by reading them straight out of the same per-repo
// vector collection the search ran against. It satisfies
// retriever.SourceStore.
type vectorSourceStore struct {
	store vectorstore.VectorStore
}

func newVectorSourceStore(store vectorstore.VectorStore) *vectorSourceStore {
	return &vectorSourceStore{store: store}
}

func (v *vectorSourceStore) ResolveChunks(ctx context.Context, repoID string, ids []string) (map[string]retriever.SearchResult, error) {
	out := make(map[string]retriever.SearchResult, len(ids))
	for _, id := range ids {
		chunk, ok, err := v.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out[id] = retriever.SearchResult{
			ChunkID:  chunk.ID,
			Text:     chunk.Text,
			FilePath: chunk.Metadata["file_path"],
			ChunkIdx: chunk.ChunkIndex,
		}
	}
	return out, nil
}
