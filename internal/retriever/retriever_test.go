// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package retriever

import (
	"context"
	"strings"
	"testing"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/vectorstore"
)

type fakeSourceStore struct {
	byID map[string]SearchResult
}

func (f *fakeSourceStore) ResolveChunks(ctx context.Context, repoID string, ids []string) (map[string]SearchResult, error) {
	out := make(map[string]SearchResult, len(ids))
	for _, id := range ids {
		if r, ok := f.byID[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func setupStore(t *testing.T) vectorstore.VectorStore {
	t.Helper()
	s, err := vectorstore.Open(t.TempDir(), "mock")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRetriever_HappyPath(t *testing.T) {
	embedder := capability.NewMockEmbedder(16)
	store := setupStore(t)
	ctx := context.Background()

	vec, _ := embedder.EmbedText(ctx, "what is fixture-repo-small about?")
	store.Add(ctx, []vectorstore.EmbeddedChunk{{ID: "c1", Vector: vec}})

	sources := &fakeSourceStore{byID: map[string]SearchResult{
		"c1": {ChunkID: "c1", Text: "fixture-repo-small is a test fixture.", FilePath: "README.md", ChunkIdx: 0},
	}}

	r := New(embedder, store, sources)
	results, err := r.Retrieve(ctx, "repo-1", "what is fixture-repo-small about?", DefaultConfig())
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !strings.Contains(results[0].Text, "fixture") {
		t.Errorf("expected result text to mention fixture, got %q", results[0].Text)
	}
}

func TestRerank_LengthBiasCapped(t *testing.T) {
	results := []SearchResult{
		{ChunkID: "short", Score: 0.80, Text: strings.Repeat("a", 100)},
		{ChunkID: "long", Score: 0.79, Text: strings.Repeat("b", 20000)},
	}
	rerank(results)
	if results[0].ChunkID != "long" {
		t.Errorf("expected longer chunk with capped 0.1 bonus (0.89) to outrank 0.80, got order %v", []string{results[0].ChunkID, results[1].ChunkID})
	}
}

func TestTrimToContext_AlwaysKeepsAtLeastOne(t *testing.T) {
	results := []SearchResult{{ChunkID: "a", Text: strings.Repeat("x", 500)}}
	trimmed := trimToContext(results, 100)
	if len(trimmed) != 1 {
		t.Fatalf("expected exactly 1 result even when it exceeds the budget, got %d", len(trimmed))
	}
	if len(trimmed[0].Text) > 100 {
		t.Errorf("expected oversized single chunk to be truncated to budget, got length %d", len(trimmed[0].Text))
	}
}

func TestTrimToContext_StopsBeforeExceedingBudget(t *testing.T) {
	results := []SearchResult{
		{ChunkID: "a", Text: strings.Repeat("x", 60)},
		{ChunkID: "b", Text: strings.Repeat("y", 60)},
		{ChunkID: "c", Text: strings.Repeat("z", 60)},
	}
	trimmed := trimToContext(results, 130)
	if len(trimmed) != 2 {
		t.Fatalf("expected 2 chunks to fit under 130 chars, got %d", len(trimmed))
	}
}
