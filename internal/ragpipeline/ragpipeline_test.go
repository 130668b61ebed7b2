// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ragpipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/vectorstore"
)

type fakeSourceStore struct {
	byID map[string]retriever.SearchResult
}

func (f *fakeSourceStore) ResolveChunks(ctx context.Context, repoID string, ids []string) (map[string]retriever.SearchResult, error) {
	out := make(map[string]retriever.SearchResult, len(ids))
	for _, id := range ids {
		if r, ok := f.byID[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func setupPipeline(t *testing.T) (*Pipeline, *capability.MockEmbedder) {
	t.Helper()
	embedder := capability.NewMockEmbedder(16)
	store, err := vectorstore.Open(t.TempDir(), "mock")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	vec, _ := embedder.EmbedText(ctx, "what is fixture-repo-small about?")
	if err := store.Add(ctx, []vectorstore.EmbeddedChunk{{ID: "c1", Vector: vec}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sources := &fakeSourceStore{byID: map[string]retriever.SearchResult{
		"c1": {ChunkID: "c1", Text: "fixture-repo-small is a test fixture.", FilePath: "README.md", ChunkIdx: 0},
	}}

	r := retriever.New(embedder, store, sources)
	return New(r, capability.NewMockChatModel()), embedder
}

func TestAsk_HappyPathCitesSources(t *testing.T) {
	p, _ := setupPipeline(t)
	resp, err := p.Ask(context.Background(), "repo-1", "what is fixture-repo-small about?", nil, retriever.DefaultConfig())
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].FilePath != "README.md" {
		t.Fatalf("expected one source from README.md, got %+v", resp.Sources)
	}
	if !strings.Contains(resp.Answer, "fixture") {
		t.Errorf("expected answer to reflect retrieved context, got %q", resp.Answer)
	}
	if resp.Metadata.ChunksRetrieved != 1 {
		t.Errorf("expected ChunksRetrieved=1, got %d", resp.Metadata.ChunksRetrieved)
	}
	if resp.Metadata.ModelID != "mock-chat" {
		t.Errorf("expected model id mock-chat, got %q", resp.Metadata.ModelID)
	}
}

func TestAsk_NoSourcesStillCallsModelWithoutFabricating(t *testing.T) {
	embedder := capability.NewMockEmbedder(16)
	store, err := vectorstore.Open(t.TempDir(), "mock")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	sources := &fakeSourceStore{byID: map[string]retriever.SearchResult{}}
	r := retriever.New(embedder, store, sources)
	p := New(r, capability.NewMockChatModel())

	resp, err := p.Ask(context.Background(), "repo-1", "anything at all?", nil, retriever.DefaultConfig())
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("expected zero sources when nothing was retrieved, got %+v", resp.Sources)
	}
	if resp.Answer == "" {
		t.Error("expected a non-empty answer even with no retrieved context")
	}
}

func TestAskStream_ForwardsTokensThenSources(t *testing.T) {
	p, _ := setupPipeline(t)
	events, err := p.AskStream(context.Background(), "repo-1", "what is fixture-repo-small about?", nil, retriever.DefaultConfig())
	if err != nil {
		t.Fatalf("AskStream failed: %v", err)
	}

	var tokens []string
	var finalSources []Source
	sawDone := false
	for ev := range events {
		if ev.Done {
			sawDone = true
			finalSources = ev.Sources
			continue
		}
		tokens = append(tokens, ev.Token)
	}

	if !sawDone {
		t.Fatal("expected a final Done event")
	}
	if len(tokens) == 0 {
		t.Error("expected at least one streamed token")
	}
	if len(finalSources) != 1 {
		t.Errorf("expected final event to carry 1 source, got %d", len(finalSources))
	}
}

func TestAssembleContext_EmptyResultsStillProducesPrompt(t *testing.T) {
	got := assembleContext(nil)
	if !strings.Contains(got, "no relevant context") {
		t.Errorf("expected placeholder context text, got %q", got)
	}
}
