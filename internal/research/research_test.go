// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package research

import (
	"context"
	"testing"
	"time"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/ragpipeline"
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

func newTestPipeline(t *testing.T) *ragpipeline.Pipeline {
	t.Helper()
	embedder := capability.NewMockEmbedder(16)
	store, err := vectorstore.Open(t.TempDir(), "mock")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	vec, _ := embedder.EmbedText(ctx, "fixture-repo-small background")
	if err := store.Add(ctx, []vectorstore.EmbeddedChunk{{ID: "c1", Vector: vec}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sources := &fakeSourceStore{byID: map[string]retriever.SearchResult{
		"c1": {ChunkID: "c1", Text: "fixture-repo-small runs a background indexing worker pool.", FilePath: "worker.go", ChunkIdx: 0},
	}}

	r := retriever.New(embedder, store, sources)
	return ragpipeline.New(r, capability.NewMockChatModel())
}

func waitForTerminal(t *testing.T, m *Manager, sessionID string, timeout time.Duration) Progress {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p, err := m.Progress(sessionID)
		if err != nil {
			t.Fatalf("Progress failed: %v", err)
		}
		if p.Status != StatusRunning {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for session to reach a terminal state")
	return Progress{}
}

func TestManager_RunsToCompletionWithSynthesis(t *testing.T) {
	m := NewManager(newTestPipeline(t))
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	cfg.ConfidenceThreshold = 0.99 // unreachable via mock scores, forces max-iteration exit

	id := m.Start("repo-1", "How does the background worker pool drain indexing jobs", cfg)
	p := waitForTerminal(t, m, id, 2*time.Second)

	if p.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s (err=%s)", p.Status, p.Err)
	}

	sess, err := m.get(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	iterations := sess.Iterations()
	if len(iterations) == 0 {
		t.Fatal("expected at least one iteration")
	}
	last := iterations[len(iterations)-1]
	if !last.Synthesis {
		t.Error("expected the final iteration to be a synthesis iteration")
	}
	for i, it := range iterations {
		if it.Iteration != i {
			t.Errorf("expected iterations recorded in strict execution order, got %+v at index %d", it, i)
		}
	}
}

func TestManager_StopPreventsFurtherIterations(t *testing.T) {
	m := NewManager(newTestPipeline(t))
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	cfg.ConfidenceThreshold = 0.99

	id := m.Start("repo-1", "a long and complex deep-dive query about worker internals", cfg)
	if err := m.Stop(id); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	p := waitForTerminal(t, m, id, 2*time.Second)
	if p.Status != StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", p.Status)
	}
}

func TestManager_ProgressUnknownSessionErrors(t *testing.T) {
	m := NewManager(newTestPipeline(t))
	if _, err := m.Progress("does-not-exist"); err == nil {
		t.Error("expected an error for an unknown session id")
	}
}

func TestManager_ComparativeStrategySynthesizesSubjects(t *testing.T) {
	m := NewManager(newTestPipeline(t))
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	cfg.ConfidenceThreshold = 0.99

	id := m.Start("repo-1", "Redis vs Memcached for caching", cfg)
	p := waitForTerminal(t, m, id, 2*time.Second)
	if p.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s (err=%s)", p.Status, p.Err)
	}
	if p.Strategy != StrategyComparative {
		t.Errorf("expected Comparative strategy, got %s", p.Strategy)
	}
}
