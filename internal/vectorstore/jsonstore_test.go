// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"context"
	"testing"

	"github.com/northbound/wikify/internal/wikierr"
)

func TestJSONStore_AddAndSearch(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "mock")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	chunks := []EmbeddedChunk{
		{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}},
		{ID: "b", Text: "beta", Vector: []float32{0, 1, 0}},
		{ID: "c", Text: "gamma", Vector: []float32{0.9, 0.1, 0}},
	}
	if err := s.Add(ctx, chunks); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	matches, err := s.Search(ctx, []float32{1, 0, 0}, 2, 0.0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ChunkID != "a" {
		t.Errorf("expected closest match to be 'a', got %s", matches[0].ChunkID)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("expected descending score order, got %f then %f", matches[0].Score, matches[1].Score)
	}
}

func TestJSONStore_ThresholdDropsLowScores(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir, "mock")
	defer s.Close()

	ctx := context.Background()
	s.Add(ctx, []EmbeddedChunk{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{-1, 0}},
	})

	matches, err := s.Search(ctx, []float32{1, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, m := range matches {
		if m.ChunkID == "b" {
			t.Error("expected orthogonal/opposite vector to be dropped by threshold")
		}
	}
}

func TestJSONStore_DimensionMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir, "mock")
	defer s.Close()

	ctx := context.Background()
	if err := s.Add(ctx, []EmbeddedChunk{{ID: "a", Vector: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("initial add failed: %v", err)
	}

	err := s.Add(ctx, []EmbeddedChunk{{ID: "b", Vector: []float32{1, 0}}})
	if !wikierr.Of(err, wikierr.KindValidation) {
		t.Errorf("expected KindValidation on dimension mismatch, got %v", err)
	}
}

func TestJSONStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir, "mock")
	ctx := context.Background()
	s.Add(ctx, []EmbeddedChunk{{ID: "a", Text: "persisted", Vector: []float32{1, 0}}})
	s.Close()

	reopened, err := Open(dir, "mock")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	n, _ := reopened.Len(ctx)
	if n != 1 {
		t.Fatalf("expected 1 chunk after reopen, got %d", n)
	}
	c, ok, _ := reopened.Get(ctx, "a")
	if !ok || c.Text != "persisted" {
		t.Errorf("expected persisted chunk text, got ok=%v text=%q", ok, c.Text)
	}
}
