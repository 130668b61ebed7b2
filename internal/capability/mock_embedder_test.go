// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package capability

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "hello wikify")
	if err != nil {
		t.Fatalf("EmbedText failed: %v", err)
	}
	b, err := e.EmbedText(ctx, "hello wikify")
	if err != nil {
		t.Fatalf("EmbedText failed: %v", err)
	}

	if len(a) != 64 {
		t.Fatalf("expected dimension 64, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("mock embedder is not deterministic at index %d: %f != %f", i, a[i], b[i])
		}
	}
}

func TestMockEmbedder_Normalized(t *testing.T) {
	e := NewMockEmbedder(32)
	v, err := e.EmbedText(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("EmbedText failed: %v", err)
	}

	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-4 {
		t.Errorf("expected unit-normalized vector, got norm %f", norm)
	}
}

func TestMockEmbedder_DistinctTextsDiffer(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, _ := e.EmbedText(ctx, "alpha")
	b, _ := e.EmbedText(ctx, "beta")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different texts to produce different embeddings")
	}
}

func TestMockEmbedder_EmbedBatchOrderPreserving(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	texts := []string{"one", "two", "three"}

	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(batch))
	}

	for i, text := range texts {
		single, _ := e.EmbedText(ctx, text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Errorf("EmbedBatch[%d] does not match EmbedText(%q) at index %d", i, text, j)
			}
		}
	}
}

func TestMockChatModel_CompleteEchoesContext(t *testing.T) {
	m := NewMockChatModel()
	result, err := m.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "answer from context"},
		{Role: RoleUser, Content: "what is fixture-repo-small about?"},
	}, Params{Temperature: 0.1})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !strings.Contains(result.Text, "what is fixture-repo-small about?") {
		t.Errorf("expected completion to echo the user turn, got %q", result.Text)
	}
}
