// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package retriever turns a natural-language query into a ranked,
// budget-trimmed set of source chunks: embed, search, optionally rerank,
// then trim to a character budget.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/vectorstore"
)

// Config controls one retrieve call.
type Config struct {
	TopK                int
	SimilarityThreshold float32
	MaxContextChars      int
	EnableRerank         bool
}

// DefaultConfig matches the reference defaults.
func DefaultConfig() Config {
	return Config{TopK: 8, SimilarityThreshold: 0.3, MaxContextChars: 12000, EnableRerank: false}
}

// SearchResult is a retrieved chunk plus the text needed to build a
// prompt and cite a source.
type SearchResult struct {
	ChunkID  string
	Score    float32
	Text     string
	FilePath string
	ChunkIdx int
}

// SourceStore resolves a chunk id to the text and citation metadata
// needed after a vector-only search, since Search returns only chunk ids
// and scores.
type SourceStore interface {
	ResolveChunks(ctx context.Context, repoID string, ids []string) (map[string]SearchResult, error)
}

// Retriever runs the retrieval pipeline: embed, search, optional rerank,
// context trim.
type Retriever struct {
	embedder capability.Embedder
	store    vectorstore.VectorStore
	sources  SourceStore
}

// New builds a Retriever over a single repository's vector collection.
func New(embedder capability.Embedder, store vectorstore.VectorStore, sources SourceStore) *Retriever {
	return &Retriever{embedder: embedder, store: store, sources: sources}
}

// Retrieve runs the full pipeline for one query.
func (r *Retriever) Retrieve(ctx context.Context, repoID, query string, cfg Config) ([]SearchResult, error) {
	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.store.Search(ctx, vec, cfg.TopK, cfg.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	scoreByID := make(map[string]float32, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
		scoreByID[m.ChunkID] = m.Score
	}

	resolved, err := r.sources.ResolveChunks(ctx, repoID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve chunk sources: %w", err)
	}

	results := make([]SearchResult, 0, len(ids))
	for _, id := range ids {
		res, ok := resolved[id]
		if !ok {
			continue
		}
		res.Score = scoreByID[id]
		results = append(results, res)
	}

	if cfg.EnableRerank {
		rerank(results)
	}

	return trimToContext(results, cfg.MaxContextChars), nil
}

// rerank applies the deterministic length-bias formula: a longer chunk is
// nudged ahead of an otherwise-equal shorter one, capped at a 0.1 bonus.
// No extra model call.
func rerank(results []SearchResult) {
	adjusted := make([]float32, len(results))
	for i, r := range results {
		bonus := float32(len(r.Text)) / 10000
		if bonus > 0.1 {
			bonus = 0.1
		}
		adjusted[i] = r.Score + bonus
	}
	sort.SliceStable(results, func(i, j int) bool { return adjusted[i] > adjusted[j] })
}

// trimToContext accumulates results in their given order until adding the
// next would exceed maxChars. At least one result is always kept; if the
// very first alone exceeds the budget, it's truncated with
// truncateAtSentence.
func trimToContext(results []SearchResult, maxChars int) []SearchResult {
	if len(results) == 0 {
		return nil
	}

	out := make([]SearchResult, 0, len(results))
	total := 0
	for i, r := range results {
		if i == 0 && len(r.Text) > maxChars {
			r.Text = truncateAtSentence(r.Text, maxChars)
			out = append(out, r)
			total = len(r.Text)
			continue
		}
		if total+len(r.Text) > maxChars {
			break
		}
		out = append(out, r)
		total += len(r.Text)
	}
	return out
}

// truncateAtSentence cuts text to at most maxChars, backing up to the
// last sentence-ending punctuation within 200 bytes before the cut when
// one exists; otherwise it cuts at exactly maxChars.
func truncateAtSentence(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for i := cut - 1; i >= 0 && cut-i < 200; i-- {
		ch := text[i]
		if ch == '.' || ch == '!' || ch == '?' {
			return text[:i+1]
		}
	}
	return text[:cut]
}
