// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package capability defines the provider-agnostic Embedder and ChatModel
// contracts the core depends on, plus concrete implementations. Neither the
// indexing pipeline nor the RAG pipeline import a provider package directly;
// they're wired through these interfaces so tests can substitute Mock.
package capability

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/northbound/wikify/internal/wikierr"
)

// Embedder generates vector embeddings from text. EmbedBatch is
// order-preserving and total: it returns every vector or none.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// NewEmbedder builds an Embedder from a provider name and config, wrapping
// it in a client-side rate limiter. Supported providers: "openai", "ollama",
// "gemini", "mock".
func NewEmbedder(ctx context.Context, provider string, config map[string]string) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch provider {
	case "openai":
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, wikierr.Validation("api_key", "", "non-empty OpenAI API key")
		}
		model := config["model"]
		if model == "" {
			model = "text-embedding-3-small"
		}
		inner, err = NewOpenAIEmbedder(apiKey, model)
	case "ollama":
		baseURL := config["base_url"]
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := config["model"]
		if model == "" {
			model = "nomic-embed-text"
		}
		inner, err = NewOllamaEmbedder(baseURL, model)
	case "gemini":
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, wikierr.Validation("api_key", "", "non-empty Gemini API key")
		}
		inner, err = NewGeminiEmbedder(ctx, apiKey)
	case "mock":
		dim := 384
		if dimStr := config["dimension"]; dimStr != "" {
			fmt.Sscanf(dimStr, "%d", &dim)
		}
		inner, err = NewMockEmbedder(dim), nil
	default:
		return nil, wikierr.Validation("provider", provider, "one of openai, ollama, gemini, mock")
	}
	if err != nil {
		return nil, err
	}

	rps := rate.Limit(10)
	burst := 10
	if config["rate_limit_rps"] != "" {
		var v float64
		fmt.Sscanf(config["rate_limit_rps"], "%f", &v)
		if v > 0 {
			rps = rate.Limit(v)
			burst = int(v)
			if burst < 1 {
				burst = 1
			}
		}
	}
	return newRateLimitedEmbedder(inner, rps, burst), nil
}

// rateLimitedEmbedder wraps an Embedder with a token-bucket limiter so
// indexing jobs never burst a provider past its own rate limit. Parked
// callers surface wikierr.Timeout, not a silent retry.
type rateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

func newRateLimitedEmbedder(inner Embedder, rps rate.Limit, burst int) *rateLimitedEmbedder {
	return &rateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(rps, burst)}
}

func (r *rateLimitedEmbedder) Dimension() int { return r.inner.Dimension() }

func (r *rateLimitedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, wikierr.Timeout("embed", 0)
	}
	return r.inner.EmbedText(ctx, text)
}

func (r *rateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	// One reservation per batch call; the provider itself paces per-item
	// work (e.g. Ollama's sequential loop).
	if err := r.limiter.WaitN(ctx, 1); err != nil {
		return nil, wikierr.Timeout("embed_batch", 0)
	}
	return r.inner.EmbedBatch(ctx, texts)
}
