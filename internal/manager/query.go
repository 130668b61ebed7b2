// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/northbound/wikify/internal/convo"
	"github.com/northbound/wikify/internal/permission"
	"github.com/northbound/wikify/internal/ragpipeline"
	"github.com/northbound/wikify/internal/research"
	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/store"
	"github.com/northbound/wikify/internal/wikierr"
)

// Query answers a natural-language question against a completed
// repository index: retrieve, assemble, generate. Identical (repoId,
// query, cfg) calls within the cache TTL skip retrieval and generation
// entirely. A cache hit is only taken when convoCtx is nil, since a
// cached answer was generated without whatever history the caller is now
// carrying. convoCtx is optional: pass nil for a stateless one-off query.
func (m *RepositoryManager) Query(ctx context.Context, pctx permission.Context, repoID, query string, convoCtx *convo.QueryContext, cfg retriever.Config) (ragpipeline.Response, error) {
	if err := m.authorize(pctx, permission.PermissionQuery, permission.ResourceQueriesPerHour); err != nil {
		return ragpipeline.Response{}, err
	}

	key := cacheKey(repoID, query, cfg)
	if convoCtx == nil {
		if cached, ok := m.queryCache.Get(key); ok {
			if m.deps.Metrics != nil {
				m.deps.Metrics.ObserveCache(true)
			}
			return cached, nil
		}
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveCache(false)
	}

	pipeline, err := m.pipelineFor(ctx, repoID)
	if err != nil {
		return ragpipeline.Response{}, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()
	if err := m.querySem.Acquire(timeoutCtx, 1); err != nil {
		return ragpipeline.Response{}, wikierr.Timeout("query_concurrency", m.cfg.QueryTimeout)
	}
	defer m.querySem.Release(1)

	if m.deps.Metrics != nil {
		m.deps.Metrics.QueryActiveGauge.Inc()
		defer m.deps.Metrics.QueryActiveGauge.Dec()
	}

	started := time.Now()
	resp, err := pipeline.Ask(timeoutCtx, repoID, query, convoCtx, cfg)
	duration := time.Since(started)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveQuery(outcome, duration)
		m.deps.Metrics.RetrievalChunksReturned.Observe(float64(resp.Metadata.ChunksRetrieved))
	}
	if err != nil {
		return ragpipeline.Response{}, fmt.Errorf("query %s: %w", repoID, err)
	}

	if convoCtx == nil {
		m.queryCache.Set(key, resp)
	}
	return resp, nil
}

// StartResearch begins a multi-iteration deep-research session against
// repoID's index, returning immediately with a session id the caller
// polls via ResearchProgress.
func (m *RepositoryManager) StartResearch(ctx context.Context, pctx permission.Context, repoID, query string, cfg research.Config) (string, error) {
	if err := m.authorize(pctx, permission.PermissionDeepResearch, permission.ResourceQueriesPerHour); err != nil {
		return "", err
	}
	mgr, err := m.researchManagerFor(ctx, repoID)
	if err != nil {
		return "", err
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.ResearchSessionsTotal.WithLabelValues("started").Inc()
	}
	return mgr.Start(repoID, query, cfg), nil
}

// ResearchProgress returns a point-in-time snapshot of a research session.
func (m *RepositoryManager) ResearchProgress(ctx context.Context, pctx permission.Context, repoID, sessionID string) (research.Progress, error) {
	if err := m.authorize(pctx, permission.PermissionDeepResearch, permission.ResourceQueriesPerHour); err != nil {
		return research.Progress{}, err
	}
	mgr, err := m.researchManagerFor(ctx, repoID)
	if err != nil {
		return research.Progress{}, err
	}
	return mgr.Progress(sessionID)
}

// StopResearch requests cancellation of an in-flight research session.
func (m *RepositoryManager) StopResearch(ctx context.Context, pctx permission.Context, repoID, sessionID string) error {
	if err := m.authorize(pctx, permission.PermissionDeepResearch, permission.ResourceQueriesPerHour); err != nil {
		return err
	}
	mgr, err := m.researchManagerFor(ctx, repoID)
	if err != nil {
		return err
	}
	return mgr.Stop(sessionID)
}

// pipelineFor lazily builds (or returns the cached) retrieval+generation
// stack for repoID, requiring the repository to have completed at least
// one indexing run.
func (m *RepositoryManager) pipelineFor(ctx context.Context, repoID string) (*ragpipeline.Pipeline, error) {
	record, err := m.deps.Store.Get(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if record.Status != store.StatusCompleted {
		return nil, wikierr.NotReady(repoID, string(record.Status))
	}
	if record.Stats.ChunkCount == 0 {
		return nil, wikierr.QueryFailed("empty index")
	}

	entry := m.entryFor(repoID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.pipeline != nil {
		return entry.pipeline, nil
	}

	if entry.vs == nil {
		vs, err := m.deps.VectorStores(repoID)
		if err != nil {
			return nil, err
		}
		entry.vs = vs
	}
	entry.retriever = retriever.New(m.deps.Embedder, entry.vs, newVectorSourceStore(entry.vs))
	entry.pipeline = ragpipeline.New(entry.retriever, m.deps.ChatModel)
	return entry.pipeline, nil
}

func (m *RepositoryManager) researchManagerFor(ctx context.Context, repoID string) (*research.Manager, error) {
	pipeline, err := m.pipelineFor(ctx, repoID)
	if err != nil {
		return nil, err
	}
	entry := m.entryFor(repoID)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.research == nil {
		entry.research = research.NewManager(pipeline)
	}
	return entry.research, nil
}

func cacheKey(repoID, query string, cfg retriever.Config) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%f|%d|%t", repoID, query, cfg.TopK, cfg.SimilarityThreshold, cfg.MaxContextChars, cfg.EnableRerank)
	return hex.EncodeToString(h.Sum(nil))
}
