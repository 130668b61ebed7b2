// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/northbound/wikify/internal/chunker"
	"github.com/northbound/wikify/internal/logx"
	"github.com/northbound/wikify/internal/progress"
	"github.com/northbound/wikify/internal/queue"
	"github.com/northbound/wikify/internal/store"
	"github.com/northbound/wikify/internal/vectorstore"
	"github.com/northbound/wikify/internal/wikierr"
)

// handleIndexJob is the worker.HandlerFunc bound to the "index" job type.
// It acquires an indexing permit, bounded by IndexingQueueTimeout, before
// doing any real work; if none is free in time the repository is left
// pending and the job is put back on the queue for a later attempt.
func (m *RepositoryManager) handleIndexJob(ctx context.Context, job queue.Job) error {
	if job.Type != "index" {
		return nil
	}
	var payload indexJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode index job: %w", err)
	}

	permitCtx, cancel := context.WithTimeout(ctx, m.cfg.IndexingQueueTimeout)
	defer cancel()
	if err := m.indexSem.Acquire(permitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logx.Warnf("manager: no indexing permit for %s within %s, re-queueing", payload.RepoID, m.cfg.IndexingQueueTimeout)
		return m.enqueueIndexJob(ctx, payload.RepoID)
	}
	defer m.indexSem.Release(1)

	if m.deps.Metrics != nil {
		m.deps.Metrics.IndexingActiveGauge.Inc()
		defer m.deps.Metrics.IndexingActiveGauge.Dec()
	}

	return m.runIndexing(ctx, payload.RepoID)
}

// runIndexing drives one repository through fetch, chunk, embed, and
// persist, retrying the whole run on a recoverable failure with
// exponential backoff. A non-recoverable failure (e.g. a validation
// error) is not retried.
func (m *RepositoryManager) runIndexing(ctx context.Context, repoID string) error {
	entry := m.entryFor(repoID)
	entry.mu.Lock()
	if entry.indexing {
		entry.mu.Unlock()
		return nil
	}
	entry.indexing = true
	cancelCh := make(chan struct{})
	doneCh := make(chan struct{})
	entry.cancel = cancelCh
	entry.done = doneCh
	entry.mu.Unlock()

	jobCtx, jobCancel := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-cancelCh:
			jobCancel()
		case <-jobCtx.Done():
		}
		close(watchDone)
	}()

	defer func() {
		jobCancel()
		<-watchDone
		entry.mu.Lock()
		entry.indexing = false
		entry.cancel = nil
		entry.done = nil
		entry.mu.Unlock()
		close(doneCh)
	}()

	record, err := m.deps.Store.Get(ctx, repoID)
	if err != nil {
		return err
	}
	if err := m.deps.Store.UpdateStatus(ctx, repoID, store.StatusIndexing); err != nil {
		return err
	}

	started := time.Now()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.cfg.RetryBaseDelay
	policy.Multiplier = m.cfg.RetryMultiplier
	policy.MaxInterval = m.cfg.RetryMaxDelay
	policy.MaxElapsedTime = 0
	withRetries := backoff.WithMaxRetries(policy, uint64(m.cfg.RetryAttempts-1))

	attempt := 0
	stats, runErr := store.Stats{}, error(nil)
	opErr := backoff.Retry(func() error {
		if jobCtx.Err() != nil {
			return backoff.Permanent(context.Canceled)
		}
		attempt++
		entry.mu.Lock()
		entry.lastProgress = time.Now()
		entry.mu.Unlock()
		s, err := m.indexOnce(jobCtx, record, attempt)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			if wikErr, ok := err.(*wikierr.Error); ok && !wikErr.Recoverable {
				return backoff.Permanent(err)
			}
			runErr = err
			return err
		}
		stats = s
		return nil
	}, withRetries)

	duration := time.Since(started)
	if errors.Is(opErr, context.Canceled) {
		_ = m.deps.Store.UpdateStatus(ctx, repoID, store.StatusCancelled)
		if m.deps.Metrics != nil {
			m.deps.Metrics.ObserveIndexing("cancelled", duration)
		}
		m.deps.Bus.Publish(progress.IndexingUpdate{
			RepoID: repoID, Kind: progress.KindError,
			Message: "indexing cancelled", Err: "cancelled",
		})
		return nil
	}
	if opErr != nil {
		_ = m.deps.Store.UpdateLastError(ctx, repoID, opErr.Error())
		_ = m.deps.Store.UpdateStatus(ctx, repoID, store.StatusFailed)
		if m.deps.Metrics != nil {
			m.deps.Metrics.ObserveIndexing("failed", duration)
		}
		m.deps.Bus.Publish(progress.IndexingUpdate{
			RepoID: repoID, Kind: progress.KindError,
			Message: "indexing failed", Err: opErr.Error(),
		})
		if runErr != nil {
			return runErr
		}
		return opErr
	}

	stats.Duration = duration
	now := time.Now()
	if err := m.deps.Store.UpdateStats(ctx, repoID, stats, now); err != nil {
		return err
	}
	if err := m.deps.Store.UpdateStatus(ctx, repoID, store.StatusCompleted); err != nil {
		return err
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveIndexing("completed", duration)
	}
	m.deps.Bus.Publish(progress.IndexingUpdate{
		RepoID: repoID, Kind: progress.KindComplete,
		FilesTotal: stats.FileCount, FilesDone: stats.FileCount,
		ChunksWritten: stats.ChunkCount,
		Message:       "indexing complete",
	})
	return nil
}

// indexOnce runs a single fetch-chunk-embed-persist pass, reporting
// incremental progress as it goes.
func (m *RepositoryManager) indexOnce(ctx context.Context, record store.Repository, attempt int) (store.Stats, error) {
	m.deps.Bus.Publish(progress.IndexingUpdate{
		RepoID: record.ID, Kind: progress.KindProgress,
		Message: fmt.Sprintf("fetching (attempt %d)", attempt),
	})

	localPath, err := m.deps.Fetcher.Fetch(ctx, record.RepoPath)
	if err != nil {
		return store.Stats{}, err
	}
	if ctx.Err() != nil {
		return store.Stats{}, ctx.Err()
	}

	m.deps.Bus.Publish(progress.IndexingUpdate{RepoID: record.ID, Kind: progress.KindProgress, Message: "chunking"})
	chunks, err := m.deps.Chunker.ChunkRepo(record.ID, localPath)
	if err != nil {
		return store.Stats{}, err
	}
	if ctx.Err() != nil {
		return store.Stats{}, ctx.Err()
	}
	if len(chunks) == 0 {
		// An empty repository indexes successfully with zero chunks;
		// queries against it fail with an "empty index" error rather
		// than the repository sitting in Failed forever.
		return store.Stats{}, nil
	}

	vs, err := m.deps.VectorStores(record.ID)
	if err != nil {
		return store.Stats{}, err
	}
	entry := m.entryFor(record.ID)
	entry.mu.Lock()
	if entry.vs != nil && entry.vs != vs {
		_ = entry.vs.Close()
	}
	entry.vs = vs
	entry.retriever = nil // rebuilt lazily against the refreshed store
	entry.pipeline = nil
	entry.mu.Unlock()

	var (
		bytesTotal int64
		filesSeen  = make(map[string]bool)
	)
	batchSize := m.cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	for start := 0; start < len(chunks); start += batchSize {
		if ctx.Err() != nil {
			return store.Stats{}, ctx.Err()
		}
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := m.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return store.Stats{}, wikierr.IndexingFailed(true, attempt, err)
		}

		embedded := make([]vectorstore.EmbeddedChunk, len(batch))
		for i, c := range batch {
			embedded[i] = toEmbeddedChunk(c, vectors[i])
			filesSeen[c.FilePath] = true
			bytesTotal += int64(len(c.Content))
		}
		if err := vs.Add(ctx, embedded); err != nil {
			return store.Stats{}, wikierr.IndexingFailed(true, attempt, err)
		}

		if m.deps.Metrics != nil {
			m.deps.Metrics.IndexingChunksTotal.WithLabelValues("written").Add(float64(len(embedded)))
		}
		entry.mu.Lock()
		entry.lastProgress = time.Now()
		entry.mu.Unlock()
		m.deps.Bus.Publish(progress.IndexingUpdate{
			RepoID: record.ID, Kind: progress.KindProgress,
			FilesDone: len(filesSeen), ChunksWritten: end,
			Message: fmt.Sprintf("embedded %d/%d chunks", end, len(chunks)),
		})
	}

	return store.Stats{
		FileCount:  len(filesSeen),
		ChunkCount: len(chunks),
		BytesTotal: bytesTotal,
	}, nil
}

func toEmbeddedChunk(c chunker.Chunk, vec []float32) vectorstore.EmbeddedChunk {
	return vectorstore.EmbeddedChunk{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		ChunkIndex: c.Index,
		Text:       c.Content,
		Vector:     vec,
		Metadata: map[string]string{
			"file_path":      c.FilePath,
			"file_name":      c.FileName,
			"file_extension": c.FileExtension,
			"language":       c.Language,
			"mimetype":       c.Mimetype,
			"file_type":      string(c.FileType),
		},
	}
}
