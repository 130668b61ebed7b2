// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manager

import (
	"context"
	"time"

	"github.com/northbound/wikify/internal/logx"
	"github.com/northbound/wikify/internal/progress"
	"github.com/northbound/wikify/internal/store"
)

// watchStuckJobs periodically scans for indexing runs that have stopped
// reporting progress within StuckThreshold, cancels them, and marks the
// repository Failed with a StuckIndexing error; when auto-recovery is
// enabled the job is then re-queued.
func (m *RepositoryManager) watchStuckJobs(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepStuckJobs(ctx)
		}
	}
}

type stuckJob struct {
	repoID string
	done   chan struct{}
}

// sweepStuckJobs cancels every stalled run it finds. Recovery (waiting
// for the run to exit, then failing and optionally re-queueing) happens
// off the sweep goroutine so one slow teardown can't delay detection of
// the next stalled repository.
func (m *RepositoryManager) sweepStuckJobs(ctx context.Context) {
	m.mu.Lock()
	var stuck []stuckJob
	now := time.Now()
	for repoID, entry := range m.entries {
		entry.mu.Lock()
		if entry.indexing && !entry.lastProgress.IsZero() && now.Sub(entry.lastProgress) > m.cfg.StuckThreshold {
			if entry.cancel != nil {
				close(entry.cancel)
				entry.cancel = nil
			}
			stuck = append(stuck, stuckJob{repoID: repoID, done: entry.done})
		}
		entry.mu.Unlock()
	}
	m.mu.Unlock()

	for _, s := range stuck {
		logx.Warnf("manager: repository %s stuck indexing, cancelling the run", s.repoID)
		go m.recoverStuckJob(ctx, s)
	}
}

// recoverStuckJob waits for the cancelled run to actually exit (so the
// re-queued run never races it for the same vector collection), records
// the failure, and re-queues when auto-recovery is enabled.
func (m *RepositoryManager) recoverStuckJob(ctx context.Context, s stuckJob) {
	if s.done != nil {
		select {
		case <-s.done:
		case <-time.After(m.cfg.RemoveCancelWait):
		case <-ctx.Done():
			return
		}
	}

	_ = m.deps.Store.UpdateLastError(ctx, s.repoID, "StuckIndexing")
	if err := m.deps.Store.UpdateStatus(ctx, s.repoID, store.StatusFailed); err != nil {
		logx.Warnf("manager: failed to mark stuck repository %s failed: %v", s.repoID, err)
		return
	}
	m.deps.Bus.Publish(progress.IndexingUpdate{
		RepoID: s.repoID, Kind: progress.KindError,
		Message: "indexing stalled", Err: "StuckIndexing",
	})

	if !m.cfg.AutoRecoverStuck {
		return
	}
	if err := m.deps.Store.UpdateStatus(ctx, s.repoID, store.StatusPending); err != nil {
		logx.Warnf("manager: failed to reset stuck repository %s: %v", s.repoID, err)
		return
	}
	if err := m.enqueueIndexJob(ctx, s.repoID); err != nil {
		logx.Warnf("manager: failed to re-queue stuck repository %s: %v", s.repoID, err)
	}
}
