// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/chunker"
	"github.com/northbound/wikify/internal/fetcher"
	"github.com/northbound/wikify/internal/logx"
	"github.com/northbound/wikify/internal/metrics"
	"github.com/northbound/wikify/internal/permission"
	"github.com/northbound/wikify/internal/progress"
	"github.com/northbound/wikify/internal/queue"
	"github.com/northbound/wikify/internal/ragpipeline"
	"github.com/northbound/wikify/internal/research"
	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/store"
	"github.com/northbound/wikify/internal/vectorstore"
	"github.com/northbound/wikify/internal/wikierr"
	"github.com/northbound/wikify/internal/worker"
)

// VectorStoreFactory opens (or creates) the vector collection for repoID.
// Swapping this for a Qdrant-backed factory is how a deployment upgrades
// from the default JSON store to an indexed one without touching
// RepositoryManager.
type VectorStoreFactory func(repoID string) (vectorstore.VectorStore, error)

// Deps wires RepositoryManager to its collaborators. All fields are
// required unless noted.
type Deps struct {
	Store        *store.Store
	Bus          *progress.Bus
	Perm         *permission.Evaluator
	Metrics      *metrics.Registry
	Fetcher      fetcher.Fetcher
	Chunker      *chunker.Chunker
	Embedder     capability.Embedder
	ChatModel    capability.ChatModel
	VectorStores VectorStoreFactory
	Queue        queue.Queue // optional: defaults to an in-process MemoryQueue

	// VectorStoreDelete physically removes repoID's vector collection
	// from disk (or its remote equivalent). Optional: if nil, Remove
	// leaves the collection behind for the deployment's own retention
	// policy to reclaim.
	VectorStoreDelete func(repoID string) error

	// WorkspaceRoot is the directory GitFetcher clones into (the same
	// value passed to fetcher.New). Optional: if empty, Remove does not
	// attempt to delete a repository's fetched workspace.
	WorkspaceRoot string
}

// indexJobPayload is the JSON body of an "index" queue.Job.
type indexJobPayload struct {
	RepoID string `json:"repo_id"`
}

// repoEntry is a RepositoryManager's in-memory handle on one registered
// repository: its cached record plus the per-repo pipeline stack built
// lazily once the repository has something indexed to search over.
type repoEntry struct {
	mu sync.Mutex

	record store.Repository

	vs        vectorstore.VectorStore
	retriever *retriever.Retriever
	pipeline  *ragpipeline.Pipeline
	research  *research.Manager

	indexing     bool
	lastProgress time.Time

	// cancel is closed by Remove to interrupt an in-flight indexing run;
	// done is closed by that run when it actually exits, so Remove can
	// wait (briefly) for it to stop touching the vector store before
	// deleting the collection out from under it. Both are nil when no
	// run is in flight.
	cancel chan struct{}
	done   chan struct{}
}

// RepositoryManager implements the repository lifecycle: register feeds
// the indexing queue, a bounded pool of dispatchers drains it, and
// query/reindex/remove/subscribe operate on whatever has been indexed so
// far. Every public method evaluates the caller's PermissionContext
// before doing anything else.
type RepositoryManager struct {
	cfg  Config
	deps Deps

	indexSem *semaphore.Weighted
	querySem *semaphore.Weighted

	queryCache *store.QueryCache[ragpipeline.Response]

	mu      sync.Mutex
	entries map[string]*repoEntry

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New builds a RepositoryManager. Call Start to begin draining the
// indexing queue and running the stuck-job watcher.
func New(cfg Config, deps Deps) (*RepositoryManager, error) {
	if deps.Queue == nil {
		deps.Queue = queue.NewMemoryQueue(256)
	}
	cache, err := store.NewQueryCache[ragpipeline.Response](cfg.QueryCacheSize, cfg.QueryCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("build query cache: %w", err)
	}
	return &RepositoryManager{
		cfg:        cfg,
		deps:       deps,
		indexSem:   semaphore.NewWeighted(int64(cfg.MaxConcurrentIndexing)),
		querySem:   semaphore.NewWeighted(int64(cfg.MaxConcurrentQueries)),
		queryCache: cache,
		entries:    make(map[string]*repoEntry),
		stop:       make(chan struct{}),
	}, nil
}

// Start launches the indexing dispatchers and the stuck-job watcher. It
// returns immediately; call Stop (or cancel ctx) to shut down.
func (m *RepositoryManager) Start(ctx context.Context) error {
	dispatchCtx, cancel := context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-m.stop
		cancel()
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := worker.StartWorkers(dispatchCtx, m.deps.Queue, m.handleIndexJob, m.cfg.DispatchWorkers); err != nil {
			logx.Warnf("manager: indexing dispatcher exited: %v", err)
		}
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watchStuckJobs(dispatchCtx)
	}()

	return nil
}

// Stop signals every background goroutine to exit and waits for them.
func (m *RepositoryManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// Register enqueues a repository for indexing. Calling Register twice
// with the same (caller identity, normalized ref) is idempotent: the
// second call returns the same repoId without re-indexing unless the
// repository previously failed, in which case it's retried.
func (m *RepositoryManager) Register(ctx context.Context, pctx permission.Context, ref string, visibility store.Visibility) (string, error) {
	if err := m.authorize(pctx, permission.PermissionManageRepository, permission.ResourceRegistersPerHour); err != nil {
		return "", err
	}

	owner := pctx.Identity
	normalized := normalizeRef(ref)

	existing, ok, err := m.deps.Store.FindByOwnerAndPath(ctx, owner, normalized)
	if err != nil {
		return "", fmt.Errorf("lookup existing repository: %w", err)
	}
	if ok {
		if existing.Status == store.StatusFailed {
			if err := m.deps.Store.UpdateStatus(ctx, existing.ID, store.StatusPending); err != nil {
				return "", err
			}
			if err := m.enqueueIndexJob(ctx, existing.ID); err != nil {
				return "", err
			}
		}
		return existing.ID, nil
	}

	id := mintRepoID(owner, normalized)
	record := store.Repository{
		ID:         id,
		Name:       deriveRepoName(normalized),
		RepoPath:   normalized,
		RepoType:   deriveRepoType(normalized),
		Status:     store.StatusPending,
		Visibility: visibility,
		Owner:      owner,
		CreatedAt:  time.Now(),
	}
	if err := m.deps.Store.Create(ctx, record); err != nil {
		return "", fmt.Errorf("create repository record: %w", err)
	}

	if err := m.enqueueIndexJob(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func (m *RepositoryManager) enqueueIndexJob(ctx context.Context, repoID string) error {
	payload, err := json.Marshal(indexJobPayload{RepoID: repoID})
	if err != nil {
		return fmt.Errorf("marshal index job: %w", err)
	}
	return m.deps.Queue.Enqueue(ctx, queue.Job{Type: "index", Payload: payload, CreatedAt: time.Now()})
}

// Info returns a repository's current record. Visibility is not enforced
// here; callers that list across tenants filter with List.
func (m *RepositoryManager) Info(ctx context.Context, pctx permission.Context, repoID string) (store.Repository, error) {
	if err := m.authorize(pctx, permission.PermissionQuery, permission.ResourceQueriesPerHour); err != nil {
		return store.Repository{}, err
	}
	return m.deps.Store.Get(ctx, repoID)
}

// List returns every repository visible to pctx: the caller's own
// repositories plus anything public. Internal and private repositories
// owned by someone else are excluded, except in local mode, where every
// repository is returned.
func (m *RepositoryManager) List(ctx context.Context, pctx permission.Context) ([]store.Repository, error) {
	if err := m.authorize(pctx, permission.PermissionQuery, permission.ResourceQueriesPerHour); err != nil {
		return nil, err
	}
	all, err := m.deps.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Repository, 0, len(all))
	for _, r := range all {
		if r.Visibility == store.VisibilityPublic || r.Owner == pctx.Identity || pctx.Mode == permission.ModeLocal {
			out = append(out, r)
		}
	}
	return out, nil
}

// Reindex re-queues an existing repository. The repository goes back to
// pending, so queries against it fail with NotReady until the new run
// completes; chunks already in its vector collection are kept and
// overwritten by id. It is legal only from Completed or Failed; a
// repository that is still pending or indexing already has a run coming.
func (m *RepositoryManager) Reindex(ctx context.Context, pctx permission.Context, repoID string) error {
	if err := m.authorize(pctx, permission.PermissionManageRepository, permission.ResourceRegistersPerHour); err != nil {
		return err
	}
	record, err := m.deps.Store.Get(ctx, repoID)
	if err != nil {
		return err
	}
	if record.Status != store.StatusCompleted && record.Status != store.StatusFailed {
		return wikierr.NotReady(repoID, string(record.Status))
	}
	if err := m.deps.Store.UpdateStatus(ctx, repoID, store.StatusPending); err != nil {
		return err
	}
	return m.enqueueIndexJob(ctx, repoID)
}

// Remove cancels any in-flight indexing for repoID, tears down its vector
// collection and fetched workspace on disk, deletes its metadata record,
// and drops its in-memory entry. It is idempotent: removing an id that's
// unknown, or removing it twice, is not an error.
func (m *RepositoryManager) Remove(ctx context.Context, pctx permission.Context, repoID string) error {
	if err := m.authorize(pctx, permission.PermissionManageRepository, permission.ResourceRegistersPerHour); err != nil {
		return err
	}

	record, err := m.deps.Store.Get(ctx, repoID)
	found := err == nil
	if err != nil && !wikierr.Of(err, wikierr.KindNotFound) {
		return err
	}

	m.mu.Lock()
	entry := m.entries[repoID]
	delete(m.entries, repoID)
	m.mu.Unlock()

	if entry != nil {
		entry.mu.Lock()
		cancelCh, doneCh := entry.cancel, entry.done
		entry.mu.Unlock()

		if cancelCh != nil {
			close(cancelCh)
			if doneCh != nil {
				select {
				case <-doneCh:
				case <-time.After(m.cfg.RemoveCancelWait):
				case <-ctx.Done():
				}
			}
			_ = m.deps.Store.UpdateStatus(ctx, repoID, store.StatusCancelled)
		}

		entry.mu.Lock()
		vs := entry.vs
		entry.vs = nil
		entry.mu.Unlock()
		if vs != nil {
			_ = vs.Close()
		}
	}

	if err := m.deps.Store.Delete(ctx, repoID); err != nil {
		return err
	}

	if m.deps.VectorStoreDelete != nil {
		if err := m.deps.VectorStoreDelete(repoID); err != nil {
			logx.Warnf("manager: failed to delete vector collection for %s: %v", repoID, err)
		}
	}
	if found && m.deps.WorkspaceRoot != "" {
		if path, ok := fetcher.WorkspacePath(m.deps.WorkspaceRoot, record.RepoPath); ok {
			if err := os.RemoveAll(path); err != nil {
				logx.Warnf("manager: failed to delete workspace for %s: %v", repoID, err)
			}
		}
	}
	return nil
}

// SubscribeProgress returns a live feed of indexing updates for repoID,
// or for every repository when repoID is empty. Callers must Unsubscribe
// when done.
func (m *RepositoryManager) SubscribeProgress(ctx context.Context, pctx permission.Context, repoID string) (*progress.Subscription, error) {
	if err := m.authorize(pctx, permission.PermissionQuery, permission.ResourceQueriesPerHour); err != nil {
		return nil, err
	}
	return m.deps.Bus.Subscribe(repoID), nil
}

// UnsubscribeProgress releases a subscription obtained from
// SubscribeProgress.
func (m *RepositoryManager) UnsubscribeProgress(sub *progress.Subscription) {
	m.deps.Bus.Unsubscribe(sub)
}

// authorize evaluates pctx against (required, resource) and translates
// the verdict into the public error taxonomy: a missing permission
// surfaces as PermissionDenied, an exceeded sliding-hourly-window quota
// surfaces as RateLimited with a retry hint.
func (m *RepositoryManager) authorize(pctx permission.Context, required permission.Permission, resource permission.ResourceType) error {
	ok, reason, retryAfter := m.deps.Perm.Evaluate(pctx, required, resource)
	if ok {
		return nil
	}
	if reason == permission.ReasonRateLimit {
		if m.deps.Metrics != nil {
			m.deps.Metrics.RateLimitRejections.WithLabelValues(string(pctx.Mode)).Inc()
		}
		return wikierr.RateLimited(retryAfter)
	}
	return wikierr.PermissionDenied(string(required))
}

// entryFor returns (creating if absent) the in-memory entry for repoID.
func (m *RepositoryManager) entryFor(repoID string) *repoEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[repoID]
	if !ok {
		e = &repoEntry{}
		m.entries[repoID] = e
	}
	return e
}
