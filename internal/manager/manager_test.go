// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/chunker"
	"github.com/northbound/wikify/internal/fetcher"
	"github.com/northbound/wikify/internal/metrics"
	"github.com/northbound/wikify/internal/permission"
	"github.com/northbound/wikify/internal/progress"
	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/store"
	"github.com/northbound/wikify/internal/vectorstore"
	"github.com/northbound/wikify/internal/wikierr"
)

func newTestManager(t *testing.T) (*RepositoryManager, context.Context, func()) {
	t.Helper()
	ctx := context.Background()

	repoRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# Example\n\nThis repository demonstrates a small feature.\n"), 0o644); err != nil {
		t.Fatalf("seed fixture repo: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "repos.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	vectorDir := t.TempDir()
	workspaceRoot := t.TempDir()
	deps := Deps{
		Store:    st,
		Bus:      progress.New(),
		Perm:     permission.NewEvaluator(),
		Metrics:  metrics.New("wikify_test_" + t.Name()),
		Fetcher:  fetcher.New(workspaceRoot, nil),
		Chunker:  chunker.New(chunker.DefaultConfig()),
		Embedder: capability.NewMockEmbedder(16),
		ChatModel: capability.NewMockChatModel(),
		VectorStores: func(repoID string) (vectorstore.VectorStore, error) {
			return vectorstore.Open(filepath.Join(vectorDir, repoID), "mock")
		},
		VectorStoreDelete: func(repoID string) error {
			return os.RemoveAll(filepath.Join(vectorDir, repoID))
		},
		WorkspaceRoot: workspaceRoot,
	}

	cfg := DefaultConfig()
	cfg.HealthCheckInterval = 50 * time.Millisecond
	cfg.IndexingQueueTimeout = time.Second
	cfg.QueryTimeout = 2 * time.Second

	mgr, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := mgr.Start(runCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cleanup := func() {
		cancel()
		mgr.Stop()
		st.Close()
	}

	return mgr, ctx, cleanup
}

func waitForStatus(t *testing.T, mgr *RepositoryManager, ctx context.Context, pctx permission.Context, repoID string, want store.Status) store.Repository {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := mgr.Info(ctx, pctx, repoID)
		if err != nil {
			t.Fatalf("Info: %v", err)
		}
		if rec.Status == want {
			return rec
		}
		if rec.Status == store.StatusFailed && want != store.StatusFailed {
			t.Fatalf("repository failed indexing: %+v", rec.Stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("repository never reached status %s", want)
	return store.Repository{}
}

func TestRegister_IndexesAndAnswersQueries(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	repoRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# Widget\n\nThe widget service exposes a health endpoint.\n"), 0o644); err != nil {
		t.Fatalf("seed fixture repo: %v", err)
	}

	pctx := permission.Context{Identity: "alice", Mode: permission.ModeLocal}
	repoID, err := mgr.Register(ctx, pctx, repoRoot, store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	waitForStatus(t, mgr, ctx, pctx, repoID, store.StatusCompleted)

	// MockEmbedder vectors come from a text hash, not meaning, so the query
	// and the chunk are not close; accept every match to exercise citation.
	cfg := retriever.DefaultConfig()
	cfg.SimilarityThreshold = -1
	resp, err := mgr.Query(ctx, pctx, repoID, "what does the widget service expose?", nil, cfg)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Answer == "" {
		t.Fatal("expected a non-empty answer")
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected at least one cited source")
	}
}

func TestRegister_IsIdempotentForSameOwnerAndRef(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	repoRoot := t.TempDir()
	os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# A\n\nSome content about A.\n"), 0o644)

	pctx := permission.Context{Identity: "bob", Mode: permission.ModeLocal}
	first, err := mgr.Register(ctx, pctx, repoRoot, store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second, err := mgr.Register(ctx, pctx, repoRoot, store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if first != second {
		t.Fatalf("expected idempotent register, got %s then %s", first, second)
	}
}

func TestQuery_RejectsWithoutPermission(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	restricted := permission.Context{Identity: "mallory", Mode: permission.ModeRestricted}
	_, err := mgr.Query(ctx, restricted, "nonexistent", "anything", nil, retriever.DefaultConfig())
	if err == nil {
		t.Fatal("expected a permission error")
	}
}

func TestQuery_NotReadyBeforeIndexingCompletes(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	repoRoot := t.TempDir()
	os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# Pending\n\nContent.\n"), 0o644)

	pctx := permission.Context{Identity: "carol", Mode: permission.ModeLocal}
	repoID, err := mgr.Register(ctx, pctx, repoRoot, store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// There is a real (if narrow) race between Register returning and the
	// dispatcher picking the job up; either Pending or Indexing both
	// demonstrate the not-ready behavior this test is after.
	rec, err := mgr.Info(ctx, pctx, repoID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if rec.Status == store.StatusCompleted {
		t.Skip("indexing completed before the not-ready window could be observed")
	}
	if _, err := mgr.Query(ctx, pctx, repoID, "q", nil, retriever.DefaultConfig()); err == nil {
		t.Fatal("expected NotReady before indexing completes")
	}
}

func TestQuery_RateLimitedDistinctFromPermissionDenied(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	repoRoot := t.TempDir()
	os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# Capped\n\nContent.\n"), 0o644)

	owner := permission.Context{
		Identity:    "dave",
		Mode:        permission.ModeRestricted,
		Permissions: map[permission.Permission]bool{permission.PermissionManageRepository: true, permission.PermissionQuery: true},
	}
	repoID, err := mgr.Register(ctx, owner, repoRoot, store.VisibilityPublic)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	waitForStatus(t, mgr, ctx, owner, repoID, store.StatusCompleted)

	capped := permission.Context{
		Identity:    "erin",
		Mode:        permission.ModeRestricted,
		Permissions: map[permission.Permission]bool{permission.PermissionQuery: true},
		Limits:      map[permission.ResourceType]int{permission.ResourceQueriesPerHour: 1},
	}

	if _, err := mgr.Query(ctx, capped, repoID, "first question", nil, retriever.DefaultConfig()); err != nil {
		t.Fatalf("first query under limit: %v", err)
	}
	_, err = mgr.Query(ctx, capped, repoID, "second question", nil, retriever.DefaultConfig())
	if err == nil {
		t.Fatal("expected the second query within the same hour to be rejected")
	}
	if !wikierr.Of(err, wikierr.KindRateLimited) {
		t.Fatalf("expected RateLimited, got %v", err)
	}

	noPerm := permission.Context{Identity: "frank", Mode: permission.ModeRestricted}
	_, err = mgr.Query(ctx, noPerm, repoID, "anything", nil, retriever.DefaultConfig())
	if !wikierr.Of(err, wikierr.KindPermissionDenied) {
		t.Fatalf("expected PermissionDenied for a caller missing the permission, got %v", err)
	}
}

func TestReindex_OnlyLegalFromCompletedOrFailed(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	repoRoot := t.TempDir()
	os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# Reindexable\n\nContent.\n"), 0o644)

	pctx := permission.Context{Identity: "heidi", Mode: permission.ModeLocal}
	repoID, err := mgr.Register(ctx, pctx, repoRoot, store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec, err := mgr.Info(ctx, pctx, repoID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if rec.Status == store.StatusPending || rec.Status == store.StatusIndexing {
		if err := mgr.Reindex(ctx, pctx, repoID); !wikierr.Of(err, wikierr.KindNotReady) {
			t.Fatalf("expected NotReady when reindexing a %s repository, got %v", rec.Status, err)
		}
	}

	waitForStatus(t, mgr, ctx, pctx, repoID, store.StatusCompleted)
	if err := mgr.Reindex(ctx, pctx, repoID); err != nil {
		t.Fatalf("Reindex from Completed: %v", err)
	}
	waitForStatus(t, mgr, ctx, pctx, repoID, store.StatusCompleted)
}

func TestRegister_EmptyRepositoryCompletesAndQueriesFail(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	pctx := permission.Context{Identity: "ivan", Mode: permission.ModeLocal}
	repoID, err := mgr.Register(ctx, pctx, t.TempDir(), store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec := waitForStatus(t, mgr, ctx, pctx, repoID, store.StatusCompleted)
	if rec.Stats.ChunkCount != 0 {
		t.Fatalf("expected chunk_count=0 for an empty repository, got %d", rec.Stats.ChunkCount)
	}

	_, err = mgr.Query(ctx, pctx, repoID, "anything?", nil, retriever.DefaultConfig())
	if !wikierr.Of(err, wikierr.KindQueryFailed) {
		t.Fatalf("expected QueryFailed for a query against an empty index, got %v", err)
	}
}

func TestRemove_IsIdempotentAndClearsTheVectorStore(t *testing.T) {
	mgr, ctx, cleanup := newTestManager(t)
	defer cleanup()

	repoRoot := t.TempDir()
	os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# Removable\n\nContent.\n"), 0o644)

	pctx := permission.Context{Identity: "gail", Mode: permission.ModeLocal}
	repoID, err := mgr.Register(ctx, pctx, repoRoot, store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	waitForStatus(t, mgr, ctx, pctx, repoID, store.StatusCompleted)

	if err := mgr.Remove(ctx, pctx, repoID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := mgr.Remove(ctx, pctx, repoID); err != nil {
		t.Fatalf("second Remove should be a no-op, got: %v", err)
	}

	if _, err := mgr.Info(ctx, pctx, repoID); !wikierr.Of(err, wikierr.KindNotFound) {
		t.Fatalf("expected NotFound after Remove, got %v", err)
	}

	reRegistered, err := mgr.Register(ctx, pctx, repoRoot, store.VisibilityPrivate)
	if err != nil {
		t.Fatalf("re-Register after Remove: %v", err)
	}
	if reRegistered != repoID {
		t.Fatalf("expected deterministic id %s on re-register, got %s", repoID, reRegistered)
	}
	waitForStatus(t, mgr, ctx, pctx, reRegistered, store.StatusCompleted)

	// MockEmbedder vectors come from a text hash, not meaning; accept every
	// match so the check is about the fresh index having sources at all.
	cfg := retriever.DefaultConfig()
	cfg.SimilarityThreshold = -1
	resp, err := mgr.Query(ctx, pctx, reRegistered, "what does this repository contain?", nil, cfg)
	if err != nil {
		t.Fatalf("Query after re-register: %v", err)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected the re-indexed repository to have fresh, non-empty sources")
	}
}
