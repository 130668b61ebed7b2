// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/chunker"
	wikiconfig "github.com/northbound/wikify/internal/config"
	"github.com/northbound/wikify/internal/fetcher"
	"github.com/northbound/wikify/internal/manager"
	"github.com/northbound/wikify/internal/metrics"
	"github.com/northbound/wikify/internal/permission"
	"github.com/northbound/wikify/internal/progress"
	"github.com/northbound/wikify/internal/queue"
	"github.com/northbound/wikify/internal/store"
	"github.com/northbound/wikify/internal/vectorstore"
)

// buildManagerFromConfig assembles the same in-process stack wikify-server
// runs, minus the HTTP layer. The CLI always uses the in-memory queue; a
// one-shot command has no restart to survive.
func buildManagerFromConfig(cfg *wikiconfig.AppConfig) (*manager.RepositoryManager, error) {
	if err := os.MkdirAll(cfg.Fetcher.WorkspaceRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if err := os.MkdirAll(cfg.Store.VectorRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create vector root: %w", err)
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open repository store: %w", err)
	}

	embedder, err := capability.NewEmbedder(context.Background(), cfg.Embedder.Provider, cfg.Embedder.Options)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	chatModel, err := capability.NewChatModel(context.Background(), cfg.ChatModel.Provider, cfg.ChatModel.Options)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	var vsFactory manager.VectorStoreFactory
	switch cfg.Store.VectorBackend {
	case "qdrant":
		conn, err := grpc.NewClient(cfg.Store.QdrantAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial qdrant: %w", err)
		}
		dim := embedder.Dimension()
		vsFactory = func(repoID string) (vectorstore.VectorStore, error) {
			return vectorstore.NewQdrantStore(context.Background(), conn, "wikify_"+repoID, dim)
		}
	default:
		vsFactory = func(repoID string) (vectorstore.VectorStore, error) {
			return vectorstore.Open(filepath.Join(cfg.Store.VectorRoot, repoID), cfg.Embedder.Provider)
		}
	}

	deps := manager.Deps{
		Store:        st,
		Bus:          progress.New(),
		Perm:         permission.NewEvaluator(),
		Metrics:      metrics.New("wikify_cli"),
		Fetcher:      fetcher.New(cfg.Fetcher.WorkspaceRoot, nil),
		Chunker:      chunker.New(chunker.DefaultConfig()),
		Embedder:     embedder,
		ChatModel:    chatModel,
		VectorStores: vsFactory,
		Queue:        queue.NewMemoryQueue(cfg.Queue.Capacity),
		VectorStoreDelete: func(repoID string) error {
			return os.RemoveAll(filepath.Join(cfg.Store.VectorRoot, repoID))
		},
		WorkspaceRoot: cfg.Fetcher.WorkspaceRoot,
	}

	return manager.New(manager.FromAppConfig(cfg.Manager), deps)
}
