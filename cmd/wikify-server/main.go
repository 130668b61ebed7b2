// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// wikify-server is reference wiring: a thin HTTP/WebSocket layer over
// internal/manager.RepositoryManager. Embedding applications are expected
// to drive RepositoryManager directly; this binary shows end to end how
// the pieces come together in a real deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	wikiconfig "github.com/northbound/wikify/internal/config"
	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/chunker"
	"github.com/northbound/wikify/internal/fetcher"
	"github.com/northbound/wikify/internal/logx"
	"github.com/northbound/wikify/internal/manager"
	"github.com/northbound/wikify/internal/metrics"
	"github.com/northbound/wikify/internal/permission"
	"github.com/northbound/wikify/internal/progress"
	"github.com/northbound/wikify/internal/queue"
	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/store"
	"github.com/northbound/wikify/internal/vectorstore"
)

var configPath = flag.String("config", "", "path to config.yaml (defaults to ~/.wikify/config.yaml)")

func main() {
	logFile := "wikify-server.log"
	if _, err := logx.Init(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v, using stdout only\n", err)
	} else {
		logx.Printf("logger initialized, writing to %s", logFile)
	}

	flag.Parse()

	cfg, err := wikiconfig.LoadConfig(*configPath)
	if err != nil {
		logx.Fatalf("load config: %v", err)
	}

	mgr, err := buildManager(cfg)
	if err != nil {
		logx.Fatalf("build manager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := mgr.Start(ctx); err != nil {
		logx.Fatalf("start manager: %v", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: routes(mgr),
	}

	go func() {
		logx.Printf("HTTP server listening on %s", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatalf("HTTP server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer, mgr)
}

func buildManager(cfg *wikiconfig.AppConfig) (*manager.RepositoryManager, error) {
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

	vsFactory, err := vectorStoreFactory(cfg, embedder.Dimension())
	if err != nil {
		return nil, err
	}

	q, err := buildQueue(cfg)
	if err != nil {
		return nil, err
	}

	deps := manager.Deps{
		Store:        st,
		Bus:          progress.New(),
		Perm:         permission.NewEvaluator(),
		Metrics:      metrics.New("wikify"),
		Fetcher:      fetcher.New(cfg.Fetcher.WorkspaceRoot, nil),
		Chunker:      chunker.New(chunker.DefaultConfig()),
		Embedder:     embedder,
		ChatModel:    chatModel,
		VectorStores: vsFactory,
		Queue:        q,
		VectorStoreDelete: func(repoID string) error {
			return os.RemoveAll(filepath.Join(cfg.Store.VectorRoot, repoID))
		},
		WorkspaceRoot: cfg.Fetcher.WorkspaceRoot,
	}

	return manager.New(manager.FromAppConfig(cfg.Manager), deps)
}

func vectorStoreFactory(cfg *wikiconfig.AppConfig, dim int) (manager.VectorStoreFactory, error) {
	switch cfg.Store.VectorBackend {
	case "qdrant":
		conn, err := grpc.NewClient(cfg.Store.QdrantAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial qdrant: %w", err)
		}
		return func(repoID string) (vectorstore.VectorStore, error) {
			return vectorstore.NewQdrantStore(context.Background(), conn, "wikify_"+repoID, dim)
		}, nil
	default:
		return func(repoID string) (vectorstore.VectorStore, error) {
			return vectorstore.Open(filepath.Join(cfg.Store.VectorRoot, repoID), cfg.Embedder.Provider)
		}, nil
	}
}

func buildQueue(cfg *wikiconfig.AppConfig) (queue.Queue, error) {
	if cfg.Queue.Backend != "redis" {
		return queue.NewMemoryQueue(cfg.Queue.Capacity), nil
	}
	client, err := wikiconfig.NewRedisClient(context.Background())
	if err != nil {
		logx.Warnf("redis unavailable (%v), falling back to an in-process queue", err)
		return queue.NewMemoryQueue(cfg.Queue.Capacity), nil
	}
	return queue.NewRedisQueue(client, "wikify:index-jobs")
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func routes(mgr *manager.RepositoryManager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/repositories", func(w http.ResponseWriter, r *http.Request) {
		pctx := pctxFrom(r)
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Ref        string `json:"ref"`
				Visibility string `json:"visibility"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			id, err := mgr.Register(r.Context(), pctx, body.Ref, store.Visibility(body.Visibility))
			writeJSONOrError(w, map[string]string{"repo_id": id}, err)
		case http.MethodGet:
			repos, err := mgr.List(r.Context(), pctx)
			writeJSONOrError(w, repos, err)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/repositories/query", func(w http.ResponseWriter, r *http.Request) {
		pctx := pctxFrom(r)
		var body struct {
			RepoID string `json:"repo_id"`
			Query  string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := mgr.Query(r.Context(), pctx, body.RepoID, body.Query, nil, retriever.DefaultConfig())
		writeJSONOrError(w, resp, err)
	})

	mux.HandleFunc("/repositories/progress", func(w http.ResponseWriter, r *http.Request) {
		pctx := pctxFrom(r)
		repoID := r.URL.Query().Get("repo_id")
		sub, err := mgr.SubscribeProgress(r.Context(), pctx, repoID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		defer mgr.UnsubscribeProgress(sub)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for update := range sub.Updates {
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	})

	return mux
}

// pctxFrom builds a PermissionContext for an inbound request. A request
// without an X-Wikify-Identity header runs in local mode; one with the
// header gets an Open-mode context for that identity with fixed hourly
// query and register limits.
func pctxFrom(r *http.Request) permission.Context {
	identity := r.Header.Get("X-Wikify-Identity")
	if identity == "" {
		return permission.Local()
	}
	return permission.Context{
		Identity: identity,
		Mode:     permission.ModeOpen,
		Limits: map[permission.ResourceType]int{
			permission.ResourceQueriesPerHour:   1000,
			permission.ResourceRegistersPerHour: 50,
		},
	}
}

func writeJSONOrError(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func waitForShutdown(cancelManager context.CancelFunc, httpServer *http.Server, mgr *manager.RepositoryManager) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logx.Printf("shutting down")
	cancelManager()
	mgr.Stop()
	if err := httpServer.Shutdown(ctx); err != nil {
		logx.Errorf("HTTP shutdown error: %v", err)
	}
}
