// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// wikify-cli drives an in-process RepositoryManager from the command
// line: register a repository, wait for it to index, then ask it
// questions. It assembles the same stack wikify-server runs (see
// buildManagerFromConfig) rather than talking to a server over HTTP, so it
// also works offline against a local store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	wikiconfig "github.com/northbound/wikify/internal/config"
	"github.com/northbound/wikify/internal/manager"
	"github.com/northbound/wikify/internal/permission"
	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "wikify-cli",
		Short: "Register and query repository knowledge bases from the command line",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	root.AddCommand(registerCmd(), queryCmd(), listCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func registerCmd() *cobra.Command {
	var visibility string
	cmd := &cobra.Command{
		Use:   "register <ref>",
		Short: "Register a repository and wait for it to finish indexing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, stop, err := startManager()
			if err != nil {
				return err
			}
			defer stop()

			ctx := context.Background()
			pctx := permission.Local()
			repoID, err := mgr.Register(ctx, pctx, args[0], store.Visibility(visibility))
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Printf("registered %s as %s\n", args[0], repoID)

			return waitForIndexing(ctx, mgr, pctx, repoID)
		},
	}
	cmd.Flags().StringVar(&visibility, "visibility", string(store.VisibilityPrivate), "public, internal, or private")
	return cmd
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <repo-id> <question>",
		Short: "Ask a question against an indexed repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, stop, err := startManager()
			if err != nil {
				return err
			}
			defer stop()

			resp, err := mgr.Query(context.Background(), permission.Local(), args[0], args[1], nil, retriever.DefaultConfig())
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			fmt.Println(resp.Answer)
			fmt.Println()
			for _, s := range resp.Sources {
				fmt.Printf("  [%s:%d] score=%.3f\n", s.FilePath, s.ChunkIdx, s.Score)
			}
			return nil
		},
	}
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, stop, err := startManager()
			if err != nil {
				return err
			}
			defer stop()

			repos, err := mgr.List(context.Background(), permission.Local())
			if err != nil {
				return err
			}
			for _, r := range repos {
				fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Status, r.Visibility)
			}
			return nil
		},
	}
}

func startManager() (*manager.RepositoryManager, func(), error) {
	cfg, err := wikiconfig.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	mgr, err := buildManagerFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := mgr.Start(ctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("start manager: %w", err)
	}

	stop := func() {
		cancel()
		mgr.Stop()
	}
	return mgr, stop, nil
}

func waitForIndexing(ctx context.Context, mgr *manager.RepositoryManager, pctx permission.Context, repoID string) error {
	for {
		rec, err := mgr.Info(ctx, pctx, repoID)
		if err != nil {
			return err
		}
		switch rec.Status {
		case store.StatusCompleted:
			fmt.Printf("indexed %d files, %d chunks\n", rec.Stats.FileCount, rec.Stats.ChunkCount)
			return nil
		case store.StatusFailed:
			return fmt.Errorf("indexing failed: %s", rec.Stats.LastError)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
