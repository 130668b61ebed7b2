// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package fetcher resolves a repository reference (a remote URL, a host
// API reference, or a local filesystem path) into a local working copy.
package fetcher

import (
	"context"
	"net/url"
	"path/filepath"

	"github.com/northbound/wikify/internal/wikierr"
)

// Fetcher materializes a repository reference on local disk.
type Fetcher interface {
	// Fetch resolves ref to a local path. For URLs this clones (or reuses
	// an existing non-empty workspace); for local paths it validates
	// existence and returns the path unchanged.
	Fetch(ctx context.Context, ref string) (string, error)
}

// HostKind identifies the remote git host for credential injection.
type HostKind string

const (
	HostGitHub    HostKind = "github"
	HostGitLab    HostKind = "gitlab"
	HostBitbucket HostKind = "bitbucket"
	HostGeneric   HostKind = "generic"
)

// Credentials carries the token used to authenticate a clone, plus the
// host kind that determines how it's embedded in the URL.
type Credentials struct {
	Host  HostKind
	Token string
}

// New builds the default Fetcher: local paths are handled directly, every
// other ref goes through a shallow git clone.
func New(workspaceRoot string, creds map[string]Credentials) Fetcher {
	return &dispatchFetcher{
		local: &LocalFetcher{},
		git:   NewGitFetcher(workspaceRoot, creds),
	}
}

type dispatchFetcher struct {
	local *LocalFetcher
	git   *GitFetcher
}

func (d *dispatchFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	if isLocalPath(ref) {
		return d.local.Fetch(ctx, ref)
	}
	return d.git.Fetch(ctx, ref)
}

func isLocalPath(ref string) bool {
	return len(ref) > 0 && (ref[0] == '/' || ref[0] == '.') || hasScheme(ref, "file://")
}

func hasScheme(ref, scheme string) bool {
	return len(ref) >= len(scheme) && ref[:len(scheme)] == scheme
}

// notFound is a small helper so callers get a typed error instead of a
// bare os error when a ref simply doesn't exist.
func notFound(ref string) error {
	return wikierr.NotFound("repository reference not found: %s", ref)
}

// WorkspacePath reports the on-disk directory GitFetcher would clone ref
// into under workspaceRoot, without touching disk. ok is false for a local
// ref, which has no owned workspace to clean up: the caller's filesystem
// path is not ours to delete.
func WorkspacePath(workspaceRoot, ref string) (string, bool) {
	if workspaceRoot == "" || isLocalPath(ref) {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return filepath.Join(workspaceRoot, workspaceDirName(u)), true
}
