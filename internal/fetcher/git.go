// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/northbound/wikify/internal/logx"
	"github.com/northbound/wikify/internal/wikierr"
)

// GitFetcher performs a shallow, single-branch clone of a remote
// repository into a deterministic per-repo workspace directory, reusing an
// existing non-empty directory rather than re-cloning.
type GitFetcher struct {
	workspaceRoot string
	creds         map[string]Credentials // keyed by host, e.g. "github.com"
	github        *githubResolver
}

// NewGitFetcher builds a GitFetcher rooted at workspaceRoot. creds maps a
// bare hostname ("github.com") to the credentials used for that host.
func NewGitFetcher(workspaceRoot string, creds map[string]Credentials) *GitFetcher {
	return &GitFetcher{
		workspaceRoot: workspaceRoot,
		creds:         creds,
		github:        newGitHubResolver(creds["github.com"].Token),
	}
}

func (f *GitFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", wikierr.Validation("ref", ref, "a valid repository URL")
	}

	dest := filepath.Join(f.workspaceRoot, workspaceDirName(u))
	if entries, err := os.ReadDir(dest); err == nil && len(entries) > 0 {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create workspace directory: %w", err)
	}

	branch, err := f.resolveBranch(ctx, u)
	if err != nil {
		return "", err
	}
	cloneURL := f.authenticatedURL(u)

	args := []string{"clone", "--depth", "1", "--single-branch"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, cloneURL, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", wikierr.Internal("fetcher", "", fmt.Errorf("git clone failed: %s", redact(stderr.String(), f.creds)))
	}
	return dest, nil
}

// resolveBranch looks up u's default branch through the GitHub API before
// cloning. It returns "" (clone whatever HEAD resolves to) for any
// non-GitHub host or when the lookup itself fails, since a fetch should
// degrade to git's own default rather than fail on metadata trouble. The
// one exception is a repository the API reports as not found: that
// NotFound error is returned so the fetch fails before git runs.
func (f *GitFetcher) resolveBranch(ctx context.Context, u *url.URL) (string, error) {
	if hostKindFor(u.Hostname()) != HostGitHub {
		return "", nil
	}
	owner, repo, ok := ownerRepoFromPath(u.Path)
	if !ok {
		return "", nil
	}
	branch, err := f.github.defaultBranch(ctx, owner, repo)
	if err != nil {
		if wikierr.Of(err, wikierr.KindNotFound) {
			return "", err
		}
		logx.Warnf("fetcher: could not resolve default branch for %s/%s, using remote HEAD: %v", owner, repo, err)
		return "", nil
	}
	return branch, nil
}

// authenticatedURL injects host-appropriate credentials into the clone URL.
// GitHub embeds the token as a basic-auth username; GitLab uses the
// "oauth2" convention; Bitbucket uses "x-token-auth".
func (f *GitFetcher) authenticatedURL(u *url.URL) string {
	creds, ok := f.creds[u.Hostname()]
	if !ok || creds.Token == "" {
		return u.String()
	}

	clone := *u
	switch hostKindFor(u.Hostname()) {
	case HostGitHub:
		clone.User = url.UserPassword(creds.Token, "x-oauth-basic")
	case HostGitLab:
		clone.User = url.UserPassword("oauth2", creds.Token)
	case HostBitbucket:
		clone.User = url.UserPassword("x-token-auth", creds.Token)
	default:
		clone.User = url.UserPassword(creds.Token, "")
	}
	return clone.String()
}

func hostKindFor(host string) HostKind {
	switch {
	case strings.Contains(host, "github"):
		return HostGitHub
	case strings.Contains(host, "gitlab"):
		return HostGitLab
	case strings.Contains(host, "bitbucket"):
		return HostBitbucket
	default:
		return HostGeneric
	}
}

func workspaceDirName(u *url.URL) string {
	name := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), ".git")
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		name = u.Hostname()
	}
	return name
}

// redact strips every known token out of a message before it reaches a log
// line or error string.
func redact(msg string, creds map[string]Credentials) string {
	out := msg
	for _, c := range creds {
		if c.Token == "" {
			continue
		}
		out = strings.ReplaceAll(out, c.Token, "***")
	}
	return out
}
