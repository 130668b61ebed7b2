// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package fetcher

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"

	"github.com/northbound/wikify/internal/wikierr"
)

// githubResolver looks up a GitHub repository's default branch before
// cloning, so a shallow clone targets the right branch instead of
// whatever the remote's HEAD happens to resolve to, and a reference to a
// nonexistent or inaccessible repository fails fast with a typed error
// instead of a git subprocess failure.
type githubResolver struct {
	client *github.Client
}

func newGitHubResolver(token string) *githubResolver {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return &githubResolver{client: github.NewClient(hc)}
}

// defaultBranch returns owner/repo's default branch name.
func (r *githubResolver) defaultBranch(ctx context.Context, owner, repo string) (string, error) {
	meta, resp, err := r.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", notFound(owner + "/" + repo)
		}
		return "", wikierr.Internal("fetcher", "", err)
	}
	return meta.GetDefaultBranch(), nil
}

// ownerRepoFromPath splits a GitHub URL path ("/owner/repo" or
// "/owner/repo.git") into its owner and repo components.
func ownerRepoFromPath(path string) (owner, repo string, ok bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, "/"), ".git")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
