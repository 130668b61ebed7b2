// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manager

import (
	"strings"

	"github.com/google/uuid"
)

// repoNamespace roots the deterministic repository id derivation, so
// registering the same (owner, ref) twice always yields the same id
// without a round trip to the store.
var repoNamespace = uuid.MustParse("2f6b8a3a-9d4e-4e2b-8a1a-6b9c3f8e5d02")

// mintRepoID derives a stable id from the caller's identity and the
// normalized repository reference. Registering twice is then naturally
// idempotent: the second call resolves to the same id before ever
// touching the store's unique index.
func mintRepoID(owner, normalizedRef string) string {
	return uuid.NewSHA1(repoNamespace, []byte(owner+"\x00"+normalizedRef)).String()
}

// normalizeRef canonicalizes a repository reference for the idempotence
// key: trims whitespace, a trailing "/", and a trailing ".git" so
// "https://github.com/a/b.git", "https://github.com/a/b/", and
// "https://github.com/a/b" all register as the same repository.
func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, "/")
	ref = strings.TrimSuffix(ref, ".git")
	return ref
}

// deriveRepoType guesses the repo_type column from a reference. Best
// effort: used for display and filtering only, never for dispatch (the
// fetcher does its own host detection).
func deriveRepoType(ref string) string {
	switch {
	case strings.Contains(ref, "github.com"):
		return "github"
	case strings.Contains(ref, "gitlab.com"):
		return "gitlab"
	case strings.Contains(ref, "bitbucket.org"):
		return "bitbucket"
	case strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, ".") || strings.HasPrefix(ref, "file://"):
		return "local"
	default:
		return "git"
	}
}

// deriveRepoName guesses a display name from a reference's final path
// segment.
func deriveRepoName(ref string) string {
	ref = normalizeRef(ref)
	if idx := strings.LastIndexByte(ref, '/'); idx >= 0 && idx+1 < len(ref) {
		return ref[idx+1:]
	}
	return ref
}
