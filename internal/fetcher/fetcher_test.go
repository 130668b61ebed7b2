// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package fetcher

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/northbound/wikify/internal/wikierr"
)

func TestLocalFetcher_ExistingDir(t *testing.T) {
	dir := t.TempDir()
	f := &LocalFetcher{}

	got, err := f.Fetch(context.Background(), dir)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != dir {
		t.Errorf("expected %q, got %q", dir, got)
	}
}

func TestLocalFetcher_FileScheme(t *testing.T) {
	dir := t.TempDir()
	f := &LocalFetcher{}

	got, err := f.Fetch(context.Background(), "file://"+dir)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != dir {
		t.Errorf("expected %q, got %q", dir, got)
	}
}

func TestLocalFetcher_Missing(t *testing.T) {
	f := &LocalFetcher{}
	_, err := f.Fetch(context.Background(), filepath.Join(os.TempDir(), "does-not-exist-wikify"))
	if !wikierr.Of(err, wikierr.KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
}

func TestGitFetcher_AuthenticatedURL(t *testing.T) {
	cases := []struct {
		name     string
		host     string
		kind     HostKind
		wantUser string
	}{
		{"github", "github.com", HostGitHub, "token123"},
		{"gitlab", "gitlab.com", HostGitLab, "oauth2"},
		{"bitbucket", "bitbucket.org", HostBitbucket, "x-token-auth"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewGitFetcher(t.TempDir(), map[string]Credentials{
				tc.host: {Host: tc.kind, Token: "token123"},
			})
			u, _ := url.Parse("https://" + tc.host + "/owner/repo.git")
			got := f.authenticatedURL(u)
			if u2, err := url.Parse(got); err != nil || u2.User.Username() != tc.wantUser {
				t.Errorf("expected user %q in %q", tc.wantUser, got)
			}
		})
	}
}

func TestRedact_StripsToken(t *testing.T) {
	creds := map[string]Credentials{"github.com": {Token: "supersecret"}}
	msg := "fatal: authentication failed for https://supersecret@github.com/owner/repo.git"
	got := redact(msg, creds)
	if strings.Contains(got, "supersecret") {
		t.Errorf("expected token to be redacted, got %q", got)
	}
}
