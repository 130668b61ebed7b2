// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package fetcher

import (
	"context"
	"os"
	"strings"
)

// LocalFetcher validates a filesystem path and returns it unchanged.
type LocalFetcher struct{}

func (f *LocalFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	path := strings.TrimPrefix(ref, "file://")

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", notFound(ref)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", notFound(ref)
	}
	return path, nil
}
