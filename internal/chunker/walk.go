// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

type walkedFile struct {
	absPath string
	relPath string
	size    int64
}

// walkRepo returns every eligible file under root, ordered by relative
// path, pruning denied directories before descending into them.
func walkRepo(root string, policy FilterPolicy) ([]walkedFile, error) {
	var files []walkedFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && policy.IsDirExcluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // skip files that vanish mid-walk
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		sample, err := readSample(path, 512)
		if err != nil {
			return nil
		}
		if !policy.Accepts(rel, info.Size(), sample) {
			return nil
		}

		files = append(files, walkedFile{absPath: path, relPath: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].relPath < files[j].relPath })
	return files, nil
}

func readSample(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}
