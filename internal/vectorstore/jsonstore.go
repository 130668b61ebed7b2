// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/northbound/wikify/internal/wikierr"
)

// manifest records the collection-level facts that apply to every chunk
// in vectors.json.
type manifest struct {
	Dimension  int       `json:"dimension"`
	EmbedderID string    `json:"embedder_id"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// JSONStore is the default VectorStore backend: one directory per repo
// holding vectors.json and manifest.json, written atomically (temp file,
// fsync, rename). A dirty flag keeps Close from rewriting a collection
// that hasn't changed since the last save.
type JSONStore struct {
	dir        string
	embedderID string

	mu      sync.RWMutex
	chunks  map[string]EmbeddedChunk
	order   []string // insertion order, for stable iteration
	dim     int
	dirty   bool
}

// Open loads (or initializes) the collection rooted at dir.
func Open(dir, embedderID string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &JSONStore{dir: dir, embedderID: embedderID, chunks: make(map[string]EmbeddedChunk)}

	vectorsPath := filepath.Join(dir, "vectors.json")
	data, err := os.ReadFile(vectorsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	var stored []EmbeddedChunk
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	for _, c := range stored {
		s.chunks[c.ID] = c
		s.order = append(s.order, c.ID)
		if len(c.Vector) > 0 {
			s.dim = len(c.Vector)
		}
	}
	return s, nil
}

func (s *JSONStore) Add(ctx context.Context, chunks []EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 && len(chunks) > 0 {
		dim = len(chunks[0].Vector)
	}
	for _, c := range chunks {
		if len(c.Vector) != dim {
			return wikierr.Validation("vector_dimension", len(c.Vector), "dimension to match collection")
		}
	}

	for _, c := range chunks {
		if _, exists := s.chunks[c.ID]; !exists {
			s.order = append(s.order, c.ID)
		}
		s.chunks[c.ID] = c
	}
	s.dim = dim
	s.dirty = true

	return s.saveLocked()
}

func (s *JSONStore) Search(ctx context.Context, queryVec []float32, topK int, threshold float32) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) > 0 && len(queryVec) != s.dim {
		return nil, wikierr.Validation("query_vector_dimension", len(queryVec), "dimension to match collection")
	}

	matches := make([]Match, 0, len(s.chunks))
	for id, c := range s.chunks {
		score := cosineSimilarity(queryVec, c.Vector)
		if score < threshold {
			continue
		}
		matches = append(matches, Match{ChunkID: id, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *JSONStore) Get(ctx context.Context, id string) (EmbeddedChunk, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	return c, ok, nil
}

func (s *JSONStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *JSONStore) Dimension(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim, nil
}

func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

// saveLocked writes vectors.json and manifest.json atomically. Caller
// must hold s.mu.
func (s *JSONStore) saveLocked() error {
	ordered := make([]EmbeddedChunk, 0, len(s.order))
	for _, id := range s.order {
		ordered = append(ordered, s.chunks[id])
	}

	if err := atomicWriteJSON(filepath.Join(s.dir, "vectors.json"), ordered); err != nil {
		return err
	}

	m := manifest{Dimension: s.dim, EmbedderID: s.embedderID, ChunkCount: len(ordered), CreatedAt: time.Now()}
	if err := atomicWriteJSON(filepath.Join(s.dir, "manifest.json"), m); err != nil {
		return err
	}

	s.dirty = false
	return nil
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
