// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package queue provides the FIFO job queue RepositoryManager feeds
// indexing work through, with an in-memory backend and a Redis-backed
// one for deployments where jobs must survive a restart.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job is one unit of queued work, tagged by type with a JSON payload.
type Job struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Queue is a FIFO job queue.
type Queue interface {
	// Enqueue adds a job to the tail of the queue.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available, then returns it. It
	// returns the context's error if ctx is cancelled first.
	Dequeue(ctx context.Context) (Job, error)
}
