// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package manager owns the repository lifecycle: register, index, query,
// reindex, remove, and subscribe-to-progress, plus the concurrency
// bounds, retry policy, and health watchdog that keep a multi-repository
// deployment from falling over under load.
package manager

import (
	"time"

	"github.com/northbound/wikify/internal/config"
)

// Config is RepositoryManager's tunable policy. Defaults are chosen to
// keep a single-process deployment responsive under a handful of
// concurrent repositories.
type Config struct {
	MaxConcurrentIndexing int
	MaxConcurrentQueries  int
	IndexingQueueTimeout  time.Duration
	QueryTimeout          time.Duration

	RetryAttempts      int
	RetryBaseDelay     time.Duration
	RetryMultiplier    float64
	RetryMaxDelay      time.Duration

	HealthCheckInterval time.Duration
	StuckThreshold      time.Duration

	// AutoRecoverStuck re-queues a job after the stuck-job watcher has
	// cancelled it and marked the repository Failed. Disabled, the
	// repository stays Failed until an operator calls Reindex.
	AutoRecoverStuck bool

	// RemoveCancelWait bounds how long Remove waits for an in-flight
	// indexing run to observe cancellation and exit before Remove
	// proceeds to delete the vector collection out from under it.
	RemoveCancelWait time.Duration

	QueryCacheSize int
	QueryCacheTTL  time.Duration

	EmbedBatchSize int

	// DispatchWorkers is the number of goroutines draining the indexing
	// queue; real concurrency is bounded separately by the indexing
	// semaphore, so this can exceed MaxConcurrentIndexing without
	// violating it.
	DispatchWorkers int

	Namespace string // metrics namespace
}

// DefaultConfig matches the reference defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentIndexing: 3,
		MaxConcurrentQueries:  10,
		IndexingQueueTimeout:  5 * time.Minute,
		QueryTimeout:          30 * time.Second,

		RetryAttempts:   3,
		RetryBaseDelay:  time.Second,
		RetryMultiplier: 2,
		RetryMaxDelay:   5 * time.Minute,

		HealthCheckInterval: 30 * time.Second,
		StuckThreshold:      10 * time.Minute,
		AutoRecoverStuck:    true,
		RemoveCancelWait:    10 * time.Second,

		QueryCacheSize: 1000,
		QueryCacheTTL:  5 * time.Minute,

		EmbedBatchSize: 64,

		DispatchWorkers: 8,

		Namespace: "wikify",
	}
}

// FromAppConfig translates the deployment's YAML/env-sourced manager
// settings into a Config, filling in any zero-valued field (a duration
// or count the operator left unset) from DefaultConfig.
func FromAppConfig(c config.ManagerConfig) Config {
	cfg := DefaultConfig()
	if c.MaxConcurrentIndexing > 0 {
		cfg.MaxConcurrentIndexing = c.MaxConcurrentIndexing
	}
	if c.MaxConcurrentQueries > 0 {
		cfg.MaxConcurrentQueries = c.MaxConcurrentQueries
	}
	if c.IndexingQueueTimeout > 0 {
		cfg.IndexingQueueTimeout = c.IndexingQueueTimeout
	}
	if c.QueryTimeout > 0 {
		cfg.QueryTimeout = c.QueryTimeout
	}
	if c.RetryAttempts > 0 {
		cfg.RetryAttempts = c.RetryAttempts
	}
	if c.HealthCheckInterval > 0 {
		cfg.HealthCheckInterval = c.HealthCheckInterval
	}
	if c.StuckThreshold > 0 {
		cfg.StuckThreshold = c.StuckThreshold
	}
	cfg.AutoRecoverStuck = c.AutoRecoverStuck
	if c.QueryCacheSize > 0 {
		cfg.QueryCacheSize = c.QueryCacheSize
	}
	if c.QueryCacheTTL > 0 {
		cfg.QueryCacheTTL = c.QueryCacheTTL
	}
	if c.EmbedBatchSize > 0 {
		cfg.EmbedBatchSize = c.EmbedBatchSize
	}
	if c.RemoveCancelWait > 0 {
		cfg.RemoveCancelWait = c.RemoveCancelWait
	}
	return cfg
}
