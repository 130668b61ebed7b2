// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package metrics exposes the Prometheus collectors for the core's
// indexing, query, and cache paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every collector the manager and its subordinate
// packages record against. Construct one with New and pass it down.
type Registry struct {
	IndexingJobsTotal    *prometheus.CounterVec
	IndexingDuration     *prometheus.HistogramVec
	IndexingChunksTotal  *prometheus.CounterVec
	IndexingActiveGauge  prometheus.Gauge

	QueryTotal        *prometheus.CounterVec
	QueryDuration     *prometheus.HistogramVec
	QueryCacheResult  *prometheus.CounterVec
	QueryActiveGauge  prometheus.Gauge

	RetrievalChunksReturned prometheus.Histogram

	ResearchSessionsTotal *prometheus.CounterVec
	ResearchIterations    prometheus.Histogram

	RateLimitRejections *prometheus.CounterVec
	WorkerPanicsTotal   *prometheus.CounterVec
}

// New registers all collectors under the given namespace. Calling New
// more than once with the same namespace on the default registerer will
// panic on duplicate registration, matching promauto's own behavior.
func New(namespace string) *Registry {
	return &Registry{
		IndexingJobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexing",
			Name:      "jobs_total",
			Help:      "Indexing jobs by terminal state.",
		}, []string{"state"}),
		IndexingDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexing",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of an indexing job from fetch to completion.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"state"}),
		IndexingChunksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexing",
			Name:      "chunks_total",
			Help:      "Chunks produced during indexing, by outcome.",
		}, []string{"outcome"}),
		IndexingActiveGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexing",
			Name:      "active_jobs",
			Help:      "Number of indexing jobs currently holding a concurrency slot.",
		}),

		QueryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Queries served, by outcome.",
		}, []string{"outcome"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query duration including retrieval and generation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		QueryCacheResult: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "cache_result_total",
			Help:      "Query cache lookups, by hit/miss.",
		}, []string{"result"}),
		QueryActiveGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "active",
			Help:      "Number of queries currently holding a concurrency slot.",
		}),

		RetrievalChunksReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "chunks_returned",
			Help:      "Chunks returned per retrieval after rerank and context trim.",
			Buckets:   prometheus.LinearBuckets(0, 2, 15),
		}),

		ResearchSessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "sessions_total",
			Help:      "Deep research sessions, by terminal state.",
		}, []string{"state"}),
		ResearchIterations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "iterations",
			Help:      "Iterations run per completed research session.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),

		RateLimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permission",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the sliding-window rate limiter, by identity mode.",
		}, []string{"mode"}),
		WorkerPanicsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "panics_total",
			Help:      "Recovered panics in indexing worker goroutines.",
		}, []string{"job_type"}),
	}
}

// ObserveIndexing records a terminal indexing outcome and its duration.
func (r *Registry) ObserveIndexing(state string, d time.Duration) {
	r.IndexingJobsTotal.WithLabelValues(state).Inc()
	r.IndexingDuration.WithLabelValues(state).Observe(d.Seconds())
}

// ObserveQuery records a terminal query outcome and its duration.
func (r *Registry) ObserveQuery(outcome string, d time.Duration) {
	r.QueryTotal.WithLabelValues(outcome).Inc()
	r.QueryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveCache records a cache hit or miss for a query lookup.
func (r *Registry) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.QueryCacheResult.WithLabelValues(result).Inc()
}
