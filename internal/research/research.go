// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package research runs multi-iteration deep-research sessions over a
// RagPipeline: formulate a sub-query, retrieve and generate, score
// confidence, adapt the remaining iteration budget, then synthesize.
//
// This deliberately implements the full loop rather than the single
// placeholder iteration the original research engine stubbed out.
package research

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/wikify/internal/ragpipeline"
	"github.com/northbound/wikify/internal/retriever"
	"github.com/northbound/wikify/internal/wikierr"
)

// Status is the lifecycle state of a ResearchSession.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Config controls one research session.
type Config struct {
	MaxIterations          int
	MaxDepth               int
	ConfidenceThreshold    float64
	MaxSourcesPerIteration int
	EnableParallel         bool
}

// DefaultConfig matches the reference defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:          5,
		MaxDepth:               3,
		ConfidenceThreshold:    0.7,
		MaxSourcesPerIteration: 10,
		EnableParallel:         true,
	}
}

// IterationResult records one completed iteration, including the final
// synthesis iteration (Synthesis=true).
type IterationResult struct {
	Iteration  int
	Query      string
	Answer     string
	Sources    []ragpipeline.Source
	Confidence float64
	Synthesis  bool
	At         time.Time
}

// Progress is the snapshot returned by Manager.Progress.
type Progress struct {
	SessionID        string
	Status           Status
	Strategy         Strategy
	IterationsDone   int
	MaxIterations    int
	LatestConfidence float64
	Err              string
}

// Session is one in-flight or completed research run. All mutable state
// is behind mu; fields read outside the lock only after completion are
// read via the accessor methods.
type Session struct {
	ID            string
	RepoID        string
	OriginalQuery string
	Strategy      Strategy

	mu              sync.Mutex
	cfg             Config
	originalMax     int
	status          Status
	iterations      []IterationResult
	lastErr         error
	cancelRequested bool
	done            chan struct{}
}

func (s *Session) snapshotProgress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{
		SessionID:      s.ID,
		Status:         s.status,
		Strategy:       s.Strategy,
		IterationsDone: len(s.iterations),
		MaxIterations:  s.cfg.MaxIterations,
	}
	if n := len(s.iterations); n > 0 {
		p.LatestConfidence = s.iterations[n-1].Confidence
	}
	if s.lastErr != nil {
		p.Err = s.lastErr.Error()
	}
	return p
}

// Iterations returns a copy of the iterations recorded so far.
func (s *Session) Iterations() []IterationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IterationResult, len(s.iterations))
	copy(out, s.iterations)
	return out
}

// Manager owns a set of research sessions over a shared RagPipeline.
type Manager struct {
	pipeline *ragpipeline.Pipeline

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager driving research sessions through pipeline.
func NewManager(pipeline *ragpipeline.Pipeline) *Manager {
	return &Manager{pipeline: pipeline, sessions: make(map[string]*Session)}
}

// Start creates a session and drives it to completion (or cancellation)
// in the background, returning immediately with the session id.
func (m *Manager) Start(repoID, originalQuery string, cfg Config) string {
	id := uuid.NewString()
	strategy := selectStrategy(originalQuery)
	cfg.MaxIterations = maxIterationsFor(strategy, cfg.MaxIterations)
	sess := &Session{
		ID:            id,
		RepoID:        repoID,
		OriginalQuery: originalQuery,
		Strategy:      strategy,
		cfg:           cfg,
		originalMax:   cfg.MaxIterations,
		status:        StatusRunning,
		done:          make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	go m.run(sess)
	return id
}

// Progress returns a point-in-time snapshot of a session.
func (m *Manager) Progress(sessionID string) (Progress, error) {
	sess, err := m.get(sessionID)
	if err != nil {
		return Progress{}, err
	}
	return sess.snapshotProgress(), nil
}

// Stop requests cancellation. The in-flight iteration (if any) is allowed
// to finish; no further iterations are scheduled afterward.
func (m *Manager) Stop(sessionID string) error {
	sess, err := m.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.cancelRequested = true
	sess.mu.Unlock()
	return nil
}

// Iterate runs exactly one more iteration synchronously and returns it.
// Exposed for callers that want to drive a session step by step instead
// of relying on Start's background loop; it shares the session's lock
// discipline so it's safe to call even while the background loop is
// also running (the loop simply finds the session already advanced).
func (m *Manager) Iterate(ctx context.Context, sessionID string) (IterationResult, error) {
	sess, err := m.get(sessionID)
	if err != nil {
		return IterationResult{}, err
	}
	res, _, err := m.step(ctx, sess)
	return res, err
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, wikierr.NotFound("research session %s not found", sessionID)
	}
	return sess, nil
}

func (m *Manager) run(sess *Session) {
	ctx := context.Background()
	defer close(sess.done)

	for {
		sess.mu.Lock()
		cancelled := sess.cancelRequested
		status := sess.status
		sess.mu.Unlock()
		if cancelled {
			sess.mu.Lock()
			sess.status = StatusCancelled
			sess.mu.Unlock()
			return
		}
		if status != StatusRunning {
			return
		}

		_, final, err := m.step(ctx, sess)
		if err != nil {
			sess.mu.Lock()
			sess.status = StatusFailed
			sess.lastErr = err
			sess.mu.Unlock()
			return
		}
		if final {
			sess.mu.Lock()
			sess.status = StatusCompleted
			sess.mu.Unlock()
			return
		}
	}
}

// step runs the next pending iteration (including the synthesis
// iteration if the session is ready for it) and reports whether this was
// the final iteration of the session.
func (m *Manager) step(ctx context.Context, sess *Session) (IterationResult, bool, error) {
	sess.mu.Lock()
	if sess.status != StatusRunning {
		sess.mu.Unlock()
		return IterationResult{}, true, wikierr.Validation("session_status", sess.status, "Running")
	}
	iteration := len(sess.iterations)
	cfg := sess.cfg
	strategy := sess.Strategy
	priorFindings := findingsOf(sess.iterations)
	readyForSynthesis := iteration > 0 && (shouldSynthesize(sess.iterations, cfg.ConfidenceThreshold) || iteration >= cfg.MaxIterations)
	sess.mu.Unlock()

	var (
		result IterationResult
		err    error
	)
	if readyForSynthesis {
		result, err = m.runSynthesis(ctx, sess, iteration)
	} else {
		result, err = m.runIteration(ctx, sess, strategy, iteration, priorFindings)
	}
	if err != nil {
		return IterationResult{}, false, err
	}

	sess.mu.Lock()
	sess.iterations = append(sess.iterations, result)
	adapt(sess, result.Confidence)
	final := result.Synthesis
	sess.mu.Unlock()

	return result, final, nil
}

func (m *Manager) runIteration(ctx context.Context, sess *Session, strategy Strategy, iteration int, priorFindings []string) (IterationResult, error) {
	query := formulateSubQuery(strategy, sess.OriginalQuery, iteration, priorFindings)
	cfg := retriever.DefaultConfig()

	sess.mu.Lock()
	maxSources := sess.cfg.MaxSourcesPerIteration
	sess.mu.Unlock()
	if maxSources > 0 {
		cfg.TopK = maxSources
	}

	resp, err := m.pipeline.Ask(ctx, sess.RepoID, query, nil, cfg)
	if err != nil {
		return IterationResult{}, fmt.Errorf("research iteration %d: %w", iteration, err)
	}

	return IterationResult{
		Iteration:  iteration,
		Query:      query,
		Answer:     resp.Answer,
		Sources:    resp.Sources,
		Confidence: confidenceOf(resp.Sources),
		At:         time.Now(),
	}, nil
}

func (m *Manager) runSynthesis(ctx context.Context, sess *Session, iteration int) (IterationResult, error) {
	sess.mu.Lock()
	priorAnswers := make([]string, len(sess.iterations))
	for i, it := range sess.iterations {
		priorAnswers[i] = it.Answer
	}
	original := sess.OriginalQuery
	sess.mu.Unlock()

	prompt := fmt.Sprintf(
		"Reconcile the following findings into one final answer to: %q\n\n%s",
		original, joinNumbered(priorAnswers),
	)

	resp, err := m.pipeline.Ask(ctx, sess.RepoID, prompt, nil, retriever.DefaultConfig())
	if err != nil {
		return IterationResult{}, fmt.Errorf("research synthesis: %w", err)
	}

	sess.mu.Lock()
	sources := dedupeSources(sess.iterations)
	sess.mu.Unlock()

	return IterationResult{
		Iteration:  iteration,
		Query:      prompt,
		Answer:     resp.Answer,
		Sources:    sources,
		Confidence: confidenceOf(sources),
		Synthesis:  true,
		At:         time.Now(),
	}, nil
}

// adapt extends or shortens the remaining iteration budget based on the
// most recent confidence reading. Low/high
// are judged relative to the configured threshold with a fixed 0.2 band.
func adapt(sess *Session, latestConfidence float64) {
	if latestConfidence < sess.cfg.ConfidenceThreshold-0.2 {
		ceiling := sess.originalMax * 2
		if sess.cfg.MaxIterations < ceiling {
			sess.cfg.MaxIterations++
		}
		return
	}
	if latestConfidence > sess.cfg.ConfidenceThreshold+0.2 {
		if remaining := sess.cfg.MaxIterations - len(sess.iterations); remaining > 1 {
			sess.cfg.MaxIterations--
		}
	}
}

// shouldSynthesize reports whether the mean confidence over the last 3
// iterations (or fewer, if not yet that many) meets the threshold.
func shouldSynthesize(iterations []IterationResult, threshold float64) bool {
	n := len(iterations)
	if n == 0 {
		return false
	}
	window := iterations
	if n > 3 {
		window = iterations[n-3:]
	}
	var sum float64
	for _, it := range window {
		sum += it.Confidence
	}
	return sum/float64(len(window)) >= threshold
}

// confidenceOf is the mean score of the top 3 sources (or fewer).
func confidenceOf(sources []ragpipeline.Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	scores := make([]float64, len(sources))
	for i, s := range sources {
		scores[i] = float64(s.Score)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	n := len(scores)
	if n > 3 {
		n = 3
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += scores[i]
	}
	return sum / float64(n)
}

// dedupeSources unions every iteration's sources, deduplicated by chunk
// id, for the synthesis iteration's citation list.
func dedupeSources(iterations []IterationResult) []ragpipeline.Source {
	seen := make(map[string]bool)
	out := make([]ragpipeline.Source, 0)
	for _, it := range iterations {
		for _, s := range it.Sources {
			if seen[s.ChunkID] {
				continue
			}
			seen[s.ChunkID] = true
			out = append(out, s)
		}
	}
	return out
}

func findingsOf(iterations []IterationResult) []string {
	out := make([]string, len(iterations))
	for i, it := range iterations {
		out[i] = it.Answer
	}
	return out
}

func joinNumbered(answers []string) string {
	out := ""
	for i, a := range answers {
		out += fmt.Sprintf("%d. %s\n", i+1, a)
	}
	return out
}
