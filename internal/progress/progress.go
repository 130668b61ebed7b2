// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package progress broadcasts typed indexing status updates to any number
// of live subscribers, per repository, the same buffered-channel fan-out
// idiom as internal/logx but carrying structured events instead of lines.
package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind distinguishes the three shapes an IndexingUpdate can take.
type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// IndexingUpdate is one event in a repository's indexing lifecycle.
// Fields not relevant to Kind are left zero.
type IndexingUpdate struct {
	RepoID        string
	Kind          Kind
	FilesTotal    int
	FilesDone     int
	ChunksWritten int
	Message       string
	Err           string
	Seq           uint64
	At            time.Time
}

const subscriberBuffer = 100

// subscriber tracks a channel and how many updates it has missed, so a
// slow consumer gets a lag count instead of silently losing events.
type subscriber struct {
	ch      chan IndexingUpdate
	dropped atomic.Uint64
}

// Bus fans out IndexingUpdate events per repoId, preserving per-repo
// ordering: the sequence number on each event is assigned under lock in
// the order Publish was called for that repo.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]bool
	seqByID map[string]uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subs:    make(map[string]map[*subscriber]bool),
		seqByID: make(map[string]uint64),
	}
}

// Subscription is a live feed of updates. The caller must call
// Unsubscribe when done. LagCount reports how many updates were dropped
// for this subscriber due to a full buffer (drop-oldest policy).
type Subscription struct {
	Updates <-chan IndexingUpdate
	sub     *subscriber
	repoID  string
}

// LagCount returns the number of updates dropped for this subscription so
// far because its buffer was full when they were published.
func (s *Subscription) LagCount() uint64 {
	return s.sub.dropped.Load()
}

// Subscribe registers a channel for updates about repoID. An empty
// repoID subscribes to every repository's updates.
func (b *Bus) Subscribe(repoID string) *Subscription {
	sub := &subscriber{ch: make(chan IndexingUpdate, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[repoID] == nil {
		b.subs[repoID] = make(map[*subscriber]bool)
	}
	b.subs[repoID][sub] = true
	b.mu.Unlock()

	return &Subscription{Updates: sub.ch, sub: sub, repoID: repoID}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[s.repoID]; ok {
		if _, present := subs[s.sub]; present {
			delete(subs, s.sub)
			close(s.sub.ch)
		}
		if len(subs) == 0 {
			delete(b.subs, s.repoID)
		}
	}
}

// Publish assigns the next sequence number for repoID and fans the update
// out to every current subscriber of that repo. A full subscriber buffer
// drops the OLDEST queued update (not the new one) so consumers always
// make forward progress and see the freshest state, incrementing that
// subscriber's lag counter.
func (b *Bus) Publish(u IndexingUpdate) {
	b.mu.Lock()
	b.seqByID[u.RepoID]++
	u.Seq = b.seqByID[u.RepoID]
	if u.At.IsZero() {
		u.At = time.Now()
	}
	subs := make([]*subscriber, 0, len(b.subs[u.RepoID])+len(b.subs[""]))
	for s := range b.subs[u.RepoID] {
		subs = append(subs, s)
	}
	for s := range b.subs[""] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		publishOne(s, u)
	}
}

func publishOne(s *subscriber, u IndexingUpdate) {
	select {
	case s.ch <- u:
		return
	default:
	}

	// Buffer full: drop the oldest queued update to make room, then push.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- u:
	default:
	}
}
