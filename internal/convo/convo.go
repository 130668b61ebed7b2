// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package convo holds QueryContext, the bounded conversation memory a
// caller may carry across repeated Query calls against the same
// repository so a follow-up question can refer back to an earlier
// answer. It is optional everywhere it's threaded through: a nil or zero
// QueryContext behaves exactly like no conversation history at all.
package convo

import (
	"time"

	"github.com/northbound/wikify/internal/capability"
)

// Turn is one message in a QueryContext's history.
type Turn struct {
	Role    capability.Role
	Content string
	Ts      time.Time
}

// estimateTokens is a cheap token estimate (chars/4) used only for the
// eviction budget, not for anything billed or reported to a provider.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

// QueryContext is a bounded FIFO of conversation turns, evicted
// oldest-first on either of two independent bounds: a message count and a
// token budget. Both bounds are enforced on every Append, so a QueryContext
// never needs a separate compaction pass before being read.
type QueryContext struct {
	MaxMessages int
	MaxTokens   int

	turns  []Turn
	tokens int
}

// NewQueryContext builds an empty QueryContext bounded by maxMessages
// turns and maxTokens estimated tokens. A non-positive bound disables
// that particular eviction rule.
func NewQueryContext(maxMessages, maxTokens int) *QueryContext {
	return &QueryContext{MaxMessages: maxMessages, MaxTokens: maxTokens}
}

// Append records a turn and evicts from the front until both bounds are
// satisfied again.
func (c *QueryContext) Append(role capability.Role, content string, ts time.Time) {
	c.turns = append(c.turns, Turn{Role: role, Content: content, Ts: ts})
	c.tokens += estimateTokens(content)
	c.evict()
}

func (c *QueryContext) evict() {
	for len(c.turns) > 0 && c.overBudget() {
		c.tokens -= estimateTokens(c.turns[0].Content)
		c.turns = c.turns[1:]
	}
}

func (c *QueryContext) overBudget() bool {
	if c.MaxMessages > 0 && len(c.turns) > c.MaxMessages {
		return true
	}
	if c.MaxTokens > 0 && c.tokens > c.MaxTokens {
		return true
	}
	return false
}

// Turns returns the surviving turns, oldest first.
func (c *QueryContext) Turns() []Turn {
	if c == nil {
		return nil
	}
	return c.turns
}

// Messages converts the surviving turns into capability.Message, the form
// RagPipeline's prompt assembly consumes.
func (c *QueryContext) Messages() []capability.Message {
	if c == nil {
		return nil
	}
	out := make([]capability.Message, len(c.turns))
	for i, t := range c.turns {
		out[i] = capability.Message{Role: t.Role, Content: t.Content}
	}
	return out
}
