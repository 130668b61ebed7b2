// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package convo

import (
	"strings"
	"testing"
	"time"

	"github.com/northbound/wikify/internal/capability"
)

func TestQueryContext_EvictsOldestOnMessageCount(t *testing.T) {
	c := NewQueryContext(2, 0)
	now := time.Now()
	c.Append(capability.RoleUser, "first", now)
	c.Append(capability.RoleAssistant, "second", now)
	c.Append(capability.RoleUser, "third", now)

	turns := c.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 surviving turns, got %d", len(turns))
	}
	if turns[0].Content != "second" || turns[1].Content != "third" {
		t.Errorf("expected oldest-first eviction, got %q then %q", turns[0].Content, turns[1].Content)
	}
}

func TestQueryContext_EvictsOldestOnTokenBudget(t *testing.T) {
	c := NewQueryContext(0, 10)
	now := time.Now()
	c.Append(capability.RoleUser, strings.Repeat("a", 32), now) // ~8 tokens
	c.Append(capability.RoleUser, strings.Repeat("b", 32), now) // pushes over 10

	turns := c.Turns()
	if len(turns) != 1 {
		t.Fatalf("expected the first turn to be evicted by the token budget, got %d turns", len(turns))
	}
	if turns[0].Content[0] != 'b' {
		t.Errorf("expected the newest turn to survive, got %q", turns[0].Content)
	}
}

func TestQueryContext_NilIsEmptyHistory(t *testing.T) {
	var c *QueryContext
	if got := c.Turns(); got != nil {
		t.Errorf("expected nil Turns from a nil context, got %v", got)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Errorf("expected no messages from a nil context, got %v", got)
	}
}

func TestQueryContext_MessagesMirrorTurns(t *testing.T) {
	c := NewQueryContext(10, 0)
	now := time.Now()
	c.Append(capability.RoleUser, "question", now)
	c.Append(capability.RoleAssistant, "answer", now)

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != capability.RoleUser || msgs[1].Role != capability.RoleAssistant {
		t.Errorf("expected roles to be preserved in order, got %v", msgs)
	}
}
