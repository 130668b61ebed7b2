// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package research

import "testing"

func TestSelectStrategy(t *testing.T) {
	cases := []struct {
		query string
		want  Strategy
	}{
		{"Redis vs Memcached for session storage", StrategyComparative},
		{"compare gRPC and REST", StrategyComparative},
		{"explain the system architecture", StrategyArchitectural},
		{"what is fixture-repo-small", StrategyQuickScan},
		{"short", StrategyQuickScan},
		{"How does the background worker pool drain indexing jobs across retries and failures", StrategyDeepDive},
	}
	for _, c := range cases {
		got := selectStrategy(c.query)
		if got != c.want {
			t.Errorf("selectStrategy(%q) = %s, want %s", c.query, got, c.want)
		}
	}
}

func TestComparativeSubjects(t *testing.T) {
	subs := comparativeSubjects("Redis vs Memcached")
	if len(subs) != 2 || subs[0] != "Redis" || subs[1] != "Memcached" {
		t.Errorf("unexpected subjects: %v", subs)
	}
}

func TestMaxIterationsFor_QuickScanCapped(t *testing.T) {
	if got := maxIterationsFor(StrategyQuickScan, 5); got != 2 {
		t.Errorf("expected QuickScan to cap at 2, got %d", got)
	}
	if got := maxIterationsFor(StrategyDeepDive, 5); got != 5 {
		t.Errorf("expected DeepDive to pass through configured max, got %d", got)
	}
}
