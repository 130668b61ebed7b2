// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package research

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy shapes how a session decomposes its original query into
// per-iteration sub-queries.
type Strategy string

const (
	StrategyComparative   Strategy = "comparative"
	StrategyArchitectural Strategy = "architectural"
	StrategyQuickScan     Strategy = "quick_scan"
	StrategyDeepDive      Strategy = "deep_dive"
)

var compareWords = regexp.MustCompile(`(?i)\bvs\.?\b|\bcompare\b|\bversus\b`)
var architectureWords = regexp.MustCompile(`(?i)\barchitecture\b|\bdesign\b|\bsystem\b`)
var whatIsWords = regexp.MustCompile(`(?i)^\s*what\s+is\b`)

var deepDiveFocusAreas = []string{"implementation", "usage", "best_practices"}

// selectStrategy picks a decomposition strategy from trigger words in the
// query, falling back on query length and shape.
func selectStrategy(query string) Strategy {
	switch {
	case compareWords.MatchString(query):
		return StrategyComparative
	case architectureWords.MatchString(query):
		return StrategyArchitectural
	case len(query) < 30 || whatIsWords.MatchString(query):
		return StrategyQuickScan
	default:
		return StrategyDeepDive
	}
}

// comparativeSubjects splits a comparison query into the subjects being
// compared, e.g. "Redis vs Memcached" -> ["Redis", "Memcached"].
func comparativeSubjects(query string) []string {
	parts := compareWords.Split(query, -1)
	subjects := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			subjects = append(subjects, p)
		}
	}
	if len(subjects) < 2 {
		return []string{query}
	}
	return subjects
}

// architecturalComponents are the fixed decomposition angles an
// Architectural session cycles through. Component names in the query
// itself are not extracted.
var architecturalComponents = []string{
	"overall structure and module boundaries",
	"data flow between components",
	"key design decisions and trade-offs",
}

// formulateSubQuery builds the next focused sub-query from strategy state.
// iteration is 0-based.
func formulateSubQuery(strategy Strategy, originalQuery string, iteration int, priorFindings []string) string {
	switch strategy {
	case StrategyComparative:
		subjects := comparativeSubjects(originalQuery)
		if iteration < len(subjects) {
			return fmt.Sprintf("Describe %s in the context of: %s", subjects[iteration], originalQuery)
		}
		return fmt.Sprintf("Reconcile the findings on %s into a single comparison", strings.Join(subjects, " vs "))
	case StrategyArchitectural:
		idx := iteration % len(architecturalComponents)
		return fmt.Sprintf("%s, focused on: %s", originalQuery, architecturalComponents[idx])
	case StrategyQuickScan:
		if iteration == 0 {
			return originalQuery
		}
		return fmt.Sprintf("%s (confirm and add any missing detail)", originalQuery)
	default: // DeepDive
		focus := deepDiveFocusAreas[iteration%len(deepDiveFocusAreas)]
		prefix := fmt.Sprintf("%s, with a focus on %s", originalQuery, focus)
		if len(priorFindings) == 0 {
			return prefix
		}
		return prefix + fmt.Sprintf(" (building on %d prior finding(s))", len(priorFindings))
	}
}

// maxIterationsFor caps QuickScan at 2 regardless of configured max.
func maxIterationsFor(strategy Strategy, configured int) int {
	if strategy == StrategyQuickScan && configured > 2 {
		return 2
	}
	return configured
}
