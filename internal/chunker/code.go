// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"go/parser"
	"go/token"
	"strings"
)

// codeChunk is one split result plus the byte span it was sliced from, so
// every emitted chunk is a verbatim substring of the source file.
type codeChunk struct {
	content    string
	start, end int
}

// codeSplitter respects function/type/block boundaries where a parser is
// available, and falls back to a token-count window otherwise. No
// multi-language AST library is available, so only Go source gets true
// AST-aware splitting; every other language uses the token-count
// fallback, which the policy explicitly allows. Both paths slice the
// original source rather than rebuilding text, so chunk content and byte
// span stay in lockstep.
type codeSplitter struct {
	maxTokensPerChunk int
	charOverlap       int
}

func newCodeSplitter(maxTokens, overlap int) codeSplitter {
	return codeSplitter{maxTokensPerChunk: maxTokens, charOverlap: overlap}
}

func (c codeSplitter) split(language, source string) []codeChunk {
	if language == "go" {
		if blocks, ok := splitGoAST(source); ok {
			return c.packBlocks(source, blocks)
		}
	}
	return c.splitByTokenCount(source, 0)
}

// lineRange is a half-open range of line indices within a source file.
type lineRange struct {
	start, end int
}

// splitGoAST splits Go source at top-level declaration boundaries
// (functions, types, vars, consts), returning line ranges so the caller
// can slice the original source verbatim. ok is false if the file fails
// to parse so the caller can fall back.
func splitGoAST(source string) ([]lineRange, bool) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", source, parser.ParseComments)
	if err != nil {
		return nil, false
	}

	lineCount := strings.Count(source, "\n") + 1
	var blocks []lineRange
	prevEnd := 0

	for _, decl := range file.Decls {
		startLine := fset.Position(decl.Pos()).Line - 1
		endLine := fset.Position(decl.End()).Line

		if startLine > prevEnd {
			// Leading material (imports, package clause, blank lines)
			// attaches to the next declaration rather than forming its
			// own near-empty block.
			startLine = prevEnd
		}
		if startLine < 0 {
			startLine = 0
		}
		if endLine > lineCount {
			endLine = lineCount
		}
		if endLine <= startLine {
			continue
		}
		blocks = append(blocks, lineRange{start: startLine, end: endLine})
		prevEnd = endLine
	}

	if prevEnd < lineCount {
		blocks = append(blocks, lineRange{start: prevEnd, end: lineCount})
	}

	if len(blocks) == 0 {
		return nil, false
	}
	return blocks, true
}

// packBlocks merges small adjacent blocks up to the token budget and
// splits any block that alone exceeds it. Merged blocks are contiguous
// line ranges, so each packed chunk is a direct slice of source.
func (c codeSplitter) packBlocks(source string, blocks []lineRange) []codeChunk {
	lineStart := lineOffsets(source)

	byteSpan := func(r lineRange) (int, int) {
		start := lineStart[r.start]
		end := len(source)
		if r.end < len(lineStart) {
			end = lineStart[r.end] - 1 // exclude the trailing newline
		}
		return start, end
	}

	var out []codeChunk
	current := lineRange{start: -1}
	currentTokens := 0

	flush := func() {
		if current.start < 0 {
			return
		}
		start, end := byteSpan(current)
		if text := source[start:end]; strings.TrimSpace(text) != "" {
			out = append(out, codeChunk{content: text, start: start, end: end})
		}
		current = lineRange{start: -1}
		currentTokens = 0
	}

	for _, block := range blocks {
		start, end := byteSpan(block)
		tokens := countTokens(source[start:end])
		if tokens > c.maxTokensPerChunk {
			flush()
			out = append(out, c.splitByTokenCount(source[start:end], start)...)
			continue
		}
		if currentTokens+tokens > c.maxTokensPerChunk {
			flush()
		}
		if current.start < 0 {
			current.start = block.start
		}
		current.end = block.end
		currentTokens += tokens
	}
	flush()
	return out
}

// lineOffsets returns the byte offset of each line's first character.
func lineOffsets(source string) []int {
	offsets := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// splitByTokenCount slices source into windows of at most
// maxTokensPerChunk whitespace-separated words, keeping the original text
// (indentation and newlines included) between the first and last word of
// each window. offset shifts the reported spans when source is itself a
// slice of a larger file.
func (c codeSplitter) splitByTokenCount(source string, offset int) []codeChunk {
	words := wordSpans(source)
	if len(words) == 0 {
		return nil
	}

	var out []codeChunk
	start := 0
	for start < len(words) {
		end := start + c.maxTokensPerChunk
		if end > len(words) {
			end = len(words)
		}
		from, to := words[start].start, words[end-1].end
		out = append(out, codeChunk{content: source[from:to], start: offset + from, end: offset + to})
		if end >= len(words) {
			break
		}
		step := c.maxTokensPerChunk - c.charOverlap/6 // approximate chars/token
		if step < 1 {
			step = c.maxTokensPerChunk
		}
		start += step
	}
	return out
}

// wordSpan is the byte range of one whitespace-separated word.
type wordSpan struct {
	start, end int
}

func wordSpans(s string) []wordSpan {
	var spans []wordSpan
	inWord := false
	wordStart := 0
	for i := 0; i < len(s); i++ {
		space := s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r'
		if !space && !inWord {
			inWord = true
			wordStart = i
		}
		if space && inWord {
			inWord = false
			spans = append(spans, wordSpan{start: wordStart, end: i})
		}
	}
	if inWord {
		spans = append(spans, wordSpan{start: wordStart, end: len(s)})
	}
	return spans
}

func countTokens(s string) int {
	return len(strings.Fields(s))
}
