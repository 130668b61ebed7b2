// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"fmt"
	"strings"

	"github.com/northbound/wikify/internal/logx"
	"github.com/northbound/wikify/internal/wikierr"
)

// Config holds the chunker's tunable parameters. Defaults target roughly
// 350-token windows with 100-token overlap.
type Config struct {
	ChunkSizeChars    int
	ChunkOverlapChars int
	MaxTokensPerChunk int
	BatchSize         int // files processed per batch, default 50
	// MinSuccessRate is the minimum fraction of files that must chunk
	// successfully for the job to proceed; below it the job fails with
	// the first non-skippable error encountered.
	MinSuccessRate float64
	Policy         FilterPolicy
}

// DefaultConfig returns the chunker's default tuning.
func DefaultConfig() Config {
	return Config{
		ChunkSizeChars:    1400,
		ChunkOverlapChars: 400,
		MaxTokensPerChunk: 350,
		BatchSize:         50,
		MinSuccessRate:    0.95,
		Policy:            DefaultFilterPolicy(),
	}
}

type chunkPiece struct {
	content     string
	start, end  int // byte span in the source text, valid when hasSpan
	hasSpan     bool
	headingPath []string
}

// Chunker walks a repository root and emits Chunks in (file_path,
// chunk_index) order, never breaking a sentence or fenced code block when
// the unit already fits the configured window.
type Chunker struct {
	cfg       Config
	sentence  sentenceSplitter
	markdown  markdownSplitter
	code      codeSplitter
}

// New builds a Chunker from cfg.
func New(cfg Config) *Chunker {
	return &Chunker{
		cfg:      cfg,
		sentence: newSentenceSplitter(cfg.ChunkSizeChars, cfg.ChunkOverlapChars),
		markdown: newMarkdownSplitter(cfg.ChunkSizeChars, cfg.ChunkOverlapChars),
		code:     newCodeSplitter(cfg.MaxTokensPerChunk, cfg.ChunkOverlapChars),
	}
}

// ChunkRepo walks repoRoot and returns every chunk across every eligible
// file, visiting files in batches of BatchSize; every chunk is collected
// into the single returned slice. Per-file errors are logged and skipped as the walk
// proceeds; only once every file has been attempted is the overall
// success rate checked against MinSuccessRate. Below that bar the whole
// operation fails with the first non-skippable error encountered, not
// whichever error happened to be seen last.
func (c *Chunker) ChunkRepo(repoID, repoRoot string) ([]Chunk, error) {
	files, err := walkRepo(repoRoot, c.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	minRate := c.cfg.MinSuccessRate
	if minRate <= 0 {
		minRate = 0.95
	}

	var chunks []Chunk
	errCount := 0
	var firstErr error

	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}

		for _, f := range files[start:end] {
			fileChunks, err := c.chunkFile(repoID, f)
			if err != nil {
				errCount++
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", f.relPath, err)
				}
				logx.Warnf("chunker: skipping %s: %v", f.relPath, err)
				continue
			}
			chunks = append(chunks, fileChunks...)
		}
	}

	if len(files) > 0 {
		successRate := float64(len(files)-errCount) / float64(len(files))
		if successRate < minRate {
			return nil, wikierr.IndexingFailed(false, 1, fmt.Errorf(
				"only %.1f%% of %d files chunked successfully (below %.0f%% minimum): %w",
				successRate*100, len(files), minRate*100, firstErr))
		}
	}

	return chunks, nil
}

func (c *Chunker) chunkFile(repoID string, f walkedFile) ([]Chunk, error) {
	text, err := extractText(f.absPath)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	fileType := FileTypeOf(f.relPath)
	language := LanguageOf(f.relPath)

	var pieces []chunkPiece

	switch {
	case fileType == FileTypeDocumentation:
		for _, mc := range c.markdown.split(text) {
			pieces = append(pieces, chunkPiece{content: mc.content, headingPath: mc.headingPath})
		}
	case fileType == FileTypeCode:
		for _, cc := range c.code.split(language, text) {
			pieces = append(pieces, chunkPiece{content: cc.content, start: cc.start, end: cc.end, hasSpan: true})
		}
	default:
		for _, s := range c.sentence.split(text) {
			pieces = append(pieces, chunkPiece{content: s})
		}
	}

	docID := documentID(repoID, f.relPath)
	cursor := 0
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		start, end := p.start, p.end
		if !p.hasSpan {
			start, end = locateSpan(text, p.content, cursor)
		}
		if start+1 > cursor {
			cursor = start + 1
		}
		chunks = append(chunks, Chunk{
			ID:            chunkID(docID, i),
			DocumentID:    docID,
			RepoID:        repoID,
			Index:         i,
			Content:       p.content,
			StartChar:     start,
			EndChar:       end,
			FilePath:      f.relPath,
			FileName:      baseName(f.relPath),
			FileExtension: extName(f.relPath),
			Language:      language,
			Mimetype:      mimetypeOf(f.relPath),
			FileType:      fileType,
			FileSizeBytes: f.size,
			HeadingPath:   p.headingPath,
		})
	}
	return chunks, nil
}

// locateSpan finds content's byte span within text. It searches forward
// from cursor, which the caller keeps one byte past the previous chunk's
// start (not its end), so chunks that legitimately overlap
// their predecessor (the sentence/markdown splitters' overlap window)
// still resolve to their real, forward-progressing position rather than
// re-matching an earlier occurrence of identical text. If content can't be
// found (should not happen barring a splitter bug), the span degrades to
// [cursor, cursor+len(content)) so the invariant end>start still holds.
func locateSpan(text, content string, cursor int) (int, int) {
	searchFrom := cursor
	if searchFrom > len(text) {
		searchFrom = len(text)
	}
	if idx := indexFrom(text, content, searchFrom); idx >= 0 {
		return idx, idx + len(content)
	}
	if idx := indexFrom(text, content, 0); idx >= 0 {
		return idx, idx + len(content)
	}
	end := cursor + len(content)
	if end <= cursor {
		end = cursor + 1
	}
	return cursor, end
}

func indexFrom(text, content string, from int) int {
	if from < 0 {
		from = 0
	}
	if from > len(text) {
		return -1
	}
	i := strings.Index(text[from:], content)
	if i < 0 {
		return -1
	}
	return from + i
}
