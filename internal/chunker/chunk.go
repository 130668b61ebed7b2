// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package chunker walks a repository working copy and splits its files
// into retrieval-sized Chunks, using a format-aware splitting strategy per
// file type.
package chunker

// FileType buckets a chunk's source file for retrieval faceting.
type FileType string

const (
	FileTypeCode          FileType = "code"
	FileTypeHeader        FileType = "header"
	FileTypeDocumentation FileType = "documentation"
	FileTypeConfiguration FileType = "configuration"
	FileTypeOther         FileType = "other"
)

// Chunk is one retrieval unit with the metadata needed to cite and filter
// on its source.
type Chunk struct {
	ID             string // stable, deterministic: uuid5(repoID, filePath, index)
	DocumentID     string // stable per source file: uuid5(repoID, filePath)
	RepoID         string
	Index          int // ordinal within the file, for (file_path, chunk_index) ordering
	Content        string
	StartChar      int // byte offset of Content's start within the source file
	EndChar        int // byte offset of Content's end within the source file; EndChar > StartChar
	FilePath       string // repo-relative
	FileName       string
	FileExtension  string
	Language       string
	Mimetype       string
	FileType       FileType
	FileSizeBytes  int64
	HeadingPath    []string // populated by the markdown splitter, empty otherwise
}
