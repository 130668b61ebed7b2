// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// chunkNamespace roots the deterministic chunk/document id derivation so
// ids are stable across re-indexing the same repository content.
var chunkNamespace = uuid.MustParse("6f6e8f2e-6e61-4f7b-9b21-2a1e9c6b7a01")

func baseName(relPath string) string {
	return filepath.Base(relPath)
}

func extName(relPath string) string {
	return filepath.Ext(relPath)
}

func documentID(repoID, relPath string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(repoID+"\x00"+relPath)).String()
}

func chunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"\x00"+strconv.Itoa(index))).String()
}

// mimetypeOf is a coarse extension-to-mimetype map covering the filter
// policy's allow-listed formats.
func mimetypeOf(relPath string) string {
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".md", ".rst":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx", ".xls":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/x-source"
	}
}
