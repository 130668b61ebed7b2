// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"bytes"
	"path/filepath"
	"strings"
)

// FilterPolicy decides which files are eligible for chunking.
type FilterPolicy struct {
	// ExtensionAllowList is lower-cased extensions, e.g. ".go", ".md".
	// Empty means "use DefaultFilterPolicy's list".
	ExtensionAllowList map[string]bool
	DirDenyList        map[string]bool
	GlobDenyList       []string
}

// DefaultFilterPolicy covers common source, docs, and config formats, and
// excludes build output / vendor / VCS directories.
func DefaultFilterPolicy() FilterPolicy {
	return FilterPolicy{
		ExtensionAllowList: boolSet(
			".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".c", ".h", ".cpp", ".hpp",
			".rs", ".rb", ".php", ".cs", ".swift", ".kt", ".scala",
			".md", ".rst", ".txt",
			".yaml", ".yml", ".json", ".toml", ".ini", ".env.example",
			".html", ".htm", ".xlsx", ".xls", ".docx", ".pdf",
		),
		DirDenyList: boolSet(
			".git", "node_modules", "target", "dist", "build", ".venv", "venv",
			"__pycache__", ".idea", ".vscode", "vendor", ".next", "coverage",
		),
		GlobDenyList: []string{"*.lock", "*.log", "*.pyc", "*.min.js", "*.map", "*.sum"},
	}
}

func boolSet(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// IsDirExcluded reports whether a directory name should be pruned from the
// walk entirely.
func (p FilterPolicy) IsDirExcluded(name string) bool {
	return p.DirDenyList[name]
}

// Accepts reports whether a file at relPath should be chunked.
func (p FilterPolicy) Accepts(relPath string, size int64, sample []byte) bool {
	base := filepath.Base(relPath)
	if isTemporaryFile(base) {
		return false
	}
	if size == 0 {
		return false
	}

	for _, g := range p.GlobDenyList {
		if ok, _ := filepath.Match(g, base); ok {
			return false
		}
	}

	allow := p.ExtensionAllowList
	if len(allow) == 0 {
		allow = DefaultFilterPolicy().ExtensionAllowList
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	if !allow[ext] && !allow[multiDotSuffix(base)] {
		return false
	}

	if isBinaryDocumentFormat(ext) {
		return true
	}
	return !looksBinary(sample)
}

// multiDotSuffix returns everything from a base name's first dot, so
// multi-part extensions like ".env.example" can be allow-listed.
func multiDotSuffix(base string) string {
	i := strings.IndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i:])
}

// isBinaryDocumentFormat reports whether ext is a document format that is
// legitimately binary on disk but has a dedicated text extractor (see
// extract.go), so the NUL-byte heuristic in looksBinary would otherwise
// wrongly reject it.
func isBinaryDocumentFormat(ext string) bool {
	switch ext {
	case ".pdf", ".docx", ".xlsx", ".xls":
		return true
	default:
		return false
	}
}

// isTemporaryFile detects editor/OS lock and swap files.
func isTemporaryFile(base string) bool {
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") || strings.HasPrefix(base, ".#") {
		return true
	}
	return strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".swp")
}

// looksBinary applies the common heuristic: a NUL byte anywhere in the
// first chunk of the file means it isn't text.
func looksBinary(sample []byte) bool {
	return bytes.IndexByte(sample, 0) != -1
}

// FileTypeOf classifies a file by extension for retrieval faceting.
func FileTypeOf(relPath string) FileType {
	if multiDotSuffix(filepath.Base(relPath)) == ".env.example" {
		return FileTypeConfiguration
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	switch ext {
	case ".md", ".rst", ".txt":
		return FileTypeDocumentation
	case ".yaml", ".yml", ".json", ".toml", ".ini":
		return FileTypeConfiguration
	case ".h", ".hpp":
		return FileTypeHeader
	case ".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".c", ".cpp",
		".rs", ".rb", ".php", ".cs", ".swift", ".kt", ".scala":
		return FileTypeCode
	default:
		return FileTypeOther
	}
}

// LanguageOf returns a human-readable language name by extension, empty
// for non-code files.
func LanguageOf(relPath string) string {
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".hpp":
		return "cpp"
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".cs":
		return "csharp"
	case ".swift":
		return "swift"
	case ".kt":
		return "kotlin"
	case ".scala":
		return "scala"
	default:
		return ""
	}
}
