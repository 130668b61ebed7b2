// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gen2brain/go-fitz"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// extractText routes a file to the format-specific reader that can turn it
// into plain text for splitting. Unsupported extensions fall back to
// reading the file as-is, since the filter policy already excludes
// anything not on the allow-list.
func extractText(absPath string) (string, error) {
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".pdf":
		return extractPDF(absPath)
	case ".docx":
		return extractDOCX(absPath)
	case ".xlsx", ".xls":
		return extractExcel(absPath)
	case ".html", ".htm":
		return extractHTML(absPath)
	default:
		return extractPlain(absPath)
	}
}

func extractPlain(absPath string) (string, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", absPath, err)
	}
	return string(content), nil
}

func extractHTML(absPath string) (string, error) {
	file, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("open html %s: %w", absPath, err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return "", fmt.Errorf("parse html %s: %w", absPath, err)
	}
	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return "", fmt.Errorf("no text extracted from html: %s", absPath)
	}
	return text, nil
}

func extractPDF(absPath string) (string, error) {
	doc, err := fitz.New(absPath)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", absPath, err)
	}
	defer doc.Close()

	var b strings.Builder
	pages := doc.NumPage()
	for i := 0; i < pages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		if i < pages-1 {
			b.WriteString("\n\n")
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from pdf: %s", absPath)
	}
	return text, nil
}

func extractDOCX(absPath string) (string, error) {
	doc, err := docx.ReadDocxFile(absPath)
	if err != nil {
		return "", fmt.Errorf("open docx %s: %w", absPath, err)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())
	if text == "" {
		return "", fmt.Errorf("no text extracted from docx: %s", absPath)
	}
	return text, nil
}

func extractExcel(absPath string) (string, error) {
	f, err := excelize.OpenFile(absPath)
	if err != nil {
		return "", fmt.Errorf("open excel %s: %w", absPath, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("no sheets in excel file: %s", absPath)
	}

	var b strings.Builder
	for sheetIdx, sheetName := range sheets {
		if sheetIdx > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			continue
		}
		headers := rows[0]
		for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
			row := rows[rowIdx]
			var parts []string
			for colIdx, header := range headers {
				if colIdx >= len(row) || row[colIdx] == "" {
					continue
				}
				value := strings.TrimSpace(row[colIdx])
				if value == "" {
					continue
				}
				name := strings.TrimSpace(header)
				if name == "" {
					name = fmt.Sprintf("Column %d", colIdx+1)
				}
				parts = append(parts, fmt.Sprintf("%s: %s", name, value))
			}
			if len(parts) > 0 {
				b.WriteString(fmt.Sprintf("Row %d: %s\n", rowIdx+1, strings.Join(parts, ", ")))
			}
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no content extracted from excel: %s", absPath)
	}
	return text, nil
}
