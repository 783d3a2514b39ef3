// Package store provides the SQLite catalog of parsed scene files.
//
// Each watched file has one row holding the summary of its latest parse and
// the diagnostics of that parse. Every parse is also appended to a history
// table.
package store

import (
	"strings"
	"time"

	"rmlines/internal/diag"
	"rmlines/internal/rmfile"
)

// File is the catalog entry of one scene file.
type File struct {
	ID              int64
	Path            string
	ContentHash     [32]byte
	Size            int64
	ParsedAtNs      int64
	BlockCount      int
	UnreadableCount int
	HasText         bool
	ParagraphCount  int
	Text            string
	DiagnosticCount int
}

// ParsedAt returns the time of the latest parse.
func (f *File) ParsedAt() time.Time {
	return time.Unix(0, f.ParsedAtNs)
}

// Diagnostic is a stored parse diagnostic.
type Diagnostic struct {
	FileID     int64
	Ordinal    int
	BlockIndex int
	BlockType  uint8
	Offset     int
	Kind       diag.Kind
	Reason     string
}

// Parse is one entry of a file's parse history.
type Parse struct {
	FileID          int64
	ContentHash     [32]byte
	ParsedAtNs      int64
	BlockCount      int
	UnreadableCount int
	DiagnosticCount int
}

// ParseRecord is the outcome of parsing a file, ready to be recorded.
type ParseRecord struct {
	Path        string
	ContentHash [32]byte
	Size        int64
	ParsedAt    time.Time

	BlockCount      int
	UnreadableCount int
	HasText         bool
	ParagraphCount  int
	Text            string
	Diagnostics     []diag.Diagnostic
}

// NewParseRecord summarizes a parsed document.
func NewParseRecord(path string, hash [32]byte, size int64, doc *rmfile.Document, at time.Time) *ParseRecord {
	rec := &ParseRecord{
		Path:            path,
		ContentHash:     hash,
		Size:            size,
		ParsedAt:        at,
		BlockCount:      len(doc.Blocks),
		UnreadableCount: doc.Unreadable(),
		Diagnostics:     doc.Diagnostics,
	}
	if doc.Text != nil {
		rec.HasText = true
		rec.ParagraphCount = len(doc.Text.Paragraphs)
		rec.Text = strings.TrimSuffix(doc.Text.String(), "\n")
	}
	return rec
}
