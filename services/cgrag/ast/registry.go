// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
)

// Parser produces a ParseResult from one source file.
//
// Implementations must be safe for concurrent use; the service parses
// many files in parallel against one parser instance.
type Parser interface {
	// Language returns the language this parser handles.
	Language() string

	// Extensions returns the file extensions (with dot) this parser
	// claims.
	Extensions() []string

	// Parse parses file content. Syntax errors are tolerated and
	// reported in ParseResult.Errors; a non-nil error means the file
	// could not be processed at all.
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)
}

// ParserRegistry routes files to parsers by extension.
type ParserRegistry struct {
	byExtension map[string]Parser
}

// NewParserRegistry creates a registry with the built-in parsers.
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{byExtension: make(map[string]Parser)}
	r.Register(NewPythonParser())
	return r
}

// Register claims a parser's extensions. A later registration for the
// same extension wins.
func (r *ParserRegistry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.byExtension[strings.ToLower(ext)] = p
	}
}

// ParserFor returns the parser claiming a file path's extension.
func (r *ParserRegistry) ParserFor(filePath string) (Parser, bool) {
	p, ok := r.byExtension[strings.ToLower(filepath.Ext(filePath))]
	return p, ok
}

// Extensions returns all claimed extensions, sorted.
func (r *ParserRegistry) Extensions() []string {
	exts := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
