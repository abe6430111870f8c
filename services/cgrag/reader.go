// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cgrag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSourceReader serves snippet source from a directory tree. Symbol
// file paths are relative to the configured root, matching how builds
// record them.
type FileSourceReader struct {
	root string
}

// NewFileSourceReader creates a reader rooted at a directory.
func NewFileSourceReader(root string) *FileSourceReader {
	return &FileSourceReader{root: root}
}

// ReadRange returns lines [startLine, endLine] of a file, 1-indexed
// inclusive. Paths escaping the root are rejected.
func (r *FileSourceReader) ReadRange(ctx context.Context, filePath string, startLine, endLine int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if startLine < 1 || endLine < startLine {
		return "", fmt.Errorf("invalid line range %d-%d", startLine, endLine)
	}

	full := filepath.Join(r.root, filepath.FromSlash(filePath))
	rel, err := filepath.Rel(r.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s escapes source root", filePath)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filePath, err)
	}

	lines := strings.Split(string(content), "\n")
	if startLine > len(lines) {
		return "", fmt.Errorf("start line %d beyond end of %s", startLine, filePath)
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	return strings.Join(lines[startLine-1:endLine], "\n"), nil
}
