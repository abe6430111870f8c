// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

// Token budgeting constants.
const (
	// DefaultTokenBudget is the total context budget when a request
	// does not specify one.
	DefaultTokenBudget = 4000

	// tokensPerChar is the estimation ratio. Roughly 4 characters per
	// token holds for code across the models we target.
	tokensPerChar = 0.25

	// summaryFraction is the share of the budget reserved for the
	// structural summary. The rest goes to source snippets.
	summaryFraction = 0.2
)

// estimateTokens estimates the token cost of a string.
func estimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) * tokensPerChar))
}

// SourceReader supplies source text for snippet assembly. The core
// engine does no file I/O itself; the caller decides where source
// lives (working tree, object store, archive).
type SourceReader interface {
	// ReadRange returns the source lines [startLine, endLine] of a file,
	// 1-indexed inclusive.
	ReadRange(ctx context.Context, filePath string, startLine, endLine int) (string, error)
}

// Snippet is one budgeted piece of assembled context with provenance.
type Snippet struct {
	SymbolID  string  `json:"symbol_id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
	Tokens    int     `json:"tokens"`
}

// ContextResult is the assembled, budget-bounded context.
type ContextResult struct {
	// Summary is the structural overview of the subgraph.
	Summary string `json:"summary"`

	// Snippets are source excerpts in priority order.
	Snippets []Snippet `json:"snippets"`

	// TokensUsed is the estimated total, always <= Budget.
	TokensUsed int `json:"tokens_used"`

	// Budget is the budget the assembly ran with.
	Budget int `json:"budget"`

	// Truncated reports that at least one ranked node was dropped for
	// lack of budget.
	Truncated bool `json:"truncated"`
}

// ContextBuilder assembles token-budgeted context from a ranked
// subgraph. Safe for concurrent use.
type ContextBuilder struct {
	reader SourceReader
	logger *slog.Logger
}

// ContextBuilderOption configures a ContextBuilder.
type ContextBuilderOption func(*ContextBuilder)

// WithSourceReader supplies source text for snippets. Without a reader
// snippets fall back to signature and docstring.
func WithSourceReader(r SourceReader) ContextBuilderOption {
	return func(b *ContextBuilder) { b.reader = r }
}

// WithContextLogger sets the structured logger.
func WithContextLogger(logger *slog.Logger) ContextBuilderOption {
	return func(b *ContextBuilder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewContextBuilder creates a ContextBuilder.
func NewContextBuilder(opts ...ContextBuilderOption) *ContextBuilder {
	b := &ContextBuilder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles context for ranked nodes within a token budget.
//
// A fixed fraction of the budget is reserved for the structural
// summary; source snippets fill the remainder greedily in priority
// order. The estimated total never exceeds the budget. When the budget
// is too small for any snippet the result degrades to a (possibly
// truncated) summary alone.
func (b *ContextBuilder) Build(ctx context.Context, sub *graph.Subgraph, ranked []RankedNode, budget int) (*ContextResult, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBudget, budget)
	}

	summaryBudget := int(float64(budget) * summaryFraction)
	if summaryBudget < 1 {
		summaryBudget = 1
	}
	summary := truncateToTokens(buildSummary(sub), summaryBudget)
	used := estimateTokens(summary)

	result := &ContextResult{
		Summary: summary,
		Budget:  budget,
	}

	for _, rn := range ranked {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sym := rn.Node.Symbol
		text := b.snippetText(ctx, rn)
		tokens := estimateTokens(text)
		if tokens == 0 || used+tokens > budget {
			result.Truncated = true
			continue
		}
		result.Snippets = append(result.Snippets, Snippet{
			SymbolID:  sym.ID,
			Name:      sym.Name,
			Kind:      sym.Kind.String(),
			FilePath:  sym.FilePath,
			StartLine: sym.StartLine,
			EndLine:   sym.EndLine,
			Score:     rn.Score,
			Text:      text,
			Tokens:    tokens,
		})
		used += tokens
	}

	result.TokensUsed = used
	return result, nil
}

// snippetText fetches source for a node, falling back to the symbol's
// signature and docstring when no reader is configured or the read
// fails.
func (b *ContextBuilder) snippetText(ctx context.Context, rn RankedNode) string {
	sym := rn.Node.Symbol
	if b.reader != nil {
		text, err := b.reader.ReadRange(ctx, sym.FilePath, sym.StartLine, sym.EndLine)
		if err == nil && text != "" {
			return text
		}
		if err != nil {
			b.logger.Debug("snippet source read failed, using signature",
				"file", sym.FilePath, "symbol", sym.Name, "error", err)
		}
	}

	var sb strings.Builder
	if sym.Signature != "" {
		sb.WriteString(sym.Signature)
	} else {
		sb.WriteString(sym.Name)
	}
	if sym.DocString != "" {
		sb.WriteString("\n")
		sb.WriteString(sym.DocString)
	}
	return sb.String()
}

// buildSummary renders the subgraph's structure: member symbols with
// their locations and degree, then edge counts by type.
func buildSummary(sub *graph.Subgraph) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Code graph context: %d symbols, %d relationships (%d-hop expansion)\n",
		sub.Size(), len(sub.Edges), sub.Hops)

	for _, id := range sub.NodeIDs {
		sym := sub.Node(id).Symbol
		fmt.Fprintf(&sb, "- %s %s (%s:%d, degree %d)\n",
			sym.Kind, sym.Name, sym.FilePath, sym.StartLine, sub.Degree(id))
	}

	if len(sub.Edges) > 0 {
		counts := make(map[string]int)
		for _, e := range sub.Edges {
			counts[e.Type.String()]++
		}
		sb.WriteString("Relationships:")
		for _, t := range []string{"calls", "instantiates", "inherits", "imports", "type_annotation", "decorator"} {
			if counts[t] > 0 {
				fmt.Fprintf(&sb, " %s=%d", t, counts[t])
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// truncateToTokens trims a string so its estimated cost fits the
// budget, cutting at the last full line when possible.
func truncateToTokens(s string, budget int) string {
	maxChars := int(float64(budget) / tokensPerChar)
	if len(s) <= maxChars {
		return s
	}
	truncated := s[:maxChars]
	if i := strings.LastIndexByte(truncated, '\n'); i > 0 {
		truncated = truncated[:i+1]
	}
	return truncated
}
