// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns per-file parse results into the symbols and
// confidence-scored references the graph builder consumes.
//
// The extractor adds two reference sources on top of the parser's raw
// candidates: type annotations (walked recursively through generics,
// unions, and forward references) and decorator patterns (matched by the
// data-driven registry). It never resolves names; resolution happens
// once, in the graph builder.
package extract

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

// AnnotationConfidence is assigned to references derived from type
// annotations. Annotations are declared intent, so they score above
// attribute-call heuristics but below direct resolution.
const AnnotationConfidence = 0.9

// Extraction is the per-file output: symbols ready for the graph
// builder (entry-point flags applied) plus all references.
type Extraction struct {
	Symbols    []*ast.Symbol
	References []ast.Reference
}

// Extractor derives references from parse results using a shared
// registry. Safe for concurrent use once constructed.
type Extractor struct {
	registry *Registry
	logger   *slog.Logger
	workers  int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithRegistry replaces the default pattern registry.
func WithRegistry(r *Registry) ExtractorOption {
	return func(e *Extractor) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWorkers bounds the parallelism of ExtractAll.
func WithWorkers(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewExtractor creates an extractor with the default registry.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		registry: DefaultRegistry(),
		logger:   slog.Default(),
		workers:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the extractor's pattern registry.
func (e *Extractor) Registry() *Registry {
	return e.registry
}

// ExtractFile processes one parse result.
//
// Symbols are copied before entry-point flags are applied, so the input
// ParseResult stays unmodified. Entry points come from two sources:
// runtime-invoked names (main, dunder methods, test conventions) and
// matching decorator patterns. References are the parser's candidates
// followed by annotation-derived and decorator-derived references, in
// that order.
func (e *Extractor) ExtractFile(result *ast.ParseResult) Extraction {
	symbols := make([]*ast.Symbol, len(result.Symbols))
	byID := make(map[string]*ast.Symbol, len(result.Symbols))
	for i, sym := range result.Symbols {
		cp := *sym
		symbols[i] = &cp
		byID[cp.ID] = &cp
	}

	for _, sym := range symbols {
		if sym.Kind.IsCallable() && e.registry.IsRuntimeInvoked(result.Language, sym.Name) {
			sym.IsEntryPoint = true
		}
	}

	refs := make([]ast.Reference, 0, len(result.References))
	refs = append(refs, result.References...)

	for _, ann := range result.Annotations {
		e.walkAnnotation(result.Language, ann.OwnerID, ann.Expr, &refs)
	}

	for _, att := range result.Decorators {
		for _, pattern := range e.registry.Match(result.Language, att.Decorator) {
			switch pattern.Kind {
			case PatternEntryPoint:
				if sym, ok := byID[att.OwnerID]; ok {
					sym.IsEntryPoint = true
				}
			case PatternReference:
				e.emitDecoratorRefs(result.Language, att, pattern, &refs)
			}
		}
	}

	if len(result.Errors) > 0 {
		e.logger.Debug("extraction completed with parse errors",
			"file", result.FilePath,
			"error_count", len(result.Errors))
	}

	return Extraction{Symbols: symbols, References: refs}
}

// ExtractAll processes many parse results with bounded parallelism.
// Output order follows input order regardless of completion order.
func (e *Extractor) ExtractAll(ctx context.Context, results []*ast.ParseResult) ([]*ast.Symbol, []ast.Reference, error) {
	extractions := make([]Extraction, len(results))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, result := range results {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			extractions[i] = e.ExtractFile(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var symbols []*ast.Symbol
	var refs []ast.Reference
	for _, ex := range extractions {
		symbols = append(symbols, ex.Symbols...)
		refs = append(refs, ex.References...)
	}
	return symbols, refs, nil
}

// walkAnnotation recursively extracts type names from an annotation
// expression. Builtins and generic containers never produce references;
// their arguments are still walked, so "Dict[str, List[Item]]" yields
// exactly one reference to "Item".
func (e *Extractor) walkAnnotation(language, ownerID string, expr *ast.TypeExpr, out *[]ast.Reference) {
	if expr == nil {
		return
	}
	switch expr.Kind {
	case ast.TypeExprIdent:
		e.emitAnnotationRef(language, ownerID, expr.Name, expr.Line, out)
	case ast.TypeExprForward:
		e.emitAnnotationRef(language, ownerID, expr.Name, expr.Line, out)
	case ast.TypeExprGeneric:
		e.walkAnnotation(language, ownerID, expr.Base, out)
		for _, arg := range expr.Args {
			e.walkAnnotation(language, ownerID, arg, out)
		}
	case ast.TypeExprUnion:
		for _, op := range expr.Operands {
			e.walkAnnotation(language, ownerID, op, out)
		}
	}
}

func (e *Extractor) emitAnnotationRef(language, ownerID, name string, line int, out *[]ast.Reference) {
	if name == "" || e.registry.IsExcluded(language, name) {
		return
	}
	*out = append(*out, ast.Reference{
		FromID:     ownerID,
		TargetName: name,
		Type:       ast.RefTypeAnnotation,
		Confidence: AnnotationConfidence,
		Line:       line,
	})
}

// emitDecoratorRefs turns the named arguments a reference pattern
// selects into DECORATOR references. Argument values resolve like
// annotations: quotes stripped, dotted paths reduced to the final
// component, builtins excluded.
func (e *Extractor) emitDecoratorRefs(language string, att ast.AttachedDecorator, pattern *DecoratorPattern, out *[]ast.Reference) {
	for _, arg := range att.Decorator.Args {
		if arg.Name == "" || !containsName(pattern.ArgNames, arg.Name) {
			continue
		}
		target := decoratorTargetName(arg.Value)
		if target == "" || e.registry.IsExcluded(language, target) {
			continue
		}
		*out = append(*out, ast.Reference{
			FromID:     att.OwnerID,
			TargetName: target,
			Type:       ast.RefDecorator,
			Confidence: pattern.EffectiveConfidence(),
			Line:       att.Decorator.Line,
		})
	}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// decoratorTargetName reduces a decorator argument value to a symbol
// name. Returns "" for values that are not identifier-like (numbers,
// lambdas, comprehensions).
func decoratorTargetName(value string) string {
	v := strings.TrimSpace(value)
	v = strings.Trim(v, `"'`)
	if i := strings.LastIndex(v, "."); i >= 0 {
		v = v[i+1:]
	}
	if v == "" {
		return ""
	}
	for i, r := range v {
		if unicode.IsLetter(r) || r == '_' {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return ""
	}
	return v
}
