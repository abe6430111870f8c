// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

func ident(name string, line int) *ast.TypeExpr {
	return &ast.TypeExpr{Kind: ast.TypeExprIdent, Name: name, Line: line}
}

func annotationTargets(t *testing.T, expr *ast.TypeExpr) []string {
	t.Helper()
	e := NewExtractor()
	result := &ast.ParseResult{
		FilePath: "svc/models.py",
		Language: "python",
		Symbols: []*ast.Symbol{{
			ID:   "svc/models.py:1:handler",
			Name: "handler",
			Kind: ast.SymbolKindFunction,
		}},
		Annotations: []ast.AnnotatedType{{
			OwnerID: "svc/models.py:1:handler",
			Expr:    expr,
		}},
	}
	ex := e.ExtractFile(result)
	var targets []string
	for _, ref := range ex.References {
		targets = append(targets, ref.TargetName)
	}
	sort.Strings(targets)
	return targets
}

func TestAnnotationWalker(t *testing.T) {
	tests := []struct {
		name string
		expr *ast.TypeExpr
		want []string
	}{
		{
			name: "builtin generic with builtin arg yields nothing",
			expr: &ast.TypeExpr{
				Kind: ast.TypeExprGeneric,
				Base: ident("List", 3),
				Args: []*ast.TypeExpr{ident("int", 3)},
			},
			want: nil,
		},
		{
			name: "nested generic yields only the user type",
			expr: &ast.TypeExpr{
				Kind: ast.TypeExprGeneric,
				Base: ident("Dict", 5),
				Args: []*ast.TypeExpr{
					ident("str", 5),
					{
						Kind: ast.TypeExprGeneric,
						Base: ident("List", 5),
						Args: []*ast.TypeExpr{ident("Item", 5)},
					},
				},
			},
			want: []string{"Item"},
		},
		{
			name: "union yields every operand",
			expr: &ast.TypeExpr{
				Kind: ast.TypeExprUnion,
				Operands: []*ast.TypeExpr{
					ident("Order", 8), ident("Invoice", 8), ident("Receipt", 8),
				},
			},
			want: []string{"Invoice", "Order", "Receipt"},
		},
		{
			name: "forward reference yields the literal name",
			expr: &ast.TypeExpr{Kind: ast.TypeExprForward, Name: "Item", Line: 9},
			want: []string{"Item"},
		},
		{
			name: "optional of user type",
			expr: &ast.TypeExpr{
				Kind: ast.TypeExprGeneric,
				Base: ident("Optional", 12),
				Args: []*ast.TypeExpr{ident("Customer", 12)},
			},
			want: []string{"Customer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := annotationTargets(t, tt.expr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnnotationReferenceShape(t *testing.T) {
	e := NewExtractor()
	result := &ast.ParseResult{
		FilePath: "svc/api.py",
		Language: "python",
		Symbols: []*ast.Symbol{{
			ID: "svc/api.py:4:get_item", Name: "get_item", Kind: ast.SymbolKindFunction,
		}},
		Annotations: []ast.AnnotatedType{{
			OwnerID: "svc/api.py:4:get_item",
			Expr:    ident("Item", 4),
		}},
	}

	ex := e.ExtractFile(result)
	require.Len(t, ex.References, 1)
	ref := ex.References[0]
	assert.Equal(t, "svc/api.py:4:get_item", ref.FromID)
	assert.Equal(t, "Item", ref.TargetName)
	assert.Equal(t, ast.RefTypeAnnotation, ref.Type)
	assert.Equal(t, AnnotationConfidence, ref.Confidence)
	assert.Equal(t, 4, ref.Line)
}

func TestDecoratorPatternMatching(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name      string
		dec       ast.Decorator
		wantKinds []PatternKind
	}{
		{
			name:      "qualified route decorator",
			dec:       ast.Decorator{Name: "get", Object: "router"},
			wantKinds: []PatternKind{PatternEntryPoint, PatternReference},
		},
		{
			name:      "bare fixture",
			dec:       ast.Decorator{Name: "fixture"},
			wantKinds: []PatternKind{PatternEntryPoint},
		},
		{
			name:      "qualified fixture",
			dec:       ast.Decorator{Name: "fixture", Object: "pytest"},
			wantKinds: []PatternKind{PatternEntryPoint},
		},
		{
			name:      "unqualified get does not match route patterns",
			dec:       ast.Decorator{Name: "get"},
			wantKinds: nil,
		},
		{
			name:      "unrelated decorator",
			dec:       ast.Decorator{Name: "lru_cache", Object: "functools"},
			wantKinds: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched := r.Match("python", tt.dec)
			var kinds []PatternKind
			for _, p := range matched {
				kinds = append(kinds, p.Kind)
			}
			assert.Equal(t, tt.wantKinds, kinds)
		})
	}
}

func TestBarePatternRejectsQualifiedDecorator(t *testing.T) {
	p := &DecoratorPattern{Name: "fixture", Kind: PatternEntryPoint}
	require.NoError(t, p.compile())

	assert.True(t, p.Matches(ast.Decorator{Name: "fixture"}))
	assert.False(t, p.Matches(ast.Decorator{Name: "fixture", Object: "pytest"}))
}

func TestEntryPointMarkingDoesNotMutateInput(t *testing.T) {
	e := NewExtractor()
	orig := &ast.Symbol{
		ID: "svc/api.py:10:list_items", Name: "list_items",
		Kind: ast.SymbolKindFunction, Language: "python",
	}
	result := &ast.ParseResult{
		FilePath: "svc/api.py",
		Language: "python",
		Symbols:  []*ast.Symbol{orig},
		Decorators: []ast.AttachedDecorator{{
			OwnerID: orig.ID,
			Decorator: ast.Decorator{
				Name: "get", Object: "router", Line: 9,
				Args: []ast.DecoratorArg{
					{Name: "response_model", Value: "ItemList"},
					{Name: "status_code", Value: "200"},
				},
			},
		}},
	}

	ex := e.ExtractFile(result)

	require.Len(t, ex.Symbols, 1)
	assert.True(t, ex.Symbols[0].IsEntryPoint)
	assert.False(t, orig.IsEntryPoint, "input symbol must stay untouched")

	require.Len(t, ex.References, 1)
	ref := ex.References[0]
	assert.Equal(t, ast.RefDecorator, ref.Type)
	assert.Equal(t, "ItemList", ref.TargetName)
	assert.Equal(t, DefaultPatternConfidence, ref.Confidence)
}

func TestRuntimeInvokedNamesBecomeEntryPoints(t *testing.T) {
	e := NewExtractor()
	result := &ast.ParseResult{
		FilePath: "svc/app.py",
		Language: "python",
		Symbols: []*ast.Symbol{
			{ID: "svc/app.py:1:main", Name: "main", Kind: ast.SymbolKindFunction},
			{ID: "svc/app.py:5:__init__", Name: "__init__", Kind: ast.SymbolKindMethod},
			{ID: "svc/app.py:9:test_flow", Name: "test_flow", Kind: ast.SymbolKindFunction},
			{ID: "svc/app.py:14:helper", Name: "helper", Kind: ast.SymbolKindFunction},
			{ID: "svc/app.py:20:main_cfg", Name: "main", Kind: ast.SymbolKindVariable},
		},
	}

	ex := e.ExtractFile(result)
	require.Len(t, ex.Symbols, 5)

	flags := map[string]bool{}
	for _, sym := range ex.Symbols {
		flags[sym.ID] = sym.IsEntryPoint
	}
	assert.True(t, flags["svc/app.py:1:main"])
	assert.True(t, flags["svc/app.py:5:__init__"])
	assert.True(t, flags["svc/app.py:9:test_flow"])
	assert.False(t, flags["svc/app.py:14:helper"])
	assert.False(t, flags["svc/app.py:20:main_cfg"], "only callables qualify")
}

func TestDecoratorTargetName(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{`ItemOut`, "ItemOut"},
		{`"Item"`, "Item"},
		{`'models.Item'`, "Item"},
		{`schemas.OrderOut`, "OrderOut"},
		{`200`, ""},
		{`lambda x: x`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, decoratorTargetName(tt.value), "value %q", tt.value)
	}
}

func TestExtractAllPreservesInputOrder(t *testing.T) {
	e := NewExtractor(WithWorkers(4))

	var results []*ast.ParseResult
	for _, file := range []string{"a.py", "b.py", "c.py", "d.py"} {
		id := ast.GenerateID(file, 1, "f")
		results = append(results, &ast.ParseResult{
			FilePath: file,
			Language: "python",
			Symbols:  []*ast.Symbol{{ID: id, Name: "f", Kind: ast.SymbolKindFunction, FilePath: file}},
		})
	}

	symbols, refs, err := e.ExtractAll(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, symbols, 4)
	assert.Empty(t, refs)
	for i, file := range []string{"a.py", "b.py", "c.py", "d.py"} {
		assert.Equal(t, file, symbols[i].FilePath)
	}
}

func TestRegistryYAMLConfig(t *testing.T) {
	const doc = `
languages:
  python:
    exclude_types: [Decimal, UUID]
    entry_point_names: [handle_event]
    entry_point_prefixes: [it_]
    patterns:
      - name: "task"
        object: "huey"
        kind: entrypoint
        framework: huey
      - name: "inject"
        kind: reference
        args: [dependency]
        confidence: 0.8
`
	cfg, err := ParsePatternConfig([]byte(doc))
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.Apply(cfg))

	assert.True(t, r.IsExcluded("python", "Decimal"))
	assert.True(t, r.IsExcluded("python", "UUID"))
	assert.True(t, r.IsExcluded("python", "str"), "builtin set stays active")

	assert.True(t, r.IsRuntimeInvoked("python", "handle_event"))
	assert.True(t, r.IsRuntimeInvoked("python", "it_creates_orders"))
	assert.True(t, r.IsRuntimeInvoked("python", "main"), "built-in names stay active")
	assert.False(t, r.IsRuntimeInvoked("python", "helper"))

	matched := r.Match("python", ast.Decorator{Name: "task", Object: "huey"})
	require.Len(t, matched, 1)
	assert.Equal(t, PatternEntryPoint, matched[0].Kind)

	matched = r.Match("python", ast.Decorator{Name: "inject"})
	require.Len(t, matched, 1)
	assert.Equal(t, 0.8, matched[0].EffectiveConfidence())
}

func TestRegistryRejectsInvalidRegex(t *testing.T) {
	r := NewRegistry()
	err := r.Register("python", &DecoratorPattern{Name: "(unclosed"})
	assert.Error(t, err)
}

func TestInvalidPatternConfig(t *testing.T) {
	_, err := ParsePatternConfig([]byte(`
languages:
  python:
    patterns:
      - name: "task"
        kind: banana
`))
	assert.Error(t, err)
}
