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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsePython(t *testing.T, source string) *ParseResult {
	t.Helper()
	result, err := NewPythonParser().Parse(context.Background(), []byte(source), "app.py")
	require.NoError(t, err)
	return result
}

func findSymbol(result *ParseResult, name string) *Symbol {
	for _, s := range result.Symbols {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func refsOfType(result *ParseResult, refType ReferenceType) []Reference {
	var out []Reference
	for _, r := range result.References {
		if r.Type == refType {
			out = append(out, r)
		}
	}
	return out
}

func TestParseSymbols(t *testing.T) {
	result := parsePython(t, `class Store:
    """Keeps items."""

    def add(self, item):
        pass


def load_items():
    """Loads everything."""
    return []
`)

	module := findSymbol(result, "__module__")
	require.NotNil(t, module)
	assert.Equal(t, SymbolKindPackage, module.Kind)

	store := findSymbol(result, "Store")
	require.NotNil(t, store)
	assert.Equal(t, SymbolKindClass, store.Kind)
	assert.Equal(t, 1, store.StartLine)
	assert.Equal(t, "Keeps items.", store.DocString)

	add := findSymbol(result, "add")
	require.NotNil(t, add)
	assert.Equal(t, SymbolKindMethod, add.Kind)
	assert.Equal(t, store.ID, add.Parent)

	load := findSymbol(result, "load_items")
	require.NotNil(t, load)
	assert.Equal(t, SymbolKindFunction, load.Kind)
	assert.Equal(t, "def load_items()", load.Signature)
	assert.Equal(t, "Loads everything.", load.DocString)
	assert.Empty(t, load.Parent)
}

func TestParseCallReferences(t *testing.T) {
	result := parsePython(t, `def handler():
    data = load_items()
    return client.fetch(data)
`)

	handler := findSymbol(result, "handler")
	require.NotNil(t, handler)

	calls := refsOfType(result, RefCalls)
	require.Len(t, calls, 2)

	byTarget := map[string]Reference{}
	for _, r := range calls {
		byTarget[r.TargetName] = r
	}

	direct, ok := byTarget["load_items"]
	require.True(t, ok)
	assert.Equal(t, handler.ID, direct.FromID)
	assert.InDelta(t, 0.8, direct.Confidence, 1e-9)

	attr, ok := byTarget["fetch"]
	require.True(t, ok, "attribute call keeps only the final name")
	assert.InDelta(t, 0.5, attr.Confidence, 1e-9)
}

func TestParseImportsAndInheritance(t *testing.T) {
	result := parsePython(t, `import os.path
from models import Item, Order


class SpecialItem(Item):
    pass
`)

	imports := refsOfType(result, RefImports)
	targets := make([]string, 0, len(imports))
	for _, r := range imports {
		targets = append(targets, r.TargetName)
	}
	assert.Contains(t, targets, "path", "dotted import keeps final component")
	assert.Contains(t, targets, "Item")
	assert.Contains(t, targets, "Order")

	inherits := refsOfType(result, RefInherits)
	require.Len(t, inherits, 1)
	assert.Equal(t, "Item", inherits[0].TargetName)

	special := findSymbol(result, "SpecialItem")
	require.NotNil(t, special)
	assert.Equal(t, special.ID, inherits[0].FromID)
}

func TestParseAnnotations(t *testing.T) {
	result := parsePython(t, `def lookup(key: str, items: Dict[str, Item]) -> Item:
    pass
`)

	lookup := findSymbol(result, "lookup")
	require.NotNil(t, lookup)
	assert.Equal(t, "def lookup(key: str, items: Dict[str, Item]) -> Item", lookup.Signature)

	require.Len(t, result.Annotations, 3)
	for _, ann := range result.Annotations {
		assert.Equal(t, lookup.ID, ann.OwnerID)
	}

	// key: str
	assert.Equal(t, TypeExprIdent, result.Annotations[0].Expr.Kind)
	assert.Equal(t, "str", result.Annotations[0].Expr.Name)

	// items: Dict[str, Item]
	generic := result.Annotations[1].Expr
	assert.Equal(t, TypeExprGeneric, generic.Kind)
	require.NotNil(t, generic.Base)
	assert.Equal(t, "Dict", generic.Base.Name)

	// -> Item
	assert.Equal(t, "Item", result.Annotations[2].Expr.Name)
}

func TestParseForwardReferenceAndUnion(t *testing.T) {
	result := parsePython(t, `def pick(a: 'Item', b: int | None):
    pass
`)

	require.Len(t, result.Annotations, 2)
	assert.Equal(t, TypeExprForward, result.Annotations[0].Expr.Kind)
	assert.Equal(t, "Item", result.Annotations[0].Expr.Name)
	assert.Equal(t, TypeExprUnion, result.Annotations[1].Expr.Kind)
}

func TestParseDecorators(t *testing.T) {
	result := parsePython(t, `@router.get("/items", response_model=Item)
def list_items():
    pass


@staticmethod
def helper():
    pass
`)

	require.Len(t, result.Decorators, 2)

	routed := result.Decorators[0]
	listItems := findSymbol(result, "list_items")
	require.NotNil(t, listItems)
	assert.Equal(t, listItems.ID, routed.OwnerID)
	assert.Equal(t, "get", routed.Decorator.Name)
	assert.Equal(t, "router", routed.Decorator.Object)
	require.Len(t, routed.Decorator.Args, 2)
	assert.Equal(t, `"/items"`, routed.Decorator.Args[0].Value)
	assert.Equal(t, "response_model", routed.Decorator.Args[1].Name)
	assert.Equal(t, "Item", routed.Decorator.Args[1].Value)

	bare := result.Decorators[1]
	assert.Equal(t, "staticmethod", bare.Decorator.Name)
	assert.Empty(t, bare.Decorator.Object)
}

func TestParseToleratesSyntaxErrors(t *testing.T) {
	result := parsePython(t, `def broken(:
    pass

def fine():
    pass
`)

	assert.NotEmpty(t, result.Errors)
	assert.NotNil(t, findSymbol(result, "fine"))
}

func TestParseRejectsOversizedFile(t *testing.T) {
	parser := NewPythonParser(WithMaxFileSize(16))
	_, err := parser.Parse(context.Background(), []byte("x = 1  # padding padding"), "app.py")
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	_, err := NewPythonParser().Parse(context.Background(), []byte{0xff, 0xfe, 0x00}, "app.py")
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestParseHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPythonParser().Parse(ctx, []byte("x = 1"), "app.py")
	assert.Error(t, err)
}

func TestRegistrySelectsParserByExtension(t *testing.T) {
	reg := NewParserRegistry()

	parser, ok := reg.ParserFor("pkg/app.py")
	require.True(t, ok)
	assert.Equal(t, "python", parser.Language())

	_, ok = reg.ParserFor("pkg/app.rs")
	assert.False(t, ok)
}
