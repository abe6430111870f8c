// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast defines the language-neutral parse model consumed by the
// CGRAG engine.
//
// Parsers (tree-sitter adapters or external tooling) produce a ParseResult
// per file: symbols with locations, raw reference candidates, recursive
// type-annotation expressions, and decorator descriptors. Everything
// downstream — extraction, graph building, retrieval — operates on these
// types and never on language-specific AST nodes.
//
// Design principles:
//   - Language-agnostic: types work for any supported language
//   - Decorators and annotations are descriptors, not logic
//   - No map[string]interface{} - concrete types only
package ast

import (
	"encoding/json"
	"fmt"
)

// SymbolKind represents the type of code symbol extracted from source code.
//
// Each kind maps to a common programming construct that exists across
// multiple languages. Language-specific constructs are mapped to the
// closest general kind.
type SymbolKind int

const (
	// SymbolKindUnknown indicates an unrecognized or unparseable symbol.
	SymbolKindUnknown SymbolKind = iota

	// SymbolKindPackage represents a package or module declaration.
	SymbolKindPackage

	// SymbolKindFunction represents a standalone function declaration.
	SymbolKindFunction

	// SymbolKindMethod represents a function attached to a type/class.
	SymbolKindMethod

	// SymbolKindClass represents a class definition.
	SymbolKindClass

	// SymbolKindStruct represents a composite data type.
	SymbolKindStruct

	// SymbolKindInterface represents an interface or protocol definition.
	SymbolKindInterface

	// SymbolKindType represents a type alias or definition.
	SymbolKindType

	// SymbolKindVariable represents a variable declaration.
	SymbolKindVariable

	// SymbolKindConstant represents a constant declaration.
	SymbolKindConstant

	// SymbolKindField represents a field within a struct/class.
	SymbolKindField

	// SymbolKindImport represents an import statement.
	SymbolKindImport

	// SymbolKindProperty represents a property (getter/setter).
	SymbolKindProperty
)

// symbolKindNames maps SymbolKind values to their string representations.
var symbolKindNames = map[SymbolKind]string{
	SymbolKindUnknown:   "unknown",
	SymbolKindPackage:   "package",
	SymbolKindFunction:  "function",
	SymbolKindMethod:    "method",
	SymbolKindClass:     "class",
	SymbolKindStruct:    "struct",
	SymbolKindInterface: "interface",
	SymbolKindType:      "type",
	SymbolKindVariable:  "variable",
	SymbolKindConstant:  "constant",
	SymbolKindField:     "field",
	SymbolKindImport:    "import",
	SymbolKindProperty:  "property",
}

// String returns the string representation of the SymbolKind.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements json.Marshaler, encoding the kind as its name.
func (k SymbolKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler, accepting either the string
// name or a legacy integer value.
func (k *SymbolKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = ParseSymbolKind(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("SymbolKind must be string or int: %w", err)
	}
	*k = SymbolKind(i)
	return nil
}

// ParseSymbolKind converts a string to a SymbolKind.
//
// Returns SymbolKindUnknown if the string is not recognized.
func ParseSymbolKind(s string) SymbolKind {
	for kind, name := range symbolKindNames {
		if name == s {
			return kind
		}
	}
	return SymbolKindUnknown
}

// IsCallable reports whether the kind is function-like, i.e. eligible for
// dead-code review alongside class-like kinds.
func (k SymbolKind) IsCallable() bool {
	return k == SymbolKindFunction || k == SymbolKindMethod
}

// IsClassLike reports whether the kind defines a type with members.
func (k SymbolKind) IsClassLike() bool {
	return k == SymbolKindClass || k == SymbolKindStruct || k == SymbolKindInterface
}

// Location represents a position range within a source file.
//
// Line numbers are 1-indexed (first line is 1).
// Column numbers are 0-indexed (first column is 0).
// This matches the convention used by most editors and LSP.
type Location struct {
	// FilePath is the path to the source file, relative to project root.
	FilePath string `json:"file_path"`

	// StartLine is the 1-indexed line number where the symbol starts.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed line number where the symbol ends.
	EndLine int `json:"end_line"`

	// StartCol is the 0-indexed column where the symbol starts on StartLine.
	StartCol int `json:"start_col"`

	// EndCol is the 0-indexed column where the symbol ends on EndLine.
	EndCol int `json:"end_col"`
}

// String returns a human-readable representation of the location.
//
// Format: "file_path:start_line:start_col"
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.FilePath, l.StartLine, l.StartCol)
}

// Symbol represents a code symbol extracted from AST parsing.
//
// A symbol is any named code construct: function, class, variable, etc.
// Symbols become the nodes of the code graph once a snapshot is built.
// A Symbol is immutable once it has been handed to the graph builder.
type Symbol struct {
	// ID is a unique identifier for this symbol.
	// Format: "file_path:start_line:name"
	// Example: "handlers/agent.py:27:handle_agent"
	ID string `json:"id"`

	// Name is the symbol's identifier as it appears in source code.
	Name string `json:"name"`

	// Kind indicates what type of symbol this is (function, class, etc.).
	Kind SymbolKind `json:"kind"`

	// FilePath is the path to the containing file, relative to project root.
	FilePath string `json:"file_path"`

	// StartLine is the 1-indexed line number where the definition starts.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed line number where the definition ends.
	EndLine int `json:"end_line"`

	// Signature is the type signature or declaration, when available.
	Signature string `json:"signature,omitempty"`

	// DocString is the documentation comment associated with the symbol.
	DocString string `json:"doc_string,omitempty"`

	// Parent is the ID of the enclosing symbol (e.g. the class a method
	// belongs to). Empty for top-level symbols.
	Parent string `json:"parent,omitempty"`

	// Language is the source language ("python", "typescript", "go", ...).
	Language string `json:"language"`

	// IsEntryPoint marks symbols invoked by external mechanisms
	// (framework registration, test discovery, CLI dispatch). Entry
	// points are exempt from dead-code flagging.
	IsEntryPoint bool `json:"is_entry_point,omitempty"`
}

// Location returns the symbol's location for citation formatting.
func (s *Symbol) Location() Location {
	return Location{
		FilePath:  s.FilePath,
		StartLine: s.StartLine,
		EndLine:   s.EndLine,
	}
}

// GenerateID creates a unique identifier for a symbol based on its
// location and name.
//
// Format: "file_path:start_line:name"
//
// This format ensures uniqueness within a project while remaining
// human-readable. Two symbols at the same location with the same name are
// considered identical.
func GenerateID(filePath string, startLine int, name string) string {
	return fmt.Sprintf("%s:%d:%s", filePath, startLine, name)
}

// ReferenceType classifies a raw reference candidate.
type ReferenceType int

const (
	// RefUnknown indicates an unrecognized reference type.
	RefUnknown ReferenceType = iota

	// RefCalls indicates a call site referencing a function or method.
	RefCalls

	// RefInstantiates indicates construction of a class/struct value.
	RefInstantiates

	// RefInherits indicates a class extending a base class.
	RefInherits

	// RefImports indicates an import of a module or symbol.
	RefImports

	// RefTypeAnnotation indicates a type named in an annotation.
	RefTypeAnnotation

	// RefDecorator indicates a reference produced by a decorator pattern
	// in the registry (e.g. a dependency named in a decorator argument).
	RefDecorator
)

// referenceTypeNames maps ReferenceType values to their string representations.
var referenceTypeNames = map[ReferenceType]string{
	RefUnknown:        "unknown",
	RefCalls:          "calls",
	RefInstantiates:   "instantiates",
	RefInherits:       "inherits",
	RefImports:        "imports",
	RefTypeAnnotation: "type_annotation",
	RefDecorator:      "decorator",
}

// String returns the string representation of the ReferenceType.
func (t ReferenceType) String() string {
	if name, ok := referenceTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Reference is a typed, confidence-scored link from a usage site to a
// target name, prior to resolution.
//
// References are produced during per-file extraction and consumed exactly
// once during graph building: a reference that resolves against the symbol
// table becomes an edge; one that does not is dropped silently (expected
// for external and library symbols). References do not persist
// independently of the edge they produce.
type Reference struct {
	// FromID is the ID of the symbol containing the usage site.
	FromID string `json:"from_id"`

	// TargetName is the referenced name, pre-resolution.
	TargetName string `json:"target_name"`

	// Type classifies the reference.
	Type ReferenceType `json:"type"`

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Line is the 1-indexed line of the usage site.
	Line int `json:"line"`
}

// TypeExprKind tags the variant of a TypeExpr.
type TypeExprKind int

const (
	// TypeExprIdent is a plain identifier: "Item".
	TypeExprIdent TypeExprKind = iota

	// TypeExprGeneric is a subscripted/generic form: "Dict[str, Item]".
	TypeExprGeneric

	// TypeExprUnion is a union or intersection: "A | B | C".
	TypeExprUnion

	// TypeExprForward is a forward reference as a string literal: "'Item'".
	TypeExprForward
)

// TypeExpr is a recursive, language-neutral type-annotation expression.
//
// Parsers reduce their language's annotation AST to this small tagged
// variant so the shared extraction logic can walk annotations with a
// single recursive visitor instead of per-language class hierarchies.
type TypeExpr struct {
	// Kind selects the variant.
	Kind TypeExprKind `json:"kind"`

	// Name holds the identifier for TypeExprIdent, or the literal text
	// for TypeExprForward. Unused by other variants.
	Name string `json:"name,omitempty"`

	// Base is the subscripted base type for TypeExprGeneric.
	Base *TypeExpr `json:"base,omitempty"`

	// Args are the type arguments for TypeExprGeneric.
	Args []*TypeExpr `json:"args,omitempty"`

	// Operands are the members of a TypeExprUnion.
	Operands []*TypeExpr `json:"operands,omitempty"`

	// Line is the 1-indexed line of the annotation.
	Line int `json:"line"`
}

// AnnotatedType binds a type-annotation expression to the symbol whose
// declaration carries it.
type AnnotatedType struct {
	// OwnerID is the ID of the annotated symbol.
	OwnerID string `json:"owner_id"`

	// Expr is the annotation expression.
	Expr *TypeExpr `json:"expr"`
}

// DecoratorArg is a single named argument of a decorator invocation.
type DecoratorArg struct {
	// Name is the keyword name ("dependency", "response_model", ...).
	// Empty for positional arguments.
	Name string `json:"name,omitempty"`

	// Value is the literal or identifier text of the argument value.
	Value string `json:"value"`
}

// Decorator is a language-neutral decorator descriptor.
//
// Parsers emit one descriptor per decorator applied to a symbol; the
// pattern registry decides what the decorator means. For "@router.get"
// the Name is "get" and the Object is "router"; for "@fixture" the Name
// is "fixture" and the Object is empty.
type Decorator struct {
	// Name is the final (rightmost) decorator name.
	Name string `json:"name"`

	// Object is the qualifying object, empty for bare decorators.
	Object string `json:"object,omitempty"`

	// Args are the decorator call arguments, if the decorator was invoked.
	Args []DecoratorArg `json:"args,omitempty"`

	// Line is the 1-indexed line of the decorator.
	Line int `json:"line"`
}

// AttachedDecorator binds a decorator descriptor to the decorated symbol.
type AttachedDecorator struct {
	// OwnerID is the ID of the decorated symbol.
	OwnerID string `json:"owner_id"`

	// Decorator is the descriptor.
	Decorator Decorator `json:"decorator"`
}

// ParseResult is the per-file output of a parser: symbols with locations
// plus raw reference candidates before resolution.
//
// Ownership: the extractor and graph builder treat the contents as
// immutable; parsers must not reuse or mutate a ParseResult after
// returning it.
type ParseResult struct {
	// FilePath is the parsed file, relative to project root.
	FilePath string `json:"file_path"`

	// Language is the source language.
	Language string `json:"language"`

	// Symbols are the extracted symbols, in source order.
	Symbols []*Symbol `json:"symbols"`

	// References are raw reference candidates (calls, imports,
	// instantiations, inheritance) emitted directly by the parser.
	References []Reference `json:"references,omitempty"`

	// Annotations are type-annotation expressions awaiting the shared
	// annotation walker.
	Annotations []AnnotatedType `json:"annotations,omitempty"`

	// Decorators are decorator descriptors awaiting the pattern registry.
	Decorators []AttachedDecorator `json:"decorators,omitempty"`

	// Errors holds non-fatal parse problems (syntax errors tolerated by
	// tree-sitter, skipped constructs).
	Errors []string `json:"errors,omitempty"`
}
