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
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

const (
	// DefaultMaxFileSize is the maximum file size the parser will accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// Confidence values for parser-emitted reference candidates.
//
// Bare-identifier calls and explicit inheritance are near-certain; calls
// through an attribute chain lose the receiver type, so only the final
// name is emitted and at reduced confidence.
const (
	confCall          = 0.8
	confAttributeCall = 0.5
	confInherits      = 0.9
	confImports       = 0.9
)

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
func WithMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// PythonParser produces the language-neutral ParseResult for Python
// source files.
//
// Description:
//
//	PythonParser uses tree-sitter to parse Python and reduce the
//	language-specific AST to the shared parse model: symbols, raw
//	reference candidates (calls, imports, inheritance), recursive
//	TypeExpr annotations, and decorator descriptors. It performs no
//	pattern matching itself; the extract package owns that.
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance internally.
type PythonParser struct {
	maxFileSize int64
}

// NewPythonParser creates a new PythonParser with the given options.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns the canonical language name for this parser.
func (p *PythonParser) Language() string {
	return "python"
}

// Extensions returns the file extensions this parser handles.
func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyi"}
}

// Parse extracts the parse model from Python source code.
//
// Description:
//
//	Parses the source with tree-sitter and walks the tree once,
//	collecting symbols, reference candidates, annotations, and decorator
//	descriptors. The parser is error-tolerant and returns partial
//	results for syntactically invalid code, recording the problem in
//	ParseResult.Errors.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing.
//	content - Raw Python source bytes. Must be valid UTF-8.
//	filePath - Path relative to project root, forward slashes.
//
// Outputs:
//
//	*ParseResult - Extracted parse model. Never nil on success.
//	error - ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath: filePath,
		Language: "python",
		Symbols:  make([]*Symbol, 0),
	}

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	// Module symbol anchors file-scope references (imports).
	module := &Symbol{
		ID:        GenerateID(filePath, 1, "__module__"),
		Name:      "__module__",
		Kind:      SymbolKindPackage,
		FilePath:  filePath,
		StartLine: 1,
		EndLine:   int(root.EndPoint().Row + 1),
		Language:  "python",
	}
	result.Symbols = append(result.Symbols, module)

	w := &pythonWalker{content: content, filePath: filePath, result: result}
	w.walkModule(root, module)

	return result, nil
}

// pythonWalker carries per-file state through the single tree walk.
type pythonWalker struct {
	content  []byte
	filePath string
	result   *ParseResult
}

func (w *pythonWalker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *pythonWalker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row + 1)
}

// walkModule processes the top level of a file.
func (w *pythonWalker) walkModule(root *sitter.Node, module *Symbol) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "import_statement", "import_from_statement":
			w.processImport(child, module)
		case "function_definition":
			w.processFunction(child, nil, module)
		case "class_definition":
			w.processClass(child, nil)
		case "decorated_definition":
			w.processDecorated(child, nil, module)
		}
	}
}

// processImport emits RefImports candidates anchored on the module symbol.
func (w *pythonWalker) processImport(node *sitter.Node, module *Symbol) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			w.result.References = append(w.result.References, Reference{
				FromID:     module.ID,
				TargetName: finalDottedName(w.text(child)),
				Type:       RefImports,
				Confidence: confImports,
				Line:       w.line(child),
			})
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				w.result.References = append(w.result.References, Reference{
					FromID:     module.ID,
					TargetName: finalDottedName(w.text(name)),
					Type:       RefImports,
					Confidence: confImports,
					Line:       w.line(child),
				})
			}
		case "identifier":
			// Names imported after the "import" keyword in a from-import.
			w.result.References = append(w.result.References, Reference{
				FromID:     module.ID,
				TargetName: w.text(child),
				Type:       RefImports,
				Confidence: confImports,
				Line:       w.line(child),
			})
		}
	}
}

// processDecorated handles a decorated class or function definition.
func (w *pythonWalker) processDecorated(node *sitter.Node, parent *Symbol, module *Symbol) {
	decorators := w.extractDecorators(node)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "class_definition":
			if sym := w.processClass(child, parent); sym != nil {
				w.attachDecorators(sym, decorators)
			}
		case "function_definition":
			if sym := w.processFunction(child, parent, module); sym != nil {
				w.attachDecorators(sym, decorators)
			}
		}
	}
}

// attachDecorators records descriptors for the registry to interpret.
func (w *pythonWalker) attachDecorators(sym *Symbol, decorators []Decorator) {
	for _, dec := range decorators {
		w.result.Decorators = append(w.result.Decorators, AttachedDecorator{
			OwnerID:   sym.ID,
			Decorator: dec,
		})
	}
}

// extractDecorators reduces decorator nodes to descriptors.
//
// "@router.get('/items', response_model=Item)" becomes
// {Name: "get", Object: "router", Args: [{Value: "'/items'"},
// {Name: "response_model", Value: "Item"}]}.
func (w *pythonWalker) extractDecorators(node *sitter.Node) []Decorator {
	decorators := make([]Decorator, 0, 2)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "decorator" {
			continue
		}

		var dec Decorator
		dec.Line = w.line(child)
		for j := 0; j < int(child.ChildCount()); j++ {
			expr := child.Child(j)
			switch expr.Type() {
			case "identifier":
				dec.Name = w.text(expr)
			case "attribute":
				dec.Object, dec.Name = w.splitAttribute(expr)
			case "call":
				fn := expr.ChildByFieldName("function")
				if fn != nil {
					switch fn.Type() {
					case "identifier":
						dec.Name = w.text(fn)
					case "attribute":
						dec.Object, dec.Name = w.splitAttribute(fn)
					}
				}
				dec.Args = w.extractCallArgs(expr)
			}
		}
		if dec.Name != "" {
			decorators = append(decorators, dec)
		}
	}

	return decorators
}

// splitAttribute splits "a.b.get" into object "a.b" and name "get".
func (w *pythonWalker) splitAttribute(node *sitter.Node) (object, name string) {
	full := w.text(node)
	if idx := strings.LastIndex(full, "."); idx >= 0 {
		return full[:idx], full[idx+1:]
	}
	return "", full
}

// extractCallArgs collects decorator call arguments.
func (w *pythonWalker) extractCallArgs(call *sitter.Node) []DecoratorArg {
	argsNode := call.ChildByFieldName("arguments")
	if argsNode == nil {
		return nil
	}

	args := make([]DecoratorArg, 0, int(argsNode.NamedChildCount()))
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		arg := argsNode.NamedChild(i)
		switch arg.Type() {
		case "keyword_argument":
			name := arg.ChildByFieldName("name")
			value := arg.ChildByFieldName("value")
			if name != nil && value != nil {
				args = append(args, DecoratorArg{Name: w.text(name), Value: w.text(value)})
			}
		case "comment":
			// skip
		default:
			args = append(args, DecoratorArg{Value: w.text(arg)})
		}
	}
	return args
}

// processClass extracts a class definition, its bases, and its members.
func (w *pythonWalker) processClass(node *sitter.Node, parent *Symbol) *Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := w.text(nameNode)

	sym := &Symbol{
		ID:        GenerateID(w.filePath, w.line(node), name),
		Name:      name,
		Kind:      SymbolKindClass,
		FilePath:  w.filePath,
		StartLine: w.line(node),
		EndLine:   int(node.EndPoint().Row + 1),
		Language:  "python",
	}
	if parent != nil {
		sym.Parent = parent.ID
	}
	w.result.Symbols = append(w.result.Symbols, sym)

	// Base classes become inheritance reference candidates.
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			base := supers.NamedChild(i)
			switch base.Type() {
			case "identifier":
				w.result.References = append(w.result.References, Reference{
					FromID:     sym.ID,
					TargetName: w.text(base),
					Type:       RefInherits,
					Confidence: confInherits,
					Line:       w.line(base),
				})
			case "attribute":
				_, final := w.splitAttribute(base)
				w.result.References = append(w.result.References, Reference{
					FromID:     sym.ID,
					TargetName: final,
					Type:       RefInherits,
					Confidence: confInherits,
					Line:       w.line(base),
				})
			}
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		sym.DocString = w.extractDocstring(body)
		for i := 0; i < int(body.ChildCount()); i++ {
			child := body.Child(i)
			switch child.Type() {
			case "function_definition":
				w.processFunction(child, sym, nil)
			case "decorated_definition":
				w.processDecorated(child, sym, nil)
			case "class_definition":
				w.processClass(child, sym)
			}
		}
	}

	return sym
}

// processFunction extracts a function or method definition, its
// annotations, and the call references inside its body.
func (w *pythonWalker) processFunction(node *sitter.Node, parent *Symbol, module *Symbol) *Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := w.text(nameNode)

	kind := SymbolKindFunction
	if parent != nil && parent.Kind == SymbolKindClass {
		kind = SymbolKindMethod
	}

	sym := &Symbol{
		ID:        GenerateID(w.filePath, w.line(node), name),
		Name:      name,
		Kind:      kind,
		FilePath:  w.filePath,
		StartLine: w.line(node),
		EndLine:   int(node.EndPoint().Row + 1),
		Language:  "python",
	}
	if parent != nil {
		sym.Parent = parent.ID
	}

	var params string
	if p := node.ChildByFieldName("parameters"); p != nil {
		params = w.text(p)
		w.extractParameterAnnotations(p, sym)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sym.Signature = fmt.Sprintf("def %s%s -> %s", name, params, w.text(ret))
		if expr := w.typeExpr(ret); expr != nil {
			w.result.Annotations = append(w.result.Annotations, AnnotatedType{OwnerID: sym.ID, Expr: expr})
		}
	} else {
		sym.Signature = fmt.Sprintf("def %s%s", name, params)
	}

	w.result.Symbols = append(w.result.Symbols, sym)

	if body := node.ChildByFieldName("body"); body != nil {
		sym.DocString = w.extractDocstring(body)
		w.extractCalls(body, sym)
	}

	return sym
}

// extractParameterAnnotations emits TypeExprs for typed parameters.
func (w *pythonWalker) extractParameterAnnotations(params *sitter.Node, owner *Symbol) {
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		switch param.Type() {
		case "typed_parameter", "typed_default_parameter":
			if t := param.ChildByFieldName("type"); t != nil {
				if expr := w.typeExpr(t); expr != nil {
					w.result.Annotations = append(w.result.Annotations, AnnotatedType{OwnerID: owner.ID, Expr: expr})
				}
			}
		}
	}
}

// typeExpr reduces a Python type expression to the shared TypeExpr
// variant. A "type" wrapper node is unwrapped to its single child.
func (w *pythonWalker) typeExpr(node *sitter.Node) *TypeExpr {
	if node == nil {
		return nil
	}
	if node.Type() == "type" && node.NamedChildCount() > 0 {
		return w.typeExpr(node.NamedChild(0))
	}

	switch node.Type() {
	case "identifier":
		return &TypeExpr{Kind: TypeExprIdent, Name: w.text(node), Line: w.line(node)}

	case "attribute":
		// "typing.List" - only the final name participates in resolution.
		_, final := w.splitAttribute(node)
		return &TypeExpr{Kind: TypeExprIdent, Name: final, Line: w.line(node)}

	case "string":
		// Forward reference: 'Item'.
		literal := strings.Trim(w.text(node), "\"'")
		return &TypeExpr{Kind: TypeExprForward, Name: literal, Line: w.line(node)}

	case "subscript":
		expr := &TypeExpr{Kind: TypeExprGeneric, Line: w.line(node)}
		value := node.ChildByFieldName("value")
		if value != nil {
			expr.Base = w.typeExpr(value)
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if value != nil && child.StartByte() == value.StartByte() {
				continue
			}
			if arg := w.typeExpr(child); arg != nil {
				expr.Args = append(expr.Args, arg)
			}
		}
		return expr

	case "tuple":
		// Subscript argument tuple: Dict[str, Item] on older grammars.
		expr := &TypeExpr{Kind: TypeExprGeneric, Line: w.line(node)}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if arg := w.typeExpr(node.NamedChild(i)); arg != nil {
				expr.Args = append(expr.Args, arg)
			}
		}
		return expr

	case "binary_operator":
		// PEP 604 unions: A | B | C. Flattened by the extract walker.
		expr := &TypeExpr{Kind: TypeExprUnion, Line: w.line(node)}
		if left := node.ChildByFieldName("left"); left != nil {
			if op := w.typeExpr(left); op != nil {
				expr.Operands = append(expr.Operands, op)
			}
		}
		if right := node.ChildByFieldName("right"); right != nil {
			if op := w.typeExpr(right); op != nil {
				expr.Operands = append(expr.Operands, op)
			}
		}
		return expr

	case "none":
		return &TypeExpr{Kind: TypeExprIdent, Name: "None", Line: w.line(node)}
	}

	return nil
}

// extractCalls walks a function body emitting call reference candidates.
func (w *pythonWalker) extractCalls(body *sitter.Node, owner *Symbol) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "call" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				switch fn.Type() {
				case "identifier":
					w.result.References = append(w.result.References, Reference{
						FromID:     owner.ID,
						TargetName: w.text(fn),
						Type:       RefCalls,
						Confidence: confCall,
						Line:       w.line(n),
					})
				case "attribute":
					// Receiver type is unknown; emit the final name only.
					_, final := w.splitAttribute(fn)
					w.result.References = append(w.result.References, Reference{
						FromID:     owner.ID,
						TargetName: final,
						Type:       RefCalls,
						Confidence: confAttributeCall,
						Line:       w.line(n),
					})
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			// Nested defs own their calls; do not attribute them here.
			if child.Type() == "function_definition" || child.Type() == "class_definition" {
				continue
			}
			walk(child)
		}
	}

	walk(body)
}

// extractDocstring returns the leading string literal of a block, if any.
func (w *pythonWalker) extractDocstring(body *sitter.Node) string {
	if body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	doc := w.text(str)
	doc = strings.Trim(doc, "\"'")
	return strings.TrimSpace(doc)
}

// finalDottedName returns the last component of "a.b.c".
func finalDottedName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
