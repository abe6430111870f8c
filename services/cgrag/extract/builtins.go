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

// Per-language built-in and generic type names excluded from
// type-annotation reference extraction.
//
// These tables are data, not logic: extending a language's exclusion set
// (or adding a language) requires no change to the annotation walker.
// Additional names can be merged at runtime from YAML configuration via
// Registry.AddExclusions.

// pythonBuiltinTypes covers builtins plus the typing module's generic
// aliases. "List[int]" must produce no references; "List[Item]" must
// produce only "Item".
var pythonBuiltinTypes = map[string]struct{}{
	// builtins
	"str": {}, "int": {}, "float": {}, "bool": {}, "bytes": {},
	"bytearray": {}, "complex": {}, "object": {}, "type": {},
	"list": {}, "dict": {}, "set": {}, "tuple": {}, "frozenset": {},
	"None": {}, "NoneType": {}, "Exception": {}, "BaseException": {},
	// typing
	"Any": {}, "Optional": {}, "Union": {}, "List": {}, "Dict": {},
	"Set": {}, "Tuple": {}, "FrozenSet": {}, "Sequence": {},
	"Iterable": {}, "Iterator": {}, "Mapping": {}, "MutableMapping": {},
	"MutableSequence": {}, "Callable": {}, "Type": {}, "Literal": {},
	"Final": {}, "ClassVar": {}, "Annotated": {}, "Awaitable": {},
	"Coroutine": {}, "Generator": {}, "AsyncIterator": {},
	"AsyncIterable": {}, "AsyncGenerator": {}, "TypeVar": {},
	"Protocol": {}, "NamedTuple": {}, "TypedDict": {}, "Self": {},
}

// typescriptBuiltinTypes covers primitives and common utility generics.
var typescriptBuiltinTypes = map[string]struct{}{
	"string": {}, "number": {}, "boolean": {}, "bigint": {},
	"symbol": {}, "any": {}, "unknown": {}, "never": {}, "void": {},
	"null": {}, "undefined": {}, "object": {},
	"Array": {}, "ReadonlyArray": {}, "Promise": {}, "Record": {},
	"Map": {}, "Set": {}, "WeakMap": {}, "WeakSet": {},
	"Partial": {}, "Required": {}, "Readonly": {}, "Pick": {},
	"Omit": {}, "Exclude": {}, "Extract": {}, "NonNullable": {},
	"ReturnType": {}, "Parameters": {}, "Awaited": {},
}

// goBuiltinTypes covers predeclared identifiers.
var goBuiltinTypes = map[string]struct{}{
	"string": {}, "bool": {}, "byte": {}, "rune": {}, "error": {},
	"any": {}, "comparable": {},
	"int": {}, "int8": {}, "int16": {}, "int32": {}, "int64": {},
	"uint": {}, "uint8": {}, "uint16": {}, "uint32": {}, "uint64": {},
	"uintptr": {}, "float32": {}, "float64": {},
	"complex64": {}, "complex128": {},
}

// defaultExclusions maps language name to its built-in exclusion set.
var defaultExclusions = map[string]map[string]struct{}{
	"python":     pythonBuiltinTypes,
	"typescript": typescriptBuiltinTypes,
	"javascript": typescriptBuiltinTypes,
	"go":         goBuiltinTypes,
}

// Runtime-invoked callables: names the runtime, interpreter, or test
// harness calls without any in-graph reference. Extraction marks these
// as entry points so downstream analysis treats them like any other
// externally invoked symbol.

// pythonRuntimeNames covers script entry, dunder protocol methods, and
// unittest lifecycle hooks.
var pythonRuntimeNames = map[string]struct{}{
	"main": {}, "__init__": {}, "__main__": {}, "__new__": {},
	"__call__": {}, "__enter__": {}, "__exit__": {}, "__str__": {},
	"__repr__": {},
	"setUp": {}, "tearDown": {}, "setUpClass": {}, "tearDownClass": {},
}

// goRuntimeNames covers program and test entry.
var goRuntimeNames = map[string]struct{}{
	"main": {}, "init": {}, "TestMain": {},
}

// defaultEntryPointNames maps language name to its runtime-invoked
// name set.
var defaultEntryPointNames = map[string]map[string]struct{}{
	"python": pythonRuntimeNames,
	"go":     goRuntimeNames,
}

// defaultEntryPointPrefixes cover test and benchmark discovery by name
// convention.
var defaultEntryPointPrefixes = map[string][]string{
	"python": {"test_"},
	"go":     {"Test", "Benchmark", "Fuzz"},
}
