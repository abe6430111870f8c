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
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

// PatternKind distinguishes what a matched decorator implies about the
// decorated symbol.
type PatternKind int

const (
	// PatternReference marks decorators whose named arguments carry
	// references to other symbols (e.g. @app.get(response_model=Item)).
	PatternReference PatternKind = iota

	// PatternEntryPoint marks decorators that make the decorated symbol
	// externally invoked (route handlers, CLI commands, test fixtures).
	PatternEntryPoint
)

// String returns the kind name used in configuration files.
func (k PatternKind) String() string {
	switch k {
	case PatternReference:
		return "reference"
	case PatternEntryPoint:
		return "entrypoint"
	default:
		return "unknown"
	}
}

// DefaultPatternConfidence is assigned to decorator-derived references
// when a pattern does not specify its own confidence.
const DefaultPatternConfidence = 0.9

// DecoratorPattern matches decorator descriptors by regex.
//
// A decorator matches when its final name matches Name and, if Object is
// non-empty, its qualifying object matches Object. An empty Object
// requires a bare (unqualified) decorator: "@fixture" matches a pattern
// with empty Object, "@pytest.fixture" does not.
type DecoratorPattern struct {
	// Name is a regex matched against the decorator's final name
	// ("get" in "@router.get(...)"). Anchored on compile.
	Name string

	// Object is a regex matched against the qualifying object
	// ("router" in "@router.get"). Empty means a bare decorator is
	// required. Anchored on compile.
	Object string

	// Kind selects the effect of a match.
	Kind PatternKind

	// ArgNames lists the named arguments whose values become reference
	// targets. Only meaningful for PatternReference.
	ArgNames []string

	// Confidence is assigned to emitted references. Zero means
	// DefaultPatternConfidence.
	Confidence float64

	// Framework identifies the framework this pattern targets.
	Framework string

	nameRegex   *regexp.Regexp
	objectRegex *regexp.Regexp
}

// compile validates and anchors the pattern regexes. Idempotent.
func (p *DecoratorPattern) compile() error {
	if p.nameRegex == nil {
		re, err := regexp.Compile(anchor(p.Name))
		if err != nil {
			return fmt.Errorf("pattern name %q: %w", p.Name, err)
		}
		p.nameRegex = re
	}
	if p.objectRegex == nil && p.Object != "" {
		re, err := regexp.Compile(anchor(p.Object))
		if err != nil {
			return fmt.Errorf("pattern object %q: %w", p.Object, err)
		}
		p.objectRegex = re
	}
	return nil
}

// anchor wraps a regex so it must match the whole string.
func anchor(expr string) string {
	if strings.HasPrefix(expr, "^") && strings.HasSuffix(expr, "$") {
		return expr
	}
	return "^(?:" + expr + ")$"
}

// Matches reports whether the decorator descriptor satisfies this
// pattern. A pattern without an object regex only matches bare
// decorators.
func (p *DecoratorPattern) Matches(dec ast.Decorator) bool {
	if p.nameRegex == nil || !p.nameRegex.MatchString(dec.Name) {
		return false
	}
	if p.objectRegex == nil {
		return dec.Object == ""
	}
	return dec.Object != "" && p.objectRegex.MatchString(dec.Object)
}

// EffectiveConfidence returns the confidence to assign to references
// produced by this pattern.
func (p *DecoratorPattern) EffectiveConfidence() float64 {
	if p.Confidence > 0 {
		return p.Confidence
	}
	return DefaultPatternConfidence
}

// Registry holds decorator patterns and type-exclusion sets per
// language. Zero value is not usable; construct with NewRegistry or
// DefaultRegistry.
//
// The registry is read-mostly: register everything up front, then share
// it across extractor goroutines.
type Registry struct {
	patterns      map[string][]*DecoratorPattern
	exclusions    map[string]map[string]struct{}
	entryNames    map[string]map[string]struct{}
	entryPrefixes map[string][]string
}

// NewRegistry creates an empty registry seeded with the built-in
// type-exclusion sets and runtime-invoked name tables.
func NewRegistry() *Registry {
	r := &Registry{
		patterns:      make(map[string][]*DecoratorPattern),
		exclusions:    make(map[string]map[string]struct{}),
		entryNames:    make(map[string]map[string]struct{}),
		entryPrefixes: make(map[string][]string),
	}
	for lang, set := range defaultExclusions {
		merged := make(map[string]struct{}, len(set))
		for name := range set {
			merged[name] = struct{}{}
		}
		r.exclusions[lang] = merged
	}
	for lang, set := range defaultEntryPointNames {
		merged := make(map[string]struct{}, len(set))
		for name := range set {
			merged[name] = struct{}{}
		}
		r.entryNames[lang] = merged
	}
	for lang, prefixes := range defaultEntryPointPrefixes {
		r.entryPrefixes[lang] = append([]string(nil), prefixes...)
	}
	return r
}

// DefaultRegistry creates a registry with the built-in decorator
// patterns for all supported languages.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for lang, pats := range defaultPatterns() {
		for _, p := range pats {
			// Built-in patterns are known-good regexes.
			_ = r.Register(lang, p)
		}
	}
	return r
}

// Register compiles and adds a pattern for a language. Returns an error
// when the pattern's regexes are invalid.
func (r *Registry) Register(language string, pattern *DecoratorPattern) error {
	if err := pattern.compile(); err != nil {
		return err
	}
	lang := strings.ToLower(language)
	r.patterns[lang] = append(r.patterns[lang], pattern)
	return nil
}

// PatternsFor returns all registered patterns for a language.
func (r *Registry) PatternsFor(language string) []*DecoratorPattern {
	return r.patterns[strings.ToLower(language)]
}

// Match returns every registered pattern the decorator satisfies. A
// single decorator may match multiple patterns; all of them apply.
func (r *Registry) Match(language string, dec ast.Decorator) []*DecoratorPattern {
	var matched []*DecoratorPattern
	for _, p := range r.PatternsFor(language) {
		if p.Matches(dec) {
			matched = append(matched, p)
		}
	}
	return matched
}

// AddExclusions merges extra type names into a language's exclusion set.
func (r *Registry) AddExclusions(language string, names []string) {
	lang := strings.ToLower(language)
	set, ok := r.exclusions[lang]
	if !ok {
		set = make(map[string]struct{}, len(names))
		r.exclusions[lang] = set
	}
	for _, name := range names {
		set[name] = struct{}{}
	}
}

// AddEntryPointNames merges extra runtime-invoked names into a
// language's entry-point set.
func (r *Registry) AddEntryPointNames(language string, names []string) {
	lang := strings.ToLower(language)
	set, ok := r.entryNames[lang]
	if !ok {
		set = make(map[string]struct{}, len(names))
		r.entryNames[lang] = set
	}
	for _, name := range names {
		set[name] = struct{}{}
	}
}

// AddEntryPointPrefixes merges extra runtime-invoked name prefixes
// into a language's entry-point set.
func (r *Registry) AddEntryPointPrefixes(language string, prefixes []string) {
	lang := strings.ToLower(language)
	for _, prefix := range prefixes {
		if prefix != "" {
			r.entryPrefixes[lang] = append(r.entryPrefixes[lang], prefix)
		}
	}
}

// IsRuntimeInvoked reports whether a symbol name is called by the
// language's runtime or test harness rather than by in-graph code.
// Such symbols are marked as entry points during extraction.
func (r *Registry) IsRuntimeInvoked(language, name string) bool {
	lang := strings.ToLower(language)
	if _, ok := r.entryNames[lang][name]; ok {
		return true
	}
	for _, prefix := range r.entryPrefixes[lang] {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether a type name is a builtin or generic for
// the language and must not produce a reference.
func (r *Registry) IsExcluded(language, name string) bool {
	set, ok := r.exclusions[strings.ToLower(language)]
	if !ok {
		return false
	}
	_, excluded := set[name]
	return excluded
}

// Languages returns all languages with registered patterns.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.patterns))
	for lang := range r.patterns {
		langs = append(langs, lang)
	}
	return langs
}

// defaultPatterns returns the built-in decorator patterns. Data only;
// framework coverage extends here or via YAML, never in the extractor.
func defaultPatterns() map[string][]*DecoratorPattern {
	return map[string][]*DecoratorPattern{
		"python": {
			// FastAPI / Flask style route handlers: the decorated
			// function is an entry point, and response_model-style
			// arguments reference other symbols.
			{
				Name:      `get|post|put|delete|patch|head|options|websocket`,
				Object:    `router|app|api|blueprint|bp`,
				Kind:      PatternEntryPoint,
				Framework: "fastapi",
			},
			{
				Name:      `get|post|put|delete|patch`,
				Object:    `router|app|api`,
				Kind:      PatternReference,
				ArgNames:  []string{"response_model", "response_class"},
				Framework: "fastapi",
			},
			{
				Name:      `route`,
				Object:    `app|blueprint|bp`,
				Kind:      PatternEntryPoint,
				Framework: "flask",
			},
			// Click / Typer CLI commands.
			{
				Name:      `command|group`,
				Object:    `click|cli|app`,
				Kind:      PatternEntryPoint,
				Framework: "click",
			},
			// Pytest fixtures, both bare and qualified forms.
			{
				Name:      `fixture`,
				Kind:      PatternEntryPoint,
				Framework: "pytest",
			},
			{
				Name:      `fixture`,
				Object:    `pytest`,
				Kind:      PatternEntryPoint,
				Framework: "pytest",
			},
			// Celery tasks.
			{
				Name:      `task`,
				Object:    `celery|app|shared_task`,
				Kind:      PatternEntryPoint,
				Framework: "celery",
			},
			{
				Name:      `shared_task`,
				Kind:      PatternEntryPoint,
				Framework: "celery",
			},
		},
		"typescript": {
			// NestJS route handlers and controllers are bare decorators.
			{
				Name:      `Get|Post|Put|Delete|Patch|Head|Options|All`,
				Kind:      PatternEntryPoint,
				Framework: "nestjs",
			},
			{
				Name:      `Controller|Injectable|Module`,
				Kind:      PatternEntryPoint,
				Framework: "nestjs",
			},
		},
	}
}
