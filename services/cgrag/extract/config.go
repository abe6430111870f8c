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
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// PatternConfig is the YAML shape for extending the registry without
// code changes:
//
//	languages:
//	  python:
//	    exclude_types: [Decimal, UUID]
//	    patterns:
//	      - name: "task"
//	        object: "huey"
//	        kind: entrypoint
//	        framework: huey
type PatternConfig struct {
	Languages map[string]LanguageConfig `yaml:"languages" validate:"required,dive"`
}

// LanguageConfig holds per-language registry extensions.
type LanguageConfig struct {
	Patterns           []PatternSpec `yaml:"patterns" validate:"dive"`
	ExcludeTypes       []string      `yaml:"exclude_types"`
	EntryPointNames    []string      `yaml:"entry_point_names"`
	EntryPointPrefixes []string      `yaml:"entry_point_prefixes"`
}

// PatternSpec is a single decorator pattern in configuration form.
type PatternSpec struct {
	Name       string   `yaml:"name" validate:"required"`
	Object     string   `yaml:"object"`
	Kind       string   `yaml:"kind" validate:"required,oneof=reference entrypoint"`
	Args       []string `yaml:"args"`
	Confidence float64  `yaml:"confidence" validate:"gte=0,lte=1"`
	Framework  string   `yaml:"framework"`
}

var configValidator = validator.New()

// ParsePatternConfig decodes and validates a YAML pattern config.
func ParsePatternConfig(data []byte) (*PatternConfig, error) {
	var cfg PatternConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode pattern config: %w", err)
	}
	if err := configValidator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate pattern config: %w", err)
	}
	return &cfg, nil
}

// LoadPatternConfig reads and parses a YAML pattern config file.
func LoadPatternConfig(path string) (*PatternConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern config: %w", err)
	}
	return ParsePatternConfig(data)
}

// Apply merges the configured patterns and exclusions into the
// registry. Patterns are additive; existing patterns are kept.
func (r *Registry) Apply(cfg *PatternConfig) error {
	for lang, lc := range cfg.Languages {
		r.AddExclusions(lang, lc.ExcludeTypes)
		r.AddEntryPointNames(lang, lc.EntryPointNames)
		r.AddEntryPointPrefixes(lang, lc.EntryPointPrefixes)
		for _, spec := range lc.Patterns {
			kind := PatternReference
			if spec.Kind == "entrypoint" {
				kind = PatternEntryPoint
			}
			p := &DecoratorPattern{
				Name:       spec.Name,
				Object:     spec.Object,
				Kind:       kind,
				ArgNames:   spec.Args,
				Confidence: spec.Confidence,
				Framework:  spec.Framework,
			}
			if err := r.Register(lang, p); err != nil {
				return fmt.Errorf("language %s: %w", lang, err)
			}
		}
	}
	return nil
}
