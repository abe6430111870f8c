// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration for the cgrag command. Environment
// variables override file values so container deployments can stay
// file-free.
type Config struct {
	// Port is the HTTP listen port. Env: CGRAG_PORT.
	Port int `yaml:"port"`

	// LogLevel is debug, info, warn, or error. Env: CGRAG_LOG_LEVEL.
	LogLevel string `yaml:"log_level"`

	// LogDir enables JSON file logging when set.
	LogDir string `yaml:"log_dir"`

	// WeaviateURL points at the vector database used for seed search.
	// Env: WEAVIATE_SERVICE_URL.
	WeaviateURL string `yaml:"weaviate_url"`

	// SymbolClass is the Weaviate class holding symbol embeddings.
	SymbolClass string `yaml:"symbol_class"`

	// OpenAIBaseURL overrides the embeddings endpoint, e.g. for a
	// local OpenAI-compatible server. Env: OPENAI_BASE_URL.
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// EmbeddingModel names the embedding model.
	EmbeddingModel string `yaml:"embedding_model"`

	// ArchivePath is the badger directory for snapshot persistence.
	// Empty disables the archive.
	ArchivePath string `yaml:"archive_path"`

	// Restore lists repositories to restore from the archive at
	// startup.
	Restore []string `yaml:"restore"`

	// SourceRoot, when set, serves snippet source for retrieval
	// responses from this directory.
	SourceRoot string `yaml:"source_root"`

	// AllowedRoots restricts build requests to these path prefixes.
	AllowedRoots []string `yaml:"allowed_roots"`

	// PatternConfig optionally points at a decorator-pattern YAML file.
	PatternConfig string `yaml:"pattern_config"`

	// RateLimitRPS and RateLimitBurst bound request throughput.
	// Zero RPS disables limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// OTelEndpoint is the OTLP gRPC collector address. Empty disables
	// trace export. Env: OTEL_EXPORTER_OTLP_ENDPOINT.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// Debug enables gin debug mode and request logging.
	Debug bool `yaml:"debug"`
}

// LoadConfig reads the YAML file at path (when given), then applies
// environment overrides and defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = envInt("CGRAG_PORT", cfg.Port)
	cfg.LogLevel = envString("CGRAG_LOG_LEVEL", cfg.LogLevel)
	cfg.WeaviateURL = envString("WEAVIATE_SERVICE_URL", cfg.WeaviateURL)
	cfg.OpenAIBaseURL = envString("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OTelEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)

	if cfg.Port == 0 {
		cfg.Port = 12230
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
