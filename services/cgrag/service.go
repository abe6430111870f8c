// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cgrag provides the code-graph retrieval HTTP service.
//
// The service owns the full pipeline: parsing source trees into symbols
// and references, building immutable graph snapshots, dead-code
// analysis, and graph-augmented retrieval with confidence gating.
package cgrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
	"github.com/AleutianAI/cgrag/services/cgrag/extract"
	"github.com/AleutianAI/cgrag/services/cgrag/graph"
	"github.com/AleutianAI/cgrag/services/cgrag/retrieval"
)

// ServiceConfig configures the service.
type ServiceConfig struct {
	// MaxBuildDuration bounds one repository build end to end.
	// Default: 60s.
	MaxBuildDuration time.Duration

	// MaxProjectFiles is the maximum number of files parsed per build.
	// Default: 10000.
	MaxProjectFiles int

	// DeadCodeThreshold is the default incoming-confidence threshold.
	// Default: graph.DefaultDeadCodeThreshold.
	DeadCodeThreshold float64

	// AllowedRoots restricts project roots to the listed prefixes.
	// Empty allows all paths.
	AllowedRoots []string

	// PatternConfigPath optionally loads extra decorator patterns and
	// type exclusions at startup.
	PatternConfigPath string
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxBuildDuration:  60 * time.Second,
		MaxProjectFiles:   10000,
		DeadCodeThreshold: graph.DefaultDeadCodeThreshold,
	}
}

// ErrNoEmbedder is returned by EmbedRepository when the service was
// assembled without an embedder.
var ErrNoEmbedder = errors.New("no embedder configured")

// Service wires the pipeline together. Safe for concurrent use; builds
// for the same repository serialize inside the store.
type Service struct {
	config    ServiceConfig
	parsers   *ast.ParserRegistry
	extractor *extract.Extractor
	store     *graph.Store
	analyzer  *graph.DeadCodeAnalyzer
	engine    *retrieval.Engine
	embedder  retrieval.Embedder
	archive   ArchiveBackend
	logger    *slog.Logger
}

// ArchiveBackend restores snapshots on startup. Satisfied by
// storage/badger.Archive.
type ArchiveBackend interface {
	LoadCurrent(ctx context.Context, repository string) (*graph.Snapshot, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the structured logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRestoreArchive attaches an archive used by RestoreRepository.
func WithRestoreArchive(a ArchiveBackend) ServiceOption {
	return func(s *Service) { s.archive = a }
}

// WithServiceEmbedder attaches the embedder EmbedRepository uses to
// vectorize snapshot symbols for similarity ranking.
func WithServiceEmbedder(e retrieval.Embedder) ServiceOption {
	return func(s *Service) { s.embedder = e }
}

// NewService assembles a service around a snapshot store and a
// retrieval engine. The store and engine are constructed by the caller
// so that the archiver, searcher, and embedder stay swappable.
func NewService(config ServiceConfig, store *graph.Store, engine *retrieval.Engine, opts ...ServiceOption) (*Service, error) {
	if config.MaxBuildDuration <= 0 {
		config.MaxBuildDuration = 60 * time.Second
	}
	if config.MaxProjectFiles <= 0 {
		config.MaxProjectFiles = 10000
	}
	if config.DeadCodeThreshold <= 0 {
		config.DeadCodeThreshold = graph.DefaultDeadCodeThreshold
	}

	s := &Service{
		config:    config,
		parsers:   ast.NewParserRegistry(),
		extractor: extract.NewExtractor(),
		store:     store,
		analyzer:  graph.NewDeadCodeAnalyzer(nil),
		engine:    engine,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.PatternConfigPath != "" {
		cfg, err := extract.LoadPatternConfig(config.PatternConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load pattern config: %w", err)
		}
		if err := s.extractor.Registry().Apply(cfg); err != nil {
			return nil, fmt.Errorf("apply pattern config: %w", err)
		}
	}
	return s, nil
}

// BuildStats summarizes one repository build for API responses.
type BuildStats struct {
	Repository      string `json:"repository"`
	SnapshotVersion string `json:"snapshot_version"`
	Generation      uint64 `json:"generation"`
	FilesParsed     int    `json:"files_parsed"`
	FilesSkipped    int    `json:"files_skipped"`
	Nodes           int    `json:"nodes"`
	Edges           int    `json:"edges"`
	Unresolved      int    `json:"unresolved"`
	DurationMillis  int64  `json:"duration_ms"`
}

// BuildRepository parses a project root, extracts symbols and
// references, and commits a new snapshot for the repository.
func (s *Service) BuildRepository(ctx context.Context, repository, projectRoot string) (*BuildStats, error) {
	if err := s.checkRoot(projectRoot); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.MaxBuildDuration)
	defer cancel()
	start := time.Now()

	results, skipped, err := s.parseTree(ctx, projectRoot)
	if err != nil {
		return nil, err
	}

	symbols, references, err := s.extractor.ExtractAll(ctx, results)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", repository, err)
	}

	buildResult, err := s.store.Rebuild(ctx, repository, symbols, references)
	if err != nil {
		return nil, err
	}

	snap := buildResult.Snapshot
	return &BuildStats{
		Repository:      repository,
		SnapshotVersion: snap.Version(),
		Generation:      snap.Generation(),
		FilesParsed:     len(results),
		FilesSkipped:    skipped,
		Nodes:           snap.NodeCount(),
		Edges:           snap.EdgeCount(),
		Unresolved:      buildResult.UnresolvedCount,
		DurationMillis:  time.Since(start).Milliseconds(),
	}, nil
}

// parseTree walks the project root and parses every file a registered
// parser claims. Unparseable files are skipped and counted, never
// fatal: one broken file must not block the snapshot.
func (s *Service) parseTree(ctx context.Context, projectRoot string) ([]*ast.ParseResult, int, error) {
	var results []*ast.ParseResult
	skipped := 0

	err := filepath.WalkDir(projectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "__pycache__" || name == "venv") {
				return filepath.SkipDir
			}
			return nil
		}

		parser, ok := s.parsers.ParserFor(path)
		if !ok {
			return nil
		}
		if len(results) >= s.config.MaxProjectFiles {
			return fmt.Errorf("project exceeds %d file limit", s.config.MaxProjectFiles)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable file", "path", path, "error", err)
			skipped++
			return nil
		}

		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			rel = path
		}
		result, err := parser.Parse(ctx, content, filepath.ToSlash(rel))
		if err != nil {
			s.logger.Warn("skipping unparseable file", "path", path, "error", err)
			skipped++
			return nil
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", projectRoot, err)
	}
	return results, skipped, nil
}

func (s *Service) checkRoot(projectRoot string) error {
	if projectRoot == "" {
		return fmt.Errorf("project root is empty")
	}
	if len(s.config.AllowedRoots) == 0 {
		return nil
	}
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	for _, root := range s.config.AllowedRoots {
		if strings.HasPrefix(abs, root) {
			return nil
		}
	}
	return fmt.Errorf("project root %s is not under an allowed root", projectRoot)
}

// RestoreRepository installs the archived current snapshot for a
// repository, typically at startup.
func (s *Service) RestoreRepository(ctx context.Context, repository string) error {
	if s.archive == nil {
		return fmt.Errorf("no archive configured")
	}
	snapshot, err := s.archive.LoadCurrent(ctx, repository)
	if err != nil {
		return err
	}
	if err := s.store.Restore(repository, snapshot); err != nil {
		return err
	}
	s.logger.Info("snapshot restored from archive",
		"repository", repository,
		"version", snapshot.Version(),
		"nodes", snapshot.NodeCount())
	return nil
}

// SnapshotStats describes the committed snapshot of one repository.
type SnapshotStats struct {
	Repository      string `json:"repository"`
	SnapshotVersion string `json:"snapshot_version"`
	Generation      uint64 `json:"generation"`
	BuiltAt         string `json:"built_at"`
	Nodes           int    `json:"nodes"`
	Edges           int    `json:"edges"`
}

// Stats reports the committed snapshot for a repository.
func (s *Service) Stats(repository string) (*SnapshotStats, error) {
	snap, err := s.store.Current(repository)
	if err != nil {
		return nil, err
	}
	return &SnapshotStats{
		Repository:      repository,
		SnapshotVersion: snap.Version(),
		Generation:      snap.Generation(),
		BuiltAt:         snap.BuiltAt().Format(time.RFC3339),
		Nodes:           snap.NodeCount(),
		Edges:           snap.EdgeCount(),
	}, nil
}

// Repositories lists repositories with a committed snapshot.
func (s *Service) Repositories() []string {
	return s.store.Repositories()
}

// DeadCode runs dead-code analysis against a repository's committed
// snapshot. A non-positive threshold selects the configured default.
func (s *Service) DeadCode(ctx context.Context, repository string, threshold float64) (*graph.DeadCodeReport, error) {
	snap, err := s.store.Current(repository)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = s.config.DeadCodeThreshold
	}
	return s.analyzer.Analyze(ctx, snap, threshold)
}

// EmbedStats summarizes one embedding pass over a snapshot.
type EmbedStats struct {
	Repository      string `json:"repository"`
	SnapshotVersion string `json:"snapshot_version"`
	Embedded        int    `json:"embedded"`
	DurationMillis  int64  `json:"duration_ms"`
}

// EmbedRepository embeds every node of the repository's committed
// snapshot and attaches the vectors for retrieval ranking.
//
// The snapshot version is retained: embeddings change ranking, not
// graph shape. Vectors are computed from the snapshot current at the
// start and attached to whatever snapshot is current at commit; node
// IDs a concurrent rebuild removed are ignored.
func (s *Service) EmbedRepository(ctx context.Context, repository string) (*EmbedStats, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	snap, err := s.store.Current(repository)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	embeddings := make(map[string][]float32, snap.NodeCount())
	for _, id := range snap.NodeIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vector, err := s.embedder.Embed(ctx, symbolEmbeddingText(snap.Node(id).Symbol))
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", id, err)
		}
		embeddings[id] = vector
	}

	committed, err := s.store.AttachEmbeddings(repository, embeddings)
	if err != nil {
		return nil, err
	}
	s.logger.Info("embeddings attached",
		"repository", repository,
		"version", committed.Version(),
		"nodes", len(embeddings))
	return &EmbedStats{
		Repository:      repository,
		SnapshotVersion: committed.Version(),
		Embedded:        len(embeddings),
		DurationMillis:  time.Since(start).Milliseconds(),
	}, nil
}

// symbolEmbeddingText is what gets vectorized for a node: the name and
// signature carry the structure, the docstring carries the intent.
func symbolEmbeddingText(sym *ast.Symbol) string {
	parts := make([]string, 0, 3)
	parts = append(parts, sym.Name)
	if sym.Signature != "" {
		parts = append(parts, sym.Signature)
	}
	if sym.DocString != "" {
		parts = append(parts, sym.DocString)
	}
	return strings.Join(parts, "\n")
}

// Retrieve runs graph-augmented retrieval for a query.
func (s *Service) Retrieve(ctx context.Context, req retrieval.RetrieveRequest) (*retrieval.RetrieveResponse, error) {
	return s.engine.Retrieve(ctx, req)
}
