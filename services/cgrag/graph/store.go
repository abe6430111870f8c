// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

// Archiver persists committed snapshots. Implementations must tolerate
// being called from concurrent builds of different repositories.
type Archiver interface {
	// Archive stores a committed snapshot. An archive failure does not
	// roll back the in-memory commit; the store logs and continues.
	Archive(ctx context.Context, snapshot *Snapshot) error
}

// Store holds the current snapshot per repository.
//
// Rebuilds for the same repository are serialized; rebuilds of
// different repositories run concurrently. Readers always see the last
// committed snapshot: a failed build changes nothing, and a successful
// one replaces the snapshot pointer atomically under the repository
// lock. There is no partially visible state.
type Store struct {
	builder  *Builder
	archiver Archiver
	logger   *slog.Logger

	mu    sync.RWMutex
	repos map[string]*repoState
}

type repoState struct {
	// buildMu serializes builds for one repository without blocking
	// readers of the current snapshot.
	buildMu sync.Mutex

	mu         sync.RWMutex
	current    *Snapshot
	generation uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithArchiver sets a persistence hook invoked after each commit.
func WithArchiver(a Archiver) StoreOption {
	return func(s *Store) { s.archiver = a }
}

// WithStoreLogger sets the structured logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store around a builder.
func NewStore(builder *Builder, opts ...StoreOption) *Store {
	s := &Store{
		builder: builder,
		logger:  slog.Default(),
		repos:   make(map[string]*repoState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) repo(repository string) *repoState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.repos[repository]
	if !ok {
		st = &repoState{}
		s.repos[repository] = st
	}
	return st
}

// Rebuild builds a new snapshot from extracted inputs and commits it as
// the repository's current snapshot.
//
// On error the prior snapshot stays authoritative. Concurrent Rebuild
// calls for the same repository queue behind each other.
func (s *Store) Rebuild(ctx context.Context, repository string, symbols []*ast.Symbol, references []ast.Reference) (*BuildResult, error) {
	if repository == "" {
		return nil, ErrEmptyRepository
	}
	st := s.repo(repository)

	st.buildMu.Lock()
	defer st.buildMu.Unlock()

	result, err := s.builder.Build(ctx, repository, symbols, references)
	if err != nil {
		s.logger.Warn("rebuild failed, prior snapshot retained",
			"repository", repository, "error", err)
		return nil, fmt.Errorf("rebuild %s: %w", repository, err)
	}

	s.commit(st, result.Snapshot)

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, result.Snapshot); err != nil {
			s.logger.Warn("snapshot archive failed",
				"repository", repository,
				"version", result.Snapshot.Version(),
				"error", err)
		}
	}
	return result, nil
}

// commit stamps the generation and swaps the current pointer.
func (s *Store) commit(st *repoState, snapshot *Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.generation++
	snapshot.generation = st.generation
	st.current = snapshot
}

// Current returns the repository's committed snapshot.
func (s *Store) Current(repository string) (*Snapshot, error) {
	s.mu.RLock()
	st, ok := s.repos[repository]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, repository)
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, repository)
	}
	return st.current, nil
}

// AttachEmbeddings commits a copy of the current snapshot with
// embeddings attached to the listed nodes. No-op node IDs are ignored.
func (s *Store) AttachEmbeddings(repository string, embeddings map[string][]float32) (*Snapshot, error) {
	st := s.repo(repository)

	st.buildMu.Lock()
	defer st.buildMu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, repository)
	}
	st.current = st.current.WithEmbeddings(embeddings)
	return st.current, nil
}

// Restore installs an archived snapshot as the repository's current
// snapshot, used on startup to recover state without a rebuild.
func (s *Store) Restore(repository string, snapshot *Snapshot) error {
	if repository == "" {
		return ErrEmptyRepository
	}
	st := s.repo(repository)

	st.buildMu.Lock()
	defer st.buildMu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = snapshot
	if snapshot.generation > st.generation {
		st.generation = snapshot.generation
	}
	return nil
}

// Repositories returns the names of repositories with a committed
// snapshot, sorted.
func (s *Store) Repositories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.repos))
	for name, st := range s.repos {
		st.mu.RLock()
		committed := st.current != nil
		st.mu.RUnlock()
		if committed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
