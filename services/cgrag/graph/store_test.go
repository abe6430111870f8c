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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

func TestCurrentWithoutSnapshot(t *testing.T) {
	store := NewStore(NewBuilder())

	_, err := store.Current("unknown-repo")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRebuildCommitsAndIncrementsGeneration(t *testing.T) {
	store := NewStore(NewBuilder())
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)

	r1, err := store.Rebuild(context.Background(), "repo", []*ast.Symbol{a}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1.Snapshot.Generation())

	current, err := store.Current("repo")
	require.NoError(t, err)
	assert.Equal(t, r1.Snapshot.Version(), current.Version())

	r2, err := store.Rebuild(context.Background(), "repo", []*ast.Symbol{a}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Snapshot.Generation())

	current, err = store.Current("repo")
	require.NoError(t, err)
	assert.Equal(t, r2.Snapshot.Version(), current.Version())
	assert.NotEqual(t, r1.Snapshot.Version(), current.Version())
}

func TestFailedRebuildRetainsPriorSnapshot(t *testing.T) {
	store := NewStore(NewBuilder())
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)

	r1, err := store.Rebuild(context.Background(), "repo", []*ast.Symbol{a}, nil)
	require.NoError(t, err)

	dup := *a
	_, err = store.Rebuild(context.Background(), "repo", []*ast.Symbol{a, &dup}, nil)
	require.ErrorIs(t, err, ErrDuplicateSymbol)

	current, err := store.Current("repo")
	require.NoError(t, err)
	assert.Equal(t, r1.Snapshot.Version(), current.Version())
}

func TestRepositoriesAreIsolated(t *testing.T) {
	store := NewStore(NewBuilder())
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)

	_, err := store.Rebuild(context.Background(), "repo-one", []*ast.Symbol{a}, nil)
	require.NoError(t, err)

	_, err = store.Current("repo-two")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Equal(t, []string{"repo-one"}, store.Repositories())
}

func TestConcurrentRebuildsSerializePerRepo(t *testing.T) {
	store := NewStore(NewBuilder())
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Rebuild(context.Background(), "repo", []*ast.Symbol{a}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	current, err := store.Current("repo")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), current.Generation())
}

type failingArchiver struct{ calls int }

func (f *failingArchiver) Archive(ctx context.Context, snapshot *Snapshot) error {
	f.calls++
	return errors.New("disk full")
}

func TestArchiveFailureDoesNotRollBackCommit(t *testing.T) {
	arch := &failingArchiver{}
	store := NewStore(NewBuilder(), WithArchiver(arch))
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)

	r, err := store.Rebuild(context.Background(), "repo", []*ast.Symbol{a}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, arch.calls)

	current, err := store.Current("repo")
	require.NoError(t, err)
	assert.Equal(t, r.Snapshot.Version(), current.Version())
}

func TestAttachEmbeddings(t *testing.T) {
	store := NewStore(NewBuilder())
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)

	_, err := store.AttachEmbeddings("repo", nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = store.Rebuild(context.Background(), "repo", []*ast.Symbol{a}, nil)
	require.NoError(t, err)

	snap, err := store.AttachEmbeddings("repo", map[string][]float32{a.ID: {0.5}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, snap.Node(a.ID).Embedding)

	current, err := store.Current("repo")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, current.Node(a.ID).Embedding)
}
