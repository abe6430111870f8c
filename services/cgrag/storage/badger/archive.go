// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

// Key layout:
//
//	snapshot/<repository>/<version> -> SnapshotData JSON
//	current/<repository>            -> version
const (
	snapshotPrefix = "snapshot/"
	currentPrefix  = "current/"
)

// ErrSnapshotNotFound is returned when no archived snapshot matches.
var ErrSnapshotNotFound = errors.New("archived snapshot not found")

// Archive stores committed snapshots and tracks the current version per
// repository. Implements graph.Archiver. Safe for concurrent use.
type Archive struct {
	db *badger.DB
}

// OpenArchive opens a snapshot archive.
func OpenArchive(cfg Config) (*Archive, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func snapshotKey(repository, version string) []byte {
	return []byte(snapshotPrefix + repository + "/" + version)
}

func currentKey(repository string) []byte {
	return []byte(currentPrefix + repository)
}

// Archive persists a snapshot and moves the repository's current
// pointer to it. Both writes land in one transaction.
func (a *Archive) Archive(ctx context.Context, snapshot *graph.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot.Export())
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snapshot.Version(), err)
	}

	return a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(snapshot.Repository(), snapshot.Version()), payload); err != nil {
			return err
		}
		return txn.Set(currentKey(snapshot.Repository()), []byte(snapshot.Version()))
	})
}

// LoadCurrent restores the repository's most recently archived
// snapshot.
func (a *Archive) LoadCurrent(ctx context.Context, repository string) (*graph.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var version string
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(currentKey(repository))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			version = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, repository)
	}
	if err != nil {
		return nil, fmt.Errorf("read current pointer for %s: %w", repository, err)
	}

	return a.LoadVersion(ctx, repository, version)
}

// LoadVersion restores a specific archived snapshot.
func (a *Archive) LoadVersion(ctx context.Context, repository, version string) (*graph.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data graph.SnapshotData
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(repository, version))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &data)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s@%s", ErrSnapshotNotFound, repository, version)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s@%s: %w", repository, version, err)
	}

	snapshot, err := graph.ImportSnapshot(&data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s@%s: %w", repository, version, err)
	}
	return snapshot, nil
}

// Versions lists the archived versions for a repository, in key order.
func (a *Archive) Versions(ctx context.Context, repository string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(snapshotPrefix + repository + "/")
	var versions []string
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			versions = append(versions, strings.TrimPrefix(key, string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", repository, err)
	}
	return versions, nil
}

// Prune deletes archived snapshots other than the current one.
func (a *Archive) Prune(ctx context.Context, repository string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var current string
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(currentKey(repository))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			current = string(val)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read current pointer for %s: %w", repository, err)
	}

	versions, err := a.Versions(ctx, repository)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, version := range versions {
		if version == current {
			continue
		}
		err := a.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(snapshotKey(repository, version))
		})
		if err != nil {
			return pruned, fmt.Errorf("delete snapshot %s@%s: %w", repository, version, err)
		}
		pruned++
	}
	return pruned, nil
}
