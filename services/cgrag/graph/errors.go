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

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNoSnapshot is returned when a repository has no committed
	// snapshot yet. Callers distinguish this from an empty graph.
	ErrNoSnapshot = errors.New("no snapshot available for repository")

	// ErrDuplicateSymbol is returned when two input symbols share an ID.
	ErrDuplicateSymbol = errors.New("duplicate symbol ID")

	// ErrEmptyRepository is returned when a repository name is empty.
	ErrEmptyRepository = errors.New("repository name is empty")

	// ErrNodeNotFound is returned when a node ID is not in the snapshot.
	ErrNodeNotFound = errors.New("node not found in snapshot")

	// ErrInvalidThreshold is returned when a confidence threshold is
	// outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be in [0, 1]")
)
