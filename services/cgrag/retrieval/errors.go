// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import "errors"

// Sentinel errors for retrieval operations.
var (
	// ErrInvalidHops is returned when a hop bound is negative.
	ErrInvalidHops = errors.New("hops must be non-negative")

	// ErrInvalidBudget is returned when a token budget is not positive.
	ErrInvalidBudget = errors.New("token budget must be positive")

	// ErrInvalidConfidence is returned when a confidence floor is
	// outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be in [0, 1]")

	// ErrEmptyQuery is returned when a retrieval request has no query.
	ErrEmptyQuery = errors.New("query is empty")
)
