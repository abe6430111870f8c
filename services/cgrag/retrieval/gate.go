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

// Tier grades how much the retrieval evidence supports grounding an
// answer on it. The tier is advisory: downstream consumers decide how
// to phrase or hedge, generation is never suppressed.
type Tier int

const (
	// TierLow means weak or no supporting evidence.
	TierLow Tier = iota

	// TierMedium means at least one strong match.
	TierMedium

	// TierHigh means multiple strong matches with a very close best.
	TierHigh
)

// String returns the tier name used on the wire.
func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Gate thresholds over vector-search distances (smaller is closer).
const (
	// StrongDistanceMax is the distance below which a match counts as
	// strong.
	StrongDistanceMax = 0.5

	// HighBestMax is the best-match distance ceiling for TierHigh.
	HighBestMax = 0.3

	// MediumBestMax is the best-match distance ceiling for TierMedium.
	MediumBestMax = 0.6

	// HighStrongMin is the strong-match count floor for TierHigh.
	HighStrongMin = 3

	// MediumStrongMin is the strong-match count floor for TierMedium.
	MediumStrongMin = 1
)

// Classify grades a set of vector-search results.
//
// Empty input is LOW, never an error: absence of evidence downgrades
// the answer, it does not block it.
func Classify(results []SearchResult) Tier {
	if len(results) == 0 {
		return TierLow
	}

	strong := 0
	best := results[0].Distance
	for _, r := range results {
		if r.Distance < StrongDistanceMax {
			strong++
		}
		if r.Distance < best {
			best = r.Distance
		}
	}

	switch {
	case strong >= HighStrongMin && best < HighBestMax:
		return TierHigh
	case strong >= MediumStrongMin && best < MediumBestMax:
		return TierMedium
	default:
		return TierLow
	}
}
