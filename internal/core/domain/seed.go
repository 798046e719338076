package domain

import (
	"strings"
	"time"
)

// Difficulty is the effort tier of a build idea seed.
type Difficulty string

// Difficulty tiers.
const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// ParseDifficulty normalises s into a known tier.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", invalid("unknown difficulty " + s)
	}
	return d, nil
}

// IsValid returns true if the tier is recognised.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (d Difficulty) String() string {
	return string(d)
}

// Seed count bounds per document.
const (
	MinSeedsPerDocument = 2
	MaxSeedsPerDocument = 4
)

// BuildIdeaSeed is a cheap, precomputed build idea derived from one document.
// Seeds are keyed by (KBID, DocumentID, Index) and immutable once written.
type BuildIdeaSeed struct {
	KBID        KBID
	DocumentID  int
	Index       int
	Title       string
	Description string
	Difficulty  Difficulty
	CreatedAt   time.Time
}

// SeedFilter narrows a quick-ideas listing.
type SeedFilter struct {
	// Difficulty restricts results to one tier when set.
	Difficulty Difficulty

	// Limit caps the number of results.
	Limit int
}

// Seed listing limits.
const (
	DefaultSeedListLimit = 20
	MaxSeedListLimit     = 100
)

// Normalize applies defaults and bounds to the filter.
func (f SeedFilter) Normalize() SeedFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultSeedListLimit
	}
	if f.Limit > MaxSeedListLimit {
		f.Limit = MaxSeedListLimit
	}
	return f
}

// SeedGeneration is the outcome of a generateIdeaSeeds call.
type SeedGeneration struct {
	// IdeasGenerated is the number of seeds written by this call.
	IdeasGenerated int

	// AlreadyCompleted is set when an earlier call already succeeded.
	AlreadyCompleted bool
}

// SeedFailure is a recorded seed-generation failure for telemetry.
type SeedFailure struct {
	KBID       KBID
	DocumentID int
	Message    string
	FailedAt   time.Time
}
