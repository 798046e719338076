package services

import "github.com/custodia-labs/kbsynth/internal/core/domain"

// QualityFilter keeps medium and high coverage suggestions in provider
// order and truncates to max. It returns the kept suggestions and the number
// of candidates dropped for low coverage.
func QualityFilter(candidates []domain.Suggestion, max int) ([]domain.Suggestion, int) {
	kept := make([]domain.Suggestion, 0, max)
	dropped := 0
	for _, c := range candidates {
		if !c.Coverage.Acceptable() {
			dropped++
			continue
		}
		if len(kept) < max {
			kept = append(kept, c)
		}
	}
	return kept, dropped
}
