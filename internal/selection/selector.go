package selection

import (
	"sort"

	"github.com/rs/zerolog"
)

// RejectionReason is persisted on every evaluated draft that is not selected.
const RejectionReason = "not selected: below quality/count cutoff for this cycle"

// Candidate is one scored draft under consideration.
type Candidate struct {
	ID    int64
	Score float64
}

// Result partitions the evaluated candidates. Selected plus Rejected always
// covers the input exactly.
type Result struct {
	Selected      []Candidate
	Rejected      []Candidate
	UnderSupplied bool
}

// Select admits at most targetCount candidates. Quality is a soft floor: when
// fewer than targetCount candidates meet minQuality, the top targetCount by
// score are taken regardless and an under-supply warning is logged. Ties on
// equal scores break by ascending id for determinism.
func Select(candidates []Candidate, targetCount int, minQuality float64, logger zerolog.Logger) Result {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	if targetCount <= 0 {
		return Result{Rejected: sorted}
	}

	qualified := 0
	for _, candidate := range sorted {
		if candidate.Score < minQuality {
			break
		}
		qualified++
	}

	cut := targetCount
	underSupplied := qualified < targetCount
	if underSupplied {
		logger.Warn().
			Int("qualified", qualified).
			Int("target_count", targetCount).
			Float64("min_quality", minQuality).
			Msg("under-supply: admitting drafts below the quality floor to meet the count floor")
	}
	if cut > len(sorted) {
		cut = len(sorted)
	}

	return Result{
		Selected:      sorted[:cut],
		Rejected:      sorted[cut:],
		UnderSupplied: underSupplied,
	}
}
