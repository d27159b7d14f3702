package selection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func candidatesFromScores(scores ...float64) []Candidate {
	out := make([]Candidate, len(scores))
	for i, score := range scores {
		out[i] = Candidate{ID: int64(i + 1), Score: score}
	}
	return out
}

func selectedScores(result Result) []float64 {
	out := make([]float64, len(result.Selected))
	for i, candidate := range result.Selected {
		out[i] = candidate.Score
	}
	return out
}

func TestSelect_QualityFloorMet(t *testing.T) {
	t.Parallel()

	candidates := candidatesFromScores(95, 90, 88, 80, 75, 60, 55, 40, 30, 10)
	result := Select(candidates, 5, 75, zerolog.Nop())

	want := []float64{95, 90, 88, 80, 75}
	if diff := cmp.Diff(want, selectedScores(result)); diff != "" {
		t.Fatalf("selected scores mismatch (-want +got):\n%s", diff)
	}
	if len(result.Rejected) != 5 {
		t.Fatalf("expected 5 rejected, got %d", len(result.Rejected))
	}
	if result.UnderSupplied {
		t.Fatal("supply met the quality floor; no warning expected")
	}
	for _, candidate := range result.Selected {
		if candidate.Score < 75 {
			t.Fatalf("selected draft below quality floor: %+v", candidate)
		}
	}
}

func TestSelect_UnderSupplyDegradesToCountFloor(t *testing.T) {
	t.Parallel()

	candidates := candidatesFromScores(90, 60, 50, 40)
	result := Select(candidates, 3, 75, zerolog.Nop())

	want := []float64{90, 60, 50}
	if diff := cmp.Diff(want, selectedScores(result)); diff != "" {
		t.Fatalf("selected scores mismatch (-want +got):\n%s", diff)
	}
	if !result.UnderSupplied {
		t.Fatal("expected under-supply flag")
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Score != 40 {
		t.Fatalf("unexpected rejected set: %+v", result.Rejected)
	}
}

func TestSelect_NeverExceedsTargetCount(t *testing.T) {
	t.Parallel()

	candidates := candidatesFromScores(99, 98, 97, 96, 95, 94)
	result := Select(candidates, 2, 0, zerolog.Nop())

	if len(result.Selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(result.Selected))
	}
	if len(result.Selected)+len(result.Rejected) != len(candidates) {
		t.Fatal("selected plus rejected must cover the input")
	}
}

func TestSelect_FewerCandidatesThanTarget(t *testing.T) {
	t.Parallel()

	candidates := candidatesFromScores(80, 90)
	result := Select(candidates, 5, 75, zerolog.Nop())

	if len(result.Selected) != 2 {
		t.Fatalf("expected both candidates selected, got %d", len(result.Selected))
	}
	if len(result.Rejected) != 0 {
		t.Fatalf("expected no rejections, got %d", len(result.Rejected))
	}
}

func TestSelect_TieBreakByID(t *testing.T) {
	t.Parallel()

	candidates := []Candidate{
		{ID: 30, Score: 85},
		{ID: 10, Score: 85},
		{ID: 20, Score: 85},
	}
	result := Select(candidates, 2, 0, zerolog.Nop())

	if result.Selected[0].ID != 10 || result.Selected[1].ID != 20 {
		t.Fatalf("tie-break must order by ascending id, got %+v", result.Selected)
	}
	if result.Rejected[0].ID != 30 {
		t.Fatalf("expected id 30 rejected, got %+v", result.Rejected)
	}
}

func TestSelect_ZeroTargetRejectsEverything(t *testing.T) {
	t.Parallel()

	result := Select(candidatesFromScores(90, 80), 0, 50, zerolog.Nop())
	if len(result.Selected) != 0 {
		t.Fatalf("expected nothing selected, got %d", len(result.Selected))
	}
	if len(result.Rejected) != 2 {
		t.Fatalf("expected all rejected, got %d", len(result.Rejected))
	}
}
