package scoring

import (
	"testing"

	"decylo/internal/domain"
)

func TestScoreFixtures(t *testing.T) {
	cases := []struct {
		impact, effort, risk int
		stored               int
		display              float64
	}{
		{9, 7, 5, 69, 6.9},
		{7, 3, 2, 77, 7.7},
		{10, 1, 1, 100, 10.0},
		{1, 10, 10, 10, 1.0},
	}
	for _, tc := range cases {
		got := Score(tc.impact, tc.effort, tc.risk)
		if got != tc.stored {
			t.Fatalf("Score(%d,%d,%d) = %d, want %d", tc.impact, tc.effort, tc.risk, got, tc.stored)
		}
		if d := FormatForDisplay(got); d != tc.display {
			t.Fatalf("FormatForDisplay(%d) = %v, want %v", got, d, tc.display)
		}
	}
}

func TestScoreClampsOutOfRangeInputs(t *testing.T) {
	if got, want := Score(42, -3, 0), Score(10, 1, 1); got != want {
		t.Fatalf("clamped score = %d, want %d", got, want)
	}
	if got, want := Score(-5, 99, 11), Score(1, 10, 10); got != want {
		t.Fatalf("clamped score = %d, want %d", got, want)
	}
}

func TestDisplayAlwaysInRange(t *testing.T) {
	for i := -2; i <= 13; i++ {
		for e := -2; e <= 13; e++ {
			for r := -2; r <= 13; r++ {
				d := FormatForDisplay(Score(i, e, r))
				if d < 1.0 || d > 10.0 {
					t.Fatalf("display for (%d,%d,%d) = %v out of range", i, e, r, d)
				}
			}
		}
	}
}

func TestSuggestedOption(t *testing.T) {
	opts := []domain.Option{
		{ID: "a", Label: "Stay", Impact: 9, Effort: 7, Risk: 5},
		{ID: "b", Label: "Move", Impact: 7, Effort: 3, Risk: 2},
	}
	ScoreOptions(opts)
	best := SuggestedOption(opts)
	if best == nil || best.ID != "b" || best.Score != 77 {
		t.Fatalf("suggested = %+v, want option b with 77", best)
	}
}

func TestSuggestedOptionSkipsUnlabeled(t *testing.T) {
	opts := []domain.Option{
		{ID: "blank", Label: "  ", Score: 100},
		{ID: "a", Label: "Keep", Score: 40},
	}
	if best := SuggestedOption(opts); best == nil || best.ID != "a" {
		t.Fatalf("suggested = %+v, want a", best)
	}
	if best := SuggestedOption([]domain.Option{{Label: ""}, {Label: ""}}); best != nil {
		t.Fatalf("expected nil for unlabeled set, got %+v", best)
	}
}

func TestSuggestedOptionFirstSeenWinsTies(t *testing.T) {
	opts := []domain.Option{
		{ID: "first", Label: "x", Score: 60},
		{ID: "second", Label: "y", Score: 60},
	}
	if best := SuggestedOption(opts); best.ID != "first" {
		t.Fatalf("tie winner = %s, want first", best.ID)
	}
}
