// Package scoring turns option ratings into a single expected-value score.
//
// Scores are stored as integers in [10,100] (one implied decimal place) so
// they round-trip through storage without float drift.
package scoring

import (
	"strings"

	"github.com/shopspring/decimal"

	"decylo/internal/domain"
)

const (
	MinRating = 1
	MaxRating = 10
)

var (
	impactWeight = decimal.RequireFromString("0.5")
	effortWeight = decimal.RequireFromString("0.3")
	riskWeight   = decimal.RequireFromString("0.2")
	ten          = decimal.NewFromInt(10)
)

// Score combines impact, effort and risk ratings into a stored score.
// Effort and risk are inverted so that cheap, safe options rank higher.
func Score(impact, effort, risk int) int {
	impact = clamp(impact)
	effort = clamp(effort)
	risk = clamp(risk)

	ev := impactWeight.Mul(decimal.NewFromInt(int64(impact))).
		Add(effortWeight.Mul(decimal.NewFromInt(int64(invert(effort))))).
		Add(riskWeight.Mul(decimal.NewFromInt(int64(invert(risk)))))
	return int(ev.Mul(ten).Round(0).IntPart())
}

// FormatForDisplay converts a stored score back to the 1.0–10.0 scale.
func FormatForDisplay(stored int) float64 {
	f, _ := decimal.NewFromInt(int64(stored)).Div(ten).Round(1).Float64()
	return f
}

// ScoreOptions fills Score on each option from its ratings.
func ScoreOptions(opts []domain.Option) {
	for i := range opts {
		opts[i].Score = Score(opts[i].Impact, opts[i].Effort, opts[i].Risk)
	}
}

// SuggestedOption returns the highest scoring labeled option, first seen
// winning ties. It returns nil when no option carries a label.
func SuggestedOption(opts []domain.Option) *domain.Option {
	var best *domain.Option
	for i := range opts {
		if strings.TrimSpace(opts[i].Label) == "" {
			continue
		}
		if best == nil || opts[i].Score > best.Score {
			best = &opts[i]
		}
	}
	return best
}

func invert(v int) int {
	return MaxRating + 1 - v
}

func clamp(v int) int {
	if v < MinRating {
		return MinRating
	}
	if v > MaxRating {
		return MaxRating
	}
	return v
}
