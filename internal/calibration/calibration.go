// Package calibration derives judgment-quality signals from decision history.
//
// Every function is pure and works on already-fetched, ownership-checked
// records. None of them fail: when there is not enough history they return a
// fixed neutral value (0.5 for ratios in [0,1], 0 for signed indicators) so a
// brand-new journal renders without special cases.
//
// Only closed loops count towards outcome-based metrics. A closed loop is a
// decision whose lifecycle status is completed, paired with its outcome.
package calibration

import (
	"sort"

	"decylo/internal/domain"
	"decylo/internal/lifecycle"
)

// Neutral is returned by [0,1] ratios when there is no data.
const Neutral = 0.5

// Loop pairs a completed decision with its outcome.
type Loop struct {
	Decision domain.Decision
	Outcome  domain.Outcome
}

// ClosedLoops matches outcomes to decisions and keeps the completed pairs,
// most recently completed first.
func ClosedLoops(decisions []domain.Decision, outcomes []domain.Outcome) []Loop {
	byDecision := indexOutcomes(outcomes)
	loops := make([]Loop, 0, len(byDecision))
	for _, d := range decisions {
		o, ok := byDecision[d.ID]
		if !ok {
			continue
		}
		if !lifecycle.IsClosed(d, &o) {
			continue
		}
		loops = append(loops, Loop{Decision: d, Outcome: o})
	}
	sort.SliceStable(loops, func(i, j int) bool {
		return loops[i].Outcome.CompletedAt.After(loops[j].Outcome.CompletedAt)
	})
	return loops
}

// indexOutcomes keeps the first outcome seen per decision.
func indexOutcomes(outcomes []domain.Outcome) map[string]domain.Outcome {
	out := make(map[string]domain.Outcome, len(outcomes))
	for _, o := range outcomes {
		if _, dup := out[o.DecisionID]; dup {
			continue
		}
		out[o.DecisionID] = o
	}
	return out
}

// LoopOutcomes extracts the outcomes of loops.
func LoopOutcomes(loops []Loop) []domain.Outcome {
	out := make([]domain.Outcome, 0, len(loops))
	for _, l := range loops {
		out = append(out, l.Outcome)
	}
	return out
}

// FilterCategory keeps decisions in category c.
func FilterCategory(decisions []domain.Decision, c domain.Category) []domain.Decision {
	var out []domain.Decision
	for _, d := range decisions {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// Ratios is the distribution of outcome scores.
type Ratios struct {
	Win     float64 `json:"win"`
	Neutral float64 `json:"neutral"`
	Loss    float64 `json:"loss"`
	Total   int     `json:"total"`
}

// OutcomeRatios returns win/neutral/loss fractions. All fractions are zero
// when there are no outcomes.
func OutcomeRatios(outcomes []domain.Outcome) Ratios {
	r := Ratios{Total: len(outcomes)}
	if r.Total == 0 {
		return r
	}
	var win, neutral, loss int
	for _, o := range outcomes {
		switch o.Score {
		case domain.OutcomeWin:
			win++
		case domain.OutcomeLoss:
			loss++
		default:
			neutral++
		}
	}
	n := float64(r.Total)
	r.Win = float64(win) / n
	r.Neutral = float64(neutral) / n
	r.Loss = float64(loss) / n
	return r
}

// DQI is the Decision Quality Index: mean outcome score mapped onto [0,1].
func DQI(outcomes []domain.Outcome) float64 {
	if len(outcomes) == 0 {
		return Neutral
	}
	sum := 0
	for _, o := range outcomes {
		sum += int(o.Score)
	}
	return (float64(sum)/float64(len(outcomes)) + 1) / 2
}

// CategoryDQI is DQI restricted to closed loops in category c.
func CategoryDQI(decisions []domain.Decision, outcomes []domain.Outcome, c domain.Category) float64 {
	return DQI(LoopOutcomes(ClosedLoops(FilterCategory(decisions, c), outcomes)))
}

// JudgmentGrowthRate compares DQI of outcomes completed in recent against
// those completed in previous.
func JudgmentGrowthRate(outcomes []domain.Outcome, recent, previous Window) float64 {
	return DQI(recent.Outcomes(outcomes)) - DQI(previous.Outcomes(outcomes))
}
