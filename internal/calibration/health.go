package calibration

import (
	"math"
	"time"

	"decylo/internal/domain"
)

const (
	// MomentumDays is the lookback used by GrowthMomentum.
	MomentumDays = 14
	// StreakTarget is the streak length that earns the full streak component.
	StreakTarget = 30
	// TrendThreshold is the point change needed before a trend is up or down.
	TrendThreshold = 2

	healthWinWeight         = 0.35
	healthCalibrationWeight = 0.25
	healthCompletionWeight  = 0.25
	healthStreakWeight      = 0.15
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Outcomes keeps outcomes completed inside the window.
func (w Window) Outcomes(outcomes []domain.Outcome) []domain.Outcome {
	var out []domain.Outcome
	for _, o := range outcomes {
		if w.Contains(o.CompletedAt) {
			out = append(out, o)
		}
	}
	return out
}

// TrailingWindows returns the last `days` calendar days ending with the day
// of now, and the `days` before that, using now's location.
func TrailingWindows(now time.Time, days int) (recent, previous Window) {
	y, m, d := now.Date()
	tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	recent = Window{Start: tomorrow.AddDate(0, 0, -days), End: tomorrow}
	previous = Window{Start: recent.Start.AddDate(0, 0, -days), End: recent.Start}
	return recent, previous
}

// GrowthMomentum (GM) is the daily slope of the health score over days
// (MomentumDays when days is not positive). It is 0 when there is no reading
// from that far back.
func GrowthMomentum(today float64, past *float64, days int) float64 {
	if past == nil {
		return 0
	}
	if days <= 0 {
		days = MomentumDays
	}
	return (today - *past) / float64(days)
}

type HealthInput struct {
	Decisions []domain.Decision
	Outcomes  []domain.Outcome
	Streak    int
}

// Health is the 0-100 decision health score and its components.
type Health struct {
	Score          int     `json:"score"`
	WinRate        float64 `json:"win_rate"`
	CalibrationGap float64 `json:"calibration_gap"`
	CompletionRate float64 `json:"completion_rate"`
	StreakScore    float64 `json:"streak_score"`
}

// DecisionHealth combines win rate, calibration gap, completion rate and the
// activity streak into a single 0-100 score.
func DecisionHealth(in HealthInput) Health {
	loops := ClosedLoops(in.Decisions, in.Outcomes)
	h := Health{
		WinRate: OutcomeRatios(LoopOutcomes(loops)).Win,
	}
	h.CalibrationGap, _ = CalibrationGap(in.Decisions, in.Outcomes)
	if len(in.Decisions) > 0 {
		h.CompletionRate = float64(len(loops)) / float64(len(in.Decisions))
	}
	streak := math.Max(float64(in.Streak), 0)
	h.StreakScore = math.Min(streak/StreakTarget, 1) * 100

	raw := healthWinWeight*h.WinRate*100 +
		healthCalibrationWeight*(100-math.Min(h.CalibrationGap, 100)) +
		healthCompletionWeight*h.CompletionRate*100 +
		healthStreakWeight*h.StreakScore
	h.Score = clampScore(int(math.Round(raw)))
	return h
}

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

type Trend struct {
	Direction TrendDirection `json:"direction"`
	Change    int            `json:"change"`
}

// HealthTrend compares today's score with the reading from a week earlier.
// Without an earlier reading the trend is stable.
func HealthTrend(current int, weekAgo *int) Trend {
	if weekAgo == nil {
		return Trend{Direction: TrendStable}
	}
	change := current - *weekAgo
	switch {
	case change > TrendThreshold:
		return Trend{Direction: TrendUp, Change: change}
	case change < -TrendThreshold:
		return Trend{Direction: TrendDown, Change: change}
	default:
		return Trend{Direction: TrendStable, Change: change}
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
