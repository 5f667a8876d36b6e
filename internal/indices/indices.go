// Package indices combines calibration signals into composite scores.
package indices

import (
	"fmt"
	"math"
	"sort"
	"time"

	"decylo/internal/calibration"
	"decylo/internal/domain"
)

const (
	// MomentumDays is the width of each TMS averaging window.
	MomentumDays = 7
	// MomentumThreshold is the DHI point delta that flips TMS status.
	MomentumThreshold = 3.0
)

// Signals are the four normalized judgment signals.
type Signals struct {
	PA float64 `json:"pa"`
	FT float64 `json:"ft"`
	RI float64 `json:"ri"`
	GM float64 `json:"gm"`
}

// DHI is the Decision Health Index in [0,100]. RI and GM live in [-1,1] and
// are rescaled to [0,1] first.
func DHI(s Signals) int {
	ri := clamp01((s.RI + 1) / 2)
	gm := clamp01((s.GM + 1) / 2)
	v := 100 * (0.45*clamp01(s.PA) + 0.30*clamp01(s.FT) + 0.15*ri + 0.10*gm)
	return int(math.Round(v))
}

// DailyValue is one day's reading of an index.
type DailyValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

type MomentumStatus string

const (
	MomentumAccelerating MomentumStatus = "accelerating"
	MomentumStable       MomentumStatus = "stable"
	MomentumDeclining    MomentumStatus = "declining"
)

// Momentum is the Trajectory Momentum Score.
type Momentum struct {
	Score    float64        `json:"score"`
	Status   MomentumStatus `json:"status"`
	Recent   *float64       `json:"recent_avg,omitempty"`
	Previous *float64       `json:"previous_avg,omitempty"`
}

// TrajectoryMomentum compares the average DHI of the last MomentumDays days
// with the MomentumDays before. A window without readings yields a stable
// zero score.
func TrajectoryMomentum(points []DailyValue, now time.Time) Momentum {
	recent, previous := calibration.TrailingWindows(now, MomentumDays)
	m := Momentum{Status: MomentumStable}
	m.Recent = average(points, recent)
	m.Previous = average(points, previous)
	if m.Recent == nil || m.Previous == nil {
		return m
	}
	m.Score = round1(*m.Recent - *m.Previous)
	switch {
	case m.Score >= MomentumThreshold:
		m.Status = MomentumAccelerating
	case m.Score <= -MomentumThreshold:
		m.Status = MomentumDeclining
	}
	return m
}

func average(points []DailyValue, w calibration.Window) *float64 {
	var sum float64
	n := 0
	for _, p := range points {
		if w.Contains(p.Date) {
			sum += p.Value
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// DomainStrength scores one category.
type DomainStrength struct {
	Category  domain.Category `json:"category"`
	Score     int             `json:"score"`
	WinRate   float64         `json:"win_rate"`
	FT        float64         `json:"ft"`
	PA        float64         `json:"pa"`
	Decisions int             `json:"decisions"`
}

// DomainStrengths scores every category that has at least one decision,
// strongest first. Ties keep category order.
func DomainStrengths(decisions []domain.Decision, outcomes []domain.Outcome) []DomainStrength {
	var out []DomainStrength
	for _, c := range domain.Categories {
		ds := calibration.FilterCategory(decisions, c)
		if len(ds) == 0 {
			continue
		}
		loops := calibration.ClosedLoops(ds, outcomes)
		s := DomainStrength{
			Category:  c,
			WinRate:   calibration.OutcomeRatios(calibration.LoopOutcomes(loops)).Win,
			FT:        calibration.FollowThrough(ds, outcomes),
			PA:        calibration.PredictionAccuracy(ds, outcomes),
			Decisions: len(ds),
		}
		s.Score = int(math.Round(100 * (0.40*s.WinRate + 0.30*s.FT + 0.30*s.PA)))
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// CalibrationBucket is one confidence band of the prediction calibration
// curve.
type CalibrationBucket struct {
	Label     string  `json:"label"`
	Low       int     `json:"low"`
	High      int     `json:"high"`
	Predicted float64 `json:"predicted"`
	Actual    float64 `json:"actual"`
	Error     float64 `json:"error"`
	Count     int     `json:"count"`
}

const bandWidth = 20

// CalibrationCurve buckets confident closed loops into five 20-point bands.
// The last band includes 100. Empty bands are returned with zero counts.
func CalibrationCurve(decisions []domain.Decision, outcomes []domain.Outcome) []CalibrationBucket {
	buckets := make([]CalibrationBucket, 100/bandWidth)
	wins := make([]float64, len(buckets))
	errs := make([]float64, len(buckets))
	for i := range buckets {
		low := i * bandWidth
		buckets[i] = CalibrationBucket{
			Label:     bandLabel(low),
			Low:       low,
			High:      low + bandWidth,
			Predicted: float64(low+bandWidth/2) / 100,
		}
	}
	for _, l := range calibration.ClosedLoops(decisions, outcomes) {
		if l.Decision.Confidence == nil {
			continue
		}
		c := *l.Decision.Confidence
		i := band(c)
		buckets[i].Count++
		if l.Outcome.Score == domain.OutcomeWin {
			wins[i]++
		}
		errs[i] += math.Abs(float64(clampPct(c))/100 - l.Outcome.Score.Probability())
	}
	for i := range buckets {
		if buckets[i].Count == 0 {
			continue
		}
		n := float64(buckets[i].Count)
		buckets[i].Actual = wins[i] / n
		buckets[i].Error = errs[i] / n
	}
	return buckets
}

func band(confidence int) int {
	i := clampPct(confidence) / bandWidth
	if i >= 100/bandWidth {
		i = 100/bandWidth - 1
	}
	return i
}

func bandLabel(low int) string {
	return fmt.Sprintf("%d-%d", low, low+bandWidth)
}

func clampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
