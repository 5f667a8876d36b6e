package calibration

import (
	"math"

	"decylo/internal/domain"
)

const (
	// PredictionWindow is how many recent confident loops feed PA.
	PredictionWindow = 30
	// RiskWindow is how many recent loops feed RI.
	RiskWindow = 20
	// HighRiskThreshold splits option risk ratings into low and high.
	HighRiskThreshold = 5
)

// ConfidenceCalibration is the signed mean of confidence x outcome score over
// closed loops with a recorded confidence. Positive values mean confidence
// tends to go with success. This is a correlation-style indicator, not an
// error measure; see CalibrationGap for the latter.
func ConfidenceCalibration(decisions []domain.Decision, outcomes []domain.Outcome) float64 {
	var sum float64
	n := 0
	for _, l := range ClosedLoops(decisions, outcomes) {
		if l.Decision.Confidence == nil {
			continue
		}
		sum += percent(*l.Decision.Confidence) * float64(l.Outcome.Score)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// PredictionAccuracy (PA) measures how close stated confidence was to what
// happened, over the most recent PredictionWindow confident loops.
func PredictionAccuracy(decisions []domain.Decision, outcomes []domain.Outcome) float64 {
	var sum float64
	n := 0
	for _, l := range ClosedLoops(decisions, outcomes) {
		if n == PredictionWindow {
			break
		}
		if l.Decision.Confidence == nil {
			continue
		}
		sum += 1 - math.Abs(percent(*l.Decision.Confidence)-l.Outcome.Score.Probability())
		n++
	}
	if n == 0 {
		return Neutral
	}
	return sum / float64(n)
}

// FollowThrough (FT) is the fraction of all decisions that reached completed.
func FollowThrough(decisions []domain.Decision, outcomes []domain.Outcome) float64 {
	if len(decisions) == 0 {
		return Neutral
	}
	return float64(len(ClosedLoops(decisions, outcomes))) / float64(len(decisions))
}

// RiskLevel buckets an option risk rating.
type RiskLevel string

const (
	RiskLow  RiskLevel = "low"
	RiskHigh RiskLevel = "high"
)

func ClassifyRisk(rating int) RiskLevel {
	if rating < HighRiskThreshold {
		return RiskLow
	}
	return RiskHigh
}

// RiskScore rates one loop. A safe win earns more than a risky win, and a
// risky loss is still slightly positive.
func RiskScore(level RiskLevel, score domain.OutcomeScore) float64 {
	switch {
	case score == domain.OutcomeNeutral:
		return 0
	case level == RiskLow && score == domain.OutcomeWin:
		return 1.0
	case level == RiskLow:
		return -1.0
	case score == domain.OutcomeWin:
		return 0.5
	default:
		return 0.2
	}
}

// RiskIntelligence (RI) averages RiskScore over the most recent RiskWindow
// loops whose chosen option has a known risk rating. risks maps option id to
// its risk rating.
func RiskIntelligence(decisions []domain.Decision, outcomes []domain.Outcome, risks map[string]int) float64 {
	var sum float64
	n := 0
	for _, l := range ClosedLoops(decisions, outcomes) {
		if n == RiskWindow {
			break
		}
		risk, ok := risks[*l.Decision.ChosenOptionID]
		if !ok {
			continue
		}
		sum += RiskScore(ClassifyRisk(risk), l.Outcome.Score)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// RisksFromOptions builds the option id -> risk rating map.
func RisksFromOptions(opts []domain.Option) map[string]int {
	out := make(map[string]int, len(opts))
	for _, o := range opts {
		out[o.ID] = o.Risk
	}
	return out
}

// CalibrationGap is the mean absolute difference between confidence at
// decision time and learning confidence after the outcome, in percentage
// points. It also returns the number of loops that carried both values.
func CalibrationGap(decisions []domain.Decision, outcomes []domain.Outcome) (float64, int) {
	var sum float64
	n := 0
	for _, l := range ClosedLoops(decisions, outcomes) {
		gap, ok := loopGap(l)
		if !ok {
			continue
		}
		sum += math.Abs(gap)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// SignedGap returns confidence minus learning confidence for a loop.
func SignedGap(l Loop) (float64, bool) {
	return loopGap(l)
}

func loopGap(l Loop) (float64, bool) {
	if l.Decision.Confidence == nil || l.Outcome.LearningConfidence == nil {
		return 0, false
	}
	return float64(clampPercent(*l.Decision.Confidence) - clampPercent(*l.Outcome.LearningConfidence)), true
}

func percent(v int) float64 {
	return float64(clampPercent(v)) / 100
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
