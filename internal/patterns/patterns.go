// Package patterns scans decision history for calibration bias and
// statistically notable failure clusters.
package patterns

import (
	"fmt"
	"math"
	"sort"

	"decylo/internal/calibration"
	"decylo/internal/domain"
)

const (
	// MinBiasSamples is the number of loops with both confidences needed
	// before a category bias is reported.
	MinBiasSamples = 3
	// BiasGap is the point difference that counts as a miscalibrated loop.
	BiasGap = 5.0
	// MinFailureSamples is the minimum group size for failure patterns.
	MinFailureSamples = 5
	// FailureRate is the loss fraction a group must exceed to be flagged.
	FailureRate = 0.40
	// HighConfidence is the confidence at which a decision counts as a
	// high-confidence call.
	HighConfidence = 80
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

type Direction string

const (
	DirectionOver     Direction = "overestimate"
	DirectionUnder    Direction = "underestimate"
	DirectionBalanced Direction = "balanced"
)

// CategoryBias summarizes how far post-hoc confidence drifted from
// decision-time confidence within a category.
type CategoryBias struct {
	Category       domain.Category `json:"category"`
	Samples        int             `json:"samples"`
	AvgGap         float64         `json:"avg_gap"`
	Overestimates  int             `json:"overestimates"`
	Underestimates int             `json:"underestimates"`
	Direction      Direction       `json:"direction"`
}

// CategoryCalibration reports bias for categories with at least
// MinBiasSamples loops carrying both confidence values.
func CategoryCalibration(decisions []domain.Decision, outcomes []domain.Outcome) []CategoryBias {
	var out []CategoryBias
	for _, c := range domain.Categories {
		loops := calibration.ClosedLoops(calibration.FilterCategory(decisions, c), outcomes)
		b := CategoryBias{Category: c}
		var sum float64
		for _, l := range loops {
			gap, ok := calibration.SignedGap(l)
			if !ok {
				continue
			}
			b.Samples++
			sum += math.Abs(gap)
			switch {
			case gap > BiasGap:
				b.Overestimates++
			case gap < -BiasGap:
				b.Underestimates++
			}
		}
		if b.Samples < MinBiasSamples {
			continue
		}
		b.AvgGap = sum / float64(b.Samples)
		switch {
		case b.Overestimates > b.Underestimates:
			b.Direction = DirectionOver
		case b.Underestimates > b.Overestimates:
			b.Direction = DirectionUnder
		default:
			b.Direction = DirectionBalanced
		}
		out = append(out, b)
	}
	return out
}

type Kind string

const (
	KindCategoryFailure       Kind = "category_failure"
	KindHighConfidenceFailure Kind = "high_confidence_failure"
	KindCalibrationBias       Kind = "calibration_bias"
)

// Pattern is a flagged failure cluster. Category is empty for patterns
// computed over the whole history.
type Pattern struct {
	Kind        Kind            `json:"kind"`
	Category    domain.Category `json:"category,omitempty"`
	Samples     int             `json:"samples"`
	Losses      int             `json:"losses"`
	FailureRate float64         `json:"failure_rate"`
	Severity    Severity        `json:"severity"`
}

// CategoryFailures flags categories whose completed decisions lose more than
// FailureRate of the time.
func CategoryFailures(decisions []domain.Decision, outcomes []domain.Outcome) []Pattern {
	var out []Pattern
	for _, c := range domain.Categories {
		loops := calibration.ClosedLoops(calibration.FilterCategory(decisions, c), outcomes)
		p, ok := failurePattern(KindCategoryFailure, c, loops)
		if !ok {
			continue
		}
		switch {
		case p.FailureRate > 0.60:
			p.Severity = SeverityHigh
		case p.FailureRate > 0.50:
			p.Severity = SeverityMedium
		default:
			p.Severity = SeverityLow
		}
		out = append(out, p)
	}
	return out
}

// HighConfidenceFailures flags losses among decisions made with confidence
// of at least HighConfidence, first across all categories and then per
// category.
func HighConfidenceFailures(decisions []domain.Decision, outcomes []domain.Outcome) []Pattern {
	confident := highConfidence(calibration.ClosedLoops(decisions, outcomes))
	var out []Pattern
	if p, ok := highConfidencePattern("", confident); ok {
		out = append(out, p)
	}
	for _, c := range domain.Categories {
		var group []calibration.Loop
		for _, l := range confident {
			if l.Decision.Category == c {
				group = append(group, l)
			}
		}
		if p, ok := highConfidencePattern(c, group); ok {
			out = append(out, p)
		}
	}
	return out
}

func highConfidence(loops []calibration.Loop) []calibration.Loop {
	var out []calibration.Loop
	for _, l := range loops {
		if l.Decision.Confidence != nil && *l.Decision.Confidence >= HighConfidence {
			out = append(out, l)
		}
	}
	return out
}

func highConfidencePattern(c domain.Category, loops []calibration.Loop) (Pattern, bool) {
	p, ok := failurePattern(KindHighConfidenceFailure, c, loops)
	if !ok {
		return p, false
	}
	p.Severity = SeverityMedium
	if p.FailureRate > 0.60 {
		p.Severity = SeverityHigh
	}
	return p, true
}

func failurePattern(kind Kind, c domain.Category, loops []calibration.Loop) (Pattern, bool) {
	p := Pattern{Kind: kind, Category: c, Samples: len(loops)}
	if p.Samples < MinFailureSamples {
		return p, false
	}
	for _, l := range loops {
		if l.Outcome.Score == domain.OutcomeLoss {
			p.Losses++
		}
	}
	p.FailureRate = float64(p.Losses) / float64(p.Samples)
	return p, p.FailureRate > FailureRate
}

// Warning is a human-readable finding.
type Warning struct {
	Severity Severity        `json:"severity"`
	Kind     Kind            `json:"kind"`
	Category domain.Category `json:"category,omitempty"`
	Message  string          `json:"message"`
}

// Report is the full detector output.
type Report struct {
	Biases   []CategoryBias `json:"biases"`
	Patterns []Pattern      `json:"patterns"`
	Warnings []Warning      `json:"warnings"`
}

// Detect runs every detector and renders warnings, most severe first.
func Detect(decisions []domain.Decision, outcomes []domain.Outcome) Report {
	r := Report{
		Biases:   CategoryCalibration(decisions, outcomes),
		Patterns: append(CategoryFailures(decisions, outcomes), HighConfidenceFailures(decisions, outcomes)...),
	}
	for _, p := range r.Patterns {
		r.Warnings = append(r.Warnings, Warning{
			Severity: p.Severity,
			Kind:     p.Kind,
			Category: p.Category,
			Message:  patternMessage(p),
		})
	}
	for _, b := range r.Biases {
		if b.Direction == DirectionBalanced {
			continue
		}
		r.Warnings = append(r.Warnings, Warning{
			Severity: biasSeverity(b),
			Kind:     KindCalibrationBias,
			Category: b.Category,
			Message:  biasMessage(b),
		})
	}
	sort.SliceStable(r.Warnings, func(i, j int) bool {
		return r.Warnings[i].Severity.rank() < r.Warnings[j].Severity.rank()
	})
	return r
}

func biasSeverity(b CategoryBias) Severity {
	if b.AvgGap >= 20 {
		return SeverityMedium
	}
	return SeverityLow
}

func patternMessage(p Pattern) string {
	pct := math.Round(p.FailureRate * 100)
	switch {
	case p.Kind == KindHighConfidenceFailure && p.Category == "":
		return fmt.Sprintf("%.0f%% of your high-confidence decisions (%d of %d) ended in a loss", pct, p.Losses, p.Samples)
	case p.Kind == KindHighConfidenceFailure:
		return fmt.Sprintf("%s: %.0f%% of high-confidence calls (%d of %d) ended in a loss", p.Category.Title(), pct, p.Losses, p.Samples)
	default:
		return fmt.Sprintf("%s decisions fail %.0f%% of the time (%d of %d)", p.Category.Title(), pct, p.Losses, p.Samples)
	}
}

func biasMessage(b CategoryBias) string {
	verb := "overestimate"
	if b.Direction == DirectionUnder {
		verb = "underestimate"
	}
	return fmt.Sprintf("You tend to %s %s outcomes (average gap %.0f points over %d decisions)",
		verb, b.Category.Title(), b.AvgGap, b.Samples)
}
