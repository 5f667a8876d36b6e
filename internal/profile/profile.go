package profile

import (
	"time"

	"golang.org/x/text/language"

	"decylo/internal/domain"
	"decylo/internal/indices"
)

type Input struct {
	Signals   indices.Signals
	Decisions []domain.Decision
	Outcomes  []domain.Outcome
	// DHIHistory holds one DHI reading per day, typically from snapshots.
	DHIHistory []indices.DailyValue
	Now        time.Time
	// Language selects number formatting in the narrative.
	Language language.Tag
}

type Profile struct {
	Classification
	ArchetypeLabel string                      `json:"archetype_label"`
	TraitLabel     string                      `json:"trait_label,omitempty"`
	Signals        indices.Signals             `json:"signals"`
	DHI            int                         `json:"dhi"`
	Momentum       indices.Momentum            `json:"momentum"`
	Strengths      []indices.DomainStrength    `json:"strengths"`
	Strongest      *indices.DomainStrength     `json:"strongest,omitempty"`
	Weakest        *indices.DomainStrength     `json:"weakest,omitempty"`
	Curve          []indices.CalibrationBucket `json:"calibration_curve"`
	Narrative      Narrative                   `json:"narrative"`
}

// Build assembles the judgment profile.
func Build(in Input) Profile {
	c := Classify(in.Signals)
	p := Profile{
		Classification: c,
		ArchetypeLabel: c.Archetype.Label(),
		TraitLabel:     c.Trait.Label(),
		Signals:        in.Signals,
		DHI:            indices.DHI(in.Signals),
		Momentum:       indices.TrajectoryMomentum(in.DHIHistory, in.Now),
		Strengths:      indices.DomainStrengths(in.Decisions, in.Outcomes),
		Curve:          indices.CalibrationCurve(in.Decisions, in.Outcomes),
	}
	if n := len(p.Strengths); n > 0 {
		p.Strongest = &p.Strengths[0]
		if n > 1 {
			p.Weakest = &p.Strengths[n-1]
		}
	}
	p.Narrative = NarrativeFor(c, p.Strengths, in.Language)
	return p
}
