// Package profile turns judgment signals into an archetype, a secondary
// trait and templated narrative text.
package profile

import "decylo/internal/indices"

type Archetype string

const (
	PrecisionThinker Archetype = "precision_thinker"
	ConvictionDriver Archetype = "conviction_driver"
	Overthinker      Archetype = "overthinker"
	ImpulseReactor   Archetype = "impulse_reactor"
)

func (a Archetype) Label() string {
	switch a {
	case PrecisionThinker:
		return "Precision Thinker"
	case ConvictionDriver:
		return "Conviction Driver"
	case Overthinker:
		return "Overthinker"
	case ImpulseReactor:
		return "Impulse Reactor"
	default:
		return string(a)
	}
}

type Trait string

const (
	TraitNone                Trait = ""
	TraitAsymmetricHunter    Trait = "asymmetric_hunter"
	TraitSafetyMaximizer     Trait = "safety_maximizer"
	TraitCompoundingOperator Trait = "compounding_operator"
	TraitStagnationTrap      Trait = "stagnation_trap"
)

func (t Trait) Label() string {
	switch t {
	case TraitAsymmetricHunter:
		return "Asymmetric Hunter"
	case TraitSafetyMaximizer:
		return "Safety Maximizer"
	case TraitCompoundingOperator:
		return "Compounding Operator"
	case TraitStagnationTrap:
		return "Stagnation Trap"
	default:
		return ""
	}
}

const (
	// AccuracyThreshold splits PA and FT into high and low.
	AccuracyThreshold = 0.70
	RiskHunterMin     = 0.60
	RiskSafetyMax     = 0.40
	GrowthCompounding = 0.15
	GrowthStagnation  = -0.10
)

// archetypes is keyed by {PA high, FT high}.
var archetypes = map[[2]bool]Archetype{
	{true, true}:   PrecisionThinker,
	{false, true}:  ConvictionDriver,
	{true, false}:  Overthinker,
	{false, false}: ImpulseReactor,
}

type Classification struct {
	Archetype Archetype `json:"archetype"`
	Trait     Trait     `json:"trait,omitempty"`
}

// Classify maps signals onto an archetype and an optional trait. RI takes
// precedence over GM when choosing the trait.
func Classify(s indices.Signals) Classification {
	c := Classification{
		Archetype: archetypes[[2]bool{s.PA >= AccuracyThreshold, s.FT >= AccuracyThreshold}],
	}
	switch {
	case s.RI >= RiskHunterMin:
		c.Trait = TraitAsymmetricHunter
	case s.RI <= RiskSafetyMax:
		c.Trait = TraitSafetyMaximizer
	case s.GM > GrowthCompounding:
		c.Trait = TraitCompoundingOperator
	case s.GM < GrowthStagnation:
		c.Trait = TraitStagnationTrap
	}
	return c
}
