package profile

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"decylo/internal/indices"
)

type Narrative struct {
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Trait    string   `json:"trait,omitempty"`
	Focus    string   `json:"focus"`
	Domains  []string `json:"domains,omitempty"`
}

type template struct {
	summary string
	focus   string
}

var archetypeTemplates = map[Archetype]template{
	PrecisionThinker: {
		summary: "Your confidence tracks reality and you close the loop on what you decide.",
		focus:   "Protect the habit. Raise the stakes on decisions where your record is strongest.",
	},
	ConvictionDriver: {
		summary: "You follow through reliably, but your confidence often misreads how things will turn out.",
		focus:   "Before committing, write down what would make you wrong and check it when you log the outcome.",
	},
	Overthinker: {
		summary: "Your predictions are sound, yet many decisions never reach a logged outcome.",
		focus:   "Set a due date for the next action on every decision and log outcomes as soon as they land.",
	},
	ImpulseReactor: {
		summary: "Predictions and follow-through both have room to grow.",
		focus:   "Slow down on the next few decisions: score every option and record your confidence honestly.",
	},
}

var traitTemplates = map[Trait]string{
	TraitAsymmetricHunter:    "You pick risks whose upside outweighs the downside.",
	TraitSafetyMaximizer:     "You lean toward safe options, and risky calls have not paid off for you yet.",
	TraitCompoundingOperator: "Your decision health is climbing steadily.",
	TraitStagnationTrap:      "Your decision health has been slipping over the last two weeks.",
}

// NarrativeFor selects templates for a classification and fills in the
// domain lines from strongest to weakest. Numbers in the domain lines are
// formatted for lang; language.Und means English.
func NarrativeFor(c Classification, strengths []indices.DomainStrength, lang language.Tag) Narrative {
	if lang == language.Und {
		lang = language.English
	}
	p := message.NewPrinter(lang)
	t := archetypeTemplates[c.Archetype]
	n := Narrative{
		Headline: c.Archetype.Label(),
		Summary:  t.summary,
		Focus:    t.focus,
		Trait:    traitTemplates[c.Trait],
	}
	if c.Trait != TraitNone {
		n.Headline = p.Sprintf("%s · %s", c.Archetype.Label(), c.Trait.Label())
	}
	if len(strengths) > 0 {
		best := strengths[0]
		n.Domains = append(n.Domains, p.Sprintf("Strongest domain: %s (%d/100, %v won over %d decisions)",
			best.Category.Title(), best.Score, number.Percent(best.WinRate), best.Decisions))
	}
	if len(strengths) > 1 {
		worst := strengths[len(strengths)-1]
		n.Domains = append(n.Domains, p.Sprintf("Weakest domain: %s (%d/100, %v won over %d decisions)",
			worst.Category.Title(), worst.Score, number.Percent(worst.WinRate), worst.Decisions))
	}
	return n
}
