package domain

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is the life domain a decision belongs to.
type Category string

const (
	CategoryCareer        Category = "career"
	CategoryFinance       Category = "finance"
	CategoryHealth        Category = "health"
	CategoryRelationships Category = "relationships"
	CategoryLearning      Category = "learning"
	CategoryLifestyle     Category = "lifestyle"
	CategoryOther         Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryCareer,
	CategoryFinance,
	CategoryHealth,
	CategoryRelationships,
	CategoryLearning,
	CategoryLifestyle,
	CategoryOther,
}

// Title returns the display form of the category, e.g. "Relationships".
func (c Category) Title() string {
	// Casers are stateful; one per call.
	return cases.Title(language.English).String(string(c))
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// OutcomeScore is the ternary result of a decision.
type OutcomeScore int

const (
	OutcomeLoss    OutcomeScore = -1
	OutcomeNeutral OutcomeScore = 0
	OutcomeWin     OutcomeScore = 1
)

func (s OutcomeScore) Valid() bool {
	return s >= OutcomeLoss && s <= OutcomeWin
}

// Probability maps the score onto loss=0, neutral=0.5, win=1.
func (s OutcomeScore) Probability() float64 {
	switch s {
	case OutcomeWin:
		return 1.0
	case OutcomeLoss:
		return 0.0
	default:
		return 0.5
	}
}

func (s OutcomeScore) String() string {
	switch s {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	default:
		return "neutral"
	}
}

// TemporalAnchor records how long after the decision an outcome was judged.
type TemporalAnchor string

const (
	AnchorOneWeek     TemporalAnchor = "one_week"
	AnchorOneMonth    TemporalAnchor = "one_month"
	AnchorThreeMonths TemporalAnchor = "three_months"
	AnchorSixMonths   TemporalAnchor = "six_months"
	AnchorOneYear     TemporalAnchor = "one_year"
)

func (a TemporalAnchor) Valid() bool {
	switch a {
	case AnchorOneWeek, AnchorOneMonth, AnchorThreeMonths, AnchorSixMonths, AnchorOneYear:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Decision struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	CreatedAt           time.Time  `json:"created_at"`
	Date                string     `json:"date" format:"date"`
	Title               string     `json:"title"`
	Category            Category   `json:"category"`
	Context             string     `json:"context,omitempty"`
	SuccessCriteria     string     `json:"success_criteria,omitempty"`
	Constraints         string     `json:"constraints,omitempty"`
	RiskyAssumption     string     `json:"risky_assumption,omitempty"`
	ChosenOptionID      *string    `json:"chosen_option_id,omitempty"`
	DecidedAt           *time.Time `json:"decided_at,omitempty"`
	Confidence          *int       `json:"confidence,omitempty"`
	NextAction          string     `json:"next_action,omitempty"`
	NextActionDueDate   *string    `json:"next_action_due_date,omitempty" format:"date"`
	Rationale           string     `json:"rationale,omitempty"`
	PredictedPositive   string     `json:"predicted_positive,omitempty"`
	PredictedNegative   string     `json:"predicted_negative,omitempty"`
	CommitmentConfirmed bool       `json:"commitment_confirmed"`
	OutcomeID           *string    `json:"outcome_id,omitempty"`
}

type Option struct {
	ID         string `json:"id"`
	DecisionID string `json:"decision_id"`
	Label      string `json:"label"`
	Notes      string `json:"notes,omitempty"`
	Impact     int    `json:"impact"`
	Effort     int    `json:"effort"`
	Risk       int    `json:"risk"`
	Score      int    `json:"score"`
}

type Outcome struct {
	ID                 string          `json:"id"`
	DecisionID         string          `json:"decision_id"`
	UserID             string          `json:"user_id"`
	Score              OutcomeScore    `json:"score"`
	WhatHappened       string          `json:"what_happened"`
	WhatLearned        string          `json:"what_learned"`
	LearningConfidence *int            `json:"learning_confidence,omitempty"`
	CompletedAt        time.Time       `json:"completed_at"`
	TemporalAnchor     *TemporalAnchor `json:"temporal_anchor,omitempty"`
	Counterfactual     string          `json:"counterfactual,omitempty"`
	Reflection         string          `json:"reflection,omitempty"`
}

// HealthSnapshot is the immutable daily rollup used as a trend series.
type HealthSnapshot struct {
	UserID         string    `json:"user_id"`
	Date           string    `json:"date" format:"date"`
	HealthScore    int       `json:"health_score"`
	WinRate        float64   `json:"win_rate"`
	CalibrationGap float64   `json:"calibration_gap"`
	CompletionRate float64   `json:"completion_rate"`
	Streak         int       `json:"streak"`
	DHI            int       `json:"dhi"`
	PA             float64   `json:"pa"`
	FT             float64   `json:"ft"`
	RI             float64   `json:"ri"`
	GM             float64   `json:"gm"`
	CreatedAt      time.Time `json:"created_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DateLayout is the calendar-day layout used for Decision.Date and snapshots.
const DateLayout = "2006-01-02"
