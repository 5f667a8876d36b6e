package lifecycle

import (
	"time"

	"decylo/internal/domain"
)

// Field names used in patches and diagnostics.
const (
	FieldTitle               = "title"
	FieldCategory            = "category"
	FieldContext             = "context"
	FieldSuccessCriteria     = "success_criteria"
	FieldConstraints         = "constraints"
	FieldRiskyAssumption     = "risky_assumption"
	FieldChosenOptionID      = "chosen_option_id"
	FieldDecidedAt           = "decided_at"
	FieldConfidence          = "confidence"
	FieldNextAction          = "next_action"
	FieldNextActionDueDate   = "next_action_due_date"
	FieldRationale           = "rationale"
	FieldPredictedPositive   = "predicted_positive"
	FieldPredictedNegative   = "predicted_negative"
	FieldCommitmentConfirmed = "commitment_confirmed"
	FieldOutcomeID           = "outcome_id"

	FieldWhatLearned        = "what_learned"
	FieldLearningConfidence = "learning_confidence"
)

// Nullable distinguishes "leave alone" (Set=false) from "clear" (Set=true,
// Value=nil) and "set" (Set=true, Value!=nil).
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func Set[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

func Clear[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n Nullable[T]) apply(cur *T) *T {
	if !n.Set {
		return cur
	}
	return n.Value
}

// Patch is a partial update of a Decision. Nil pointers leave the field
// untouched. Status, when set, is the status the caller expects the decision
// to have after the patch.
type Patch struct {
	Status              *Status
	Title               *string
	Category            *domain.Category
	Context             *string
	SuccessCriteria     *string
	Constraints         *string
	RiskyAssumption     *string
	ChosenOptionID      Nullable[string]
	DecidedAt           Nullable[time.Time]
	Confidence          Nullable[int]
	NextAction          *string
	NextActionDueDate   Nullable[string]
	Rationale           *string
	PredictedPositive   *string
	PredictedNegative   *string
	CommitmentConfirmed *bool
	OutcomeID           Nullable[string]
}

// Apply returns a copy of d with the patch applied.
func (p Patch) Apply(d domain.Decision) domain.Decision {
	setString(&d.Title, p.Title)
	if p.Category != nil {
		d.Category = *p.Category
	}
	setString(&d.Context, p.Context)
	setString(&d.SuccessCriteria, p.SuccessCriteria)
	setString(&d.Constraints, p.Constraints)
	setString(&d.RiskyAssumption, p.RiskyAssumption)
	d.ChosenOptionID = p.ChosenOptionID.apply(d.ChosenOptionID)
	d.DecidedAt = p.DecidedAt.apply(d.DecidedAt)
	d.Confidence = p.Confidence.apply(d.Confidence)
	setString(&d.NextAction, p.NextAction)
	d.NextActionDueDate = p.NextActionDueDate.apply(d.NextActionDueDate)
	setString(&d.Rationale, p.Rationale)
	setString(&d.PredictedPositive, p.PredictedPositive)
	setString(&d.PredictedNegative, p.PredictedNegative)
	if p.CommitmentConfirmed != nil {
		d.CommitmentConfirmed = *p.CommitmentConfirmed
	}
	d.OutcomeID = p.OutcomeID.apply(d.OutcomeID)
	return d
}

// Changes lists the fields whose value would differ after applying the patch.
// Re-submitting an unchanged value is not a change.
func (p Patch) Changes(d domain.Decision) []string {
	n := p.Apply(d)
	var out []string
	add := func(changed bool, field string) {
		if changed {
			out = append(out, field)
		}
	}
	add(n.Title != d.Title, FieldTitle)
	add(n.Category != d.Category, FieldCategory)
	add(n.Context != d.Context, FieldContext)
	add(n.SuccessCriteria != d.SuccessCriteria, FieldSuccessCriteria)
	add(n.Constraints != d.Constraints, FieldConstraints)
	add(n.RiskyAssumption != d.RiskyAssumption, FieldRiskyAssumption)
	add(!ptrEqual(n.ChosenOptionID, d.ChosenOptionID), FieldChosenOptionID)
	add(!timeEqual(n.DecidedAt, d.DecidedAt), FieldDecidedAt)
	add(!ptrEqual(n.Confidence, d.Confidence), FieldConfidence)
	add(n.NextAction != d.NextAction, FieldNextAction)
	add(!ptrEqual(n.NextActionDueDate, d.NextActionDueDate), FieldNextActionDueDate)
	add(n.Rationale != d.Rationale, FieldRationale)
	add(n.PredictedPositive != d.PredictedPositive, FieldPredictedPositive)
	add(n.PredictedNegative != d.PredictedNegative, FieldPredictedNegative)
	add(n.CommitmentConfirmed != d.CommitmentConfirmed, FieldCommitmentConfirmed)
	add(!ptrEqual(n.OutcomeID, d.OutcomeID), FieldOutcomeID)
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
