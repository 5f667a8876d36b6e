// Package lifecycle is the single place where a decision's status is derived
// and where every write is checked before it reaches storage.
//
// Status is never stored. It is computed from the commit fields and the
// presence of an outcome, and only ever moves forward:
//
//	open -> decided -> completed
package lifecycle

import (
	"fmt"
	"strings"

	"decylo/internal/domain"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusDecided   Status = "decided"
	StatusCompleted Status = "completed"
)

// Statuses lists the states in lifecycle order.
var Statuses = []Status{StatusOpen, StatusDecided, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusDecided, StatusCompleted:
		return true
	}
	return false
}

func (s Status) label() string {
	return strings.ToUpper(string(s))
}

// ComputeStatus derives the status of d. An outcome counts as attached when
// d.OutcomeID is set or o is non-nil.
func ComputeStatus(d domain.Decision, o *domain.Outcome) Status {
	if d.DecidedAt == nil || d.ChosenOptionID == nil {
		return StatusOpen
	}
	if d.OutcomeID != nil || o != nil {
		return StatusCompleted
	}
	return StatusDecided
}

// IsClosed reports whether the pair forms a closed loop.
func IsClosed(d domain.Decision, o *domain.Outcome) bool {
	return ComputeStatus(d, o) == StatusCompleted
}

// CanTransition reports whether a decision may move from one status to another.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case StatusCompleted:
		return false
	case StatusDecided:
		return to != StatusOpen
	default:
		return true
	}
}

// CanLogOutcome checks that an outcome may be attached to d.
func CanLogOutcome(d domain.Decision, existing *domain.Outcome) Result {
	if existing != nil || d.OutcomeID != nil {
		return fail(DuplicateOutcome, "Decision already has an outcome; multiple outcomes are not allowed")
	}
	status := ComputeStatus(d, nil)
	if status != StatusDecided {
		return fail(PrerequisiteStateViolation, "Cannot log outcome while decision is %s. Must be DECIDED first", status.label())
	}
	return valid()
}

// CanMarkCompleted checks that d may become completed by attaching candidate.
func CanMarkCompleted(d domain.Decision, candidate *domain.Outcome) Result {
	status := ComputeStatus(d, nil)
	if status != StatusDecided {
		return fail(PrerequisiteStateViolation, "Cannot mark completed while decision is %s. Must be DECIDED first", status.label())
	}
	if candidate == nil {
		return fail(MissingOutcomeForCompletion, "Cannot mark decision completed without an outcome")
	}
	return valid()
}

// CanModifyField checks whether field may still change. Once a decision is
// completed only the outcome learning fields stay writable.
func CanModifyField(d domain.Decision, o *domain.Outcome, field string) Result {
	if ComputeStatus(d, o) != StatusCompleted {
		return valid()
	}
	if field == FieldWhatLearned || field == FieldLearningConfidence {
		return valid()
	}
	return fail(ImmutableFieldViolation, "Cannot modify %s on a COMPLETED decision", field)
}

// ValidateUpdate is the gate every decision write passes through.
func ValidateUpdate(d domain.Decision, o *domain.Outcome, p Patch) Result {
	current := ComputeStatus(d, o)
	next := p.Apply(d)

	if p.Status != nil {
		target := *p.Status
		if !target.Valid() {
			return fail(InvalidStateTransition, "Invalid state transition: unknown status %q", target)
		}
		if !CanTransition(current, target) {
			return fail(InvalidStateTransition, "Invalid state transition from %s to %s", current.label(), target.label())
		}
		if target == StatusCompleted && current != StatusCompleted && o == nil && next.OutcomeID == nil {
			return fail(MissingOutcomeForCompletion, "Cannot mark decision completed without an outcome")
		}
		if target != StatusOpen && (next.ChosenOptionID == nil || next.DecidedAt == nil) {
			return fail(PrerequisiteStateViolation, "Cannot mark decision %s without a chosen option and decision time", target.label())
		}
	}

	if current == StatusCompleted {
		for _, field := range p.Changes(d) {
			if r := CanModifyField(d, o, field); !r.Valid {
				return r
			}
		}
	}

	if current != StatusOpen {
		if p.ChosenOptionID.Set && p.ChosenOptionID.Value == nil {
			return fail(InvalidStateTransition, "Invalid state transition: cannot clear %s once decision is %s", FieldChosenOptionID, current.label())
		}
		if p.DecidedAt.Set && p.DecidedAt.Value == nil {
			return fail(InvalidStateTransition, "Invalid state transition: cannot clear %s once decision is %s", FieldDecidedAt, current.label())
		}
	}

	if (next.ChosenOptionID == nil) != (next.DecidedAt == nil) {
		return fail(PrerequisiteStateViolation, "%s and %s must be set together", FieldChosenOptionID, FieldDecidedAt)
	}

	if next.OutcomeID != nil && d.OutcomeID == nil {
		if r := CanMarkCompleted(d, &domain.Outcome{ID: *next.OutcomeID, DecisionID: d.ID}); !r.Valid {
			return r
		}
	}

	after := ComputeStatus(next, o)
	if !CanTransition(current, after) {
		return fail(InvalidStateTransition, "Invalid state transition from %s to %s", current.label(), after.label())
	}
	if p.Status != nil && *p.Status != after {
		return fail(InvalidStateTransition, "Invalid state transition: requested %s but fields describe %s", p.Status.label(), after.label())
	}
	return valid()
}

func valid() Result {
	return Result{Valid: true}
}

func fail(kind ViolationKind, format string, args ...any) Result {
	return Result{Valid: false, Error: fmt.Sprintf(format, args...), Kind: kind}
}
