package lifecycle

import "errors"

// ViolationKind classifies a rejected write.
type ViolationKind string

const (
	InvalidStateTransition      ViolationKind = "InvalidStateTransition"
	MissingOutcomeForCompletion ViolationKind = "MissingOutcomeForCompletion"
	DuplicateOutcome            ViolationKind = "DuplicateOutcome"
	ImmutableFieldViolation     ViolationKind = "ImmutableFieldViolation"
	PrerequisiteStateViolation  ViolationKind = "PrerequisiteStateViolation"
)

// Result is returned by every guard. Error is a human readable diagnostic
// that callers may surface directly.
type Result struct {
	Valid bool          `json:"valid"`
	Error string        `json:"error,omitempty"`
	Kind  ViolationKind `json:"kind,omitempty"`
}

// Err converts an invalid result into a *Violation; valid results yield nil.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Violation{Kind: r.Kind, Message: r.Error}
}

// Violation is the error form of a failed guard.
type Violation struct {
	Kind    ViolationKind
	Message string
}

func (v *Violation) Error() string { return v.Message }

// IsViolation reports whether err is a Violation of the given kind. An empty
// kind matches any violation.
func IsViolation(err error, kind ViolationKind) bool {
	var v *Violation
	if !errors.As(err, &v) {
		return false
	}
	return kind == "" || v.Kind == kind
}
