package lifecycle

import (
	"strings"
	"testing"
	"time"

	"decylo/internal/domain"
)

var decidedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openDecision() domain.Decision {
	return domain.Decision{ID: "d1", UserID: "u1", Title: "Take the job", Category: domain.CategoryCareer}
}

func decidedDecision() domain.Decision {
	d := openDecision()
	opt := "opt-1"
	at := decidedAt
	d.ChosenOptionID = &opt
	d.DecidedAt = &at
	return d
}

func completedDecision() (domain.Decision, *domain.Outcome) {
	d := decidedDecision()
	oid := "out-1"
	d.OutcomeID = &oid
	return d, &domain.Outcome{ID: oid, DecisionID: d.ID, Score: domain.OutcomeWin}
}

func TestComputeStatusMatrix(t *testing.T) {
	opt := "opt"
	at := decidedAt
	oid := "out"
	cases := []struct {
		name       string
		chosen     *string
		decidedAt  *time.Time
		outcomeID  *string
		outcomeObj bool
		want       Status
	}{
		{"nothing", nil, nil, nil, false, StatusOpen},
		{"only option", &opt, nil, nil, false, StatusOpen},
		{"only decided_at", nil, &at, nil, false, StatusOpen},
		{"committed", &opt, &at, nil, false, StatusDecided},
		{"committed with outcome id", &opt, &at, &oid, false, StatusCompleted},
		{"committed with outcome object", &opt, &at, nil, true, StatusCompleted},
		{"outcome without commit", nil, nil, &oid, true, StatusOpen},
		{"half commit with outcome", &opt, nil, &oid, true, StatusOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := openDecision()
			d.ChosenOptionID = tc.chosen
			d.DecidedAt = tc.decidedAt
			d.OutcomeID = tc.outcomeID
			var o *domain.Outcome
			if tc.outcomeObj {
				o = &domain.Outcome{ID: "out"}
			}
			got := ComputeStatus(d, o)
			if got != tc.want {
				t.Fatalf("status = %s, want %s", got, tc.want)
			}
			if !got.Valid() {
				t.Fatalf("status %q is not a defined state", got)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	for _, s := range Statuses {
		if !CanTransition(s, s) {
			t.Fatalf("%s -> %s must be allowed", s, s)
		}
	}
	forbidden := map[[2]Status]bool{
		{StatusCompleted, StatusOpen}:    true,
		{StatusCompleted, StatusDecided}: true,
		{StatusDecided, StatusOpen}:      true,
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			want := !forbidden[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s,%s) = %v, want %v", from, to, got, want)
			}
		}
	}
	if CanTransition("archived", StatusOpen) {
		t.Fatalf("unknown status must not transition")
	}
}

func TestCanLogOutcome(t *testing.T) {
	r := CanLogOutcome(openDecision(), nil)
	if r.Valid || !strings.Contains(r.Error, "Must be DECIDED") || r.Kind != PrerequisiteStateViolation {
		t.Fatalf("open decision: %+v", r)
	}
	d, o := completedDecision()
	r = CanLogOutcome(d, o)
	if r.Valid || !strings.Contains(r.Error, "multiple outcomes") || r.Kind != DuplicateOutcome {
		t.Fatalf("completed decision: %+v", r)
	}
	if r := CanLogOutcome(decidedDecision(), nil); !r.Valid {
		t.Fatalf("decided decision should accept outcome: %+v", r)
	}
	if r := CanLogOutcome(decidedDecision(), &domain.Outcome{ID: "x"}); r.Kind != DuplicateOutcome {
		t.Fatalf("existing outcome row must be a duplicate: %+v", r)
	}
}

func TestCanMarkCompleted(t *testing.T) {
	if r := CanMarkCompleted(openDecision(), &domain.Outcome{ID: "o"}); r.Valid {
		t.Fatalf("open decision cannot complete")
	}
	r := CanMarkCompleted(decidedDecision(), nil)
	if r.Valid || r.Kind != MissingOutcomeForCompletion {
		t.Fatalf("missing outcome: %+v", r)
	}
	if r := CanMarkCompleted(decidedDecision(), &domain.Outcome{ID: "o"}); !r.Valid {
		t.Fatalf("decided with outcome should complete: %+v", r)
	}
	d, o := completedDecision()
	if r := CanMarkCompleted(d, o); r.Valid {
		t.Fatalf("completed decision cannot complete twice")
	}
}

func TestCanModifyField(t *testing.T) {
	d, o := completedDecision()
	for _, f := range []string{FieldWhatLearned, FieldLearningConfidence} {
		if r := CanModifyField(d, o, f); !r.Valid {
			t.Fatalf("%s should stay writable: %+v", f, r)
		}
	}
	r := CanModifyField(d, o, FieldTitle)
	if r.Valid || r.Kind != ImmutableFieldViolation || !strings.Contains(r.Error, "Cannot modify title") {
		t.Fatalf("title on completed: %+v", r)
	}
	if r := CanModifyField(decidedDecision(), nil, FieldTitle); !r.Valid {
		t.Fatalf("decided decisions stay editable: %+v", r)
	}
}

func TestValidateUpdateRejectsBackwardTransition(t *testing.T) {
	d, o := completedDecision()
	back := StatusDecided
	r := ValidateUpdate(d, o, Patch{Status: &back})
	if r.Valid || !strings.Contains(r.Error, "Invalid state transition") || r.Kind != InvalidStateTransition {
		t.Fatalf("completed -> decided: %+v", r)
	}
	open := StatusOpen
	r = ValidateUpdate(decidedDecision(), nil, Patch{Status: &open})
	if r.Valid || r.Kind != InvalidStateTransition {
		t.Fatalf("decided -> open: %+v", r)
	}
}

func TestValidateUpdateRejectsTitleOnCompleted(t *testing.T) {
	d, o := completedDecision()
	title := "Rewrite history"
	r := ValidateUpdate(d, o, Patch{Title: &title})
	if r.Valid || !strings.Contains(r.Error, "Cannot modify title") {
		t.Fatalf("title change on completed: %+v", r)
	}
	same := d.Title
	if r := ValidateUpdate(d, o, Patch{Title: &same}); !r.Valid {
		t.Fatalf("unchanged title should pass: %+v", r)
	}
}

func TestValidateUpdateRequiresOutcomeForCompletion(t *testing.T) {
	done := StatusCompleted
	r := ValidateUpdate(decidedDecision(), nil, Patch{Status: &done})
	if r.Valid || r.Kind != MissingOutcomeForCompletion {
		t.Fatalf("complete without outcome: %+v", r)
	}
	r = ValidateUpdate(decidedDecision(), nil, Patch{Status: &done, OutcomeID: Set("out-9")})
	if !r.Valid {
		t.Fatalf("complete with outcome id: %+v", r)
	}
}

func TestValidateUpdateRejectsClearingCommitFields(t *testing.T) {
	r := ValidateUpdate(decidedDecision(), nil, Patch{ChosenOptionID: Clear[string](), DecidedAt: Clear[time.Time]()})
	if r.Valid || r.Kind != InvalidStateTransition {
		t.Fatalf("clearing commit fields: %+v", r)
	}
	r = ValidateUpdate(decidedDecision(), nil, Patch{DecidedAt: Clear[time.Time]()})
	if r.Valid {
		t.Fatalf("clearing decided_at must fail")
	}
}

func TestValidateUpdateCommitFieldsTogether(t *testing.T) {
	r := ValidateUpdate(openDecision(), nil, Patch{ChosenOptionID: Set("opt-1")})
	if r.Valid || r.Kind != PrerequisiteStateViolation {
		t.Fatalf("half commit: %+v", r)
	}
	decided := StatusDecided
	r = ValidateUpdate(openDecision(), nil, Patch{Status: &decided, ChosenOptionID: Set("opt-1"), DecidedAt: Set(decidedAt)})
	if !r.Valid {
		t.Fatalf("commit: %+v", r)
	}
	r = ValidateUpdate(openDecision(), nil, Patch{Status: &decided})
	if r.Valid || r.Kind != PrerequisiteStateViolation {
		t.Fatalf("decided without option: %+v", r)
	}
}

func TestValidateUpdateOutcomeOnOpenDecision(t *testing.T) {
	r := ValidateUpdate(openDecision(), nil, Patch{OutcomeID: Set("o")})
	if r.Valid || r.Kind != PrerequisiteStateViolation {
		t.Fatalf("outcome on open: %+v", r)
	}
}

func TestCompletedIsMonotonic(t *testing.T) {
	d, o := completedDecision()
	title := "x"
	cat := domain.CategoryFinance
	conf := 10
	statuses := []Status{StatusOpen, StatusDecided, StatusCompleted}
	patches := []Patch{
		{Title: &title},
		{Category: &cat},
		{Confidence: Set(conf)},
		{ChosenOptionID: Clear[string]()},
		{DecidedAt: Clear[time.Time]()},
		{OutcomeID: Clear[string]()},
		{ChosenOptionID: Set("other"), DecidedAt: Set(decidedAt.Add(time.Hour))},
		{},
	}
	for _, s := range statuses {
		s := s
		patches = append(patches, Patch{Status: &s}, Patch{Status: &s, OutcomeID: Clear[string]()})
	}
	for i, p := range patches {
		r := ValidateUpdate(d, o, p)
		if !r.Valid {
			continue
		}
		if got := ComputeStatus(p.Apply(d), o); got != StatusCompleted {
			t.Fatalf("patch %d accepted but status became %s", i, got)
		}
		if got := ComputeStatus(p.Apply(d), nil); got != StatusCompleted {
			t.Fatalf("patch %d accepted but stored record is %s", i, got)
		}
	}
}

func TestResultErr(t *testing.T) {
	if err := (Result{Valid: true}).Err(); err != nil {
		t.Fatalf("valid result err = %v", err)
	}
	err := CanLogOutcome(openDecision(), nil).Err()
	if !IsViolation(err, PrerequisiteStateViolation) {
		t.Fatalf("expected prerequisite violation, got %v", err)
	}
	if IsViolation(err, DuplicateOutcome) {
		t.Fatalf("kind mismatch should not match")
	}
}

func TestPatchChanges(t *testing.T) {
	d := decidedDecision()
	title := d.Title
	next := "New"
	got := Patch{Title: &title, Rationale: &next, ChosenOptionID: Set("opt-1")}.Changes(d)
	if len(got) != 1 || got[0] != FieldRationale {
		t.Fatalf("changes = %v", got)
	}
}
