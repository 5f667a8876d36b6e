package patterns

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"decylo/internal/domain"
)

type journal struct {
	decisions []domain.Decision
	outcomes  []domain.Outcome
}

func intp(v int) *int { return &v }

func (j *journal) add(cat domain.Category, conf, learning *int, score domain.OutcomeScore) {
	n := len(j.decisions)
	id := fmt.Sprintf("d%d", n)
	opt := fmt.Sprintf("opt%d", n)
	out := fmt.Sprintf("out%d", n)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	j.decisions = append(j.decisions, domain.Decision{
		ID: id, Category: cat, ChosenOptionID: &opt, DecidedAt: &at, Confidence: conf, OutcomeID: &out,
	})
	j.outcomes = append(j.outcomes, domain.Outcome{
		ID: out, DecisionID: id, Score: score, LearningConfidence: learning, CompletedAt: at.Add(48 * time.Hour),
	})
}

func (j *journal) repeat(n int, cat domain.Category, conf *int, score domain.OutcomeScore) {
	for i := 0; i < n; i++ {
		j.add(cat, conf, nil, score)
	}
}

func TestCategoryCalibrationNeedsThreeSamples(t *testing.T) {
	var j journal
	j.add(domain.CategoryCareer, intp(90), intp(60), domain.OutcomeLoss)
	j.add(domain.CategoryCareer, intp(80), intp(50), domain.OutcomeLoss)
	j.add(domain.CategoryCareer, intp(70), nil, domain.OutcomeLoss)
	if got := CategoryCalibration(j.decisions, j.outcomes); len(got) != 0 {
		t.Fatalf("two samples should not surface: %+v", got)
	}
	j.add(domain.CategoryCareer, intp(50), intp(52), domain.OutcomeWin)
	got := CategoryCalibration(j.decisions, j.outcomes)
	if len(got) != 1 {
		t.Fatalf("biases = %+v", got)
	}
	b := got[0]
	if b.Samples != 3 || b.Direction != DirectionOver || b.Overestimates != 2 {
		t.Fatalf("bias = %+v", b)
	}
	if want := (30.0 + 30 + 2) / 3; b.AvgGap != want {
		t.Fatalf("avg gap = %v, want %v", b.AvgGap, want)
	}
}

func TestCategoryCalibrationUnderAndBalanced(t *testing.T) {
	var j journal
	for i := 0; i < 3; i++ {
		j.add(domain.CategoryHealth, intp(40), intp(70), domain.OutcomeWin)
	}
	j.add(domain.CategoryFinance, intp(80), intp(60), domain.OutcomeWin)
	j.add(domain.CategoryFinance, intp(60), intp(80), domain.OutcomeWin)
	j.add(domain.CategoryFinance, intp(60), intp(60), domain.OutcomeWin)
	got := CategoryCalibration(j.decisions, j.outcomes)
	dirs := map[domain.Category]Direction{}
	for _, b := range got {
		dirs[b.Category] = b.Direction
	}
	if dirs[domain.CategoryHealth] != DirectionUnder || dirs[domain.CategoryFinance] != DirectionBalanced {
		t.Fatalf("directions = %v", dirs)
	}
}

func TestCategoryFailuresSeverity(t *testing.T) {
	cases := []struct {
		losses, wins int
		want         Severity
		flagged      bool
	}{
		{2, 3, "", false},
		{3, 2, SeverityMedium, true},
		{4, 1, SeverityHigh, true},
		{3, 3, SeverityLow, true},
		{11, 9, SeverityMedium, true},
		{9, 11, SeverityLow, true},
		{2, 1, "", false},
		{2, 4, "", false},
	}
	for _, tc := range cases {
		var j journal
		j.repeat(tc.losses, domain.CategoryFinance, nil, domain.OutcomeLoss)
		j.repeat(tc.wins, domain.CategoryFinance, nil, domain.OutcomeWin)
		got := CategoryFailures(j.decisions, j.outcomes)
		if !tc.flagged {
			if len(got) != 0 {
				t.Fatalf("%d/%d should not flag: %+v", tc.losses, tc.wins, got)
			}
			continue
		}
		if len(got) != 1 || got[0].Severity != tc.want {
			t.Fatalf("%d/%d = %+v, want %s", tc.losses, tc.wins, got, tc.want)
		}
	}
}

func TestHighConfidenceFailures(t *testing.T) {
	var j journal
	j.repeat(3, domain.CategoryCareer, intp(90), domain.OutcomeLoss)
	j.repeat(1, domain.CategoryCareer, intp(85), domain.OutcomeWin)
	j.repeat(1, domain.CategoryHealth, intp(80), domain.OutcomeLoss)
	j.repeat(4, domain.CategoryHealth, intp(79), domain.OutcomeLoss)
	got := HighConfidenceFailures(j.decisions, j.outcomes)
	if len(got) != 1 {
		t.Fatalf("patterns = %+v", got)
	}
	p := got[0]
	if p.Category != "" || p.Samples != 5 || p.Losses != 4 || p.Severity != SeverityHigh {
		t.Fatalf("overall pattern = %+v", p)
	}

	j.repeat(2, domain.CategoryCareer, intp(95), domain.OutcomeWin)
	got = HighConfidenceFailures(j.decisions, j.outcomes)
	var perCategory *Pattern
	for i := range got {
		if got[i].Category == domain.CategoryCareer {
			perCategory = &got[i]
		}
	}
	if perCategory == nil || perCategory.Samples != 6 || perCategory.Severity != SeverityMedium {
		t.Fatalf("career pattern missing or wrong: %+v", got)
	}
}

func TestDetectSortsWarningsBySeverity(t *testing.T) {
	var j journal
	j.repeat(3, domain.CategoryLearning, nil, domain.OutcomeLoss)
	j.repeat(3, domain.CategoryLearning, nil, domain.OutcomeWin)
	for i := 0; i < 3; i++ {
		j.add(domain.CategoryHealth, intp(90), intp(40), domain.OutcomeWin)
	}
	j.repeat(5, domain.CategoryFinance, intp(90), domain.OutcomeLoss)
	r := Detect(j.decisions, j.outcomes)
	if len(r.Warnings) < 3 {
		t.Fatalf("warnings = %+v", r.Warnings)
	}
	for i := 1; i < len(r.Warnings); i++ {
		if r.Warnings[i-1].Severity.rank() > r.Warnings[i].Severity.rank() {
			t.Fatalf("warnings not sorted: %+v", r.Warnings)
		}
	}
	if r.Warnings[0].Severity != SeverityHigh {
		t.Fatalf("first warning = %+v", r.Warnings[0])
	}
	last := r.Warnings[len(r.Warnings)-1]
	if last.Kind != KindCategoryFailure || !strings.Contains(last.Message, "Learning") {
		t.Fatalf("last warning = %+v", last)
	}
	var bias *Warning
	for i := range r.Warnings {
		if r.Warnings[i].Kind == KindCalibrationBias {
			bias = &r.Warnings[i]
		}
	}
	if bias == nil || bias.Message != "You tend to overestimate Health outcomes (average gap 50 points over 3 decisions)" {
		t.Fatalf("bias warning = %+v", bias)
	}
}

func TestDetectEmpty(t *testing.T) {
	r := Detect(nil, nil)
	if len(r.Warnings) != 0 || len(r.Patterns) != 0 || len(r.Biases) != 0 {
		t.Fatalf("empty report = %+v", r)
	}
}
