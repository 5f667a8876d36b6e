package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"decylo/internal/config"
	"decylo/internal/db"
	"decylo/internal/domain"
	"decylo/internal/engine"
	"decylo/internal/engine/auth"
	"decylo/internal/events"
	"decylo/internal/lifecycle"
	"decylo/internal/migrate"
	"decylo/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return testNow }
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createDecision(t *testing.T, userID string) engine.DecisionView {
	t.Helper()
	d, err := env.Engine.CreateDecision(env.Ctx, engine.DecisionCreateOptions{
		UserID:   userID,
		Title:    "Take the new job?",
		Category: domain.CategoryCareer,
		Options: []engine.OptionInput{
			{Label: "Stay", Impact: 5, Effort: 5, Risk: 5},
			{Label: "Move", Impact: 8, Effort: 3, Risk: 2},
		},
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	return d
}

func (env testEnv) commit(t *testing.T, d engine.DecisionView, confidence int) engine.DecisionView {
	t.Helper()
	out, err := env.Engine.CommitDecision(env.Ctx, engine.CommitOptions{
		UserID:     d.UserID,
		DecisionID: d.ID,
		OptionID:   d.Options[1].ID,
		Confidence: confidence,
		Rationale:  "better growth",
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return out
}

func TestCreateDecisionScoresOptions(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDecision(t, "alice")
	if d.Status != lifecycle.StatusOpen {
		t.Fatalf("expected open, got %s", d.Status)
	}
	if d.Date != "2024-03-10" {
		t.Fatalf("unexpected date %s", d.Date)
	}
	if d.Options[0].Score != 55 || d.Options[1].Score != 82 {
		t.Fatalf("unexpected scores %d %d", d.Options[0].Score, d.Options[1].Score)
	}
	if d.SuggestedOptionID != d.Options[1].ID {
		t.Fatalf("expected Move suggested, got %s", d.SuggestedOptionID)
	}
	got, err := env.Engine.GetDecision(env.Ctx, "alice", d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Options) != 2 || got.Options[0].Label != "Stay" {
		t.Fatalf("options not stored in order: %+v", got.Options)
	}
}

func TestCreateDecisionValidation(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Journal.Categories = []domain.Category{domain.CategoryCareer}
	two := []engine.OptionInput{{Label: "a", Impact: 1, Effort: 1, Risk: 1}, {Label: "b", Impact: 1, Effort: 1, Risk: 1}}
	cases := []struct {
		name string
		opts engine.DecisionCreateOptions
	}{
		{"missing title", engine.DecisionCreateOptions{Category: domain.CategoryCareer, Options: two}},
		{"category not enabled", engine.DecisionCreateOptions{Title: "x", Category: domain.CategoryHealth, Options: two}},
		{"unknown category", engine.DecisionCreateOptions{Title: "x", Category: "hobbies", Options: two}},
		{"too few options", engine.DecisionCreateOptions{Title: "x", Category: domain.CategoryCareer, Options: two[:1]}},
		{"rating out of range", engine.DecisionCreateOptions{Title: "x", Category: domain.CategoryCareer, Options: []engine.OptionInput{
			{Label: "a", Impact: 11, Effort: 1, Risk: 1}, {Label: "b", Impact: 1, Effort: 1, Risk: 1},
		}}},
		{"blank option label", engine.DecisionCreateOptions{Title: "x", Category: domain.CategoryCareer, Options: []engine.OptionInput{
			{Label: " ", Impact: 1, Effort: 1, Risk: 1}, {Label: "b", Impact: 1, Effort: 1, Risk: 1},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.UserID = "alice"
			if _, err := env.Engine.CreateDecision(env.Ctx, tc.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecisionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDecision(t, "alice")

	if _, err := env.Engine.LogOutcome(env.Ctx, engine.OutcomeCreateOptions{UserID: "alice", DecisionID: d.ID, Score: domain.OutcomeWin}); !lifecycle.IsViolation(err, lifecycle.PrerequisiteStateViolation) {
		t.Fatalf("expected prerequisite violation for open decision, got %v", err)
	}

	d = env.commit(t, d, 80)
	if d.Status != lifecycle.StatusDecided || d.DecidedAt == nil || *d.Confidence != 80 {
		t.Fatalf("unexpected committed decision: %+v", d)
	}

	learned := 60
	d, err := env.Engine.LogOutcome(env.Ctx, engine.OutcomeCreateOptions{
		UserID:             "alice",
		DecisionID:         d.ID,
		Score:              domain.OutcomeWin,
		WhatHappened:       "promoted",
		LearningConfidence: &learned,
	})
	if err != nil {
		t.Fatalf("log outcome: %v", err)
	}
	if d.Status != lifecycle.StatusCompleted || d.OutcomeID == nil || d.Outcome == nil {
		t.Fatalf("expected completed decision with outcome, got %+v", d)
	}

	if _, err := env.Engine.LogOutcome(env.Ctx, engine.OutcomeCreateOptions{UserID: "alice", DecisionID: d.ID, Score: domain.OutcomeLoss}); !lifecycle.IsViolation(err, lifecycle.DuplicateOutcome) {
		t.Fatalf("expected duplicate outcome, got %v", err)
	}

	title := "Renamed"
	if _, err := env.Engine.UpdateDecision(env.Ctx, engine.DecisionUpdateOptions{UserID: "alice", DecisionID: d.ID, Patch: lifecycle.Patch{Title: &title}}); !lifecycle.IsViolation(err, lifecycle.ImmutableFieldViolation) {
		t.Fatalf("expected immutable field violation, got %v", err)
	}

	lesson := "ask for the offer in writing"
	conf := 75
	o, err := env.Engine.UpdateLearning(env.Ctx, engine.LearningUpdateOptions{UserID: "alice", DecisionID: d.ID, WhatLearned: &lesson, LearningConfidence: &conf})
	if err != nil {
		t.Fatalf("update learning: %v", err)
	}
	if o.WhatLearned != lesson || *o.LearningConfidence != 75 || o.WhatHappened != "promoted" {
		t.Fatalf("unexpected outcome after learning update: %+v", o)
	}
}

func TestConcurrentOutcomesKeepOne(t *testing.T) {
	env := newTestEnv(t)
	d := env.commit(t, env.createDecision(t, "alice"), 70)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.LogOutcome(env.Ctx, engine.OutcomeCreateOptions{UserID: "alice", DecisionID: d.ID, Score: domain.OutcomeWin})
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case lifecycle.IsViolation(err, lifecycle.DuplicateOutcome):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != writers-1 {
		t.Fatalf("expected 1 outcome and %d duplicates, got %d and %d", writers-1, ok, dup)
	}

	logged, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{UserID: "alice", Type: events.OutcomeLogged, EntityID: d.ID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(logged) != 1 {
		t.Fatalf("expected one outcome.logged event, got %d", len(logged))
	}
}

func TestCommitValidation(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDecision(t, "alice")
	other := env.createDecision(t, "alice")

	_, err := env.Engine.CommitDecision(env.Ctx, engine.CommitOptions{UserID: "alice", DecisionID: d.ID, OptionID: other.Options[0].ID, Confidence: 50})
	if err == nil {
		t.Fatalf("expected foreign option to be rejected")
	}
	_, err = env.Engine.CommitDecision(env.Ctx, engine.CommitOptions{UserID: "alice", DecisionID: d.ID, OptionID: d.Options[0].ID, Confidence: 101})
	if err == nil {
		t.Fatalf("expected confidence out of range to be rejected")
	}
	_, err = env.Engine.CommitDecision(env.Ctx, engine.CommitOptions{UserID: "alice", DecisionID: d.ID, OptionID: d.Options[0].ID, Confidence: 50, NextActionDueDate: "next week"})
	if err == nil {
		t.Fatalf("expected bad due date to be rejected")
	}
}

func TestOwnershipIsEnforced(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDecision(t, "alice")

	var fe auth.ForbiddenError
	if _, err := env.Engine.GetDecision(env.Ctx, "mallory", d.ID); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err := env.Engine.CommitDecision(env.Ctx, engine.CommitOptions{UserID: "mallory", DecisionID: d.ID, OptionID: d.Options[0].ID, Confidence: 50})
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden commit, got %v", err)
	}
	if _, err := env.Engine.GetDecision(env.Ctx, "alice", "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateDecisionDryRun(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDecision(t, "alice")
	title := "Take the offer from Acme?"
	res, err := env.Engine.UpdateDecision(env.Ctx, engine.DecisionUpdateOptions{
		UserID:     "alice",
		DecisionID: d.ID,
		Patch:      lifecycle.Patch{Title: &title},
		DryRun:     true,
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if res.Applied || res.After.Title != title || len(res.Changed) != 1 || res.Changed[0] != lifecycle.FieldTitle {
		t.Fatalf("unexpected dry run result: %+v", res)
	}
	got, _ := env.Engine.GetDecision(env.Ctx, "alice", d.ID)
	if got.Title != d.Title {
		t.Fatalf("dry run persisted title %q", got.Title)
	}

	res, err = env.Engine.UpdateDecision(env.Ctx, engine.DecisionUpdateOptions{UserID: "alice", DecisionID: d.ID, Patch: lifecycle.Patch{Title: &title}})
	if err != nil || !res.Applied {
		t.Fatalf("update: %v %+v", err, res)
	}
	got, _ = env.Engine.GetDecision(env.Ctx, "alice", d.ID)
	if got.Title != title {
		t.Fatalf("title not persisted: %q", got.Title)
	}
}

func TestCheckUpdate(t *testing.T) {
	env := newTestEnv(t)
	d := env.commit(t, env.createDecision(t, "alice"), 70)

	open := lifecycle.StatusOpen
	res, err := env.Engine.CheckUpdate(env.Ctx, "alice", d.ID, lifecycle.Patch{Status: &open})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Valid || res.Kind != lifecycle.InvalidStateTransition {
		t.Fatalf("expected invalid transition, got %+v", res)
	}

	completed := lifecycle.StatusCompleted
	res, _ = env.Engine.CheckUpdate(env.Ctx, "alice", d.ID, lifecycle.Patch{Status: &completed})
	if res.Valid || res.Kind != lifecycle.MissingOutcomeForCompletion {
		t.Fatalf("expected missing outcome, got %+v", res)
	}

	next := "call the recruiter"
	res, _ = env.Engine.CheckUpdate(env.Ctx, "alice", d.ID, lifecycle.Patch{NextAction: &next})
	if !res.Valid {
		t.Fatalf("expected valid patch, got %+v", res)
	}
}

func TestListDecisionsByStatus(t *testing.T) {
	env := newTestEnv(t)
	env.createDecision(t, "alice")
	decided := env.commit(t, env.createDecision(t, "alice"), 60)
	env.createDecision(t, "bob")

	all, err := env.Engine.ListDecisions(env.Ctx, repo.DecisionFilters{UserID: "alice"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 decisions for alice, got %d", len(all))
	}
	only, err := env.Engine.ListDecisions(env.Ctx, repo.DecisionFilters{UserID: "alice", Status: lifecycle.StatusDecided})
	if err != nil {
		t.Fatalf("list decided: %v", err)
	}
	if len(only) != 1 || only[0].ID != decided.ID || len(only[0].Options) != 2 {
		t.Fatalf("unexpected decided list: %+v", only)
	}
	if _, err := env.Engine.ListDecisions(env.Ctx, repo.DecisionFilters{UserID: "alice", Status: "archived"}); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestInsightsRecordsDailySnapshot(t *testing.T) {
	env := newTestEnv(t)
	d := env.commit(t, env.createDecision(t, "alice"), 80)
	learned := 70
	if _, err := env.Engine.LogOutcome(env.Ctx, engine.OutcomeCreateOptions{UserID: "alice", DecisionID: d.ID, Score: domain.OutcomeWin, LearningConfidence: &learned}); err != nil {
		t.Fatalf("log outcome: %v", err)
	}
	env.createDecision(t, "alice")

	r, err := env.Engine.Insights(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	if r.Counts.Total != 2 || r.Counts.Completed != 1 || r.Counts.Open != 1 {
		t.Fatalf("unexpected counts %+v", r.Counts)
	}
	if r.Streak != 1 || r.Snapshot.Date != "2024-03-10" {
		t.Fatalf("unexpected streak/snapshot: %d %s", r.Streak, r.Snapshot.Date)
	}
	if r.Health.CalibrationGap != 10 {
		t.Fatalf("expected calibration gap 10, got %v", r.Health.CalibrationGap)
	}

	// A second run the same day keeps the first snapshot.
	env.createDecision(t, "alice")
	if _, err := env.Engine.Insights(env.Ctx, "alice"); err != nil {
		t.Fatalf("insights again: %v", err)
	}
	snaps, err := env.Engine.ListSnapshots(env.Ctx, "alice", "", 0)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].HealthScore != r.Snapshot.HealthScore {
		t.Fatalf("expected one snapshot, got %+v", snaps)
	}

	p, err := env.Engine.Profile(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Archetype == "" || p.Narrative.Headline == "" {
		t.Fatalf("profile not classified: %+v", p)
	}
	if len(p.Strengths) != 1 || p.Strengths[0].Category != domain.CategoryCareer {
		t.Fatalf("unexpected strengths: %+v", p.Strengths)
	}
}

func TestPatternsForEmptyJournal(t *testing.T) {
	env := newTestEnv(t)
	rep, err := env.Engine.Patterns(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	if len(rep.Warnings) != 0 || len(rep.Patterns) != 0 {
		t.Fatalf("expected no findings, got %+v", rep)
	}
}

func TestWritesAppendEvents(t *testing.T) {
	env := newTestEnv(t)
	d := env.commit(t, env.createDecision(t, "alice"), 80)
	if _, err := env.Engine.LogOutcome(env.Ctx, engine.OutcomeCreateOptions{UserID: "alice", DecisionID: d.ID, Score: domain.OutcomeNeutral}); err != nil {
		t.Fatalf("log outcome: %v", err)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{UserID: "alice"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []string{events.OutcomeLogged, events.DecisionCommitted, events.DecisionCreated, events.UserCreated}
	if len(evts) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), evts)
	}
	for i, typ := range want {
		if evts[i].Type != typ {
			t.Fatalf("event %d: want %s got %s", i, typ, evts[i].Type)
		}
	}
}

func TestCreateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key, plain, err := env.Engine.CreateAPIKey(env.Ctx, "alice", "laptop")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if plain == "" || key.KeyHash != repo.HashAPIKey(plain) {
		t.Fatalf("stored hash does not match plaintext")
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	if err != nil || got.UserID != "alice" {
		t.Fatalf("lookup by hash: %v %+v", err, got)
	}
	keys, err := env.Engine.ListAPIKeys(env.Ctx, "alice")
	if err != nil || len(keys) != 1 || keys[0].Name != "laptop" {
		t.Fatalf("list keys: %v %+v", err, keys)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, "bob", key.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoke as other user: expected not found, got %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, "alice", key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}
}
