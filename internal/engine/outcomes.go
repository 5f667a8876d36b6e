package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"decylo/internal/domain"
	"decylo/internal/events"
	"decylo/internal/lifecycle"
	"decylo/internal/repo"
)

// OutcomeCreateOptions close the loop on a decided decision.
type OutcomeCreateOptions struct {
	UserID             string
	DecisionID         string
	Score              domain.OutcomeScore
	WhatHappened       string
	WhatLearned        string
	LearningConfidence *int
	TemporalAnchor     *domain.TemporalAnchor
	Counterfactual     string
	Reflection         string
}

func validLearningConfidence(v *int) error {
	if v != nil && (*v < 0 || *v > 100) {
		return fmt.Errorf("invalid learning confidence %d: must be between 0 and 100", *v)
	}
	return nil
}

// LogOutcome attaches the single outcome of a decided decision, completing it.
func (e Engine) LogOutcome(ctx context.Context, opts OutcomeCreateOptions) (view DecisionView, err error) {
	ctx, span := e.start(ctx, "log_outcome", opts.UserID)
	defer func() { e.finish(span, "log_outcome", err) }()

	if !opts.Score.Valid() {
		return DecisionView{}, fmt.Errorf("invalid outcome score %d: want -1, 0 or 1", opts.Score)
	}
	if err := validLearningConfidence(opts.LearningConfidence); err != nil {
		return DecisionView{}, err
	}
	if opts.TemporalAnchor != nil && !opts.TemporalAnchor.Valid() {
		return DecisionView{}, fmt.Errorf("invalid temporal anchor %q", *opts.TemporalAnchor)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return DecisionView{}, err
	}
	defer tx.Rollback()
	cur, err := e.loadDecision(ctx, tx, opts.UserID, opts.DecisionID)
	if err != nil {
		return DecisionView{}, err
	}
	if err := lifecycle.CanLogOutcome(cur.Decision, cur.Outcome).Err(); err != nil {
		return DecisionView{}, err
	}
	o := domain.Outcome{
		ID:                 newID(),
		DecisionID:         cur.ID,
		UserID:             cur.UserID,
		Score:              opts.Score,
		WhatHappened:       strings.TrimSpace(opts.WhatHappened),
		WhatLearned:        strings.TrimSpace(opts.WhatLearned),
		LearningConfidence: opts.LearningConfidence,
		CompletedAt:        e.now().UTC(),
		TemporalAnchor:     opts.TemporalAnchor,
		Counterfactual:     strings.TrimSpace(opts.Counterfactual),
		Reflection:         strings.TrimSpace(opts.Reflection),
	}
	if err := lifecycle.CanMarkCompleted(cur.Decision, &o).Err(); err != nil {
		return DecisionView{}, err
	}
	if err := e.Repo.InsertOutcome(ctx, tx, o); err != nil {
		if repo.IsUniqueViolation(err) {
			return DecisionView{}, &lifecycle.Violation{
				Kind:    lifecycle.DuplicateOutcome,
				Message: "Decision already has an outcome; multiple outcomes are not allowed",
			}
		}
		return DecisionView{}, fmt.Errorf("insert outcome: %w", err)
	}
	next := cur.Decision
	next.OutcomeID = &o.ID
	if err := e.Repo.UpdateDecision(ctx, tx, next); err != nil {
		return DecisionView{}, fmt.Errorf("link outcome: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.OutcomeLogged, cur.UserID, "decision", cur.ID, events.Payload{
		"outcome_id": o.ID,
		"score":      o.Score.String(),
	}); err != nil {
		return DecisionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return DecisionView{}, err
	}
	return newView(next, cur.Options, &o), nil
}

// LearningUpdateOptions rewrite the reflection fields of an outcome. Nil
// fields are left alone.
type LearningUpdateOptions struct {
	UserID             string
	DecisionID         string
	WhatLearned        *string
	LearningConfidence *int
}

func (e Engine) UpdateLearning(ctx context.Context, opts LearningUpdateOptions) (outcome domain.Outcome, err error) {
	ctx, span := e.start(ctx, "update_learning", opts.UserID)
	defer func() { e.finish(span, "update_learning", err) }()

	if opts.WhatLearned == nil && opts.LearningConfidence == nil {
		return domain.Outcome{}, errors.New("what_learned or learning_confidence is required")
	}
	if err := validLearningConfidence(opts.LearningConfidence); err != nil {
		return domain.Outcome{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer tx.Rollback()
	cur, err := e.loadDecision(ctx, tx, opts.UserID, opts.DecisionID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if cur.Outcome == nil {
		return domain.Outcome{}, fmt.Errorf("outcome for decision %s: %w", cur.ID, repo.ErrNotFound)
	}
	o := *cur.Outcome
	var fields []string
	if opts.WhatLearned != nil {
		if err := lifecycle.CanModifyField(cur.Decision, cur.Outcome, lifecycle.FieldWhatLearned).Err(); err != nil {
			return domain.Outcome{}, err
		}
		o.WhatLearned = strings.TrimSpace(*opts.WhatLearned)
		fields = append(fields, lifecycle.FieldWhatLearned)
	}
	if opts.LearningConfidence != nil {
		if err := lifecycle.CanModifyField(cur.Decision, cur.Outcome, lifecycle.FieldLearningConfidence).Err(); err != nil {
			return domain.Outcome{}, err
		}
		o.LearningConfidence = opts.LearningConfidence
		fields = append(fields, lifecycle.FieldLearningConfidence)
	}
	if err := e.Repo.UpdateOutcomeLearning(ctx, tx, o); err != nil {
		return domain.Outcome{}, fmt.Errorf("update learning: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.LearningUpdated, cur.UserID, "outcome", o.ID, events.Payload{"fields": fields}); err != nil {
		return domain.Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Outcome{}, err
	}
	return o, nil
}
