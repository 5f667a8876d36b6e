package repo

import (
	"context"
	"database/sql"
	"errors"

	"decylo/internal/domain"
)

const outcomeColumns = `id,decision_id,user_id,score,COALESCE(what_happened,''),COALESCE(what_learned,''),learning_confidence,
completed_at,temporal_anchor,COALESCE(counterfactual,''),COALESCE(reflection,'')`

func scanOutcome(row rowScanner) (domain.Outcome, error) {
	var (
		o         domain.Outcome
		score     int
		learning  sql.NullInt64
		completed string
		anchor    sql.NullString
	)
	err := row.Scan(&o.ID, &o.DecisionID, &o.UserID, &score, &o.WhatHappened, &o.WhatLearned, &learning,
		&completed, &anchor, &o.Counterfactual, &o.Reflection)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Score = domain.OutcomeScore(score)
	if learning.Valid {
		v := int(learning.Int64)
		o.LearningConfidence = &v
	}
	if anchor.Valid {
		a := domain.TemporalAnchor(anchor.String)
		o.TemporalAnchor = &a
	}
	o.CompletedAt, err = parseTime(completed)
	return o, err
}

// InsertOutcome stores an outcome. A second outcome for the same decision
// fails with an error for which IsUniqueViolation is true.
func (r Repo) InsertOutcome(ctx context.Context, tx *sql.Tx, o domain.Outcome) error {
	var anchor any
	if o.TemporalAnchor != nil {
		anchor = string(*o.TemporalAnchor)
	}
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO outcomes(id,decision_id,user_id,score,what_happened,what_learned,learning_confidence,
completed_at,temporal_anchor,counterfactual,reflection) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.DecisionID, o.UserID, int(o.Score), nullable(o.WhatHappened), nullable(o.WhatLearned), nullableIntPtr(o.LearningConfidence),
		formatTime(o.CompletedAt), anchor, nullable(o.Counterfactual), nullable(o.Reflection))
	return err
}

// UpdateOutcomeLearning rewrites the post-hoc reflection columns, the only
// ones that stay writable once a decision is completed.
func (r Repo) UpdateOutcomeLearning(ctx context.Context, tx *sql.Tx, o domain.Outcome) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE outcomes SET what_learned=?,learning_confidence=? WHERE id=?`,
		nullable(o.WhatLearned), nullableIntPtr(o.LearningConfidence), o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetOutcomeByDecision(ctx context.Context, tx *sql.Tx, decisionID string) (domain.Outcome, error) {
	return scanOutcome(r.conn(tx).QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE decision_id=?`, decisionID))
}

// ListOutcomes returns a user's outcomes, most recently completed first.
func (r Repo) ListOutcomes(ctx context.Context, userID string) ([]domain.Outcome, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE user_id=? ORDER BY completed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
