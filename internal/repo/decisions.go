package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"decylo/internal/domain"
	"decylo/internal/lifecycle"
)

const decisionColumns = `id,user_id,created_at,date,title,category,COALESCE(context,''),COALESCE(success_criteria,''),
COALESCE(constraints_text,''),COALESCE(risky_assumption,''),chosen_option_id,decided_at,confidence,COALESCE(next_action,''),
next_action_due_date,COALESCE(rationale,''),COALESCE(predicted_positive,''),COALESCE(predicted_negative,''),commitment_confirmed,outcome_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (domain.Decision, error) {
	var (
		d          domain.Decision
		created    string
		chosen     sql.NullString
		decidedAt  sql.NullString
		confidence sql.NullInt64
		due        sql.NullString
		confirmed  int
		outcomeID  sql.NullString
	)
	err := row.Scan(&d.ID, &d.UserID, &created, &d.Date, &d.Title, &d.Category, &d.Context, &d.SuccessCriteria,
		&d.Constraints, &d.RiskyAssumption, &chosen, &decidedAt, &confidence, &d.NextAction,
		&due, &d.Rationale, &d.PredictedPositive, &d.PredictedNegative, &confirmed, &outcomeID)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return d, err
	}
	if chosen.Valid {
		d.ChosenOptionID = &chosen.String
	}
	if decidedAt.Valid {
		t, err := parseTime(decidedAt.String)
		if err != nil {
			return d, err
		}
		d.DecidedAt = &t
	}
	if confidence.Valid {
		c := int(confidence.Int64)
		d.Confidence = &c
	}
	if due.Valid {
		d.NextActionDueDate = &due.String
	}
	d.CommitmentConfirmed = confirmed != 0
	if outcomeID.Valid {
		d.OutcomeID = &outcomeID.String
	}
	return d, nil
}

func (r Repo) InsertDecision(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO decisions(id,user_id,created_at,date,title,category,context,success_criteria,
constraints_text,risky_assumption,chosen_option_id,decided_at,confidence,next_action,next_action_due_date,rationale,
predicted_positive,predicted_negative,commitment_confirmed,outcome_id) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.UserID, formatTime(d.CreatedAt), d.Date, d.Title, string(d.Category), nullable(d.Context), nullable(d.SuccessCriteria),
		nullable(d.Constraints), nullable(d.RiskyAssumption), nullableStringPtr(d.ChosenOptionID), nullableTimePtr(d.DecidedAt),
		nullableIntPtr(d.Confidence), nullable(d.NextAction), nullableStringPtr(d.NextActionDueDate), nullable(d.Rationale),
		nullable(d.PredictedPositive), nullable(d.PredictedNegative), boolInt(d.CommitmentConfirmed), nullableStringPtr(d.OutcomeID))
	return err
}

// UpdateDecision rewrites every mutable column of d.
func (r Repo) UpdateDecision(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE decisions SET title=?,category=?,context=?,success_criteria=?,constraints_text=?,
risky_assumption=?,chosen_option_id=?,decided_at=?,confidence=?,next_action=?,next_action_due_date=?,rationale=?,
predicted_positive=?,predicted_negative=?,commitment_confirmed=?,outcome_id=? WHERE id=?`,
		d.Title, string(d.Category), nullable(d.Context), nullable(d.SuccessCriteria), nullable(d.Constraints),
		nullable(d.RiskyAssumption), nullableStringPtr(d.ChosenOptionID), nullableTimePtr(d.DecidedAt), nullableIntPtr(d.Confidence),
		nullable(d.NextAction), nullableStringPtr(d.NextActionDueDate), nullable(d.Rationale),
		nullable(d.PredictedPositive), nullable(d.PredictedNegative), boolInt(d.CommitmentConfirmed), nullableStringPtr(d.OutcomeID), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDecision(ctx context.Context, tx *sql.Tx, id string) (domain.Decision, error) {
	return scanDecision(r.conn(tx).QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id=?`, id))
}

type DecisionFilters struct {
	UserID   string
	Category domain.Category
	Status   lifecycle.Status
	Limit    int
}

// ListDecisions returns a user's decisions, newest first. Status is derived
// with lifecycle.ComputeStatus, so status filtering happens after the query.
func (r Repo) ListDecisions(ctx context.Context, f DecisionFilters) ([]domain.Decision, error) {
	if f.UserID == "" {
		return nil, errors.New("user id required")
	}
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, string(f.Category))
	}
	query := fmt.Sprintf(`SELECT %s FROM decisions WHERE %s ORDER BY created_at DESC, id DESC`, decisionColumns, strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		if f.Status != "" && lifecycle.ComputeStatus(d, nil) != f.Status {
			continue
		}
		res = append(res, d)
		if f.Limit > 0 && len(res) == f.Limit {
			break
		}
	}
	return res, rows.Err()
}

// Options

func (r Repo) InsertOption(ctx context.Context, tx *sql.Tx, position int, o domain.Option) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO options(id,decision_id,position,label,notes,impact,effort,risk,score) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, o.DecisionID, position, o.Label, nullable(o.Notes), o.Impact, o.Effort, o.Risk, o.Score)
	return err
}

func (r Repo) ListOptions(ctx context.Context, tx *sql.Tx, decisionID string) ([]domain.Option, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT id,decision_id,label,COALESCE(notes,''),impact,effort,risk,score FROM options WHERE decision_id=? ORDER BY position`, decisionID)
	if err != nil {
		return nil, err
	}
	return scanOptions(rows)
}

// ListUserOptions returns every option attached to the user's decisions.
func (r Repo) ListUserOptions(ctx context.Context, userID string) ([]domain.Option, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT o.id,o.decision_id,o.label,COALESCE(o.notes,''),o.impact,o.effort,o.risk,o.score
FROM options o JOIN decisions d ON d.id=o.decision_id WHERE d.user_id=? ORDER BY o.decision_id, o.position`, userID)
	if err != nil {
		return nil, err
	}
	return scanOptions(rows)
}

func scanOptions(rows *sql.Rows) ([]domain.Option, error) {
	defer rows.Close()
	var res []domain.Option
	for rows.Next() {
		var o domain.Option
		if err := rows.Scan(&o.ID, &o.DecisionID, &o.Label, &o.Notes, &o.Impact, &o.Effort, &o.Risk, &o.Score); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
