// Package auth enforces record ownership before records reach the
// lifecycle and analytics code.
package auth

import (
	"context"
	"database/sql"
	"fmt"

	"decylo/internal/domain"
	"decylo/internal/repo"
)

// ForbiddenError indicates the caller does not own the record.
type ForbiddenError struct {
	Kind string
	ID   string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s %s belongs to another user", e.Kind, e.ID)
}

// OwnsDecision returns a ForbiddenError unless userID owns d.
func OwnsDecision(userID string, d domain.Decision) error {
	if userID == "" || d.UserID != userID {
		return ForbiddenError{Kind: "decision", ID: d.ID}
	}
	return nil
}

// OwnsOutcome returns a ForbiddenError unless userID owns o.
func OwnsOutcome(userID string, o domain.Outcome) error {
	if userID == "" || o.UserID != userID {
		return ForbiddenError{Kind: "outcome", ID: o.ID}
	}
	return nil
}

// Service loads records on behalf of a user.
type Service struct {
	Repo repo.Repo
}

// Decision loads a decision inside tx (or the pool when tx is nil) and checks
// ownership. Missing records surface as repo.ErrNotFound.
func (s Service) Decision(ctx context.Context, tx *sql.Tx, userID, id string) (domain.Decision, error) {
	d, err := s.Repo.GetDecision(ctx, tx, id)
	if err != nil {
		return domain.Decision{}, err
	}
	if err := OwnsDecision(userID, d); err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

// Outcome loads the outcome logged for decisionID and checks ownership.
func (s Service) Outcome(ctx context.Context, tx *sql.Tx, userID, decisionID string) (domain.Outcome, error) {
	o, err := s.Repo.GetOutcomeByDecision(ctx, tx, decisionID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if err := OwnsOutcome(userID, o); err != nil {
		return domain.Outcome{}, err
	}
	return o, nil
}
