package engine

import (
	"context"
	"errors"
	"fmt"

	"decylo/internal/domain"
	"decylo/internal/events"
	"decylo/internal/indices"
	"decylo/internal/insights"
	"decylo/internal/patterns"
	"decylo/internal/profile"
	"decylo/internal/repo"
)

// history loads everything the analytics need for one user. Only the user's
// own rows are read, so no per-record ownership check is needed here.
func (e Engine) history(ctx context.Context, userID string) (insights.Input, error) {
	if userID == "" {
		return insights.Input{}, errors.New("user id is required")
	}
	settings := insights.DefaultSettings()
	if e.Config != nil {
		settings = e.Config.InsightSettings()
	}
	now := e.today()
	in := insights.Input{UserID: userID, Now: now, Settings: settings}

	var err error
	if in.Decisions, err = e.Repo.ListDecisions(ctx, repo.DecisionFilters{UserID: userID}); err != nil {
		return in, fmt.Errorf("load decisions: %w", err)
	}
	if in.Outcomes, err = e.Repo.ListOutcomes(ctx, userID); err != nil {
		return in, fmt.Errorf("load outcomes: %w", err)
	}
	if in.Options, err = e.Repo.ListUserOptions(ctx, userID); err != nil {
		return in, fmt.Errorf("load options: %w", err)
	}
	lookback := max(settings.TrendLookbackDays, settings.MomentumLookbackDays, 2*indices.MomentumDays)
	since := now.AddDate(0, 0, -lookback).Format(domain.DateLayout)
	if in.Snapshots, err = e.Repo.ListSnapshots(ctx, userID, since, 0); err != nil {
		return in, fmt.Errorf("load snapshots: %w", err)
	}
	in.Streak = insights.Streak(insights.ActivityDates(in.Decisions, in.Outcomes, now.Location()), now)
	return in, nil
}

// report builds today's report and records its snapshot. When a snapshot
// for today already exists it wins and replaces the computed one.
func (e Engine) report(ctx context.Context, in insights.Input) (insights.Report, error) {
	r := insights.Build(in)
	if err := e.EnsureUser(ctx, in.UserID); err != nil {
		return r, err
	}
	inserted, err := e.RecordSnapshot(ctx, r.Snapshot)
	if err != nil {
		return r, err
	}
	if !inserted {
		stored, err := e.Repo.GetSnapshot(ctx, in.UserID, r.Date)
		if err != nil {
			return r, fmt.Errorf("load snapshot: %w", err)
		}
		if stored.HealthScore != r.Snapshot.HealthScore || stored.DHI != r.Snapshot.DHI {
			e.logger().Printf("engine: snapshot %s for %s already recorded; keeping first", r.Date, in.UserID)
		}
		r.Snapshot = stored
	}
	return r, nil
}

// Insights computes the user's analytics report and records today's snapshot.
func (e Engine) Insights(ctx context.Context, userID string) (r insights.Report, err error) {
	ctx, span := e.start(ctx, "insights", userID)
	defer func() { e.finish(span, "insights", err) }()

	in, err := e.history(ctx, userID)
	if err != nil {
		return insights.Report{}, err
	}
	return e.report(ctx, in)
}

// Profile classifies the user's judgment and describes its trajectory.
func (e Engine) Profile(ctx context.Context, userID string) (p profile.Profile, err error) {
	ctx, span := e.start(ctx, "profile", userID)
	defer func() { e.finish(span, "profile", err) }()

	in, err := e.history(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	r, err := e.report(ctx, in)
	if err != nil {
		return profile.Profile{}, err
	}
	return insights.Profile(in, r), nil
}

// Patterns runs the bias and failure detectors over the user's history.
func (e Engine) Patterns(ctx context.Context, userID string) (rep patterns.Report, err error) {
	ctx, span := e.start(ctx, "patterns", userID)
	defer func() { e.finish(span, "patterns", err) }()

	in, err := e.history(ctx, userID)
	if err != nil {
		return patterns.Report{}, err
	}
	return insights.Patterns(in), nil
}

// RecordSnapshot stores s unless the user already has one for s.Date.
func (e Engine) RecordSnapshot(ctx context.Context, s domain.HealthSnapshot) (bool, error) {
	if s.UserID == "" || s.Date == "" {
		return false, errors.New("snapshot user and date are required")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = e.now().UTC()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	inserted, err := e.Repo.InsertSnapshot(ctx, tx, s)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	if !inserted {
		return false, nil
	}
	if err := e.events().Append(ctx, tx, events.SnapshotRecorded, s.UserID, "snapshot", s.Date, events.Payload{
		"health_score": s.HealthScore,
		"dhi":          s.DHI,
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListSnapshots returns the user's snapshots on or after since, oldest first.
func (e Engine) ListSnapshots(ctx context.Context, userID, since string, limit int) ([]domain.HealthSnapshot, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	return e.Repo.ListSnapshots(ctx, userID, since, limit)
}
