// Package insights assembles the analytics report for one user from records
// already fetched and ownership-checked by the engine.
package insights

import (
	"time"

	"golang.org/x/text/language"

	"decylo/internal/calibration"
	"decylo/internal/domain"
	"decylo/internal/indices"
	"decylo/internal/lifecycle"
	"decylo/internal/patterns"
	"decylo/internal/profile"
)

// Settings are the configurable lookbacks, in days.
type Settings struct {
	GrowthWindowDays     int
	TrendLookbackDays    int
	MomentumLookbackDays int
	// Language is the narrative locale.
	Language language.Tag
}

func DefaultSettings() Settings {
	return Settings{GrowthWindowDays: 14, TrendLookbackDays: 7, MomentumLookbackDays: 14, Language: language.English}
}

type Input struct {
	UserID    string
	Decisions []domain.Decision
	Outcomes  []domain.Outcome
	Options   []domain.Option
	// Snapshots are earlier daily rollups, any order.
	Snapshots []domain.HealthSnapshot
	Streak    int
	// Now is the current instant in the user's time zone.
	Now      time.Time
	Settings Settings
}

type Counts struct {
	Total     int `json:"total"`
	Open      int `json:"open"`
	Decided   int `json:"decided"`
	Completed int `json:"completed"`
}

type Report struct {
	UserID                string                      `json:"user_id"`
	Date                  string                      `json:"date" format:"date"`
	Counts                Counts                      `json:"counts"`
	Ratios                calibration.Ratios          `json:"ratios"`
	DQI                   float64                     `json:"dqi"`
	CategoryDQI           map[domain.Category]float64 `json:"category_dqi"`
	JudgmentGrowthRate    float64                     `json:"judgment_growth_rate"`
	ConfidenceCalibration float64                     `json:"confidence_calibration"`
	Signals               indices.Signals             `json:"signals"`
	DHI                   int                         `json:"dhi"`
	Health                calibration.Health          `json:"health"`
	Trend                 calibration.Trend           `json:"trend"`
	Streak                int                         `json:"streak"`
	// Snapshot is today's rollup derived from this report.
	Snapshot domain.HealthSnapshot `json:"snapshot"`
}

// Build computes the report. It never fails; missing history falls back to
// the neutral values of the underlying metrics.
func Build(in Input) Report {
	s := in.Settings
	if s.GrowthWindowDays <= 0 || s.TrendLookbackDays <= 0 || s.MomentumLookbackDays <= 0 {
		s = DefaultSettings()
	}
	today := in.Now.Format(domain.DateLayout)
	history := indexSnapshots(in.Snapshots)

	closed := calibration.LoopOutcomes(calibration.ClosedLoops(in.Decisions, in.Outcomes))
	r := Report{
		UserID:                in.UserID,
		Date:                  today,
		Counts:                countStatuses(in.Decisions, in.Outcomes),
		Ratios:                calibration.OutcomeRatios(closed),
		DQI:                   calibration.DQI(closed),
		CategoryDQI:           map[domain.Category]float64{},
		ConfidenceCalibration: calibration.ConfidenceCalibration(in.Decisions, in.Outcomes),
		Streak:                in.Streak,
	}
	for _, c := range domain.Categories {
		if len(calibration.FilterCategory(in.Decisions, c)) == 0 {
			continue
		}
		r.CategoryDQI[c] = calibration.CategoryDQI(in.Decisions, in.Outcomes, c)
	}
	recent, previous := calibration.TrailingWindows(in.Now, s.GrowthWindowDays)
	r.JudgmentGrowthRate = calibration.JudgmentGrowthRate(closed, recent, previous)

	r.Health = calibration.DecisionHealth(calibration.HealthInput{
		Decisions: in.Decisions,
		Outcomes:  in.Outcomes,
		Streak:    in.Streak,
	})
	var weekAgo *int
	if snap, ok := history[daysBefore(in.Now, s.TrendLookbackDays)]; ok {
		weekAgo = &snap.HealthScore
	}
	r.Trend = calibration.HealthTrend(r.Health.Score, weekAgo)

	var past *float64
	if snap, ok := history[daysBefore(in.Now, s.MomentumLookbackDays)]; ok {
		v := float64(snap.HealthScore)
		past = &v
	}
	r.Signals = indices.Signals{
		PA: calibration.PredictionAccuracy(in.Decisions, in.Outcomes),
		FT: calibration.FollowThrough(in.Decisions, in.Outcomes),
		RI: calibration.RiskIntelligence(in.Decisions, in.Outcomes, calibration.RisksFromOptions(in.Options)),
		GM: calibration.GrowthMomentum(float64(r.Health.Score), past, s.MomentumLookbackDays),
	}
	r.DHI = indices.DHI(r.Signals)

	r.Snapshot = domain.HealthSnapshot{
		UserID:         in.UserID,
		Date:           today,
		HealthScore:    r.Health.Score,
		WinRate:        r.Health.WinRate,
		CalibrationGap: r.Health.CalibrationGap,
		CompletionRate: r.Health.CompletionRate,
		Streak:         in.Streak,
		DHI:            r.DHI,
		PA:             r.Signals.PA,
		FT:             r.Signals.FT,
		RI:             r.Signals.RI,
		GM:             r.Signals.GM,
		CreatedAt:      in.Now.UTC(),
	}
	return r
}

// Profile builds the judgment profile on top of a report. Today's DHI joins
// the snapshot series unless a snapshot for today already exists.
func Profile(in Input, r Report) profile.Profile {
	series := DHISeries(in.Snapshots, in.Now.Location())
	if _, ok := indexSnapshots(in.Snapshots)[r.Date]; !ok {
		series = append(series, indices.DailyValue{Date: in.Now, Value: float64(r.DHI)})
	}
	return profile.Build(profile.Input{
		Signals:    r.Signals,
		Decisions:  in.Decisions,
		Outcomes:   in.Outcomes,
		DHIHistory: series,
		Now:        in.Now,
		Language:   in.Settings.Language,
	})
}

// Patterns runs the bias and failure detectors.
func Patterns(in Input) patterns.Report {
	return patterns.Detect(in.Decisions, in.Outcomes)
}

// DHISeries turns snapshots into a daily DHI series at noon in loc.
// Snapshots with an unparsable date are skipped.
func DHISeries(snaps []domain.HealthSnapshot, loc *time.Location) []indices.DailyValue {
	out := make([]indices.DailyValue, 0, len(snaps))
	for _, s := range snaps {
		day, err := time.ParseInLocation(domain.DateLayout, s.Date, loc)
		if err != nil {
			continue
		}
		out = append(out, indices.DailyValue{Date: day.Add(12 * time.Hour), Value: float64(s.DHI)})
	}
	return out
}

func countStatuses(decisions []domain.Decision, outcomes []domain.Outcome) Counts {
	byDecision := map[string]*domain.Outcome{}
	for i := range outcomes {
		if _, ok := byDecision[outcomes[i].DecisionID]; !ok {
			byDecision[outcomes[i].DecisionID] = &outcomes[i]
		}
	}
	c := Counts{Total: len(decisions)}
	for _, d := range decisions {
		switch lifecycle.ComputeStatus(d, byDecision[d.ID]) {
		case lifecycle.StatusOpen:
			c.Open++
		case lifecycle.StatusDecided:
			c.Decided++
		case lifecycle.StatusCompleted:
			c.Completed++
		}
	}
	return c
}

func indexSnapshots(snaps []domain.HealthSnapshot) map[string]domain.HealthSnapshot {
	out := make(map[string]domain.HealthSnapshot, len(snaps))
	for _, s := range snaps {
		out[s.Date] = s
	}
	return out
}

func daysBefore(now time.Time, days int) string {
	return now.AddDate(0, 0, -days).Format(domain.DateLayout)
}
