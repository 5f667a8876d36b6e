package server

import (
	"encoding/json"
	"time"

	"decylo/internal/domain"
	"decylo/internal/engine"
	"decylo/internal/insights"
	"decylo/internal/lifecycle"
	"decylo/internal/patterns"
	"decylo/internal/scoring"
)

// Request payloads

type OptionRequest struct {
	Label  string `json:"label" minLength:"1"`
	Notes  string `json:"notes,omitempty"`
	Impact int    `json:"impact" minimum:"1" maximum:"10"`
	Effort int    `json:"effort" minimum:"1" maximum:"10"`
	Risk   int    `json:"risk" minimum:"1" maximum:"10"`
}

type CreateDecisionRequest struct {
	Title           string          `json:"title"`
	Category        string          `json:"category,omitempty" enum:"career,finance,health,relationships,learning,lifestyle,other"`
	Context         string          `json:"context,omitempty"`
	SuccessCriteria string          `json:"success_criteria,omitempty"`
	Constraints     string          `json:"constraints,omitempty"`
	RiskyAssumption string          `json:"risky_assumption,omitempty"`
	Options         []OptionRequest `json:"options"`
}

type CommitDecisionRequest struct {
	OptionID            string `json:"option_id"`
	Confidence          int    `json:"confidence" minimum:"0" maximum:"100"`
	Rationale           string `json:"rationale,omitempty"`
	NextAction          string `json:"next_action,omitempty"`
	NextActionDueDate   string `json:"next_action_due_date,omitempty" format:"date"`
	PredictedPositive   string `json:"predicted_positive,omitempty"`
	PredictedNegative   string `json:"predicted_negative,omitempty"`
	CommitmentConfirmed bool   `json:"commitment_confirmed,omitempty"`
}

// UpdateDecisionRequest is a partial update. Absent fields are left alone;
// an explicit null clears the nullable ones.
type UpdateDecisionRequest struct {
	Status              *string    `json:"status,omitempty" enum:"open,decided,completed"`
	Title               *string    `json:"title,omitempty"`
	Category            *string    `json:"category,omitempty" enum:"career,finance,health,relationships,learning,lifestyle,other"`
	Context             *string    `json:"context,omitempty"`
	SuccessCriteria     *string    `json:"success_criteria,omitempty"`
	Constraints         *string    `json:"constraints,omitempty"`
	RiskyAssumption     *string    `json:"risky_assumption,omitempty"`
	ChosenOptionID      *string    `json:"chosen_option_id,omitempty"`
	DecidedAt           *time.Time `json:"decided_at,omitempty"`
	Confidence          *int       `json:"confidence,omitempty"`
	NextAction          *string    `json:"next_action,omitempty"`
	NextActionDueDate   *string    `json:"next_action_due_date,omitempty"`
	Rationale           *string    `json:"rationale,omitempty"`
	PredictedPositive   *string    `json:"predicted_positive,omitempty"`
	PredictedNegative   *string    `json:"predicted_negative,omitempty"`
	CommitmentConfirmed *bool      `json:"commitment_confirmed,omitempty"`
	OutcomeID           *string    `json:"outcome_id,omitempty"`
}

type LogOutcomeRequest struct {
	Score              int     `json:"score" enum:"-1,0,1"`
	WhatHappened       string  `json:"what_happened,omitempty"`
	WhatLearned        string  `json:"what_learned,omitempty"`
	LearningConfidence *int    `json:"learning_confidence,omitempty" minimum:"0" maximum:"100"`
	TemporalAnchor     *string `json:"temporal_anchor,omitempty" enum:"one_week,one_month,three_months,six_months,one_year"`
	Counterfactual     string  `json:"counterfactual,omitempty"`
	Reflection         string  `json:"reflection,omitempty"`
}

type UpdateLearningRequest struct {
	WhatLearned        *string `json:"what_learned,omitempty"`
	LearningConfidence *int    `json:"learning_confidence,omitempty" minimum:"0" maximum:"100"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Responses

type DevLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Source string `json:"source" enum:"jwt,api_key,legacy_header"`
}

type OptionResponse struct {
	domain.Option
	// DisplayScore is Score on the 1.0-10.0 scale.
	DisplayScore float64 `json:"display_score"`
}

type DecisionResponse struct {
	domain.Decision
	Status            string           `json:"status" enum:"open,decided,completed"`
	Options           []OptionResponse `json:"options"`
	Outcome           *domain.Outcome  `json:"outcome,omitempty"`
	SuggestedOptionID string           `json:"suggested_option_id,omitempty"`
}

type UpdateDecisionResponse struct {
	Before  DecisionResponse `json:"before"`
	After   DecisionResponse `json:"after"`
	Changed []string         `json:"changed"`
	Applied bool             `json:"applied"`
}

// InsightsResponse and PatternsResponse give the two Report types distinct
// schema names.
type InsightsResponse struct {
	insights.Report
}

type PatternsResponse struct {
	patterns.Report
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedDecisions struct {
	Items []DecisionResponse `json:"items"`
}

type paginatedSnapshots struct {
	Items []domain.HealthSnapshot `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func decisionResponse(v engine.DecisionView) DecisionResponse {
	res := DecisionResponse{
		Decision:          v.Decision,
		Status:            string(v.Status),
		Options:           make([]OptionResponse, 0, len(v.Options)),
		Outcome:           v.Outcome,
		SuggestedOptionID: v.SuggestedOptionID,
	}
	for _, o := range v.Options {
		res.Options = append(res.Options, OptionResponse{Option: o, DisplayScore: scoring.FormatForDisplay(o.Score)})
	}
	return res
}

func decisionResponses(items []engine.DecisionView) []DecisionResponse {
	out := make([]DecisionResponse, 0, len(items))
	for _, v := range items {
		out = append(out, decisionResponse(v))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		UserID:     e.UserID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// toPatch converts a partial update. body holds the raw request fields so an
// explicit null can be told apart from an absent field.
func toPatch(req UpdateDecisionRequest, body map[string]json.RawMessage) lifecycle.Patch {
	p := lifecycle.Patch{
		Title:               req.Title,
		Context:             req.Context,
		SuccessCriteria:     req.SuccessCriteria,
		Constraints:         req.Constraints,
		RiskyAssumption:     req.RiskyAssumption,
		NextAction:          req.NextAction,
		Rationale:           req.Rationale,
		PredictedPositive:   req.PredictedPositive,
		PredictedNegative:   req.PredictedNegative,
		CommitmentConfirmed: req.CommitmentConfirmed,
		ChosenOptionID:      nullableField(req.ChosenOptionID, body["chosen_option_id"]),
		DecidedAt:           nullableField(req.DecidedAt, body["decided_at"]),
		Confidence:          nullableField(req.Confidence, body["confidence"]),
		NextActionDueDate:   nullableField(req.NextActionDueDate, body["next_action_due_date"]),
		OutcomeID:           nullableField(req.OutcomeID, body["outcome_id"]),
	}
	if req.Status != nil {
		s := lifecycle.Status(*req.Status)
		p.Status = &s
	}
	if req.Category != nil {
		c := domain.Category(*req.Category)
		p.Category = &c
	}
	return p
}

func nullableField[T any](v *T, raw json.RawMessage) lifecycle.Nullable[T] {
	switch {
	case v != nil:
		return lifecycle.Set(*v)
	case isNullRaw(raw):
		return lifecycle.Clear[T]()
	default:
		return lifecycle.Nullable[T]{}
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
