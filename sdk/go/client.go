package decylosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Decylo HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
	}
}

// Option is a scored choice on a decision.
type Option struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	Notes        string  `json:"notes,omitempty"`
	Impact       int     `json:"impact"`
	Effort       int     `json:"effort"`
	Risk         int     `json:"risk"`
	Score        int     `json:"score"`
	DisplayScore float64 `json:"display_score"`
}

// Outcome is the single logged result of a decision.
type Outcome struct {
	ID                 string `json:"id"`
	DecisionID         string `json:"decision_id"`
	Score              int    `json:"score"`
	WhatHappened       string `json:"what_happened"`
	WhatLearned        string `json:"what_learned"`
	LearningConfidence *int   `json:"learning_confidence,omitempty"`
	CompletedAt        string `json:"completed_at"`
	TemporalAnchor     string `json:"temporal_anchor,omitempty"`
}

// Decision represents the API decision model (partial).
type Decision struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Category          string   `json:"category"`
	Date              string   `json:"date"`
	Status            string   `json:"status"`
	ChosenOptionID    string   `json:"chosen_option_id,omitempty"`
	Confidence        *int     `json:"confidence,omitempty"`
	OutcomeID         string   `json:"outcome_id,omitempty"`
	Options           []Option `json:"options"`
	Outcome           *Outcome `json:"outcome,omitempty"`
	SuggestedOptionID string   `json:"suggested_option_id,omitempty"`
}

// OptionInput rates one option from 1 to 10.
type OptionInput struct {
	Label  string `json:"label"`
	Notes  string `json:"notes,omitempty"`
	Impact int    `json:"impact"`
	Effort int    `json:"effort"`
	Risk   int    `json:"risk"`
}

type DecisionInput struct {
	Title           string        `json:"title"`
	Category        string        `json:"category,omitempty"`
	Context         string        `json:"context,omitempty"`
	SuccessCriteria string        `json:"success_criteria,omitempty"`
	Constraints     string        `json:"constraints,omitempty"`
	RiskyAssumption string        `json:"risky_assumption,omitempty"`
	Options         []OptionInput `json:"options"`
}

type CommitInput struct {
	OptionID            string `json:"option_id"`
	Confidence          int    `json:"confidence"`
	Rationale           string `json:"rationale,omitempty"`
	NextAction          string `json:"next_action,omitempty"`
	NextActionDueDate   string `json:"next_action_due_date,omitempty"`
	PredictedPositive   string `json:"predicted_positive,omitempty"`
	PredictedNegative   string `json:"predicted_negative,omitempty"`
	CommitmentConfirmed bool   `json:"commitment_confirmed,omitempty"`
}

type OutcomeInput struct {
	Score              int    `json:"score"`
	WhatHappened       string `json:"what_happened,omitempty"`
	WhatLearned        string `json:"what_learned,omitempty"`
	LearningConfidence *int   `json:"learning_confidence,omitempty"`
	TemporalAnchor     string `json:"temporal_anchor,omitempty"`
	Counterfactual     string `json:"counterfactual,omitempty"`
	Reflection         string `json:"reflection,omitempty"`
}

// Signals are the four judgment indices.
type Signals struct {
	PA float64 `json:"pa"`
	FT float64 `json:"ft"`
	RI float64 `json:"ri"`
	GM float64 `json:"gm"`
}

// Report is the insights payload (partial).
type Report struct {
	Date   string `json:"date"`
	Counts struct {
		Total     int `json:"total"`
		Open      int `json:"open"`
		Decided   int `json:"decided"`
		Completed int `json:"completed"`
	} `json:"counts"`
	DQI     float64 `json:"dqi"`
	Signals Signals `json:"signals"`
	DHI     int     `json:"dhi"`
	Health  struct {
		Score          int     `json:"score"`
		WinRate        float64 `json:"win_rate"`
		CalibrationGap float64 `json:"calibration_gap"`
		CompletionRate float64 `json:"completion_rate"`
	} `json:"health"`
	Trend struct {
		Direction string `json:"direction"`
		Change    int    `json:"change"`
	} `json:"trend"`
	Streak int `json:"streak"`
}

// Profile is the judgment profile payload (partial).
type Profile struct {
	Archetype      string  `json:"archetype"`
	Trait          string  `json:"trait,omitempty"`
	ArchetypeLabel string  `json:"archetype_label"`
	TraitLabel     string  `json:"trait_label,omitempty"`
	Signals        Signals `json:"signals"`
	DHI            int     `json:"dhi"`
	Momentum       struct {
		Score  float64 `json:"score"`
		Status string  `json:"status"`
	} `json:"momentum"`
	Narrative struct {
		Headline string `json:"headline"`
		Summary  string `json:"summary"`
	} `json:"narrative"`
}

// Warning is a pattern finding worth surfacing.
type Warning struct {
	Severity string `json:"severity"`
	Kind     string `json:"kind"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// Patterns is the bias and failure-pattern payload (partial).
type Patterns struct {
	Warnings []Warning `json:"warnings"`
}

// LearningInput amends the learning of a logged outcome.
type LearningInput struct {
	WhatLearned        *string `json:"what_learned,omitempty"`
	LearningConfidence *int    `json:"learning_confidence,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateDecision journals a decision with its options.
func (c *Client) CreateDecision(ctx context.Context, in DecisionInput) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodPost, c.path("decisions"), in, &resp)
	return resp, err
}

// GetDecision fetches a decision by id.
func (c *Client) GetDecision(ctx context.Context, id string) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodGet, c.path("decisions/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Commit records the chosen option and confidence.
func (c *Client) Commit(ctx context.Context, decisionID string, in CommitInput) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodPost, c.path(fmt.Sprintf("decisions/%s/commit", url.PathEscape(decisionID))), in, &resp)
	return resp, err
}

// LogOutcome closes the loop on a decided decision.
func (c *Client) LogOutcome(ctx context.Context, decisionID string, in OutcomeInput) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodPost, c.path(fmt.Sprintf("decisions/%s/outcome", url.PathEscape(decisionID))), in, &resp)
	return resp, err
}

// UpdateLearning amends what was learned after the fact.
func (c *Client) UpdateLearning(ctx context.Context, decisionID string, in LearningInput) (Outcome, error) {
	var resp Outcome
	err := c.do(ctx, http.MethodPatch, c.path(fmt.Sprintf("decisions/%s/outcome/learning", url.PathEscape(decisionID))), in, &resp)
	return resp, err
}

// Insights returns the analytics report.
func (c *Client) Insights(ctx context.Context) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, c.path("insights"), nil, &resp)
	return resp, err
}

// Profile returns the judgment profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, c.path("insights/profile"), nil, &resp)
	return resp, err
}

// Patterns returns category biases and repeated failure patterns.
func (c *Client) Patterns(ctx context.Context) (Patterns, error) {
	var resp Patterns
	err := c.do(ctx, http.MethodGet, c.path("insights/patterns"), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.path("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		return strings.TrimLeft(p, "/")
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
