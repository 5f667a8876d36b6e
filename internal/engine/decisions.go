package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"decylo/internal/domain"
	"decylo/internal/events"
	"decylo/internal/lifecycle"
	"decylo/internal/repo"
	"decylo/internal/scoring"
)

// OptionInput is one candidate course of action with its 1-10 ratings.
type OptionInput struct {
	Label  string
	Notes  string
	Impact int
	Effort int
	Risk   int
}

// DecisionCreateOptions are parameters for journaling a new decision.
type DecisionCreateOptions struct {
	UserID          string
	Title           string
	Category        domain.Category
	Context         string
	SuccessCriteria string
	Constraints     string
	RiskyAssumption string
	Options         []OptionInput
}

// DecisionView is a decision with everything needed to render it.
type DecisionView struct {
	domain.Decision
	Status            lifecycle.Status `json:"status"`
	Options           []domain.Option  `json:"options"`
	Outcome           *domain.Outcome  `json:"outcome,omitempty"`
	SuggestedOptionID string           `json:"suggested_option_id,omitempty"`
}

func newView(d domain.Decision, opts []domain.Option, o *domain.Outcome) DecisionView {
	if opts == nil {
		opts = []domain.Option{}
	}
	v := DecisionView{Decision: d, Options: opts, Outcome: o, Status: lifecycle.ComputeStatus(d, o)}
	if best := scoring.SuggestedOption(opts); best != nil {
		v.SuggestedOptionID = best.ID
	}
	return v
}

func (v DecisionView) hasOption(id string) bool {
	for _, o := range v.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (e Engine) CreateDecision(ctx context.Context, opts DecisionCreateOptions) (view DecisionView, err error) {
	ctx, span := e.start(ctx, "create_decision", opts.UserID)
	defer func() { e.finish(span, "create_decision", err) }()

	if e.Config == nil {
		return DecisionView{}, errors.New("config not loaded")
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return DecisionView{}, errors.New("title is required")
	}
	if opts.Category == "" {
		opts.Category = domain.CategoryOther
	}
	if !opts.Category.Valid() || !e.Config.AllowsCategory(opts.Category) {
		return DecisionView{}, fmt.Errorf("invalid category %q", opts.Category)
	}
	limits := e.Config.Journal.Options
	if len(opts.Options) < limits.Min || len(opts.Options) > limits.Max {
		return DecisionView{}, fmt.Errorf("invalid option count %d: between %d and %d options required", len(opts.Options), limits.Min, limits.Max)
	}
	if err := e.EnsureUser(ctx, opts.UserID); err != nil {
		return DecisionView{}, err
	}

	now := e.now().UTC()
	d := domain.Decision{
		ID:              newID(),
		UserID:          opts.UserID,
		CreatedAt:       now,
		Date:            e.today().Format(domain.DateLayout),
		Title:           title,
		Category:        opts.Category,
		Context:         strings.TrimSpace(opts.Context),
		SuccessCriteria: strings.TrimSpace(opts.SuccessCriteria),
		Constraints:     strings.TrimSpace(opts.Constraints),
		RiskyAssumption: strings.TrimSpace(opts.RiskyAssumption),
	}
	options := make([]domain.Option, 0, len(opts.Options))
	for i, in := range opts.Options {
		label := strings.TrimSpace(in.Label)
		if label == "" {
			return DecisionView{}, fmt.Errorf("option %d: label is required", i+1)
		}
		for name, v := range map[string]int{"impact": in.Impact, "effort": in.Effort, "risk": in.Risk} {
			if v < scoring.MinRating || v > scoring.MaxRating {
				return DecisionView{}, fmt.Errorf("option %d: invalid %s %d: must be between %d and %d", i+1, name, v, scoring.MinRating, scoring.MaxRating)
			}
		}
		options = append(options, domain.Option{
			ID:         newID(),
			DecisionID: d.ID,
			Label:      label,
			Notes:      strings.TrimSpace(in.Notes),
			Impact:     in.Impact,
			Effort:     in.Effort,
			Risk:       in.Risk,
		})
	}
	scoring.ScoreOptions(options)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return DecisionView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDecision(ctx, tx, d); err != nil {
		return DecisionView{}, fmt.Errorf("insert decision: %w", err)
	}
	for i, o := range options {
		if err := e.Repo.InsertOption(ctx, tx, i+1, o); err != nil {
			return DecisionView{}, fmt.Errorf("insert option: %w", err)
		}
	}
	if err := e.events().Append(ctx, tx, events.DecisionCreated, d.UserID, "decision", d.ID, events.Payload{
		"title":    d.Title,
		"category": d.Category,
		"options":  len(options),
	}); err != nil {
		return DecisionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return DecisionView{}, err
	}
	return newView(d, options, nil), nil
}

// loadDecision reads a decision with its options and outcome on behalf of
// userID. tx may be nil.
func (e Engine) loadDecision(ctx context.Context, tx *sql.Tx, userID, id string) (DecisionView, error) {
	d, err := e.Auth.Decision(ctx, tx, userID, id)
	if err != nil {
		return DecisionView{}, err
	}
	opts, err := e.Repo.ListOptions(ctx, tx, d.ID)
	if err != nil {
		return DecisionView{}, err
	}
	var outcome *domain.Outcome
	o, err := e.Auth.Outcome(ctx, tx, userID, d.ID)
	switch {
	case err == nil:
		outcome = &o
	case !errors.Is(err, repo.ErrNotFound):
		return DecisionView{}, err
	}
	return newView(d, opts, outcome), nil
}

func (e Engine) GetDecision(ctx context.Context, userID, id string) (DecisionView, error) {
	return e.loadDecision(ctx, nil, userID, id)
}

// ListDecisions returns the user's decisions, newest first.
func (e Engine) ListDecisions(ctx context.Context, f repo.DecisionFilters) ([]DecisionView, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", f.Status)
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, fmt.Errorf("invalid category %q", f.Category)
	}
	decisions, err := e.Repo.ListDecisions(ctx, f)
	if err != nil {
		return nil, err
	}
	outcomes, err := e.Repo.ListOutcomes(ctx, f.UserID)
	if err != nil {
		return nil, err
	}
	options, err := e.Repo.ListUserOptions(ctx, f.UserID)
	if err != nil {
		return nil, err
	}
	byDecision := map[string]*domain.Outcome{}
	for i := range outcomes {
		byDecision[outcomes[i].DecisionID] = &outcomes[i]
	}
	optsByDecision := map[string][]domain.Option{}
	for _, o := range options {
		optsByDecision[o.DecisionID] = append(optsByDecision[o.DecisionID], o)
	}
	out := make([]DecisionView, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, newView(d, optsByDecision[d.ID], byDecision[d.ID]))
	}
	return out, nil
}

// CommitOptions record the choice that moves a decision to decided.
type CommitOptions struct {
	UserID              string
	DecisionID          string
	OptionID            string
	Confidence          int
	Rationale           string
	NextAction          string
	NextActionDueDate   string
	PredictedPositive   string
	PredictedNegative   string
	CommitmentConfirmed bool
}

func (o CommitOptions) patch(decidedAt time.Time) lifecycle.Patch {
	status := lifecycle.StatusDecided
	p := lifecycle.Patch{
		Status:              &status,
		ChosenOptionID:      lifecycle.Set(o.OptionID),
		DecidedAt:           lifecycle.Set(decidedAt),
		Confidence:          lifecycle.Set(o.Confidence),
		Rationale:           &o.Rationale,
		NextAction:          &o.NextAction,
		PredictedPositive:   &o.PredictedPositive,
		PredictedNegative:   &o.PredictedNegative,
		CommitmentConfirmed: &o.CommitmentConfirmed,
	}
	if o.NextActionDueDate != "" {
		p.NextActionDueDate = lifecycle.Set(o.NextActionDueDate)
	}
	return p
}

func (e Engine) CommitDecision(ctx context.Context, opts CommitOptions) (view DecisionView, err error) {
	ctx, span := e.start(ctx, "commit_decision", opts.UserID)
	defer func() { e.finish(span, "commit_decision", err) }()

	if strings.TrimSpace(opts.OptionID) == "" {
		return DecisionView{}, errors.New("option id is required")
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
	p := opts.patch(e.now().UTC())
	if err := e.validatePatch(cur, p); err != nil {
		return DecisionView{}, err
	}
	if err := lifecycle.ValidateUpdate(cur.Decision, cur.Outcome, p).Err(); err != nil {
		return DecisionView{}, err
	}
	next := p.Apply(cur.Decision)
	if err := e.Repo.UpdateDecision(ctx, tx, next); err != nil {
		return DecisionView{}, fmt.Errorf("update decision: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.DecisionCommitted, next.UserID, "decision", next.ID, events.Payload{
		"option_id":  opts.OptionID,
		"confidence": opts.Confidence,
		"from":       cur.Status,
	}); err != nil {
		return DecisionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return DecisionView{}, err
	}
	return newView(next, cur.Options, cur.Outcome), nil
}

// DecisionUpdateOptions carry a generic patch. With DryRun the patched
// record is returned but nothing is written.
type DecisionUpdateOptions struct {
	UserID     string
	DecisionID string
	Patch      lifecycle.Patch
	DryRun     bool
}

type DecisionUpdateResult struct {
	Before  DecisionView `json:"before"`
	After   DecisionView `json:"after"`
	Changed []string     `json:"changed"`
	Applied bool         `json:"applied"`
}

func (e Engine) UpdateDecision(ctx context.Context, opts DecisionUpdateOptions) (res DecisionUpdateResult, err error) {
	ctx, span := e.start(ctx, "update_decision", opts.UserID)
	defer func() { e.finish(span, "update_decision", err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	cur, err := e.loadDecision(ctx, tx, opts.UserID, opts.DecisionID)
	if err != nil {
		return res, err
	}
	if err := e.validatePatch(cur, opts.Patch); err != nil {
		return res, err
	}
	if err := lifecycle.ValidateUpdate(cur.Decision, cur.Outcome, opts.Patch).Err(); err != nil {
		return res, err
	}
	next := opts.Patch.Apply(cur.Decision)
	res = DecisionUpdateResult{
		Before:  cur,
		After:   newView(next, cur.Options, cur.Outcome),
		Changed: opts.Patch.Changes(cur.Decision),
	}
	if res.Changed == nil {
		res.Changed = []string{}
	}
	if opts.DryRun || len(res.Changed) == 0 {
		return res, nil
	}
	if err := e.Repo.UpdateDecision(ctx, tx, next); err != nil {
		return res, fmt.Errorf("update decision: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.DecisionUpdated, next.UserID, "decision", next.ID, events.Payload{
		"fields":      res.Changed,
		"from_status": res.Before.Status,
		"to_status":   res.After.Status,
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	res.Applied = true
	return res, nil
}

// CheckUpdate runs the lifecycle gate for a patch without writing. Rule
// violations come back in the Result; lookup and input errors as err.
func (e Engine) CheckUpdate(ctx context.Context, userID, decisionID string, p lifecycle.Patch) (lifecycle.Result, error) {
	cur, err := e.loadDecision(ctx, nil, userID, decisionID)
	if err != nil {
		return lifecycle.Result{}, err
	}
	if err := e.validatePatch(cur, p); err != nil {
		return lifecycle.Result{}, err
	}
	return lifecycle.ValidateUpdate(cur.Decision, cur.Outcome, p), nil
}

// validatePatch checks field values. State rules are left to lifecycle.
func (e Engine) validatePatch(cur DecisionView, p lifecycle.Patch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.New("title is required")
	}
	if p.Category != nil {
		if !p.Category.Valid() || (e.Config != nil && !e.Config.AllowsCategory(*p.Category)) {
			return fmt.Errorf("invalid category %q", *p.Category)
		}
	}
	if p.Confidence.Value != nil {
		if c := *p.Confidence.Value; c < 0 || c > 100 {
			return fmt.Errorf("invalid confidence %d: must be between 0 and 100", c)
		}
	}
	if p.ChosenOptionID.Value != nil && !cur.hasOption(*p.ChosenOptionID.Value) {
		return fmt.Errorf("invalid option %s: not an option of decision %s", *p.ChosenOptionID.Value, cur.ID)
	}
	if p.NextActionDueDate.Value != nil {
		if _, err := time.Parse(domain.DateLayout, *p.NextActionDueDate.Value); err != nil {
			return fmt.Errorf("invalid next_action_due_date %q: want YYYY-MM-DD", *p.NextActionDueDate.Value)
		}
	}
	if p.OutcomeID.Value != nil {
		if cur.Outcome == nil || cur.Outcome.ID != *p.OutcomeID.Value {
			return fmt.Errorf("invalid outcome_id %s: no such outcome for decision %s", *p.OutcomeID.Value, cur.ID)
		}
	}
	return nil
}
