package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"decylo/internal/domain"
	"decylo/internal/engine"
	"decylo/internal/lifecycle"
	"decylo/internal/repo"
	"decylo/internal/scoring"
)

func decisionCmd() *cobra.Command {
	dec := &cobra.Command{
		Use:   "decision",
		Short: "Journal decisions",
		Long:  "Decisions move open -> decided -> completed. Commit picks an option with a confidence; outcome closes the loop.",
	}
	dec.AddCommand(decisionCreateCmd())
	dec.AddCommand(decisionListCmd())
	dec.AddCommand(decisionShowCmd())
	dec.AddCommand(decisionCommitCmd())
	dec.AddCommand(decisionUpdateCmd())
	dec.AddCommand(decisionOutcomeCmd())
	dec.AddCommand(decisionLearnCmd())
	return dec
}

func decisionCreateCmd() *cobra.Command {
	var opts engine.DecisionCreateOptions
	var category string
	var options []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Journal a new decision",
		Example: `  decylo decision create --title "Take the offer?" --category career \
    --option "Stay:5:5:5" --option "Move:8:3:2"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range options {
				o, err := parseOption(raw)
				if err != nil {
					return err
				}
				opts.Options = append(opts.Options, o)
			}
			opts.Category = domain.Category(category)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				v, err := e.CreateDecision(ctx, opts)
				if err != nil {
					return err
				}
				return printDecision(v)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "what you are deciding")
	cmd.Flags().StringVar(&category, "category", "", "career, finance, health, relationships, learning, lifestyle or other")
	cmd.Flags().StringVar(&opts.Context, "context", "", "background")
	cmd.Flags().StringVar(&opts.SuccessCriteria, "success-criteria", "", "what a good result looks like")
	cmd.Flags().StringVar(&opts.Constraints, "constraints", "", "limits on the choice")
	cmd.Flags().StringVar(&opts.RiskyAssumption, "risky-assumption", "", "the assumption most likely to be wrong")
	cmd.Flags().StringArrayVar(&options, "option", nil, "option as label:impact:effort:risk (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func decisionListCmd() *cobra.Command {
	var status, category string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.ListDecisions(ctx, repo.DecisionFilters{
					UserID:   userID,
					Status:   lifecycle.Status(status),
					Category: domain.Category(category),
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Date", "Title", "Category", "Status", "Confidence"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Date, v.Title, v.Category, v.Status, valueOr(v.Confidence, "")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "open, decided or completed")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max decisions")
	return cmd
}

func decisionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a decision with its options and outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				v, err := e.GetDecision(ctx, userID, args[0])
				if err != nil {
					return err
				}
				return printDecision(v)
			})
		},
	}
	return cmd
}

func decisionCommitCmd() *cobra.Command {
	var opts engine.CommitOptions
	var option string
	cmd := &cobra.Command{
		Use:   "commit <id>",
		Short: "Commit to an option",
		Long:  "Option may be an option id, its label or its 1-based position.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				cur, err := e.GetDecision(ctx, userID, args[0])
				if err != nil {
					return err
				}
				opts.OptionID, err = resolveOption(cur.Options, option)
				if err != nil {
					return err
				}
				opts.UserID = userID
				opts.DecisionID = args[0]
				v, err := e.CommitDecision(ctx, opts)
				if err != nil {
					return err
				}
				return printDecision(v)
			})
		},
	}
	cmd.Flags().StringVar(&option, "option", "", "chosen option")
	cmd.Flags().IntVar(&opts.Confidence, "confidence", 0, "confidence 0-100 that this works out")
	cmd.Flags().StringVar(&opts.Rationale, "rationale", "", "why this option")
	cmd.Flags().StringVar(&opts.NextAction, "next-action", "", "first concrete step")
	cmd.Flags().StringVar(&opts.NextActionDueDate, "due", "", "next action due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PredictedPositive, "predicted-positive", "", "expected upside")
	cmd.Flags().StringVar(&opts.PredictedNegative, "predicted-negative", "", "expected downside")
	cmd.Flags().BoolVar(&opts.CommitmentConfirmed, "confirm", false, "confirm the commitment")
	_ = cmd.MarkFlagRequired("option")
	_ = cmd.MarkFlagRequired("confidence")
	return cmd
}

func decisionUpdateCmd() *cobra.Command {
	var (
		status, title, category, contextText, successCriteria, constraints string
		riskyAssumption, chosenOption, nextAction, due, rationale          string
		predictedPositive, predictedNegative                               string
		confidence                                                         int
		confirmed, dryRun                                                  bool
		clearFields                                                        []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Apply a partial update",
		Long: `Only flags that are given are changed. --clear empties nullable fields
(chosen_option_id, decided_at, confidence, next_action_due_date, outcome_id).
With --dry-run the change is validated and shown as a diff but not written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var p lifecycle.Patch
			if f.Changed("status") {
				s := lifecycle.Status(status)
				p.Status = &s
			}
			if f.Changed("category") {
				c := domain.Category(category)
				p.Category = &c
			}
			setIfChanged(f.Changed("title"), &p.Title, title)
			setIfChanged(f.Changed("context"), &p.Context, contextText)
			setIfChanged(f.Changed("success-criteria"), &p.SuccessCriteria, successCriteria)
			setIfChanged(f.Changed("constraints"), &p.Constraints, constraints)
			setIfChanged(f.Changed("risky-assumption"), &p.RiskyAssumption, riskyAssumption)
			setIfChanged(f.Changed("next-action"), &p.NextAction, nextAction)
			setIfChanged(f.Changed("rationale"), &p.Rationale, rationale)
			setIfChanged(f.Changed("predicted-positive"), &p.PredictedPositive, predictedPositive)
			setIfChanged(f.Changed("predicted-negative"), &p.PredictedNegative, predictedNegative)
			setIfChanged(f.Changed("confirm"), &p.CommitmentConfirmed, confirmed)
			if f.Changed("confidence") {
				p.Confidence = lifecycle.Set(confidence)
			}
			if f.Changed("due") {
				p.NextActionDueDate = lifecycle.Set(due)
			}
			for _, field := range clearFields {
				switch strings.TrimSpace(field) {
				case lifecycle.FieldChosenOptionID:
					p.ChosenOptionID = lifecycle.Clear[string]()
				case lifecycle.FieldDecidedAt:
					p.DecidedAt = lifecycle.Clear[time.Time]()
				case lifecycle.FieldConfidence:
					p.Confidence = lifecycle.Clear[int]()
				case lifecycle.FieldNextActionDueDate:
					p.NextActionDueDate = lifecycle.Clear[string]()
				case lifecycle.FieldOutcomeID:
					p.OutcomeID = lifecycle.Clear[string]()
				default:
					return fmt.Errorf("invalid --clear field %q", field)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				if f.Changed("option") {
					cur, err := e.GetDecision(ctx, userID, args[0])
					if err != nil {
						return err
					}
					id, err := resolveOption(cur.Options, chosenOption)
					if err != nil {
						return err
					}
					p.ChosenOptionID = lifecycle.Set(id)
				}
				res, err := e.UpdateDecision(ctx, engine.DecisionUpdateOptions{
					UserID:     userID,
					DecisionID: args[0],
					Patch:      p,
					DryRun:     dryRun,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if len(res.Changed) == 0 {
					fmt.Println("no changes")
					return nil
				}
				if dryRun {
					diff, err := decisionDiff(res.Before, res.After)
					if err != nil {
						return err
					}
					fmt.Print(diff)
					fmt.Printf("dry run: %s would change (status %s -> %s)\n", strings.Join(res.Changed, ", "), res.Before.Status, res.After.Status)
					return nil
				}
				fmt.Printf("updated %s (status %s -> %s)\n", strings.Join(res.Changed, ", "), res.Before.Status, res.After.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "expected status after the update")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&contextText, "context", "", "context")
	cmd.Flags().StringVar(&successCriteria, "success-criteria", "", "success criteria")
	cmd.Flags().StringVar(&constraints, "constraints", "", "constraints")
	cmd.Flags().StringVar(&riskyAssumption, "risky-assumption", "", "risky assumption")
	cmd.Flags().StringVar(&chosenOption, "option", "", "chosen option (id, label or position)")
	cmd.Flags().IntVar(&confidence, "confidence", 0, "confidence 0-100")
	cmd.Flags().StringVar(&nextAction, "next-action", "", "next action")
	cmd.Flags().StringVar(&due, "due", "", "next action due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&rationale, "rationale", "", "rationale")
	cmd.Flags().StringVar(&predictedPositive, "predicted-positive", "", "expected upside")
	cmd.Flags().StringVar(&predictedNegative, "predicted-negative", "", "expected downside")
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "commitment confirmed")
	cmd.Flags().StringSliceVar(&clearFields, "clear", nil, "nullable fields to clear")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and show the diff without writing")
	return cmd
}

func decisionOutcomeCmd() *cobra.Command {
	var opts engine.OutcomeCreateOptions
	var score, anchor string
	var learningConfidence int
	cmd := &cobra.Command{
		Use:   "outcome <id>",
		Short: "Log the outcome of a decided decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseScore(score)
			if err != nil {
				return err
			}
			opts.Score = s
			if cmd.Flags().Changed("learning-confidence") {
				opts.LearningConfidence = &learningConfidence
			}
			if anchor != "" {
				a := domain.TemporalAnchor(anchor)
				opts.TemporalAnchor = &a
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				opts.DecisionID = args[0]
				v, err := e.LogOutcome(ctx, opts)
				if err != nil {
					return err
				}
				return printDecision(v)
			})
		},
	}
	cmd.Flags().StringVar(&score, "score", "", "win, neutral or loss")
	cmd.Flags().StringVar(&opts.WhatHappened, "happened", "", "what happened")
	cmd.Flags().StringVar(&opts.WhatLearned, "learned", "", "what you learned")
	cmd.Flags().IntVar(&learningConfidence, "learning-confidence", 0, "confidence 0-100 in the lesson")
	cmd.Flags().StringVar(&anchor, "anchor", "", "one_week, one_month, three_months, six_months or one_year")
	cmd.Flags().StringVar(&opts.Counterfactual, "counterfactual", "", "what the other option would have done")
	cmd.Flags().StringVar(&opts.Reflection, "reflection", "", "free-form reflection")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func decisionLearnCmd() *cobra.Command {
	var learned string
	var learningConfidence int
	cmd := &cobra.Command{
		Use:   "learn <id>",
		Short: "Revise what was learned from an outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.LearningUpdateOptions{DecisionID: args[0]}
			if cmd.Flags().Changed("learned") {
				opts.WhatLearned = &learned
			}
			if cmd.Flags().Changed("learning-confidence") {
				opts.LearningConfidence = &learningConfidence
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				o, err := e.UpdateLearning(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				fmt.Printf("outcome %s: learned %q (confidence %s)\n", o.ID, o.WhatLearned, valueOr(o.LearningConfidence, "-"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&learned, "learned", "", "what you learned")
	cmd.Flags().IntVar(&learningConfidence, "learning-confidence", 0, "confidence 0-100 in the lesson")
	return cmd
}

// parseOption reads label:impact:effort:risk. The label may itself contain
// colons; the ratings are always the last three fields.
func parseOption(raw string) (engine.OptionInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return engine.OptionInput{}, fmt.Errorf("invalid option %q: want label:impact:effort:risk", raw)
	}
	n := len(parts)
	var ratings [3]int
	for i, s := range parts[n-3:] {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return engine.OptionInput{}, fmt.Errorf("invalid option %q: rating %q is not a number", raw, s)
		}
		ratings[i] = v
	}
	return engine.OptionInput{
		Label:  strings.TrimSpace(strings.Join(parts[:n-3], ":")),
		Impact: ratings[0],
		Effort: ratings[1],
		Risk:   ratings[2],
	}, nil
}

func parseScore(s string) (domain.OutcomeScore, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win", "1", "+1":
		return domain.OutcomeWin, nil
	case "neutral", "0":
		return domain.OutcomeNeutral, nil
	case "loss", "-1":
		return domain.OutcomeLoss, nil
	}
	return 0, fmt.Errorf("invalid score %q: want win, neutral or loss", s)
}

// resolveOption accepts an option id, a case-insensitive label or a 1-based
// position.
func resolveOption(opts []domain.Option, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("option is required")
	}
	for _, o := range opts {
		if o.ID == ref {
			return o.ID, nil
		}
	}
	for _, o := range opts {
		if strings.EqualFold(o.Label, ref) {
			return o.ID, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(opts) {
		return opts[n-1].ID, nil
	}
	return "", fmt.Errorf("invalid option %q: no such option", ref)
}

func setIfChanged[T any](changed bool, dst **T, v T) {
	if changed {
		*dst = &v
	}
}

// decisionDiff renders before and after as indented JSON and diffs them.
func decisionDiff(before, after engine.DecisionView) (string, error) {
	a, err := json.MarshalIndent(before, "", "  ")
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(after, "", "  ")
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a) + "\n"),
		B:        difflib.SplitLines(string(b) + "\n"),
		FromFile: "decision/" + before.ID,
		ToFile:   "decision/" + after.ID + " (dry run)",
		Context:  2,
	})
}

func printDecision(v engine.DecisionView) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Printf("%s  %s\n", v.ID, v.Title)
	fmt.Printf("%s | %s | %s\n", v.Date, v.Category.Title(), v.Status)
	if v.Confidence != nil {
		fmt.Printf("confidence: %d%%\n", *v.Confidence)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "Option", "Impact", "Effort", "Risk", "Score", ""})
	for i, o := range v.Options {
		mark := ""
		if v.ChosenOptionID != nil && *v.ChosenOptionID == o.ID {
			mark = "chosen"
		} else if o.ID == v.SuggestedOptionID {
			mark = "suggested"
		}
		tw.AppendRow(table.Row{i + 1, o.Label, o.Impact, o.Effort, o.Risk, fmt.Sprintf("%.1f", scoring.FormatForDisplay(o.Score)), mark})
	}
	tw.Render()
	if v.Outcome != nil {
		fmt.Fprintf(os.Stdout, "outcome: %s", v.Outcome.Score)
		if v.Outcome.WhatLearned != "" {
			fmt.Fprintf(os.Stdout, " | learned: %s", v.Outcome.WhatLearned)
		}
		fmt.Fprintln(os.Stdout)
	}
	return nil
}
