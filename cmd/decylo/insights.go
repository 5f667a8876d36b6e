package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"decylo/internal/engine"
)

func insightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Judgment metrics and decision health",
		Long:  "Computes win rate, calibration gap, decision health and the judgment indices, and records today's snapshot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				r, err := e.Insights(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				tw := newTable()
				tw.SetTitle("Insights for " + r.Date)
				tw.AppendRows([]table.Row{
					{"Decisions", fmt.Sprintf("%d (open %d, decided %d, completed %d)", r.Counts.Total, r.Counts.Open, r.Counts.Decided, r.Counts.Completed)},
					{"Outcomes", fmt.Sprintf("win %s, neutral %s, loss %s", pct(r.Ratios.Win), pct(r.Ratios.Neutral), pct(r.Ratios.Loss))},
					{"Decision quality", fmt.Sprintf("%.1f", r.DQI)},
					{"Calibration gap", fmt.Sprintf("%.1f", r.Health.CalibrationGap)},
					{"Health", fmt.Sprintf("%d (%s %+d)", r.Health.Score, r.Trend.Direction, r.Trend.Change)},
					{"Judgment index", fmt.Sprintf("%d", r.DHI)},
					{"PA / FT / RI / GM", fmt.Sprintf("%.2f / %.2f / %.2f / %.2f", r.Signals.PA, r.Signals.FT, r.Signals.RI, r.Signals.GM)},
					{"Streak", fmt.Sprintf("%d days", r.Streak)},
				})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Judgment archetype, momentum and domain strengths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				p, err := e.Profile(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				label := p.ArchetypeLabel
				if p.TraitLabel != "" {
					label += " (" + p.TraitLabel + ")"
				}
				fmt.Println(label)
				fmt.Println(p.Narrative.Headline)
				fmt.Println(p.Narrative.Summary)
				if p.Narrative.Focus != "" {
					fmt.Println("Focus: " + p.Narrative.Focus)
				}
				fmt.Printf("Judgment index %d, momentum %s (%+.1f)\n", p.DHI, p.Momentum.Status, p.Momentum.Score)
				if len(p.Strengths) == 0 {
					return nil
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Domain", "Score", "Win rate", "Follow-through", "Accuracy", "Decisions"})
				for _, s := range p.Strengths {
					tw.AppendRow(table.Row{s.Category.Title(), s.Score, pct(s.WinRate), pct(s.FT), pct(s.PA), s.Decisions})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Calibration biases and recurring failure patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				rep, err := e.Patterns(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				if len(rep.Warnings) == 0 {
					fmt.Println("no patterns detected yet")
					return nil
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Severity", "Kind", "Domain", "Message"})
				for _, w := range rep.Warnings {
					tw.AppendRow(table.Row{w.Severity, w.Kind, w.Category, w.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func snapshotCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "snapshot",
		Short: "Daily health snapshots",
	}
	s.AddCommand(snapshotListCmd())
	return s
}

func snapshotListCmd() *cobra.Command {
	var since string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.ListSnapshots(ctx, userID, since, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Date", "Health", "DHI", "Win rate", "Gap", "Streak"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.Date, s.HealthScore, s.DHI, pct(s.WinRate), fmt.Sprintf("%.1f", s.CalibrationGap), s.Streak})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "first date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 90, "max snapshots")
	return cmd
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
