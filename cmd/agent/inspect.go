package main

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/grounded-agent/internal/persist"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
	"github.com/danielpatrickdp/grounded-agent/internal/validator"
)

// #endregion

// #region inspect

func newInspectCmd() *cobra.Command {
	var asJSON bool
	var decisions int
	cmd := &cobra.Command{
		Use:   "inspect ID",
		Short: "Show one persisted symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup()
			if err != nil {
				return err
			}
			defer env.close()

			s, err := env.store.Load(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				raw, err := json.MarshalIndent(s, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
				return nil
			}

			printSummary(s)
			if decisions > 0 {
				rows, err := env.prov.RecentDecisions(context.Background(), s.ID, decisions)
				if err != nil {
					return err
				}
				printDecisions(rows)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "dump the full record as JSON")
	cmd.Flags().IntVar(&decisions, "decisions", 10, "recent audit decisions to show (0 = none)")
	return cmd
}

func printSummary(s symbol.Symbol) {
	fmt.Printf("id            %s\n", s.ID)
	fmt.Printf("version       %d\n", s.Version)
	fmt.Printf("status        %s\n", s.Status)
	fmt.Printf("mission       %s\n", s.Mission.Name)
	fmt.Printf("objective     %s\n", s.Mission.Objective)
	fmt.Printf("created       %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Printf("last activity %s\n", s.LastActivity.Format(time.RFC3339))
	fmt.Printf("messages      received=%d sent=%d\n",
		s.Engagement.MessagesReceived, s.Engagement.MessagesSent)
	fmt.Printf("risk          %.2f drift=%.2f (%s)\n",
		s.Engagement.Analyst.RiskScore,
		s.Engagement.Analyst.Drift.Score, s.Engagement.Analyst.Drift.Net)
	fmt.Printf("tactics       %d veto_records=%d\n",
		len(s.Engagement.Analyst.DetectedTactics),
		len(s.Engagement.Analyst.VetoHistory))
	if lr := s.Validation.LastResult; lr != nil {
		fmt.Printf("validation    passed=%t alert=%s at %s\n",
			lr.Passed, lr.Alert, lr.RanAt.Format(time.RFC3339))
	}
}

func printDecisions(rows []persist.DecisionRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Println("\nrecent decisions:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "when\tv\tdecision\trisk\talert\treason")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%.2f\t%s\t%s\n",
			r.RecordedAt.Format("15:04:05"), r.Version, r.Decision, r.Risk, r.Alert, r.Reason)
	}
	w.Flush()
}

// #endregion inspect

// #region validate

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate ID",
		Short: "Run the full validation suite against one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup()
			if err != nil {
				return err
			}
			defer env.close()

			s, err := env.store.Load(args[0])
			if err != nil {
				return err
			}

			report := validator.New(validator.Thresholds{}, nil).Validate(s)
			fmt.Printf("passed=%t alert=%s issues=%d\n", report.Passed, report.Alert, len(report.Issues))
			for _, issue := range report.Issues {
				fmt.Printf("  [%s] %s/%s: %s\n", issue.Severity, issue.Category, issue.Code, issue.Message)
			}
			if !report.Passed {
				return fmt.Errorf("validation failed for %s", s.ID)
			}
			return nil
		},
	}
}

// #endregion validate

// #region list

func newListCmd() *cobra.Command {
	var (
		status string
		tags   []string
		limit  int
		offset int
		sortBy string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup()
			if err != nil {
				return err
			}
			defer env.close()

			res, err := env.store.List(persist.ListOptions{
				Status: symbol.Status(status),
				Tags:   tags,
				SortBy: sortBy,
				Offset: offset,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "id\tv\tstatus\tmission\tlast activity")
			for _, sum := range res.Symbols {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					sum.ID, sum.Version, sum.Status, sum.Name,
					sum.LastActivity.Format(time.RFC3339))
			}
			w.Flush()
			fmt.Printf("%d of %d", len(res.Symbols), res.Total)
			if res.HasMore {
				fmt.Print(" (more available)")
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "require tag (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	cmd.Flags().StringVar(&sortBy, "sort", "created_at", "created_at | last_activity | id")
	return cmd
}

// #endregion list
