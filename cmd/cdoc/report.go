package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ksj/cloud-doctor/internal/aggregate"
	"github.com/ksj/cloud-doctor/internal/diff"
	"github.com/ksj/cloud-doctor/internal/engine"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/output"
	"github.com/ksj/cloud-doctor/internal/policy"
	"github.com/ksj/cloud-doctor/internal/rulepacks"
	"github.com/ksj/cloud-doctor/internal/store"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Read stored reports",
	}
	cmd.AddCommand(
		newReportLatestCmd(a),
		newReportShowCmd(a),
		newReportListCmd(a),
		newReportRescoreCmd(a),
	)
	return cmd
}

// withStore runs fn against the configured store after loading config.
func (a *app) withStore(cmd *cobra.Command, fn func(st store.ReportStore, format string) error) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if err := a.setup(); err != nil {
		return err
	}
	st, closeStore, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(st, format)
}

func newReportLatestCmd(a *app) *cobra.Command {
	var (
		account        string
		includePassing bool
	)
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent report of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(account); err != nil {
				return err
			}
			return a.withStore(cmd, func(st store.ReportStore, format string) error {
				r, err := st.Latest(cmd.Context(), account)
				if err != nil {
					return err
				}
				return renderReport(cmd.OutOrStdout(), r, format, includePassing)
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account ID")
	cmd.Flags().BoolVar(&includePassing, "all", false, "Also list PASS and NOT_APPLICABLE findings")
	return cmd
}

func newReportShowCmd(a *app) *cobra.Command {
	var includePassing bool
	cmd := &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(st store.ReportStore, format string) error {
				r, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderReport(cmd.OutOrStdout(), r, format, includePassing)
			})
		},
	}
	cmd.Flags().BoolVar(&includePassing, "all", false, "Also list PASS and NOT_APPLICABLE findings")
	return cmd
}

func newReportListCmd(a *app) *cobra.Command {
	var (
		account string
		page    store.Page
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an account's reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(account); err != nil {
				return err
			}
			return a.withStore(cmd, func(st store.ReportStore, format string) error {
				sums, err := st.List(cmd.Context(), account, page)
				if err != nil {
					return err
				}
				if format == "json" {
					return output.WriteJSON(cmd.OutOrStdout(), sums)
				}
				output.RenderSummaries(cmd.OutOrStdout(), sums, output.ColorEnabled(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account ID")
	cmd.Flags().IntVar(&page.Limit, "limit", store.DefaultPageLimit, "Maximum number of reports")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "Number of reports to skip")
	return cmd
}

func newReportRescoreCmd(a *app) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "rescore <report-id>",
		Short: "Recompute a report's scores under the current policy weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(st store.ReportStore, format string) error {
				pol, err := a.loadPolicy()
				if err != nil {
					return err
				}
				w := policy.Weights(pol)
				if err := w.Validate(); err != nil {
					return fmt.Errorf("scoring weights: %w", err)
				}
				r, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := aggregate.Rescore(r, w)
				if save {
					if out, err = rescored(r, w, time.Now()); err != nil {
						return err
					}
					if _, err := st.Store(cmd.Context(), out); err != nil {
						return err
					}
				}
				return renderReport(cmd.OutOrStdout(), out, format, false)
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Store the rescored report as a new, latest report")
	return cmd
}

// rescored returns r rescored under w as a report of its own: a new scan id,
// the report id derived from it and a scan time of now. A warning records
// the source report.
func rescored(r *models.Report, w aggregate.Weights, now time.Time) (*models.Report, error) {
	out := aggregate.Rescore(r, w)
	out.ScanID = uuid.NewString()
	out.ID = engine.ReportID(out.ScanID)
	out.ScannedAt = now.Truncate(time.Microsecond).UTC()
	out.Warnings = append(slices.Clone(r.Warnings), "rescored from report "+r.ID)
	slices.Sort(out.Warnings)
	if err := out.Seal(); err != nil {
		return nil, err
	}
	return out, nil
}

func newDiffCmd(a *app) *cobra.Command {
	var (
		account  string
		from, to string
		category string
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show what changed between two reports of an account (default: latest vs previous)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(account); err != nil {
				return err
			}
			if (from == "") != (to == "") {
				return fmt.Errorf("--from and --to must be given together")
			}
			var cat models.Category
			if category != "" {
				c, err := models.ParseCategory(category)
				if err != nil {
					return fmt.Errorf("--category: %w", err)
				}
				cat = c
			}
			return a.withStore(cmd, func(st store.ReportStore, format string) error {
				d := diff.NewDiffer(st)
				var (
					ts  []models.FindingTransition
					err error
				)
				if from == "" {
					from, to, ts, err = d.Previous(cmd.Context(), account)
				} else {
					ts, err = d.Diff(cmd.Context(), account, from, to)
				}
				if err != nil {
					return err
				}
				if cat != "" {
					ts = diff.FilterCategory(ts, cat)
				}
				if format == "json" {
					if ts == nil {
						ts = []models.FindingTransition{}
					}
					return output.WriteJSON(cmd.OutOrStdout(), map[string]any{
						"account_id":  account,
						"from":        from,
						"to":          to,
						"transitions": ts,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account: %s  From: %s  To: %s\n\n", account, from, to)
				output.RenderDiff(cmd.OutOrStdout(), ts, output.ColorEnabled(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account ID")
	cmd.Flags().StringVar(&from, "from", "", "Older report ID")
	cmd.Flags().StringVar(&to, "to", "", "Newer report ID")
	cmd.Flags().StringVar(&category, "category", "", "Only show transitions in this category")
	return cmd
}

func newRulesCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the rule catalogue grouped by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			rs := rulepacks.All()
			if !all {
				pol, err := a.loadPolicy()
				if err != nil {
					return err
				}
				rs = policy.ApplyPolicy(rs, pol)
			}
			if format == "json" {
				type ruleJSON struct {
					ID           string              `json:"id"`
					Version      int                 `json:"version"`
					Title        string              `json:"title"`
					Category     models.Category     `json:"category"`
					Severity     models.Severity     `json:"severity"`
					ResourceType models.ResourceType `json:"resource_type"`
					Remediation  string              `json:"remediation,omitempty"`
				}
				out := make([]ruleJSON, 0, len(rs))
				for _, r := range rs {
					out = append(out, ruleJSON{r.ID, r.Version, r.Title, r.Category, r.Severity, r.ResourceType, r.Remediation})
				}
				return output.WriteJSON(cmd.OutOrStdout(), out)
			}
			output.RenderRules(cmd.OutOrStdout(), rs, output.ColorEnabled(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include rules disabled by the policy")
	return cmd
}
