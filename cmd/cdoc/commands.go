package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ksj/cloud-doctor/internal/engine"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/output"
	"github.com/ksj/cloud-doctor/internal/policy"
	awssecurity "github.com/ksj/cloud-doctor/internal/providers/aws/security"
	"github.com/ksj/cloud-doctor/internal/version"
)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(newApp())
}

func newRootCmdWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cdoc",
		Short:         "Cloud Doctor: security checks and scoring for AWS accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: ./cdoc.yaml or ~/.config/cloud-doctor/cdoc.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("profile", "", "AWS profile name (default: uses environment / default profile)")
	pf.String("role-arn", "", "IAM role to assume before collecting")
	pf.String("policy", "", "Policy file (default: ./cdoc-policy.yaml when present)")
	pf.String("store", "memory", "Report store: memory or postgres")
	pf.String("format", "table", "Output format: json or table")

	for key, flag := range map[string]string{
		"log.level":    "log-level",
		"log.format":   "log-format",
		"aws.profile":  "profile",
		"aws.role_arn": "role-arn",
		"scan.policy":  "policy",
		"store.driver": "store",
	} {
		a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newScanCmd(a),
		newReportCmd(a),
		newDiffCmd(a),
		newRulesCmd(a),
		newServeCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// outputFormat returns the --format flag, rejecting unknown values.
func outputFormat(cmd *cobra.Command) (string, error) {
	f, _ := cmd.Flags().GetString("format")
	switch f {
	case "table", "json":
		return f, nil
	default:
		return "", fmt.Errorf("invalid --format %q: valid values: table, json", f)
	}
}

func newScanCmd(a *app) *cobra.Command {
	var (
		account        string
		source         string
		input          string
		regions        []string
		resourceTypes  []string
		includePassing bool
		failOn         string
		outFile        string
		scanID         string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Collect evidence for an account, evaluate every rule and store the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			var threshold models.Severity
			if failOn != "" {
				if threshold, err = models.ParseSeverity(failOn); err != nil {
					return fmt.Errorf("--fail-on: %w", err)
				}
			}

			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			pub, err := a.publisher()
			if err != nil {
				return err
			}
			defer pub.Close()

			eng, err := a.newEngine(st, pub, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if account == "" && source == awssecurity.Name {
				if account, err = a.resolveAccount(ctx); err != nil {
					return fmt.Errorf("resolve account: %w", err)
				}
			}
			if account == "" {
				return fmt.Errorf("--account is required for source %q", source)
			}

			req := engine.ScanRequest{
				AccountID: account,
				Source:    source,
				Scope:     a.scope(regions, resourceTypes, input),
				ScanID:    scanID,
			}

			report, err := eng.RunScan(ctx, req)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if outFile != "" {
				if err := writeReportToFile(outFile, report); err != nil {
					return err
				}
			}
			if err := renderReport(cmd.OutOrStdout(), report, format, includePassing); err != nil {
				return err
			}

			var failed bool
			if threshold != "" {
				failed = policy.FailsAt(report.Findings, threshold)
			} else {
				failed = policy.ShouldFail(report.Findings, a.policy)
			}
			if failed {
				return &exitError{code: 2, msg: "policy violation: failing findings at or above the configured severity"}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account ID to scan (default for aws: the account of the loaded credentials)")
	cmd.Flags().StringVar(&source, "source", awssecurity.Name, "Evidence source: aws, prowler or file")
	cmd.Flags().StringVar(&input, "input", "", "Input file for the prowler and file sources")
	cmd.Flags().StringSliceVar(&regions, "region", nil, "AWS region(s) to scan (default: aws.regions, else all active regions)")
	cmd.Flags().StringSliceVar(&resourceTypes, "resource-type", nil, "Limit collection to these resource types")
	cmd.Flags().BoolVar(&includePassing, "all", false, "Also list PASS and NOT_APPLICABLE findings")
	cmd.Flags().StringVar(&failOn, "fail-on", "", "Exit 2 when a FAIL finding is at or above this severity (overrides policy enforcement)")
	cmd.Flags().StringVar(&outFile, "output", "", "Write full JSON report to this file path (in addition to stdout output)")
	cmd.Flags().StringVar(&scanID, "scan-id", "", "Scan ID (UUID); rerunning with the same ID returns the stored report")
	return cmd
}

// renderReport writes r in the requested format. Table colour follows the
// terminal.
func renderReport(w io.Writer, r *models.Report, format string, includePassing bool) error {
	if format == "json" {
		return output.WriteJSON(w, r)
	}
	output.RenderReport(w, r, output.TableOptions{
		Colored:        output.ColorEnabled(w),
		IncludePassing: includePassing,
	})
	return nil
}

// writeReportToFile serialises report as indented JSON and writes it to path,
// creating or overwriting the file. It does not affect stdout output.
func writeReportToFile(path string, report *models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, data)
}

func requireAccount(account string) error {
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("--account is required")
	}
	return nil
}
