package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ksj/cloud-doctor/internal/policy"
	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
	"github.com/ksj/cloud-doctor/internal/rulepacks"
)

// DoctorResult is the structured output of cdoc doctor. It can be serialised
// to JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		RegionsOK   bool   `json:"regions_ok"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Store struct {
		Driver    string `json:"driver"`
		Reachable bool   `json:"reachable"`
		Error     string `json:"error,omitempty"`
	} `json:"store"`

	Policy struct {
		Path    string   `json:"path"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	OverallHealthy bool `json:"overall_healthy"`
}

// storeCheck reports whether the report store backend answers.
type storeCheck struct {
	driver string
	ping   func(ctx context.Context) error
}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			ctx := cmd.Context()

			sc := storeCheck{driver: a.cfg.Store.Driver}
			st, closeStore, openErr := a.openStore(ctx)
			if openErr != nil {
				sc.ping = func(context.Context) error { return openErr }
			} else {
				defer closeStore()
				if p, ok := st.(pinger); ok {
					sc.ping = p.Ping
				}
			}

			result, err := runDoctor(ctx, a.provider(), sc, cmd.OutOrStdout(), format, a.cfg.AWS.Profile, a.cfg.Scan.Policy)
			if err != nil {
				return err
			}
			if !result.OverallHealthy {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures. Callers inspect
// result.OverallHealthy to decide the exit status.
func runDoctor(ctx context.Context, awsProvider common.AWSClientProvider, sc storeCheck, w io.Writer, format, profile, policyPath string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, awsProvider, sc, profile, policyPath)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering.
func collectDoctorResult(ctx context.Context, awsProvider common.AWSClientProvider, sc storeCheck, profile, policyPath string) DoctorResult {
	var result DoctorResult

	// AWS: credentials → STS account ID → region discovery.
	result.AWS.Profile = profile
	profileCfg, err := awsProvider.LoadProfile(ctx, profile)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = profileCfg.AccountID
		if _, err := awsProvider.GetActiveRegions(ctx, profileCfg); err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
		}
	}

	// Store: the memory driver has nothing to reach.
	result.Store.Driver = sc.driver
	if sc.ping == nil {
		result.Store.Reachable = true
	} else if err := sc.ping(ctx); err != nil {
		result.Store.Error = err.Error()
	} else {
		result.Store.Reachable = true
	}

	// Policy: stat → load → validate (file is optional).
	if policyPath == "" {
		policyPath = policy.DefaultPolicyFile
	}
	result.Policy.Path = policyPath
	_, statErr := os.Stat(policyPath)
	if statErr == nil {
		result.Policy.Present = true
		cfg, loadErr := policy.LoadPolicy(policyPath)
		if loadErr != nil {
			result.Policy.Errors = []string{loadErr.Error()}
		} else {
			errs := policy.Validate(cfg, rulepacks.NewRegistry().IDs())
			if len(errs) == 0 {
				result.Policy.Valid = true
			} else {
				for _, e := range errs {
					result.Policy.Errors = append(result.Policy.Errors, e.Error())
				}
			}
		}
	} else if !os.IsNotExist(statErr) {
		result.Policy.Present = true
		result.Policy.Errors = []string{statErr.Error()}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		result.AWS.RegionsOK &&
		result.Store.Reachable &&
		(!result.Policy.Present || result.Policy.Valid)

	return result
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		if result.AWS.RegionsOK {
			doctorPrint(w, "Regions API", "OK", "")
		} else {
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintf(w, "\nReport store (%s):\n", result.Store.Driver)
	if result.Store.Reachable {
		doctorPrint(w, "Reachable", "OK", "")
	} else {
		doctorPrint(w, "Reachable", "FAIL", result.Store.Error)
	}

	fmt.Fprintln(w, "\nPolicy:")
	label := result.Policy.Path + " present"
	if !result.Policy.Present {
		doctorPrint(w, label, "Not found (optional)", "")
		return
	}
	doctorPrint(w, label, "YES", "")
	if result.Policy.Valid {
		doctorPrint(w, "Policy valid", "OK", "")
		return
	}
	for _, e := range result.Policy.Errors {
		doctorPrint(w, "Policy valid", "FAIL", e)
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
