package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/registry-link/internal/crm"
	"github.com/sells-group/registry-link/internal/resolve"
	"github.com/sells-group/registry-link/internal/store"
	"github.com/sells-group/registry-link/pkg/salesforce"
)

var (
	resolveName        string
	resolveState       string
	resolveDomain      string
	resolveFile        string
	resolveAccount     string
	resolveDryRun      bool
	resolveConcurrency int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a company, a Salesforce Account, or a YAML file of requests",
	Example: `  registry-link resolve --name "Acme Corp" --state TX
  registry-link resolve --account 001A000001XyZ
  registry-link resolve --file requests.yaml --concurrency 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		modes := 0
		for _, set := range []bool{resolveName != "", resolveFile != "", resolveAccount != ""} {
			if set {
				modes++
			}
		}
		if modes != 1 {
			return eris.New("exactly one of --name, --file or --account is required")
		}

		mode := "resolve"
		if resolveDryRun {
			mode = modeDryRun
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		var reqs []resolve.Request
		switch {
		case resolveFile != "":
			reqs, err = loadRequests(resolveFile)
		case resolveAccount != "":
			reqs, err = accountRequest(ctx, env.Salesforce, resolveAccount)
		default:
			reqs = []resolve.Request{{
				SourceID:  "cli",
				SubjectID: resolveName,
				Query:     resolve.Query{SubjectName: resolveName, StateHint: resolveState, DomainHint: resolveDomain},
			}}
		}
		if err != nil {
			return err
		}

		results := env.Engine.ResolveBatch(ctx, reqs, resolveConcurrency)
		if !resolveDryRun {
			if err := persist(ctx, env, results); err != nil {
				return err
			}
		}
		return writeResults(cmd.OutOrStdout(), results)
	},
}

// requestFile is the YAML shape accepted by --file.
type requestFile struct {
	Requests []resolve.Request `yaml:"requests"`
}

// loadRequests reads a YAML file of requests. Entries without a source
// default to "file" and entries without a subject id use their name.
func loadRequests(path string) ([]resolve.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read requests file %s", path)
	}
	var f requestFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "parse requests file %s", path)
	}
	if len(f.Requests) == 0 {
		return nil, eris.Errorf("requests file %s has no requests", path)
	}
	for i := range f.Requests {
		r := &f.Requests[i]
		if r.SourceID == "" {
			r.SourceID = "file"
		}
		if r.SubjectID == "" {
			r.SubjectID = strings.TrimSpace(r.SubjectName)
		}
	}
	return f.Requests, nil
}

// accountRequest builds a request from a Salesforce Account.
func accountRequest(ctx context.Context, sf salesforce.Client, accountID string) ([]resolve.Request, error) {
	if sf == nil {
		return nil, eris.New("--account requires salesforce credentials")
	}
	acct, err := salesforce.FindAccountByID(ctx, sf, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, eris.Errorf("salesforce account %s not found", accountID)
	}
	return []resolve.Request{accountToRequest(*acct)}, nil
}

func accountToRequest(a salesforce.Account) resolve.Request {
	return resolve.Request{
		SourceID:  crm.SourceSalesforce,
		SubjectID: a.ID,
		Query: resolve.Query{
			SubjectName: a.Name,
			StateHint:   a.BillingState,
			DomainHint:  a.Website,
		},
	}
}

// persist records every resolved outcome and projects Salesforce subjects.
func persist(ctx context.Context, env *resolveEnv, results []resolve.Result) error {
	var updates []crm.Update
	for _, res := range results {
		if res.Skipped || res.Outcome == nil {
			continue
		}
		subject := store.Subject{SourceID: res.Request.SourceID, SubjectID: res.Request.SubjectID, Name: res.Request.SubjectName}
		if err := store.Record(ctx, env.Store, subject, res.Outcome); err != nil {
			return err
		}
		if subject.SourceID == crm.SourceSalesforce {
			updates = append(updates, crm.Update{AccountID: subject.SubjectID, Outcome: res.Outcome})
		}
	}
	if len(updates) == 0 {
		return nil
	}
	failed, err := env.Projector.ProjectBatch(ctx, updates)
	if err != nil {
		return err
	}
	if failed > 0 {
		zap.L().Warn("some salesforce updates were rejected", zap.Int("failed", failed), zap.Int("total", len(updates)))
	}
	return nil
}

// resultLine is one line of resolve output.
type resultLine struct {
	SourceID   string               `json:"source_id"`
	SubjectID  string               `json:"subject_id"`
	Name       string               `json:"name"`
	Skipped    bool                 `json:"skipped,omitempty"`
	SkipReason string               `json:"skip_reason,omitempty"`
	Outcome    *resolve.OutcomeView `json:"outcome,omitempty"`
}

// writeResults prints one JSON object per result.
func writeResults(w io.Writer, results []resolve.Result) error {
	enc := json.NewEncoder(w)
	for _, res := range results {
		line := resultLine{
			SourceID:   res.Request.SourceID,
			SubjectID:  res.Request.SubjectID,
			Name:       res.Request.SubjectName,
			Skipped:    res.Skipped,
			SkipReason: res.SkipReason,
		}
		if res.Outcome != nil {
			view := resolve.View(res.Outcome)
			line.Outcome = &view
		}
		if err := enc.Encode(line); err != nil {
			return eris.Wrap(err, "write result")
		}
	}
	return nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveName, "name", "", "company name to resolve")
	resolveCmd.Flags().StringVar(&resolveState, "state", "", "two-letter state hint")
	resolveCmd.Flags().StringVar(&resolveDomain, "domain", "", "website or domain hint")
	resolveCmd.Flags().StringVar(&resolveFile, "file", "", "YAML file of requests")
	resolveCmd.Flags().StringVar(&resolveAccount, "account", "", "Salesforce Account id to resolve")
	resolveCmd.Flags().BoolVar(&resolveDryRun, "dry-run", false, "print outcomes without storing or projecting them")
	resolveCmd.Flags().IntVar(&resolveConcurrency, "concurrency", 5, "parallel resolutions for --file")
	rootCmd.AddCommand(resolveCmd)
}
