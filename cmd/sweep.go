package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/registry-link/internal/resolve"
	"github.com/sells-group/registry-link/pkg/salesforce"
)

var (
	sweepLimit       int
	sweepConcurrency int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Resolve Salesforce Accounts that have never been matched",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Salesforce == nil {
			return eris.New("sweep requires salesforce credentials")
		}

		accounts, err := salesforce.FindUnlinkedAccounts(ctx, env.Salesforce, sweepLimit)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			zap.L().Info("sweep: no unlinked accounts")
			return nil
		}

		reqs := make([]resolve.Request, len(accounts))
		for i, a := range accounts {
			reqs[i] = accountToRequest(a)
		}
		results := env.Engine.ResolveBatch(ctx, reqs, sweepConcurrency)
		if err := persist(ctx, env, results); err != nil {
			return err
		}

		counts := map[resolve.Disposition]int{}
		for _, res := range results {
			if res.Outcome != nil && !res.Skipped {
				counts[res.Outcome.Disposition()]++
			}
		}
		zap.L().Info("sweep complete",
			zap.Int("accounts", len(accounts)),
			zap.Int("matched", counts[resolve.DispositionMatched]),
			zap.Int("pending", counts[resolve.DispositionPending]),
			zap.Int("no_match", counts[resolve.DispositionNoMatch]),
		)
		return nil
	},
}

func init() {
	sweepCmd.Flags().IntVar(&sweepLimit, "limit", 200, "maximum accounts to resolve")
	sweepCmd.Flags().IntVar(&sweepConcurrency, "concurrency", 5, "parallel resolutions")
	rootCmd.AddCommand(sweepCmd)
}
