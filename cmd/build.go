package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/featuremart/internal/build"
	"github.com/sells-group/featuremart/internal/model"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run a full feature rebuild",
	Long:  "Builds the snapshot grid from the fact stream, computes rolling and bucketed features, validates the result, and promotes it atomically. A rejected build leaves the previously promoted table authoritative.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "build"))

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asOf, _ := cmd.Flags().GetString("as-of")

		opts := build.RunOpts{DryRun: dryRun}
		if asOf != "" {
			t, err := time.Parse("2006-01-02", asOf)
			if err != nil {
				return eris.Wrapf(err, "build: parse --as-of %q", asOf)
			}
			opts.Now = t
		}

		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		engine := build.New(s, cat, cfg.Build.Partitions)
		result, err := engine.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "build")
		}

		run := result.Run
		log.Info("build finished",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int64("facts", run.FactCount),
			zap.Int64("rows", run.RowCount),
			zap.Int64("violations", run.Violations),
		)

		if run.Status == model.RunStatusRejected {
			return eris.Errorf("build rejected: %v", result.Report.FailedRules())
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().Bool("dry-run", false, "compute and validate without promoting")
	buildCmd.Flags().String("as-of", "", "build time for the non-future rule (YYYY-MM-DD, default now)")
	rootCmd.AddCommand(buildCmd)
}
