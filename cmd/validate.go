package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/featuremart/internal/build"
	"github.com/sells-group/featuremart/internal/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Recompute and validate the feature table without promoting",
	Long:  "Runs the full build pipeline against the current fact stream and reports every data-quality violation; the live table is never touched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "validate"))

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
		result, err := engine.Run(ctx, build.RunOpts{DryRun: true})
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		for _, res := range result.Report.Results {
			if res.Passed() {
				log.Info("rule passed", zap.String("rule", res.Name))
				continue
			}
			log.Warn("rule failed",
				zap.String("rule", res.Name),
				zap.Int("violations", len(res.Violations)),
			)
		}

		if result.Run.Status == model.RunStatusRejected {
			return eris.Errorf("validation failed: %v", result.Report.FailedRules())
		}
		log.Info("validation passed", zap.Int64("rows", result.Run.RowCount))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
