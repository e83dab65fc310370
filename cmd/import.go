package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/featuremart/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Load cleaned loan events into the fact store",
	Long:  "Reads a cleaned loan-event CSV (accepted and rejected applications) and upserts it into the facts table. Re-importing the same file is idempotent.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "import"))

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "import: open %s", args[0])
		}
		defer f.Close()

		facts, result, err := ingest.ReadFacts(f)
		if err != nil {
			return err
		}

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.InsertFacts(ctx, facts)
		if err != nil {
			return err
		}

		log.Info("import complete",
			zap.String("file", args[0]),
			zap.Int64("rows", n),
			zap.Int("skipped", result.Skipped),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
