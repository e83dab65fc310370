package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/featuremart/internal/model"
	"github.com/sells-group/featuremart/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent build runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		statusFilter, _ := cmd.Flags().GetString("status")

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(statusFilter),
			Limit:  limit,
		})
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("no build runs recorded")
			return nil
		}

		p := message.NewPrinter(language.English)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tFEATURE SET\tSTATUS\tFACTS\tROWS\tVIOLATIONS\tSTARTED")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				run.ID[:8],
				run.FeatureSet,
				run.Status,
				p.Sprintf("%d", run.FactCount),
				p.Sprintf("%d", run.RowCount),
				p.Sprintf("%d", run.Violations),
				run.StartedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().Int("limit", 20, "maximum runs to show")
	statusCmd.Flags().String("status", "", "filter by run status")
	rootCmd.AddCommand(statusCmd)
}
