package main

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/featuremart/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only build diagnostics server",
	Long:  "Serves build-run history and validation reports over HTTP. This is operator tooling only; it does not serve feature values.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		srv := server.New(s)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe(cfg.Server.Port)
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "serve")
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
