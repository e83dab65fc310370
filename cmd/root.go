package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/featuremart/internal/catalog"
	"github.com/sells-group/featuremart/internal/config"
	"github.com/sells-group/featuremart/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "featuremart",
	Short: "Point-in-time credit risk feature builder",
	Long:  "Builds leakage-safe rolling and bucketed features from the historical loan event stream, validates them against data-quality rules, and promotes the feature table atomically.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore creates the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.Driver == "postgres" {
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	}
	return store.NewSQLite(cfg.Store.DatabaseURL)
}

// loadCatalog reads the configured catalog file, falling back to the
// built-in credit-risk definitions.
func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Catalog.Path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
