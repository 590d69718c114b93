package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/varunr-/SOCLens/internal/soclens/config"
	"github.com/varunr-/SOCLens/internal/soclens/logger"
	"github.com/varunr-/SOCLens/internal/soclens/service"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

var (
	cfgFile string
	Version = "v0.1"
	rootCmd = &cobra.Command{
		Use:   "soclens",
		Short: "SOCLens - security proxy log analysis core",
		Long:  "SOCLens: ingest proxy logs, compute rollups, run detections and assemble SOC reports.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// load config
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
			} else {
				// default: ./config.yaml
				viper.SetConfigFile("config.yaml")
			}
			if err := viper.ReadInConfig(); err != nil {
				// CLI flows can run on defaults; note it and continue
				fmt.Fprintf(os.Stderr, "Warning: could not read config (%v). Using defaults and flags.\n", err)
			}
			if err := config.Load(viper.GetViper()); err != nil {
				return err
			}

			cfg := config.Get()
			if err := logger.InitLogger(cfg.Logging.Level); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(findingsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildService opens the configured store and assembles the core. The
// returned closer is non-nil for drivers that hold connections.
func buildService(ctx context.Context) (*service.Service, func() error, error) {
	cfg := config.Get()

	var (
		st     store.Store
		closer func() error
	)
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		st = pg
		closer = pg.Close
	case "memory", "":
		st = store.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	svc, err := service.New(st, cfg)
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, nil, err
	}
	if closer == nil {
		closer = func() error { return nil }
	}
	return svc, closer, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
