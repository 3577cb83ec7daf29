package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pharmacy-harvester",
	Short: "Pharmacy discovery and reconciliation pipeline",
	Long:  "Harvests pharmacies for a city from map APIs, OpenStreetMap and public registries, deduplicates them and reconciles the result into the pharmacy store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		applyFlagOverrides(cmd, cfg)

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		zap.L().Debug("config loaded",
			zap.String("command", cmd.Name()),
			zap.String("store", cfg.Store.Driver),
			zap.String("cities_file", cfg.Harvest.CitiesFile),
			zap.String("country", cfg.Harvest.CountryISO),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	addConfigFlags(rootCmd)
}

// addConfigFlags registers the persistent flags read by applyFlagOverrides.
func addConfigFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("cities", "", "city registry YAML (overrides harvest.cities_file)")
	pf.String("store", "", "store driver: sqlite or postgres (overrides store.driver)")
	pf.String("database-url", "", "sqlite path or postgres DSN (overrides store.database_url)")
	pf.String("export-dir", "", "directory for bootstrap logs and summaries (overrides export.dir)")
}

// applyFlagOverrides lets explicitly set persistent flags win over file and
// environment config.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	set := func(name string, dst *string) {
		if f := cmd.Flag(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	set("cities", &c.Harvest.CitiesFile)
	set("store", &c.Store.Driver)
	set("database-url", &c.Store.DatabaseURL)
	set("export-dir", &c.Export.Dir)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
