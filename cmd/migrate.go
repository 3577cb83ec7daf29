package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/registry"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema and seed the city table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		cities, err := registry.Load(cfg.Harvest.CitiesFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		n, err := st.SyncCities(ctx, storeCities(cities))
		if err != nil {
			return eris.Wrap(err, "migrate: seed cities")
		}
		zap.L().Info("migration complete", zap.String("driver", cfg.Store.Driver), zap.Int64("cities", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
