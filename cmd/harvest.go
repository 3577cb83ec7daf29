package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pharmacy-harvester/internal/harvest"
)

var (
	harvestCity   string
	harvestDryRun bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest and reconcile pharmacies for one city",
	Long:  "Runs every fetch stage for the city, deduplicates the result and reconciles it into the store. With --dry-run the deduplicated entities are printed and nothing is written.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "harvest")
		if err != nil {
			return err
		}
		defer env.Close()

		if harvestDryRun {
			fetched, err := env.Harvester.Fetch(ctx, harvestCity)
			if err != nil {
				return eris.Wrap(err, "harvest dry run")
			}
			return writeJSON(os.Stdout, fetched)
		}

		res, err := env.Harvester.Sync(ctx, harvestCity)
		if res != nil {
			if werr := writeJSON(os.Stdout, res); werr != nil {
				return werr
			}
		}
		if errors.Is(err, harvest.ErrMissingCity) {
			return eris.Wrapf(err, "harvest: unknown city %q", harvestCity)
		}
		return err
	},
}

func init() {
	harvestCmd.Flags().StringVar(&harvestCity, "city", "", "city slug (required)")
	harvestCmd.Flags().BoolVar(&harvestDryRun, "dry-run", false, "fetch and deduplicate without writing to the store")
	_ = harvestCmd.MarkFlagRequired("city")
	rootCmd.AddCommand(harvestCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}
