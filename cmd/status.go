package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active pharmacy counts and last sync per city",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		statuses, err := st.CityStatuses(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(statuses) == 0 {
			zap.L().Info("no cities in the store, run 'migrate' or 'harvest' first")
			return nil
		}
		formatStatuses(os.Stdout, statuses)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Print a recorded harvest run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "run %s", args[0])
		}
		return writeJSON(os.Stdout, run)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
}

// formatStatuses writes a tabular representation of per-city coverage to out.
func formatStatuses(out io.Writer, statuses []model.CityStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tNAME\tPHARMACIES\tLAST SYNC")
	_, _ = fmt.Fprintln(w, "----\t----\t----------\t---------")
	for _, s := range statuses {
		last := "never"
		if s.LastSync != nil {
			last = s.LastSync.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Slug, s.Name, s.PharmacyCount, last)
	}
	_ = w.Flush()
}
