package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/pharmacy-harvester/internal/registry"
)

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "List cities that can be harvested",
	RunE: func(cmd *cobra.Command, args []string) error {
		cities, err := registry.Load(cfg.Harvest.CitiesFile)
		if err != nil {
			return err
		}
		formatCities(os.Stdout, cities.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(citiesCmd)
}

// formatCities writes a tabular representation of the registry to out.
func formatCities(out io.Writer, cities []registry.City) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLUG\tNAME\tNAME (EN)\tCENTER\tRADIUS\tSYNCABLE")
	_, _ = fmt.Fprintln(w, "----\t----\t---------\t------\t------\t--------")
	for _, c := range cities {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.4f,%.4f\t%dm\t%t\n",
			c.Slug, c.NameME, c.NameEN, c.Lat, c.Lng, c.RadiusM, c.HasCoords())
	}
	_ = w.Flush()
}
