package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/harvest"
	"github.com/sells-group/pharmacy-harvester/internal/registry"
	"github.com/sells-group/pharmacy-harvester/internal/report"
)

var (
	bootstrapDelay time.Duration
	bootstrapXLSX  bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Harvest every registered city in sequence",
	Long:  "Syncs every city of the registry one after another, appending per-city action lines under <export.dir>/city_logs and writing a run summary (and optionally an XLSX workbook).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "harvest")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := runBootstrap(ctx, env.Harvester, env.Cities.All(), bootstrapOptions{
			Delay:     bootstrapDelay,
			ExportDir: cfg.Export.Dir,
			XLSX:      bootstrapXLSX,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, sum.Text(time.Now()))
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().DurationVar(&bootstrapDelay, "delay", 1500*time.Millisecond, "pause between cities")
	bootstrapCmd.Flags().BoolVar(&bootstrapXLSX, "xlsx", false, "also write an XLSX workbook to the export dir")
	rootCmd.AddCommand(bootstrapCmd)
}

// citySyncer is the part of the harvester a bootstrap needs.
type citySyncer interface {
	Sync(ctx context.Context, slug string) (*harvest.Result, error)
}

type bootstrapOptions struct {
	Delay     time.Duration
	ExportDir string
	XLSX      bool
	Now       func() time.Time
	// Progress receives one line per finished city. Nil discards.
	Progress io.Writer
}

// runBootstrap syncs cities sequentially. A failing city is recorded and the
// run moves on; only artifact write errors abort it.
func runBootstrap(ctx context.Context, h citySyncer, cities []registry.City, opts bootstrapOptions) (*report.Summary, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	log := zap.L().With(zap.String("component", "bootstrap"))

	var wb *report.Workbook
	if opts.XLSX {
		var err error
		if wb, err = report.NewWorkbook(); err != nil {
			return nil, err
		}
	}

	start := opts.Now()
	sum := &report.Summary{}
	for i, city := range cities {
		if ctx.Err() != nil {
			log.Warn("bootstrap interrupted", zap.Int("remaining", len(cities)-i))
			break
		}

		t0 := opts.Now()
		res, err := h.Sync(ctx, city.Slug)
		cs := report.FromResult(city.Slug, city.NameEN, res, err, opts.Now().Sub(t0))
		sum.Cities = append(sum.Cities, cs)

		var lines []string
		if res != nil {
			lines = report.Lines(city.Slug, res.Pharmacies)
			if wb != nil {
				wb.AddActions(city.Slug, res.Pharmacies)
			}
		}
		if err != nil {
			lines = append(lines, strings.Join([]string{city.Slug, "ERROR", city.NameEN, err.Error()}, " | "))
			log.Error("bootstrap city failed", zap.String("city", city.Slug), zap.Error(err))
		}
		if err := report.AppendCityLog(opts.ExportDir, city.Slug, lines); err != nil {
			return nil, err
		}
		if wb != nil {
			wb.AddCity(cs)
		}
		fmt.Fprintf(opts.Progress, "%s online=%d created=%d updated=%d errors=%d\n",
			cs.Slug, cs.Online, cs.Created, cs.Updated, cs.Errors)

		if i < len(cities)-1 && opts.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Delay):
			}
		}
	}
	sum.Duration = opts.Now().Sub(start)

	now := opts.Now()
	path, err := report.WriteSummary(opts.ExportDir, sum.Text(now), now)
	if err != nil {
		return nil, err
	}
	log.Info("bootstrap summary written", zap.String("path", path))

	if wb != nil {
		ts := strings.NewReplacer(":", "-", ".", "-").Replace(now.UTC().Format("2006-01-02T15:04:05"))
		xlsxPath := filepath.Join(opts.ExportDir, "pharmacies_"+ts+".xlsx")
		if err := wb.Save(xlsxPath); err != nil {
			return nil, err
		}
		log.Info("bootstrap workbook written", zap.String("path", xlsxPath))
	}
	return sum, nil
}
