package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalogio"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/model"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/store"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/xmatch"
)

var matchCmd = &cobra.Command{
	Use:   "match <primary> <secondary>",
	Short: "Find secondary counterparts of every primary source",
	Long: `Tags every secondary row within the tolerance of a primary source with the
primary ID. A primary with several counterparts produces several rows; a
secondary near several primaries appears once per primary.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := applyMatchFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("match"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		shpPath, _ := cmd.Flags().GetString("shp")
		record, _ := cmd.Flags().GetBool("record")

		var st store.Store
		if record {
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			st = s
		}

		tbl, runID, err := runMatch(ctx, st, args[0], args[1], matchOutputs{csv: out, xlsx: xlsxPath, shp: shpPath})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d associations for %d primary sources (tolerance %.3f arcsec)\n",
			tbl.Len(), len(tbl.PrimaryIDs()), tbl.Tolerance.Arcsec())
		if runID != "" {
			fmt.Fprintf(os.Stdout, "run %s\n", runID)
		}
		return nil
	},
}

func init() {
	registerMatchFlags(matchCmd)
	rootCmd.AddCommand(matchCmd)
}

func registerMatchFlags(c *cobra.Command) {
	c.Flags().String("out", "", "association catalog (default <secondary>_MATCHED.csv)")
	c.Flags().String("xlsx", "", "also write primary, secondary and associations as sheets of this workbook")
	c.Flags().String("shp", "", "also write the associations as a point shapefile at the counterpart positions")
	c.Flags().Float64("tolerance", 0, "match radius in arcseconds, or degrees with --degrees (default from config)")
	c.Flags().Bool("degrees", false, "read --tolerance in degrees")
	c.Flags().String("index", "", "spatial index: linear or grid (default from config)")
	c.Flags().String("metric", "", "separation metric: planar or great_circle (default from config)")
	c.Flags().Int("workers", 0, "concurrent primary lookups (default from config)")
	c.Flags().String("on-malformed", "", "abort or skip rows with bad coordinates (default from config)")
	c.Flags().Bool("record", false, "record the run and its associations in the configured store")
}

// applyMatchFlags overrides config values with explicitly set flags. The
// config tolerance is always in arcseconds; --degrees only changes how
// --tolerance is read and is rejected without it.
func applyMatchFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	degrees, _ := f.GetBool("degrees")
	if degrees && !f.Changed("tolerance") {
		return eris.New("match: --degrees requires --tolerance")
	}
	if f.Changed("tolerance") {
		tol, _ := f.GetFloat64("tolerance")
		if degrees {
			tol = sky.DegToArcsec(tol)
		}
		cfg.Match.ToleranceArcsec = tol
	}
	if f.Changed("index") {
		cfg.Match.Index, _ = f.GetString("index")
	}
	if f.Changed("metric") {
		cfg.Match.Metric, _ = f.GetString("metric")
	}
	if f.Changed("workers") {
		cfg.Match.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("on-malformed") {
		cfg.Match.OnMalformed, _ = f.GetString("on-malformed")
	}
	return nil
}

// matchOutputs names the files a match run writes. Empty xlsx and shp skip
// those exports.
type matchOutputs struct {
	csv  string
	xlsx string
	shp  string
}

func runMatch(ctx context.Context, st store.Store, primary, secondary string, outs matchOutputs) (*xmatch.Table, string, error) {
	if outs.csv == "" {
		outs.csv = derivedPath(secondary, "_MATCHED.csv")
	}

	rec := &recorder{st: st}
	err := rec.start(ctx, model.RunKindMatch, model.RunParams{
		Primary:         primary,
		Secondary:       secondary,
		ToleranceArcsec: cfg.Match.ToleranceArcsec,
		IDColumn:        cfg.Match.PrimaryID,
		Index:           cfg.Match.Index,
		Metric:          cfg.Match.Metric,
		OnMalformed:     cfg.Match.OnMalformed,
	})
	if err != nil {
		return nil, "", err
	}

	tbl, result, err := matchFiles(ctx, primary, secondary, outs)
	if err == nil && rec.run != nil {
		_, err = st.SaveAssociations(ctx, rec.id(), tbl.Records(rec.id()))
	}
	if ferr := rec.finish(ctx, result, err); ferr != nil {
		return nil, rec.id(), ferr
	}
	return tbl, rec.id(), nil
}

func matchFiles(ctx context.Context, primary, secondary string, outs matchOutputs) (*xmatch.Table, *model.RunResult, error) {
	opts, err := matchOptions()
	if err != nil {
		return nil, nil, err
	}
	prim, err := catalogio.Load(ctx, primary)
	if err != nil {
		return nil, nil, err
	}
	sec, err := catalogio.Load(ctx, secondary)
	if err != nil {
		return nil, nil, err
	}

	tbl, err := xmatch.Match(ctx, prim, sec, opts)
	if err != nil {
		return nil, nil, err
	}

	assoc := tbl.Catalog()
	if err := catalogio.Save(outs.csv, assoc); err != nil {
		return nil, nil, err
	}
	if outs.xlsx != "" {
		if err := catalogio.WriteXLSX(outs.xlsx, prim, sec, assoc); err != nil {
			return nil, nil, err
		}
	}
	if outs.shp != "" {
		if err := catalogio.WriteShapefile(outs.shp, assoc, cfg.Match.SecondaryRA, cfg.Match.SecondaryDec); err != nil {
			return nil, nil, err
		}
	}

	result := &model.RunResult{
		InputRows:      prim.Len(),
		OutputRows:     tbl.Len(),
		PrimaryMatched: len(tbl.PrimaryIDs()),
		Skipped:        tbl.Skipped,
		Output:         outs.csv,
	}
	zap.L().Info("catalogs matched",
		zap.String("primary", primary),
		zap.String("secondary", secondary),
		zap.Int("associations", result.OutputRows),
		zap.Int("primary_matched", result.PrimaryMatched),
		zap.String("out", outs.csv),
	)
	return tbl, result, nil
}
