package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalogio"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/clean"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean raw instrument catalogs",
	Long:  "Normalizes raw GALEX and Chandra exports into the column layout the dedup and match commands expect.",
}

// -- clean galex --

var cleanGalexCmd = &cobra.Command{
	Use:   "galex <input>...",
	Short: "Stack, trim, rename and deduplicate GALEX NUV exports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		renameFile, _ := cmd.Flags().GetString("rename-file")
		dropMissing, _ := cmd.Flags().GetBool("drop-missing")
		missingCols, _ := cmd.Flags().GetStringSlice("missing-columns")

		results, err := runGALEXClean(cmd.Context(), args, out, renameFile, dropMissing, missingCols)
		if err != nil {
			return err
		}
		formatStepResults(os.Stdout, results)
		return nil
	},
}

// -- clean chandra --

var cleanChandraCmd = &cobra.Command{
	Use:   "chandra <input>",
	Short: "Rename, prefix and correct positional errors of the GBS X-ray table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		renameFile, _ := cmd.Flags().GetString("rename-file")

		results, err := runChandraClean(cmd.Context(), args[0], out, renameFile)
		if err != nil {
			return err
		}
		formatStepResults(os.Stdout, results)
		return nil
	},
}

func init() {
	cleanGalexCmd.Flags().String("out", "galex_CLEAN.csv", "output catalog (.csv, .tsv or .xlsx)")
	cleanGalexCmd.Flags().String("rename-file", "", "YAML file with extra column renames")
	cleanGalexCmd.Flags().Bool("drop-missing", false, "drop rows with missing values instead of only counting them")
	cleanGalexCmd.Flags().StringSlice("missing-columns", nil, "columns checked for missing values (default all)")

	cleanChandraCmd.Flags().String("out", "chandra_GBS_CLEAN.csv", "output catalog (.csv, .tsv or .xlsx)")
	cleanChandraCmd.Flags().String("rename-file", "", "YAML file with extra column renames")

	cleanCmd.AddCommand(cleanGalexCmd)
	cleanCmd.AddCommand(cleanChandraCmd)
	rootCmd.AddCommand(cleanCmd)
}

func runGALEXClean(ctx context.Context, inputs []string, out, renameFile string, dropMissing bool, missingCols []string) ([]clean.StepResult, error) {
	parts := make([]*catalog.Catalog, 0, len(inputs))
	for _, path := range inputs {
		c, err := catalogio.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, c)
	}

	renames, err := loadRenames(renameFile)
	if err != nil {
		return nil, err
	}
	dopts, err := dedupOptions()
	if err != nil {
		return nil, err
	}

	p := clean.GALEX(clean.GALEXConfig{
		DropMissing:    dropMissing,
		MissingColumns: missingCols,
		Region: clean.Region{
			LonColumn: cfg.Region.LonColumn,
			LatColumn: cfg.Region.LatColumn,
			LonMax:    cfg.Region.LonMax,
			LatCut:    cfg.Region.LatCut,
		},
		Renames: renames,
		Dedup:   dopts,
	})

	return runPipeline(ctx, p, clean.Stack("galex", parts...), out)
}

func runChandraClean(ctx context.Context, input, out, renameFile string) ([]clean.StepResult, error) {
	raw, err := catalogio.Load(ctx, input)
	if err != nil {
		return nil, err
	}

	renames, err := loadRenames(renameFile)
	if err != nil {
		return nil, err
	}

	ccfg := clean.DefaultChandraConfig()
	ccfg.Renames = renames
	ccfg.IDColumn = cfg.Match.PrimaryID
	ccfg.IDPrefix = cfg.Chandra.IDPrefix
	ccfg.SystematicArcsec = cfg.Chandra.SystematicArcsec
	ccfg.BoresightArcsec = cfg.Chandra.BoresightArcsec
	ccfg.BoresightScale = cfg.Chandra.BoresightScale

	p, err := clean.Chandra(ccfg)
	if err != nil {
		return nil, err
	}
	return runPipeline(ctx, p, raw, out)
}

func runPipeline(ctx context.Context, p *clean.Pipeline, in *catalog.Catalog, out string) ([]clean.StepResult, error) {
	cleaned, results, err := p.Run(ctx, in)
	if err != nil {
		return results, err
	}
	if err := catalogio.Save(out, cleaned); err != nil {
		return results, eris.Wrapf(err, "clean %s", p.Name)
	}
	zap.L().Info("catalog cleaned",
		zap.String("pipeline", p.Name),
		zap.Int("rows_in", in.Len()),
		zap.Int("rows_out", cleaned.Len()),
		zap.String("out", out),
	)
	return results, nil
}

func loadRenames(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	return clean.LoadRenames(path)
}

// formatStepResults writes one line per pipeline step to w.
func formatStepResults(out io.Writer, results []clean.StepResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STEP\tROWS_IN\tROWS_OUT\tELAPSED")
	_, _ = fmt.Fprintln(w, "----\t-------\t--------\t-------")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Step, r.RowsBefore, r.RowsAfter, r.Elapsed)
	}
	_ = w.Flush()
}
