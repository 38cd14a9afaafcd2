package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalogio"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/dedup"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/model"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/store"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <input>",
	Short: "Collapse repeat detections of the same source",
	Long:  "Ranks rows by the configured rank key and keeps each row with no better-ranked row inside the tolerance.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyDedupFlags(cmd)
		if err := cfg.Validate("dedup"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
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

		rep, runID, err := runDedup(ctx, st, args[0], out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "input %d, kept %d, duplicates %d, skipped %d\n",
			rep.Input, rep.Accepted, rep.Duplicates, rep.Skipped)
		if runID != "" {
			fmt.Fprintf(os.Stdout, "run %s\n", runID)
		}
		return nil
	},
}

func init() {
	dedupCmd.Flags().String("out", "", "output catalog (default <input>_DEDUP.csv)")
	dedupCmd.Flags().Float64("tolerance", 0, "duplicate radius in arcseconds (default from config)")
	dedupCmd.Flags().String("rank-key", "", "column ranking duplicates, lowest wins (default from config)")
	dedupCmd.Flags().String("index", "", "spatial index: linear or grid (default from config)")
	dedupCmd.Flags().String("on-malformed", "", "abort or skip rows with bad coordinates (default from config)")
	dedupCmd.Flags().Bool("record", false, "record the run in the configured store")
	rootCmd.AddCommand(dedupCmd)
}

// applyDedupFlags overrides config values with explicitly set flags.
func applyDedupFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("tolerance") {
		cfg.Dedup.ToleranceArcsec, _ = cmd.Flags().GetFloat64("tolerance")
	}
	if cmd.Flags().Changed("rank-key") {
		cfg.Dedup.RankKey, _ = cmd.Flags().GetString("rank-key")
	}
	if cmd.Flags().Changed("index") {
		cfg.Dedup.Index, _ = cmd.Flags().GetString("index")
	}
	if cmd.Flags().Changed("on-malformed") {
		cfg.Dedup.OnMalformed, _ = cmd.Flags().GetString("on-malformed")
	}
}

func runDedup(ctx context.Context, st store.Store, input, out string) (dedup.Report, string, error) {
	if out == "" {
		out = derivedPath(input, "_DEDUP.csv")
	}

	rec := &recorder{st: st}
	err := rec.start(ctx, model.RunKindDedup, model.RunParams{
		Primary:         input,
		ToleranceArcsec: cfg.Dedup.ToleranceArcsec,
		RankColumn:      cfg.Dedup.RankKey,
		Index:           cfg.Dedup.Index,
		OnMalformed:     cfg.Dedup.OnMalformed,
	})
	if err != nil {
		return dedup.Report{}, "", err
	}

	rep, err := dedupFile(ctx, input, out)
	result := &model.RunResult{
		InputRows:  rep.Input,
		OutputRows: rep.Accepted,
		Skipped:    rep.Skipped,
		Output:     out,
	}
	return rep, rec.id(), rec.finish(ctx, result, err)
}

func dedupFile(ctx context.Context, input, out string) (dedup.Report, error) {
	opts, err := dedupOptions()
	if err != nil {
		return dedup.Report{}, err
	}
	cat, err := catalogio.Load(ctx, input)
	if err != nil {
		return dedup.Report{}, err
	}
	kept, rep, err := dedup.Deduplicate(cat, opts)
	if err != nil {
		return dedup.Report{}, err
	}
	if err := catalogio.Save(out, kept); err != nil {
		return rep, err
	}
	zap.L().Info("catalog deduplicated",
		zap.String("input", input),
		zap.String("out", out),
		zap.Int("kept", rep.Accepted),
		zap.Int("duplicates", rep.Duplicates),
	)
	return rep, nil
}

// derivedPath names an output file next to input.
func derivedPath(input, suffix string) string {
	return filepath.Join(filepath.Dir(input), catalogio.NameOf(input)+suffix)
}
