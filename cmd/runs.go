package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/model"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect dedup and match run history",
	Long:  "Commands for listing recorded runs and the association tables of match runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, _ := cmd.Flags().GetString("format")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Kind:   model.RunKind(kind),
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 && format == "table" {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		return writeFormatted(os.Stdout, format, runs, func(w io.Writer) { formatRunsList(w, runs) })
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "table" {
			format = "json"
		}
		return writeFormatted(os.Stdout, format, run, nil)
	},
}

// -- runs associations --

var runsAssociationsCmd = &cobra.Command{
	Use:   "associations <run-id>",
	Short: "Show the association table of a match run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "runs associations")
		}
		assocs, err := st.ListAssociations(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs associations")
		}

		format, _ := cmd.Flags().GetString("format")
		return writeFormatted(os.Stdout, format, assocs, func(w io.Writer) { formatAssociations(w, assocs) })
	},
}

func init() {
	runsListCmd.Flags().String("kind", "", "filter by run kind (dedup, match)")
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	for _, c := range []*cobra.Command{runsListCmd, runsShowCmd, runsAssociationsCmd} {
		c.Flags().String("format", "table", "output format: table, json or yaml")
	}

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsAssociationsCmd)
	rootCmd.AddCommand(runsCmd)
}

// writeFormatted encodes v as json or yaml, or calls table for "table".
func writeFormatted(out io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "table":
		if table == nil {
			return eris.New("table format not supported here")
		}
		table(out)
		return nil
	default:
		return eris.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATUS\tINPUT\tTOL\"\tROWS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----\t----\t----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Millisecond).String()

		input := r.Params.Primary
		if r.Params.Secondary != "" {
			input += " x " + r.Params.Secondary
		}
		if len(input) > 40 {
			input = input[:37] + "..."
		}

		rows := "-"
		if r.Result != nil && r.Result.Error == "" {
			rows = fmt.Sprintf("%d/%d", r.Result.OutputRows, r.Result.InputRows)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			r.Status,
			input,
			r.Params.ToleranceArcsec,
			rows,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatAssociations writes an association table to w.
func formatAssociations(out io.Writer, assocs []model.Association) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tPRIMARY_ID\tPRIMARY_ROW\tSECONDARY_ROW\tRA\tDEC\tSEP_ARCSEC")
	for _, a := range assocs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.6f\t%.6f\t%.4f\n",
			a.Seq, a.PrimaryID, a.PrimaryRow, a.SecondaryRow, a.RA, a.Dec, a.SeparationArcsec)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
