package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/askiada/gemstone-pipeline/internal/tracking"
)

func (c *cli) runsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List tracked runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, c.logger)

			runs, err := a.Tracker.Runs(cmd.Context())
			if err != nil {
				return err
			}

			return writeRuns(cmd.OutOrStdout(), format, runs)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json, yaml)")

	return cmd
}

func writeRuns(w io.Writer, format string, runs []tracking.Run) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return errors.Wrap(enc.Encode(runs), "unable to encode runs")
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()

		return errors.Wrap(enc.Encode(runs), "unable to encode runs")
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tTIME\tMODEL\tVERSION\tRMSE\tMAE\tR2")
		for _, r := range runs {
			version := "-"
			if r.Version > 0 {
				version = fmt.Sprint(r.Version)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%.4f\t%.4f\n",
				r.ID, r.Time.Format("2006-01-02 15:04:05"), r.Model, version,
				r.Metrics["rmse"], r.Metrics["mae"], r.Metrics["r2"])
		}

		return errors.Wrap(tw.Flush(), "unable to write runs")
	default:
		return errors.Errorf("unknown format %q", format)
	}
}
