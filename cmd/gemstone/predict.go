package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/askiada/gemstone-pipeline/internal/dataset"
)

var (
	numericFlags     = []string{"carat", "depth", "table", "x", "y", "z"}
	categoricalFlags = []string{"cut", "color", "clarity"}
)

func (c *cli) predictCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the price of gemstones with the trained model",
		Long: `Predict one gemstone described by flags, or every row of a CSV file with
--input. The CSV may carry id and price columns, they are ignored.`,
		Example: `  gemstone predict --carat 1.52 --cut Premium --color F --clarity VS2 --depth 62.2 --table 58 --x 7.27 --y 7.33 --z 4.55
  gemstone predict --input experiment/datasets/test.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, c.logger)

			out := cmd.OutOrStdout()
			if input != "" {
				for _, name := range append(numericFlags, categoricalFlags...) {
					if cmd.Flags().Changed(name) {
						return errors.Errorf("--%s cannot be combined with --input", name)
					}
				}
			}
			if input == "" {
				rec, err := recordFromFlags(cmd.Flags())
				if err != nil {
					return err
				}
				price, err := a.Predictor.Predict(cmd.Context(), rec)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, decimal.NewFromFloat(price).StringFixed(2))

				return nil
			}

			t, err := readTable(input)
			if err != nil {
				return err
			}
			prices, err := a.Predictor.PredictTable(cmd.Context(), t)
			if err != nil {
				return err
			}
			for _, price := range prices {
				fmt.Fprintln(out, decimal.NewFromFloat(price).StringFixed(2))
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&input, "input", "i", "", "CSV file of gemstones")
	for _, name := range numericFlags {
		flags.Float64(name, 0, "numeric feature "+name)
	}
	for _, name := range categoricalFlags {
		flags.String(name, "", "categorical feature "+name)
	}

	return cmd
}

// recordFromFlags leaves the fields of unset flags nil so the record reports
// them as missing.
func recordFromFlags(flags *pflag.FlagSet) (dataset.Record, error) {
	var rec dataset.Record
	numeric := map[string]**float64{
		"carat": &rec.Carat, "depth": &rec.Depth, "table": &rec.Table,
		"x": &rec.X, "y": &rec.Y, "z": &rec.Z,
	}
	for name, field := range numeric {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetFloat64(name)
		if err != nil {
			return rec, errors.Wrapf(err, "flag %s", name)
		}
		*field = dataset.Float(v)
	}

	categorical := map[string]**string{"cut": &rec.Cut, "color": &rec.Color, "clarity": &rec.Clarity}
	for name, field := range categorical {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return rec, errors.Wrapf(err, "flag %s", name)
		}
		*field = dataset.String(v)
	}

	return rec, nil
}

func readTable(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open input")
	}
	defer f.Close()

	t, err := dataset.ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	return t, nil
}
