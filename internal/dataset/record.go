package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMissingField is returned when an inference record lacks a feature.
var ErrMissingField = errors.New("missing field")

// ErrNonFinite is returned when an inference record holds an infinite value.
var ErrNonFinite = errors.New("non finite field")

// Record is a single gemstone sent for inference. Pointers distinguish an
// absent field from a zero value.
type Record struct {
	Carat   *float64 `json:"carat"`
	Depth   *float64 `json:"depth"`
	Table   *float64 `json:"table"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Z       *float64 `json:"z"`
	Cut     *string  `json:"cut"`
	Color   *string  `json:"color"`
	Clarity *string  `json:"clarity"`
}

func (r Record) numeric() map[string]*float64 {
	return map[string]*float64{
		"carat": r.Carat, "depth": r.Depth, "table": r.Table,
		"x": r.X, "y": r.Y, "z": r.Z,
	}
}

func (r Record) categorical() map[string]*string {
	return map[string]*string{"cut": r.Cut, "color": r.Color, "clarity": r.Clarity}
}

// Validate lists every absent field. Blank categories and NaN count as
// absent: a single record has nothing to impute from. Infinite values are
// rejected once every field is present.
func (r Record) Validate() error {
	var missing, infinite []string
	num := r.numeric()
	for _, name := range NumericColumns {
		switch v := num[name]; {
		case v == nil || math.IsNaN(*v):
			missing = append(missing, name)
		case math.IsInf(*v, 0):
			infinite = append(infinite, name)
		}
	}
	cat := r.categorical()
	for _, name := range CategoricalColumns {
		if v := cat[name]; v == nil || IsMissing(*v) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrap(ErrMissingField, strings.Join(missing, ", "))
	}
	if len(infinite) > 0 {
		return errors.Wrap(ErrNonFinite, strings.Join(infinite, ", "))
	}

	return nil
}

// AsTable returns the record as a one row table with the feature columns.
func (r Record) AsTable() (*Table, error) {
	err := r.Validate()
	if err != nil {
		return nil, err
	}

	row := make([]string, 0, len(NumericColumns)+len(CategoricalColumns))
	num := r.numeric()
	for _, name := range NumericColumns {
		row = append(row, strconv.FormatFloat(*num[name], 'g', -1, 64))
	}
	cat := r.categorical()
	for _, name := range CategoricalColumns {
		row = append(row, *cat[name])
	}

	return &Table{Header: FeatureColumns(), Rows: [][]string{row}}, nil
}

// Float and String build record fields.
func Float(v float64) *float64 { return &v }

func String(v string) *string { return &v }
