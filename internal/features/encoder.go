// Package features turns gemstone tables into model matrices.
//
// An Encoder only describes the preprocessing. Fit learns its parameters from
// the train partition and returns a FittedEncoder, the only type able to
// Apply them. A FittedEncoder never changes after Fit.
package features

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/dataset"
)

var (
	ErrMissingColumn = dataset.ErrMissingColumn
	ErrNoRows        = errors.New("table has no rows")
)

// Encoder routes numeric columns through median imputation and scaling, and
// categorical columns through mode imputation, ordinal encoding and scaling.
type Encoder struct {
	numeric     []string
	categorical []string
	orders      map[string][]string
}

// NewEncoder builds the encoder for the gemstone schema.
func NewEncoder() *Encoder {
	return NewEncoderFor(dataset.NumericColumns, dataset.CategoricalColumns, dataset.CategoryOrder)
}

// NewEncoderFor builds an encoder for arbitrary columns. Every categorical
// column needs an order.
func NewEncoderFor(numeric, categorical []string, orders map[string][]string) *Encoder {
	return &Encoder{numeric: numeric, categorical: categorical, orders: orders}
}

// numericParams are the learned parameters of a numeric column.
type numericParams struct {
	Column string
	Median float64
	Scaler StandardScaler
}

// categoricalParams are the learned parameters of a categorical column.
type categoricalParams struct {
	Column  string
	Mode    string
	Ordinal *ordinal
	Scaler  StandardScaler
}

// FittedEncoder applies parameters learned by Encoder.Fit.
type FittedEncoder struct {
	numeric     []numericParams
	categorical []categoricalParams
}

// Fit learns imputation values and scaling parameters from t.
func (e *Encoder) Fit(t *dataset.Table) (*FittedEncoder, error) {
	if t.Len() == 0 {
		return nil, ErrNoRows
	}

	fitted := &FittedEncoder{}
	for _, name := range e.numeric {
		cells, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		values, present, err := parseColumn(name, cells)
		if err != nil {
			return nil, err
		}
		med, ok := median(values, present)
		if !ok {
			return nil, errors.Wrapf(ErrAllMissing, "column %s", name)
		}
		for i := range values {
			if !present[i] {
				values[i] = med
			}
		}
		fitted.numeric = append(fitted.numeric, numericParams{Column: name, Median: med, Scaler: fitScaler(values)})
	}

	for _, name := range e.categorical {
		cells, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		order, ok := e.orders[name]
		if !ok {
			return nil, errors.Errorf("no category order for column %s", name)
		}
		mode, ok := mostFrequent(cells)
		if !ok {
			return nil, errors.Wrapf(ErrAllMissing, "column %s", name)
		}
		enc := newOrdinal(order)
		codes := make([]float64, len(cells))
		for i, cell := range cells {
			if dataset.IsMissing(cell) {
				cell = mode
			}
			codes[i], err = enc.encode(name, cell)
			if err != nil {
				return nil, err
			}
		}
		fitted.categorical = append(fitted.categorical, categoricalParams{
			Column:  name,
			Mode:    mode,
			Ordinal: enc,
			Scaler:  fitScaler(codes),
		})
	}

	return fitted, nil
}

// Columns lists the output columns: numeric block then categorical block.
func (f *FittedEncoder) Columns() []string {
	out := make([]string, 0, len(f.numeric)+len(f.categorical))
	for _, p := range f.numeric {
		out = append(out, p.Column)
	}
	for _, p := range f.categorical {
		out = append(out, p.Column)
	}

	return out
}

// Apply transforms t with the learned parameters. Columns are looked up by
// name, extra columns are ignored.
func (f *FittedEncoder) Apply(t *dataset.Table) (*mat.Dense, error) {
	if t.Len() == 0 {
		return nil, ErrNoRows
	}

	width := len(f.numeric) + len(f.categorical)
	out := mat.NewDense(t.Len(), width, nil)

	for j, p := range f.numeric {
		cells, err := t.Column(p.Column)
		if err != nil {
			return nil, err
		}
		values, present, err := parseColumn(p.Column, cells)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if !present[i] {
				v = p.Median
			}
			out.Set(i, j, p.Scaler.apply(v))
		}
	}

	offset := len(f.numeric)
	for j, p := range f.categorical {
		cells, err := t.Column(p.Column)
		if err != nil {
			return nil, err
		}
		for i, cell := range cells {
			if dataset.IsMissing(cell) {
				cell = p.Mode
			}
			code, err := p.Ordinal.encode(p.Column, cell)
			if err != nil {
				return nil, err
			}
			out.Set(i, offset+j, p.Scaler.apply(code))
		}
	}

	return out, nil
}

type fittedState struct {
	Numeric     []numericParams
	Categorical []categoricalState
}

type categoricalState struct {
	Column string
	Mode   string
	Order  []string
	Scaler StandardScaler
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (f *FittedEncoder) MarshalBinary() ([]byte, error) {
	state := fittedState{Numeric: f.numeric}
	for _, p := range f.categorical {
		state.Categorical = append(state.Categorical, categoricalState{
			Column: p.Column, Mode: p.Mode, Order: p.Ordinal.Order, Scaler: p.Scaler,
		})
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(state)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode fitted encoder")
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (f *FittedEncoder) UnmarshalBinary(data []byte) error {
	var state fittedState
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state)
	if err != nil {
		return errors.Wrap(err, "unable to decode fitted encoder")
	}

	f.numeric = state.Numeric
	f.categorical = f.categorical[:0]
	for _, s := range state.Categorical {
		f.categorical = append(f.categorical, categoricalParams{
			Column: s.Column, Mode: s.Mode, Ordinal: newOrdinal(s.Order), Scaler: s.Scaler,
		})
	}

	return nil
}
