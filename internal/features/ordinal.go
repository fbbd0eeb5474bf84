package features

import "github.com/pkg/errors"

// ErrUnknownCategory is returned for values outside the fixed category order.
var ErrUnknownCategory = errors.New("unknown category")

type ordinal struct {
	Order []string
	codes map[string]int
}

func newOrdinal(order []string) *ordinal {
	o := &ordinal{Order: order}
	o.index()

	return o
}

func (o *ordinal) index() {
	o.codes = make(map[string]int, len(o.Order))
	for i, v := range o.Order {
		o.codes[v] = i
	}
}

func (o *ordinal) encode(column, value string) (float64, error) {
	code, ok := o.codes[value]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownCategory, "column %s value %q", column, value)
	}

	return float64(code), nil
}
