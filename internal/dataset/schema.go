// Package dataset describes the gemstone table and the records sent for
// inference.
package dataset

import "strings"

const (
	IDColumn     = "id"
	TargetColumn = "price"
)

// NumericColumns are scaled after median imputation, in this order.
var NumericColumns = []string{"carat", "depth", "table", "x", "y", "z"}

// CategoricalColumns are ordinal encoded after mode imputation, in this order.
var CategoricalColumns = []string{"cut", "color", "clarity"}

// CategoryOrder is the quality ranking of each categorical column, from the
// lowest grade to the highest. Codes are positions in these slices.
var CategoryOrder = map[string][]string{
	"cut":     {"Fair", "Good", "Very Good", "Premium", "Ideal"},
	"color":   {"D", "E", "F", "G", "H", "I", "J"},
	"clarity": {"I1", "SI2", "SI1", "VS2", "VS1", "VVS2", "VVS1", "IF"},
}

// FeatureColumns returns the numeric block followed by the categorical block.
func FeatureColumns() []string {
	out := make([]string, 0, len(NumericColumns)+len(CategoricalColumns))
	out = append(out, NumericColumns...)

	return append(out, CategoricalColumns...)
}

// IsMissing reports whether a raw cell holds no value.
func IsMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "na", "nan", "null":
		return true
	}

	return false
}
