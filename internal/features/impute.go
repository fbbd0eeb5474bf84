package features

import (
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/askiada/gemstone-pipeline/internal/dataset"
)

var (
	ErrAllMissing   = errors.New("every value is missing")
	ErrInvalidValue = errors.New("invalid numeric value")
)

// parseColumn parses a numeric column. Missing cells are reported as false
// in present.
func parseColumn(name string, cells []string) (values []float64, present []bool, err error) {
	values = make([]float64, len(cells))
	present = make([]bool, len(cells))
	for i, cell := range cells {
		if dataset.IsMissing(cell) {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsInf(v, 0) {
			return nil, nil, errors.Wrapf(ErrInvalidValue, "column %s row %d: %q", name, i+1, cell)
		}
		values[i] = v
		present[i] = true
	}

	return values, present, nil
}

// median of the present values. Even counts average the two middle values.
func median(values []float64, present []bool) (float64, bool) {
	kept := make([]float64, 0, len(values))
	for i, v := range values {
		if present[i] {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return 0, false
	}
	sort.Float64s(kept)
	mid := len(kept) / 2
	if len(kept)%2 == 1 {
		return kept[mid], true
	}

	return (kept[mid-1] + kept[mid]) / 2, true
}

// mostFrequent returns the most common non missing cell. Ties go to the
// smallest value.
func mostFrequent(cells []string) (string, bool) {
	counts := make(map[string]int)
	for _, cell := range cells {
		if !dataset.IsMissing(cell) {
			counts[cell]++
		}
	}

	best, bestCount := "", 0
	for value, count := range counts {
		if count > bestCount || (count == bestCount && value < best) {
			best, bestCount = value, count
		}
	}

	return best, bestCount > 0
}
