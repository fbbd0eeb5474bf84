package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardises a column to zero mean and unit variance using the
// population standard deviation. Constant columns keep a scale of one.
type StandardScaler struct {
	Mean  float64
	Scale float64
}

func fitScaler(values []float64) StandardScaler {
	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	return StandardScaler{Mean: mean, Scale: std}
}

func (s StandardScaler) apply(v float64) float64 {
	return (v - s.Mean) / s.Scale
}
