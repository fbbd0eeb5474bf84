package regress

import "math"

// Scores are the regression metrics of one prediction set.
type Scores struct {
	RMSE float64 `json:"rmse" yaml:"rmse"`
	MAE  float64 `json:"mae" yaml:"mae"`
	R2   float64 `json:"r2" yaml:"r2"`
}

// Score computes RMSE, MAE and R2 of predicted against actual.
func Score(actual, predicted []float64) Scores {
	return Scores{
		RMSE: RMSE(actual, predicted),
		MAE:  MAE(actual, predicted),
		R2:   R2(actual, predicted),
	}
}

func MSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	s := 0.0
	for i := range actual {
		d := predicted[i] - actual[i]
		s += d * d
	}

	return s / float64(len(actual))
}

func RMSE(actual, predicted []float64) float64 { return math.Sqrt(MSE(actual, predicted)) }

func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	s := 0.0
	for i := range actual {
		s += math.Abs(predicted[i] - actual[i])
	}

	return s / float64(len(actual))
}

// R2 is 1 - SSres/SStot. A constant target yields 0.
func R2(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	m := 0.0
	for _, v := range actual {
		m += v
	}
	m /= float64(len(actual))

	ssTot, ssRes := 0.0, 0.0
	for i := range actual {
		d := actual[i] - m
		ssTot += d * d
		r := actual[i] - predicted[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		return 0
	}

	return 1 - ssRes/ssTot
}
