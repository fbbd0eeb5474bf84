package workflow

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/features"
)

// Run context keys, one per producing step.
const (
	keyIngestion      = "data_ingestion_artifact"
	keyTransformation = "data_transformations_artifact"
	keyTraining       = "model_training_artifact"
	keyEvaluation     = "evaluation_metrics"
	keyPush           = "pushed_artifacts"
)

type denseJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type matricesJSON struct {
	Train denseJSON `json:"train_arr"`
	Test  denseJSON `json:"test_arr"`
}

func toDenseJSON(m *mat.Dense) denseJSON {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := range r {
		data = append(data, m.RawRowView(i)...)
	}

	return denseJSON{Rows: r, Cols: c, Data: data}
}

func (d denseJSON) dense() (*mat.Dense, error) {
	if d.Rows <= 0 || d.Cols <= 0 || len(d.Data) != d.Rows*d.Cols {
		return nil, errors.Errorf("invalid %dx%d matrix with %d values", d.Rows, d.Cols, len(d.Data))
	}

	return mat.NewDense(d.Rows, d.Cols, d.Data), nil
}

func encodeMatrices(m features.Matrices) matricesJSON {
	return matricesJSON{Train: toDenseJSON(m.Train), Test: toDenseJSON(m.Test)}
}

func (b matricesJSON) decode() (features.Matrices, error) {
	train, err := b.Train.dense()
	if err != nil {
		return features.Matrices{}, errors.Wrap(err, "train")
	}
	test, err := b.Test.dense()
	if err != nil {
		return features.Matrices{}, errors.Wrap(err, "test")
	}

	return features.Matrices{Train: train, Test: test}, nil
}
