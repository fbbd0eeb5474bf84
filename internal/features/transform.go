package features

import (
	"context"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/dataset"
	"github.com/askiada/gemstone-pipeline/internal/ingest"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
)

// StageName is the name of the transformation stage in errors and logs.
const StageName = "data_transformation"

// ErrMissingTarget is returned when a partition row has no price.
var ErrMissingTarget = errors.New("missing target")

// Matrices hold the encoded features with the raw target as last column.
type Matrices struct {
	Train *mat.Dense
	Test  *mat.Dense
}

type Transformer struct {
	store   artifact.Store
	encoder *Encoder
	logger  *zap.Logger
}

func NewTransformer(store artifact.Store, encoder *Encoder, logger *zap.Logger) *Transformer {
	return &Transformer{store: store, encoder: encoder, logger: logger}
}

// Transform fits the encoder on the train partition, applies it to both
// partitions and persists it.
func (tr *Transformer) Transform(ctx context.Context, parts ingest.Partitions) (Matrices, error) {
	m, err := tr.transform(ctx, parts)
	if err != nil {
		return Matrices{}, stageerr.New(stageerr.Transformation, StageName, err)
	}

	return m, nil
}

func (tr *Transformer) transform(ctx context.Context, parts ingest.Partitions) (Matrices, error) {
	tr.logger.Info("data transformation started")

	train, err := tr.load(ctx, parts.Train)
	if err != nil {
		return Matrices{}, err
	}
	test, err := tr.load(ctx, parts.Test)
	if err != nil {
		return Matrices{}, err
	}

	trainTarget, err := target(train)
	if err != nil {
		return Matrices{}, errors.Wrap(err, "train partition")
	}
	testTarget, err := target(test)
	if err != nil {
		return Matrices{}, errors.Wrap(err, "test partition")
	}
	trainFeatures := train.Drop(dataset.IDColumn, dataset.TargetColumn)
	testFeatures := test.Drop(dataset.IDColumn, dataset.TargetColumn)

	fitted, err := tr.encoder.Fit(trainFeatures)
	if err != nil {
		return Matrices{}, errors.Wrap(err, "unable to fit encoder")
	}

	trainX, err := fitted.Apply(trainFeatures)
	if err != nil {
		return Matrices{}, errors.Wrap(err, "unable to encode train partition")
	}
	testX, err := fitted.Apply(testFeatures)
	if err != nil {
		return Matrices{}, errors.Wrap(err, "unable to encode test partition")
	}

	err = artifact.Save(ctx, tr.store, artifact.Encoder, fitted)
	if err != nil {
		return Matrices{}, errors.Wrap(err, "unable to persist encoder")
	}

	m := Matrices{Train: appendTarget(trainX, trainTarget), Test: appendTarget(testX, testTarget)}
	tr.logger.Info("data transformation completed",
		zap.Strings("features", fitted.Columns()),
		zap.Int("train_rows", len(trainTarget)),
		zap.Int("test_rows", len(testTarget)),
		zap.String("encoder", tr.store.Location(artifact.Encoder)),
	)

	return m, nil
}

func (tr *Transformer) load(ctx context.Context, key artifact.Key) (*dataset.Table, error) {
	blob, err := tr.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	t, err := dataset.ParseCSV(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", key)
	}

	return t, nil
}

// target parses the target column. Every row needs a finite price: a matrix
// with a missing target could be neither trained on nor handed on.
func target(t *dataset.Table) ([]float64, error) {
	cells, err := t.Column(dataset.TargetColumn)
	if err != nil {
		return nil, errors.Wrap(err, "target")
	}

	out := make([]float64, len(cells))
	for i, cell := range cells {
		if dataset.IsMissing(cell) {
			return nil, errors.Wrapf(ErrMissingTarget, "row %d", i+1)
		}
		out[i], err = strconv.ParseFloat(cell, 64)
		if err != nil || math.IsInf(out[i], 0) {
			return nil, errors.Wrapf(ErrInvalidValue, "target row %d: %q", i+1, cell)
		}
	}

	return out, nil
}

func appendTarget(x *mat.Dense, y []float64) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c+1, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(x)
	out.SetCol(c, y)

	return out
}

// Split separates the features from the target, the last column.
func Split(m *mat.Dense) (*mat.Dense, []float64) {
	r, c := m.Dims()
	x := mat.DenseCopyOf(m.Slice(0, r, 0, c-1))
	y := mat.Col(nil, c-1, m)

	return x, y
}
