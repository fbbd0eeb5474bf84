// Package predict serves prices from the persisted encoder and model.
package predict

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/dataset"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/regress"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
)

// StageName is the name of the prediction stage in errors and logs.
const StageName = "prediction_pipeline"

// Pipeline applies the fitted encoder and the model. It never fits anything.
type Pipeline struct {
	store  artifact.Store
	logger *zap.Logger
}

func NewPipeline(store artifact.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: store, logger: logger}
}

// Predict returns the price of a single record.
func (p *Pipeline) Predict(ctx context.Context, rec dataset.Record) (float64, error) {
	t, err := rec.AsTable()
	if err != nil {
		return 0, stageerr.New(stageerr.Prediction, StageName, err)
	}
	out, err := p.PredictTable(ctx, t)
	if err != nil {
		return 0, err
	}

	return out[0], nil
}

// PredictTable returns one price per row of t. Identifier and target columns
// are ignored when present.
func (p *Pipeline) PredictTable(ctx context.Context, t *dataset.Table) ([]float64, error) {
	out, err := p.predict(ctx, t)
	if err != nil {
		return nil, stageerr.New(stageerr.Prediction, StageName, err)
	}

	return out, nil
}

func (p *Pipeline) predict(ctx context.Context, t *dataset.Table) ([]float64, error) {
	encoderBlob, err := p.store.Get(ctx, artifact.Encoder)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load encoder")
	}
	model := &regress.Model{}
	err = artifact.Load(ctx, p.store, artifact.Model, model)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load model")
	}
	err = model.CheckEncoder(encoderBlob)
	if err != nil {
		return nil, err
	}
	encoder := &features.FittedEncoder{}
	err = encoder.UnmarshalBinary(encoderBlob)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode encoder")
	}

	x, err := encoder.Apply(t.Drop(dataset.IDColumn, dataset.TargetColumn))
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode input")
	}
	out, err := model.Predict(x)
	if err != nil {
		return nil, err
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(regress.ErrNonFinite, "prediction for row %d", i+1)
		}
	}
	p.logger.Debug("prediction completed", zap.String("model", model.Name), zap.Int("rows", len(out)))

	return out, nil
}
