// Package evaluate scores the persisted model against the encoded test
// partition and reports the result to the tracking backend.
package evaluate

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/regress"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
	"github.com/askiada/gemstone-pipeline/internal/tracking"
)

// StageName is the name of the evaluation stage in errors and logs.
const StageName = "model_evaluation"

// Metrics summarise the model on the test partition.
type Metrics = regress.Scores

type Evaluator struct {
	store           artifact.Store
	tracker         tracking.Tracker
	registeredModel string
	logger          *zap.Logger
}

// NewEvaluator creates an evaluator. When the tracker keeps a registry, the
// model is registered as registeredModel.
func NewEvaluator(store artifact.Store, tracker tracking.Tracker, registeredModel string, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, tracker: tracker, registeredModel: registeredModel, logger: logger}
}

// Evaluate loads the model referenced by ref and scores it on test, whose
// last column is the target. Metrics are returned whatever the tracking
// backend.
func (e *Evaluator) Evaluate(ctx context.Context, test *mat.Dense, ref regress.ModelRef) (Metrics, error) {
	m, err := e.evaluate(ctx, test, ref)
	if err != nil {
		return Metrics{}, stageerr.New(stageerr.Evaluation, StageName, err)
	}

	return m, nil
}

func (e *Evaluator) evaluate(ctx context.Context, test *mat.Dense, ref regress.ModelRef) (Metrics, error) {
	if test == nil {
		return Metrics{}, errors.Wrap(regress.ErrShapeMismatch, "missing test matrix")
	}
	if r, c := test.Dims(); r == 0 || c < 2 {
		return Metrics{}, errors.Wrapf(regress.ErrShapeMismatch, "test matrix is %dx%d", r, c)
	}
	key := ref.Key
	if key == "" {
		key = artifact.Model
	}

	model := &regress.Model{}
	err := artifact.Load(ctx, e.store, key, model)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "unable to load model")
	}

	x, y := features.Split(test)
	pred, err := model.Predict(x)
	if err != nil {
		return Metrics{}, err
	}
	if len(pred) != len(y) {
		return Metrics{}, errors.Wrapf(regress.ErrShapeMismatch, "%d predictions for %d targets", len(pred), len(y))
	}
	metrics := regress.Score(y, pred)

	runID := tracking.RunIDFrom(ctx)
	e.logger.Info("model evaluated",
		zap.String("run_id", runID),
		zap.String("model", model.Name),
		zap.Float64("rmse", metrics.RMSE),
		zap.Float64("mae", metrics.MAE),
		zap.Float64("r2", metrics.R2),
	)
	e.track(ctx, runID, model.Name, metrics)

	return metrics, nil
}

// track reports to the tracker. Tracking failures are logged and never hide
// the metrics from the caller.
func (e *Evaluator) track(ctx context.Context, runID, model string, m Metrics) {
	if e.tracker == nil {
		return
	}
	err := e.tracker.LogMetrics(ctx, runID, model, map[string]float64{"rmse": m.RMSE, "mae": m.MAE, "r2": m.R2})
	if err != nil {
		e.logger.Error("unable to track metrics", zap.String("run_id", runID), zap.Error(err))

		return
	}

	registry, ok := e.tracker.(tracking.Registry)
	if !ok || e.registeredModel == "" {
		e.logger.Debug("model logged without registration", zap.String("run_id", runID))

		return
	}
	version, err := registry.RegisterModel(ctx, runID, e.registeredModel)
	if err != nil {
		e.logger.Error("unable to register model", zap.String("run_id", runID), zap.Error(err))

		return
	}
	e.logger.Info("model registered",
		zap.String("run_id", runID),
		zap.String("name", e.registeredModel),
		zap.Int("version", version),
	)
}
