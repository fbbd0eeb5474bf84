package regress

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
)

// StageName is the name of the training stage in errors and logs.
const StageName = "model_trainer"

var (
	ErrTooFewRows  = errors.New("too few rows")
	ErrNonFinite   = errors.New("non finite value")
	ErrNoCandidate = errors.New("no candidate model")
)

// CandidateScore is one line of the leaderboard.
type CandidateScore struct {
	Name  string `json:"name"`
	Train Scores `json:"train"`
	Test  Scores `json:"test"`
}

// ModelRef is handed to the evaluation stage.
type ModelRef struct {
	Key   artifact.Key     `json:"key"`
	Name  string           `json:"name"`
	Board []CandidateScore `json:"leaderboard"`
}

type Trainer struct {
	store      artifact.Store
	candidates []Estimator
	minRows    int
	logger     *zap.Logger
}

func NewTrainer(store artifact.Store, candidates []Estimator, minRows int, logger *zap.Logger) *Trainer {
	if minRows < 1 {
		minRows = 1
	}

	return &Trainer{store: store, candidates: candidates, minRows: minRows, logger: logger}
}

// Train fits every candidate on the train matrix and persists the one with
// the lowest test RMSE. Ties keep the earlier candidate.
func (t *Trainer) Train(ctx context.Context, m features.Matrices) (ModelRef, error) {
	ref, err := t.train(ctx, m)
	if err != nil {
		return ModelRef{}, stageerr.New(stageerr.Training, StageName, err)
	}

	return ref, nil
}

func (t *Trainer) train(ctx context.Context, m features.Matrices) (ModelRef, error) {
	if len(t.candidates) == 0 {
		return ModelRef{}, ErrNoCandidate
	}
	err := t.check(m)
	if err != nil {
		return ModelRef{}, err
	}

	xTrain, yTrain := features.Split(m.Train)
	xTest, yTest := features.Split(m.Test)
	t.logger.Info("model training started", zap.Int("train_rows", len(yTrain)), zap.Int("test_rows", len(yTest)))

	var (
		best     *Model
		bestRMSE = math.Inf(1)
		board    []CandidateScore
	)
	for _, est := range t.candidates {
		if err := ctx.Err(); err != nil {
			return ModelRef{}, err
		}
		model, err := est.Fit(xTrain, yTrain)
		if err != nil {
			return ModelRef{}, errors.Wrapf(err, "unable to fit %s", est.Name())
		}
		score, err := leaderboardLine(model, xTrain, yTrain, xTest, yTest)
		if err != nil {
			return ModelRef{}, err
		}
		board = append(board, score)
		t.logger.Info("candidate fitted",
			zap.String("model", score.Name),
			zap.Float64("test_rmse", score.Test.RMSE),
			zap.Float64("test_mae", score.Test.MAE),
			zap.Float64("test_r2", score.Test.R2),
		)

		if best == nil || score.Test.RMSE < bestRMSE || math.IsNaN(bestRMSE) {
			best, bestRMSE = model, score.Test.RMSE
		}
	}

	encoderBlob, err := t.store.Get(ctx, artifact.Encoder)
	if err != nil {
		return ModelRef{}, errors.Wrap(err, "unable to read the encoder the model is trained on")
	}
	best.BindEncoder(encoderBlob)

	err = artifact.Save(ctx, t.store, artifact.Model, best)
	if err != nil {
		return ModelRef{}, errors.Wrap(err, "unable to persist model")
	}
	t.logger.Info("model training completed",
		zap.String("best", best.Name),
		zap.String("model", t.store.Location(artifact.Model)),
	)

	return ModelRef{Key: artifact.Model, Name: best.Name, Board: board}, nil
}

func (t *Trainer) check(m features.Matrices) error {
	if m.Train == nil || m.Test == nil {
		return errors.Wrap(ErrShapeMismatch, "missing matrix")
	}
	trainRows, trainCols := m.Train.Dims()
	_, testCols := m.Test.Dims()
	if trainCols < 2 {
		return errors.Wrapf(ErrShapeMismatch, "need at least one feature and the target, got %d columns", trainCols)
	}
	if testCols != trainCols {
		return errors.Wrapf(ErrShapeMismatch, "train has %d columns, test has %d", trainCols, testCols)
	}
	if trainRows < t.minRows {
		return errors.Wrapf(ErrTooFewRows, "got %d train rows, need %d", trainRows, t.minRows)
	}
	for name, mx := range map[string]*mat.Dense{"train": m.Train, "test": m.Test} {
		if err := finite(name, mx); err != nil {
			return err
		}
	}

	return nil
}

func finite(name string, m *mat.Dense) error {
	r, c := m.Dims()
	for i := range r {
		for j := range c {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrNonFinite, "%s row %d column %d", name, i, j)
			}
		}
	}

	return nil
}

func leaderboardLine(model *Model, xTrain *mat.Dense, yTrain []float64, xTest *mat.Dense, yTest []float64) (CandidateScore, error) {
	trainPred, err := model.Predict(xTrain)
	if err != nil {
		return CandidateScore{}, err
	}
	testPred, err := model.Predict(xTest)
	if err != nil {
		return CandidateScore{}, err
	}

	return CandidateScore{Name: model.Name, Train: Score(yTrain, trainPred), Test: Score(yTest, testPred)}, nil
}
