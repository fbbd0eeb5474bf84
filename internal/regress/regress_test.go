package regress_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/regress"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	actual := []float64{3, -0.5, 2, 7}
	predicted := []float64{2.5, 0, 2, 8}

	assert.InDelta(t, 0.375, regress.MSE(actual, predicted), 1e-12)
	assert.InDelta(t, math.Sqrt(0.375), regress.RMSE(actual, predicted), 1e-12)
	assert.InDelta(t, 0.5, regress.MAE(actual, predicted), 1e-12)
	assert.InDelta(t, 0.9486081370449679, regress.R2(actual, predicted), 1e-12)
}

func TestR2ConstantTarget(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0, regress.R2([]float64{4, 4, 4}, []float64{1, 2, 3}), 0)
	assert.Equal(t, regress.Scores{}, regress.Score(nil, nil))
}

func TestMeanModelSanity(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(5, 1, []float64{1, 2, 3, 4, 5})
	y := []float64{10, 12, 9, 15, 4}

	model, err := regress.Mean{}.Fit(x, y)
	require.NoError(t, err)
	pred, err := model.Predict(x)
	require.NoError(t, err)

	_, variance := stat.PopMeanVariance(y, nil)
	scores := regress.Score(y, pred)
	assert.InDelta(t, 0, scores.R2, 1e-12)
	assert.InDelta(t, math.Sqrt(variance), scores.RMSE, 1e-12)
}

func TestLinearRecoversCoefficients(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(6, 2, []float64{
		1, 0,
		2, 1,
		3, 5,
		4, 2,
		5, 3,
		6, 9,
	})
	y := make([]float64, 6)
	for i := range y {
		y[i] = 3 + 2*x.At(i, 0) - x.At(i, 1)
	}

	model, err := regress.Linear{}.Fit(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2, model.Coef[0], 1e-9)
	assert.InDelta(t, -1, model.Coef[1], 1e-9)
	assert.InDelta(t, 3, model.Intercept, 1e-9)
}

func TestLinearRankDeficient(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(3, 2, []float64{1, 1, 2, 2, 3, 3})
	model, err := regress.Linear{}.Fit(x, []float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1, model.Coef[0], 1e-9)
	assert.InDelta(t, 1, model.Coef[1], 1e-9)
	assert.InDelta(t, 0, model.Intercept, 1e-9)
}

func TestLinearConstantFeature(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(3, 1, []float64{5, 5, 5})
	model, err := regress.Linear{}.Fit(x, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0, model.Coef[0], 1e-12)
	assert.InDelta(t, 2, model.Intercept, 1e-12)
}

func TestRegularisedSingleFeature(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(3, 1, []float64{-1, 0, 1})
	y := []float64{-2, 0, 2}

	tcs := map[string]struct {
		est  regress.Estimator
		want float64
	}{
		"ridge":       {est: regress.Ridge{Alpha: 1}, want: 4.0 / 3.0},
		"lasso":       {est: regress.ElasticNet{Alpha: 1, L1Ratio: 1, MaxIter: 100, Tol: 1e-6}, want: 0.5},
		"elastic net": {est: regress.ElasticNet{Alpha: 1, L1Ratio: 0.5, MaxIter: 100, Tol: 1e-6}, want: 2.5 / 3.5},
		"no penalty":  {est: regress.Ridge{}, want: 2},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			model, err := tc.est.Fit(x, y)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, model.Coef[0], 1e-9)
			assert.InDelta(t, 0, model.Intercept, 1e-9)
		})
	}
}

func TestLassoZeroesWeakFeature(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(4, 2, []float64{
		-3, 0.1,
		-1, -0.1,
		1, 0.1,
		3, -0.1,
	})
	y := []float64{-30, -10, 10, 30}

	model, err := regress.ElasticNet{Alpha: 1, L1Ratio: 1, MaxIter: 1000, Tol: 1e-6}.Fit(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 0, model.Coef[1], 0)
	assert.Greater(t, model.Coef[0], 9.0)
}

func TestFitShapeMismatch(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(2, 1, []float64{1, 2})
	for _, est := range []regress.Estimator{regress.Linear{}, regress.Ridge{Alpha: 1}, regress.ElasticNet{}, regress.Mean{}} {
		_, err := est.Fit(x, []float64{1})
		require.ErrorIs(t, err, regress.ErrShapeMismatch, est.Name())
	}
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	ests, err := regress.Candidates(regress.DefaultCandidates, regress.DefaultParams())
	require.NoError(t, err)
	names := []string{}
	for _, est := range ests {
		names = append(names, est.Name())
	}
	assert.Equal(t, []string{"linear", "lasso", "ridge", "elasticnet"}, names)

	_, err = regress.Candidates([]string{"forest"}, regress.DefaultParams())
	require.ErrorIs(t, err, regress.ErrUnknownCandidate)
	assert.Contains(t, regress.Names(), "mean")
}

func TestModelRoundTrip(t *testing.T) {
	t.Parallel()

	model := &regress.Model{Name: "ridge", Coef: []float64{1.5, -2}, Intercept: 7}
	model.BindEncoder([]byte("encoder"))
	blob, err := model.MarshalBinary()
	require.NoError(t, err)

	got := &regress.Model{}
	require.NoError(t, got.UnmarshalBinary(blob))
	assert.Equal(t, model, got)

	store := artifact.NewMemoryStore()
	require.NoError(t, artifact.Save(t.Context(), store, artifact.Model, model))
	loaded := &regress.Model{}
	require.NoError(t, artifact.Load(t.Context(), store, artifact.Model, loaded))
	assert.Equal(t, model, loaded)

	_, err = got.Predict(mat.NewDense(1, 3, nil))
	require.ErrorIs(t, err, regress.ErrShapeMismatch)
}

func TestModelCheckEncoder(t *testing.T) {
	t.Parallel()

	model := &regress.Model{Name: "linear", Coef: []float64{1}}
	require.ErrorIs(t, model.CheckEncoder([]byte("v1")), regress.ErrEncoderMismatch)

	model.BindEncoder([]byte("v1"))
	require.NoError(t, model.CheckEncoder([]byte("v1")))
	require.ErrorIs(t, model.CheckEncoder([]byte("v2")), regress.ErrEncoderMismatch)
}

// withEncoder returns a store holding an encoder blob for the trainer to bind.
func withEncoder(t *testing.T) *artifact.MemoryStore {
	t.Helper()

	store := artifact.NewMemoryStore()
	require.NoError(t, store.Put(t.Context(), artifact.Encoder, []byte("encoder")))

	return store
}

// matrices builds train/test matrices where the target is 10 + 3*x0.
func matrices(trainRows, testRows int) features.Matrices {
	build := func(rows, offset int) *mat.Dense {
		m := mat.NewDense(rows, 3, nil)
		for i := range rows {
			x0 := float64(i + offset)
			x1 := math.Mod(x0*7, 5)
			m.SetRow(i, []float64{x0, x1, 10 + 3*x0})
		}

		return m
	}

	return features.Matrices{Train: build(trainRows, 0), Test: build(testRows, 100)}
}

type fixed struct {
	name  string
	model regress.Model
}

func (f fixed) Name() string { return f.name }

func (f fixed) Fit(*mat.Dense, []float64) (*regress.Model, error) {
	m := f.model
	m.Name = f.name

	return &m, nil
}

func TestTrainerSelectsLowestTestRMSE(t *testing.T) {
	t.Parallel()

	store := withEncoder(t)
	trainer := regress.NewTrainer(store, []regress.Estimator{regress.Mean{}, regress.Linear{}, regress.Ridge{Alpha: 10}}, 2, zap.NewNop())

	ref, err := trainer.Train(t.Context(), matrices(20, 5))
	require.NoError(t, err)
	assert.Equal(t, "linear", ref.Name)
	assert.Equal(t, artifact.Model, ref.Key)
	require.Len(t, ref.Board, 3)
	assert.Equal(t, "mean", ref.Board[0].Name)
	assert.InDelta(t, 0, ref.Board[1].Test.RMSE, 1e-6)
	assert.InDelta(t, 1, ref.Board[1].Train.R2, 1e-9)

	saved := &regress.Model{}
	require.NoError(t, artifact.Load(t.Context(), store, artifact.Model, saved))
	assert.Equal(t, "linear", saved.Name)
	require.NoError(t, saved.CheckEncoder([]byte("encoder")))
}

func TestTrainerNeedsEncoder(t *testing.T) {
	t.Parallel()

	store := artifact.NewMemoryStore()
	_, err := regress.NewTrainer(store, []regress.Estimator{regress.Linear{}}, 2, zap.NewNop()).Train(t.Context(), matrices(5, 2))
	require.ErrorIs(t, err, artifact.ErrNotFound)
	assert.True(t, stageerr.Is(err, stageerr.Training))

	_, err = store.Get(t.Context(), artifact.Model)
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestTrainerTieKeepsFirstCandidate(t *testing.T) {
	t.Parallel()

	model := regress.Model{Coef: []float64{3, 0}, Intercept: 10}
	trainer := regress.NewTrainer(withEncoder(t), []regress.Estimator{
		fixed{name: "first", model: model},
		fixed{name: "second", model: model},
	}, 2, zap.NewNop())

	ref, err := trainer.Train(t.Context(), matrices(4, 2))
	require.NoError(t, err)
	assert.Equal(t, "first", ref.Name)
}

func TestTrainerErrors(t *testing.T) {
	t.Parallel()

	withNaN := matrices(5, 2)
	withNaN.Train.Set(1, 0, math.NaN())
	withInf := matrices(5, 2)
	withInf.Test.Set(0, 2, math.Inf(1))
	narrow := matrices(5, 2)
	narrow.Test = mat.NewDense(2, 2, nil)

	tcs := map[string]struct {
		m    features.Matrices
		want error
	}{
		"too few rows":   {m: matrices(1, 1), want: regress.ErrTooFewRows},
		"nan in train":   {m: withNaN, want: regress.ErrNonFinite},
		"inf in test":    {m: withInf, want: regress.ErrNonFinite},
		"column count":   {m: narrow, want: regress.ErrShapeMismatch},
		"missing matrix": {m: features.Matrices{}, want: regress.ErrShapeMismatch},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := withEncoder(t)
			trainer := regress.NewTrainer(store, []regress.Estimator{regress.Linear{}}, 2, zap.NewNop())
			_, err := trainer.Train(t.Context(), tc.m)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, stageerr.Is(err, stageerr.Training))

			_, err = store.Get(t.Context(), artifact.Model)
			require.ErrorIs(t, err, artifact.ErrNotFound)
		})
	}
}

func TestTrainerNoCandidates(t *testing.T) {
	t.Parallel()

	_, err := regress.NewTrainer(artifact.NewMemoryStore(), nil, 2, zap.NewNop()).Train(t.Context(), matrices(5, 2))
	require.ErrorIs(t, err, regress.ErrNoCandidate)
}
