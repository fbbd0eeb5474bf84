package tracking_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/tracking"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tcs := map[string]struct {
		uri      string
		registry bool
		err      error
	}{
		"log":     {uri: "log"},
		"empty":   {uri: ""},
		"file":    {uri: "file://" + filepath.Join(dir, "mlruns")},
		"sqlite":  {uri: "sqlite://" + filepath.Join(dir, "db", "mlflow.db"), registry: true},
		"unknown": {uri: "http://tracking:5000", err: tracking.ErrUnknownScheme},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tr, err := tracking.Open(tc.uri, zap.NewNop())
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			defer tr.Close()

			_, ok := tr.(tracking.Registry)
			assert.Equal(t, tc.registry, ok)
		})
	}
}

func TestTrackersRecordRuns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tcs := map[string]string{
		"log":    "log",
		"file":   "file://" + filepath.Join(dir, "mlruns"),
		"sqlite": "sqlite://" + filepath.Join(dir, "mlflow.db"),
	}

	for name, uri := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tr, err := tracking.Open(uri, zap.NewNop())
			require.NoError(t, err)
			defer tr.Close()

			ctx := t.Context()
			require.NoError(t, tr.LogMetrics(ctx, "run-1", "ridge", map[string]float64{"rmse": 1.5, "mae": 1, "r2": 0.9}))
			require.NoError(t, tr.LogMetrics(ctx, "run-2", "linear", map[string]float64{"rmse": 2}))

			runs, err := tr.Runs(ctx)
			require.NoError(t, err)
			require.Len(t, runs, 2)

			byID := map[string]tracking.Run{}
			for _, run := range runs {
				byID[run.ID] = run
			}
			assert.Equal(t, "ridge", byID["run-1"].Model)
			assert.Equal(t, map[string]float64{"rmse": 1.5, "mae": 1, "r2": 0.9}, byID["run-1"].Metrics)
			assert.Equal(t, map[string]float64{"rmse": 2}, byID["run-2"].Metrics)
			assert.False(t, byID["run-1"].Time.IsZero())
		})
	}
}

func TestSQLiteRegistryVersions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mlflow.db")
	tr, err := tracking.NewSQLiteTracker(path)
	require.NoError(t, err)

	ctx := t.Context()
	require.NoError(t, tr.LogMetrics(ctx, "a", "ridge", map[string]float64{"rmse": 1}))
	v, err := tr.RegisterModel(ctx, "a", "ml_model")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, tr.LogMetrics(ctx, "b", "lasso", map[string]float64{"rmse": 2}))
	v, err = tr.RegisterModel(ctx, "b", "ml_model")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = tr.RegisterModel(ctx, "b", "other")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, tr.Close())

	reopened, err := tracking.NewSQLiteTracker(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	versions := map[string]int{}
	for _, run := range runs {
		versions[run.ID] = run.Version
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, versions)
}

func TestFileTrackerRejectsPathRunID(t *testing.T) {
	t.Parallel()

	tr, err := tracking.NewFileTracker(t.TempDir())
	require.NoError(t, err)
	require.Error(t, tr.LogMetrics(t.Context(), "../escape", "linear", nil))
}

func TestRunIDFrom(t *testing.T) {
	t.Parallel()

	ctx := tracking.WithRunID(t.Context(), "run-42")
	assert.Equal(t, "run-42", tracking.RunIDFrom(ctx))

	a, b := tracking.RunIDFrom(t.Context()), tracking.RunIDFrom(t.Context())
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
