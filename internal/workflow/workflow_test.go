package workflow_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/dataset"
	"github.com/askiada/gemstone-pipeline/internal/evaluate"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/ingest"
	"github.com/askiada/gemstone-pipeline/internal/predict"
	"github.com/askiada/gemstone-pipeline/internal/regress"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
	"github.com/askiada/gemstone-pipeline/internal/testutil"
	"github.com/askiada/gemstone-pipeline/internal/tracking"
	"github.com/askiada/gemstone-pipeline/internal/workflow"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline/drawer"
)

type env struct {
	root    string
	source  string
	store   artifact.Store
	tracker *tracking.LogTracker
	stages  workflow.Stages
}

func newEnv(t *testing.T) env {
	t.Helper()

	root := t.TempDir()
	source := filepath.Join(root, "train.csv")
	require.NoError(t, os.WriteFile(source, testutil.GemstonesCSV(120, 3), 0o600))

	store := artifact.NewFileStore(filepath.Join(root, "artifacts"))
	tracker := tracking.NewLogTracker(zap.NewNop())
	candidates, err := regress.Candidates(regress.DefaultCandidates, regress.DefaultParams())
	require.NoError(t, err)

	return env{
		root:    root,
		source:  source,
		store:   store,
		tracker: tracker,
		stages: workflow.Stages{
			Ingest:    ingest.New(ingest.FileSource{Path: source}, store, ingest.DefaultConfig(), zap.NewNop()),
			Transform: features.NewTransformer(store, features.NewEncoder(), zap.NewNop()),
			Train:     regress.NewTrainer(store, candidates, 2, zap.NewNop()),
			Evaluate:  evaluate.NewEvaluator(store, tracker, "ml_model", zap.NewNop()),
		},
	}
}

func (e env) workflow(t *testing.T, runs workflow.RunContext) *workflow.Workflow {
	t.Helper()

	lock := workflow.NewRunLock(e.root, 0, zap.NewNop())
	w, err := workflow.New(e.stages, e.store, runs, lock, zap.NewNop())
	require.NoError(t, err)

	return w
}

func TestOrder(t *testing.T) {
	t.Parallel()

	w := newEnv(t).workflow(t, workflow.NewMemoryRunContext())
	order, err := w.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"data_ingestion", "data_transformation", "model_trainer", "model_evaluation", "push_artifacts"}, order)
	for _, name := range order {
		assert.Equal(t, workflow.StatusPending, w.Status(name))
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	runs := workflow.NewMemoryRunContext()
	w := e.workflow(t, runs)

	res, err := w.Run(t.Context())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 90, res.Partitions.TrainRows)
	assert.Equal(t, 30, res.Partitions.TestRows)
	assert.Len(t, res.Model.Board, 4)
	assert.Greater(t, res.Metrics.R2, 0.9)
	assert.Empty(t, res.Pushed)
	assert.Len(t, res.Durations, 5)

	for _, name := range workflow.Steps {
		assert.Equal(t, workflow.StatusSuccess, w.Status(name), name)
	}

	var metrics evaluate.Metrics
	require.NoError(t, runs.Get(t.Context(), res.RunID, "evaluation_metrics", &metrics))
	assert.Equal(t, res.Metrics, metrics)

	tracked, err := e.tracker.Runs(t.Context())
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, res.RunID, tracked[0].ID)

	_, err = os.Stat(filepath.Join(e.root, ".run.lock"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunTwiceOverwritesSlots(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.workflow(t, workflow.NewMemoryRunContext())

	first, err := w.Run(t.Context())
	require.NoError(t, err)
	second, err := w.Run(t.Context())
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Metrics, second.Metrics)

	blob, err := e.store.Get(t.Context(), artifact.Train)
	require.NoError(t, err)
	assert.Equal(t, 91, bytes.Count(blob, []byte("\n")))
}

type failingTransformer struct{}

func (failingTransformer) Transform(context.Context, ingest.Partitions) (features.Matrices, error) {
	return features.Matrices{}, errors.New("boom")
}

func TestRunStopsAtFailingStep(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.stages.Transform = failingTransformer{}
	w := e.workflow(t, workflow.NewMemoryRunContext())

	_, err := w.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step data_transformation")
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, workflow.StatusSuccess, w.Status(workflow.StepIngestion))
	assert.Equal(t, workflow.StatusFailed, w.Status(workflow.StepTransformation))
	for _, name := range []string{workflow.StepTraining, workflow.StepEvaluation, workflow.StepPush} {
		assert.Equal(t, workflow.StatusSkipped, w.Status(name))
	}

	_, err = e.store.Get(t.Context(), artifact.Model)
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

type failingTrainer struct{}

func (failingTrainer) Train(context.Context, features.Matrices) (regress.ModelRef, error) {
	return regress.ModelRef{}, stageerr.New(stageerr.Training, regress.StageName, errors.New("no candidate converged"))
}

func TestFailedRunKeepsPredictions(t *testing.T) {
	t.Parallel()

	rec := dataset.Record{
		Carat: ptr(1.1), Cut: ptr("Ideal"), Color: ptr("G"), Clarity: ptr("VS1"),
		Depth: ptr(61.5), Table: ptr(57.0), X: ptr(6.6), Y: ptr(6.65), Z: ptr(4.05),
	}
	tests := []struct {
		name  string
		apply func(t *testing.T, e *env)
		kind  stageerr.Kind
		cause error
	}{
		{
			name:  "training fails",
			apply: func(_ *testing.T, e *env) { e.stages.Train = failingTrainer{} },
			kind:  stageerr.Training,
		},
		{
			name: "blank price",
			apply: func(t *testing.T, e *env) {
				blob := testutil.CSVWith(string(testutil.GemstonesCSV(120, 7)), map[string]string{"5/price": ""})
				require.NoError(t, os.WriteFile(e.source, []byte(blob), 0o600))
			},
			kind:  stageerr.Transformation,
			cause: features.ErrMissingTarget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			_, err := e.workflow(t, workflow.NewMemoryRunContext()).Run(t.Context())
			require.NoError(t, err)
			pipeline := predict.NewPipeline(e.store, zap.NewNop())
			before, err := pipeline.Predict(t.Context(), rec)
			require.NoError(t, err)
			encoder, err := e.store.Get(t.Context(), artifact.Encoder)
			require.NoError(t, err)

			// The second run sees different data before it fails.
			require.NoError(t, os.WriteFile(e.source, testutil.GemstonesCSV(120, 7), 0o600))
			tt.apply(t, &e)
			_, err = e.workflow(t, workflow.NewMemoryRunContext()).Run(t.Context())
			require.Error(t, err)
			assert.True(t, stageerr.Is(err, tt.kind), "%v", err)
			if tt.cause != nil {
				require.ErrorIs(t, err, tt.cause)
			}

			after, err := pipeline.Predict(t.Context(), rec)
			require.NoError(t, err)
			assert.InDelta(t, before, after, 1e-9)
			current, err := e.store.Get(t.Context(), artifact.Encoder)
			require.NoError(t, err)
			assert.Equal(t, encoder, current)
		})
	}
}

type failingRuns struct {
	workflow.RunContext
}

func (failingRuns) Put(context.Context, string, string, any) error {
	return errors.New("disk full")
}

func TestSaveFailureCarriesStepKind(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.workflow(t, failingRuns{workflow.NewMemoryRunContext()})

	_, err := w.Run(t.Context())
	require.Error(t, err)
	assert.True(t, stageerr.Is(err, stageerr.Ingestion), "%v", err)
	assert.Contains(t, err.Error(), "unable to save the step output")
	assert.Equal(t, workflow.StatusFailed, w.Status(workflow.StepIngestion))
}

func ptr[T any](v T) *T { return &v }

type recordingPusher struct {
	stored artifact.Store
}

func (p *recordingPusher) Push(_ context.Context, store artifact.Store) ([]string, error) {
	p.stored = store

	return []string{"s3://bucket/artifact/model.gob"}, nil
}

func TestRunPushesArtifacts(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	pusher := &recordingPusher{}
	e.stages.Push = pusher
	w := e.workflow(t, workflow.NewMemoryRunContext())

	res, err := w.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"s3://bucket/artifact/model.gob"}, res.Pushed)
	assert.Same(t, e.store, pusher.stored)
}

func TestRunStepAcrossProcesses(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	runsDir := filepath.Join(e.root, "artifacts")
	const runID = "manual__2025-08-23"

	for _, name := range workflow.Steps {
		// A fresh workflow per step, as separate scheduler tasks would build.
		w := e.workflow(t, workflow.NewFileRunContext(runsDir))
		require.NoError(t, w.RunStep(t.Context(), runID, name), name)
	}

	var metrics evaluate.Metrics
	require.NoError(t, workflow.NewFileRunContext(runsDir).Get(t.Context(), runID, "evaluation_metrics", &metrics))
	assert.Greater(t, metrics.R2, 0.9)

	tracked, err := e.tracker.Runs(t.Context())
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, runID, tracked[0].ID)
}

func TestRunStepErrors(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.workflow(t, workflow.NewMemoryRunContext())

	require.ErrorIs(t, w.RunStep(t.Context(), "r", "deploy"), workflow.ErrUnknownStep)
	require.ErrorIs(t, w.RunStep(t.Context(), "r", workflow.StepTraining), workflow.ErrNoValue)
	require.Error(t, w.RunStep(t.Context(), "", workflow.StepIngestion))
}

func TestRunRefusedWhileLocked(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.workflow(t, workflow.NewMemoryRunContext())

	other := workflow.NewRunLock(e.root, 0, zap.NewNop())
	release, err := other.Acquire("other")
	require.NoError(t, err)

	_, err = w.Run(t.Context())
	require.ErrorIs(t, err, workflow.ErrRunInProgress)

	release()
	_, err = w.Run(t.Context())
	require.NoError(t, err)
}

func TestDraw(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.stages.Transform = failingTransformer{}
	w := e.workflow(t, workflow.NewMemoryRunContext())
	_, err := w.Run(t.Context())
	require.Error(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, w.Draw(drawer.NewDOTDrawer(buf)))
	out := buf.String()
	assert.Contains(t, out, `"data_ingestion" -> "data_transformation"`)
	assert.Contains(t, out, `"model_evaluation" -> "push_artifacts"`)
	assert.Contains(t, out, "success, ")
	assert.Contains(t, out, "failed, ")
	assert.Contains(t, out, "skipped")
}
