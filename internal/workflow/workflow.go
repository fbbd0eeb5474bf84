// Package workflow runs the training stages as a DAG of named steps.
//
// Run executes every step in one process and hands typed values from one
// stage to the next. RunStep executes a single step of a run; its inputs and
// outputs travel through a RunContext, so steps may run in separate processes
// like tasks of an external scheduler.
package workflow

import (
	"context"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/evaluate"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/ingest"
	"github.com/askiada/gemstone-pipeline/internal/regress"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
	"github.com/askiada/gemstone-pipeline/internal/store"
	"github.com/askiada/gemstone-pipeline/internal/tracking"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline/drawer"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline/measure"
)

// Step names.
const (
	StepIngestion      = ingest.StageName
	StepTransformation = features.StageName
	StepTraining       = regress.StageName
	StepEvaluation     = evaluate.StageName
	StepPush           = "push_artifacts"
)

// Steps lists the steps in dependency order.
var Steps = []string{StepIngestion, StepTransformation, StepTraining, StepEvaluation, StepPush}

// kindOf maps a step to the kind of its failures. Push failures stay unknown.
var kindOf = map[string]stageerr.Kind{
	StepIngestion:      stageerr.Ingestion,
	StepTransformation: stageerr.Transformation,
	StepTraining:       stageerr.Training,
	StepEvaluation:     stageerr.Evaluation,
}

// ErrUnknownStep is returned by RunStep for a name outside Steps.
var ErrUnknownStep = errors.New("unknown step")

// Status of a step in the last run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

const statusAttribute = "status"

type (
	Ingester interface {
		Ingest(ctx context.Context) (ingest.Partitions, error)
	}
	Transformer interface {
		Transform(ctx context.Context, parts ingest.Partitions) (features.Matrices, error)
	}
	Trainer interface {
		Train(ctx context.Context, m features.Matrices) (regress.ModelRef, error)
	}
	Evaluator interface {
		Evaluate(ctx context.Context, test *mat.Dense, ref regress.ModelRef) (evaluate.Metrics, error)
	}
	// Pusher copies the artifact slots to remote storage.
	Pusher interface {
		Push(ctx context.Context, store artifact.Store) ([]string, error)
	}
)

// Stages are the components behind the steps. A nil Push makes the push step
// a no-op.
type Stages struct {
	Ingest    Ingester
	Transform Transformer
	Train     Trainer
	Evaluate  Evaluator
	Push      Pusher
}

// RunResult gathers the hand-off values of a complete run.
type RunResult struct {
	RunID      string                   `json:"run_id"`
	Partitions ingest.Partitions        `json:"partitions"`
	Model      regress.ModelRef         `json:"model"`
	Metrics    evaluate.Metrics         `json:"metrics"`
	Pushed     []string                 `json:"pushed,omitempty"`
	Durations  map[string]time.Duration `json:"durations"`
}

// state carries the typed hand-off values between steps.
type state struct {
	parts    *ingest.Partitions
	matrices *features.Matrices
	model    *regress.ModelRef
	metrics  *evaluate.Metrics
	pushed   []string
}

type step struct {
	run func(ctx context.Context, s *state) error
	// needs lists the steps whose outputs this step consumes.
	needs []string
}

type Workflow struct {
	stages   Stages
	store    artifact.Store
	runs     RunContext
	lock     *RunLock
	graph    graph.Graph[string, string]
	vertices store.CustomStore[string, string]
	steps    map[string]step
	msr      measure.Measure
	logger   *zap.Logger
}

// New builds the workflow DAG.
func New(stages Stages, st artifact.Store, runs RunContext, lock *RunLock, logger *zap.Logger) (*Workflow, error) {
	vertices := store.NewMemoryStore[string, string]()
	w := &Workflow{
		stages:   stages,
		store:    st,
		runs:     runs,
		lock:     lock,
		graph:    graph.NewWithStore(graph.StringHash, vertices, graph.Directed(), graph.Acyclic(), graph.PreventCycles()),
		vertices: vertices,
		msr:      measure.NewDefaultMeasure(),
		logger:   logger,
	}
	w.steps = map[string]step{
		StepIngestion:      {run: w.ingestion},
		StepTransformation: {run: w.transformation, needs: []string{StepIngestion}},
		StepTraining:       {run: w.training, needs: []string{StepTransformation}},
		StepEvaluation:     {run: w.evaluation, needs: []string{StepTransformation, StepTraining}},
		StepPush:           {run: w.push, needs: []string{StepEvaluation}},
	}

	for _, name := range Steps {
		err := w.graph.AddVertex(name, graph.VertexAttribute(statusAttribute, string(StatusPending)))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add step %s", name)
		}
	}
	for i := 1; i < len(Steps); i++ {
		err := w.graph.AddEdge(Steps[i-1], Steps[i])
		if err != nil {
			return nil, errors.Wrapf(err, "unable to link %s to %s", Steps[i-1], Steps[i])
		}
	}

	return w, nil
}

// Order returns the steps in execution order.
func (w *Workflow) Order() ([]string, error) {
	order, err := graph.TopologicalSort(w.graph)
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort steps")
	}

	return order, nil
}

// Status returns the status of a step in the last run.
func (w *Workflow) Status(name string) Status {
	s, ok := w.vertices.Attribute(name, statusAttribute)
	if !ok {
		return ""
	}

	return Status(s)
}

func (w *Workflow) setStatus(name string, s Status) {
	err := w.vertices.SetAttribute(name, statusAttribute, string(s))
	if err != nil {
		w.logger.Warn("unable to set step status", zap.String("step", name), zap.Error(err))
	}
}

// Run executes every step under a new run identifier. The first failing step
// aborts the run and the remaining steps are skipped.
func (w *Workflow) Run(ctx context.Context) (RunResult, error) {
	runID := uuid.NewString()
	release, err := w.lock.Acquire(runID)
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	order, err := w.Order()
	if err != nil {
		return RunResult{}, err
	}
	for _, name := range order {
		w.setStatus(name, StatusPending)
	}

	ctx = tracking.WithRunID(ctx, runID)
	logger := w.logger.With(zap.String("run_id", runID))
	logger.Info("training run started")
	start := time.Now()

	s := &state{}
	res := RunResult{RunID: runID, Durations: map[string]time.Duration{}}
	var previous []byte
	for i, name := range order {
		if name == StepTransformation {
			previous, err = w.store.Get(ctx, artifact.Encoder)
			if err != nil && !errors.Is(err, artifact.ErrNotFound) {
				return res, errors.Wrap(err, "unable to read the current encoder")
			}
		}
		elapsed, err := w.execute(ctx, runID, name, s)
		res.Durations[name] = elapsed
		if err != nil {
			for _, skipped := range order[i+1:] {
				w.setStatus(skipped, StatusSkipped)
			}
			if (name == StepTransformation || name == StepTraining) && previous != nil {
				w.restoreEncoder(ctx, previous, logger)
			}
			logger.Error("training run failed", zap.String("step", name), zap.Error(err))

			return res, errors.WithMessagef(err, "step %s", name)
		}
	}

	res.Partitions, res.Model, res.Metrics, res.Pushed = *s.parts, *s.model, *s.metrics, s.pushed
	logger.Info("training run completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("model", res.Model.Name),
		zap.Float64("rmse", res.Metrics.RMSE),
	)

	return res, nil
}

// restoreEncoder puts back the encoder the current model was trained on.
func (w *Workflow) restoreEncoder(ctx context.Context, blob []byte, logger *zap.Logger) {
	err := w.store.Put(context.WithoutCancel(ctx), artifact.Encoder, blob)
	if err != nil {
		logger.Error("unable to restore the previous encoder", zap.Error(err))

		return
	}
	logger.Info("previous encoder restored", zap.String("location", w.store.Location(artifact.Encoder)))
}

// RunStep executes one step of runID, reading its inputs from the run context.
func (w *Workflow) RunStep(ctx context.Context, runID, name string) error {
	st, ok := w.steps[name]
	if !ok {
		return errors.Wrapf(ErrUnknownStep, "%q", name)
	}
	if runID == "" {
		return errors.New("run id is required")
	}
	release, err := w.lock.Acquire(runID)
	if err != nil {
		return err
	}
	defer release()

	s := &state{}
	for _, producer := range st.needs {
		err := w.restore(ctx, runID, producer, s)
		if err != nil {
			return errors.Wrapf(err, "step %s needs the output of %s", name, producer)
		}
	}

	_, err = w.execute(tracking.WithRunID(ctx, runID), runID, name, s)

	return errors.WithMessagef(err, "step %s", name)
}

// execute runs one step and stores its output in the run context.
func (w *Workflow) execute(ctx context.Context, runID, name string, s *state) (time.Duration, error) {
	logger := w.logger.With(zap.String("run_id", runID), zap.String("step", name))
	w.setStatus(name, StatusRunning)
	logger.Info("step started")

	start := time.Now()
	err := w.steps[name].run(ctx, s)
	if err == nil {
		err = w.save(ctx, runID, name, s)
		if err != nil {
			err = stageerr.New(kindOf[name], name, errors.Wrap(err, "unable to save the step output"))
		}
	}
	elapsed := time.Since(start)
	w.msr.AddMetric(name, 1).AddDuration(elapsed)

	if err != nil {
		w.setStatus(name, StatusFailed)

		return elapsed, err
	}
	w.setStatus(name, StatusSuccess)
	logger.Info("step completed", zap.Duration("elapsed", elapsed))

	return elapsed, nil
}

func (w *Workflow) ingestion(ctx context.Context, s *state) error {
	parts, err := w.stages.Ingest.Ingest(ctx)
	if err != nil {
		return err
	}
	s.parts = &parts

	return nil
}

func (w *Workflow) transformation(ctx context.Context, s *state) error {
	m, err := w.stages.Transform.Transform(ctx, *s.parts)
	if err != nil {
		return err
	}
	s.matrices = &m

	return nil
}

func (w *Workflow) training(ctx context.Context, s *state) error {
	ref, err := w.stages.Train.Train(ctx, *s.matrices)
	if err != nil {
		return err
	}
	s.model = &ref

	return nil
}

func (w *Workflow) evaluation(ctx context.Context, s *state) error {
	m, err := w.stages.Evaluate.Evaluate(ctx, s.matrices.Test, *s.model)
	if err != nil {
		return err
	}
	s.metrics = &m

	return nil
}

func (w *Workflow) push(ctx context.Context, s *state) error {
	if w.stages.Push == nil {
		w.logger.Info("remote push disabled")
		s.pushed = []string{}

		return nil
	}
	pushed, err := w.stages.Push.Push(ctx, w.store)
	if err != nil {
		return errors.Wrap(err, "unable to push artifacts")
	}
	s.pushed = pushed

	return nil
}

func (w *Workflow) save(ctx context.Context, runID, name string, s *state) error {
	switch name {
	case StepIngestion:
		return w.runs.Put(ctx, runID, keyIngestion, s.parts)
	case StepTransformation:
		return w.runs.Put(ctx, runID, keyTransformation, encodeMatrices(*s.matrices))
	case StepTraining:
		return w.runs.Put(ctx, runID, keyTraining, s.model)
	case StepEvaluation:
		return w.runs.Put(ctx, runID, keyEvaluation, s.metrics)
	case StepPush:
		return w.runs.Put(ctx, runID, keyPush, s.pushed)
	}

	return errors.Wrapf(ErrUnknownStep, "%q", name)
}

func (w *Workflow) restore(ctx context.Context, runID, name string, s *state) error {
	switch name {
	case StepIngestion:
		s.parts = &ingest.Partitions{}

		return w.runs.Get(ctx, runID, keyIngestion, s.parts)
	case StepTransformation:
		var b matricesJSON
		err := w.runs.Get(ctx, runID, keyTransformation, &b)
		if err != nil {
			return err
		}
		m, err := b.decode()
		if err != nil {
			return err
		}
		s.matrices = &m

		return nil
	case StepTraining:
		s.model = &regress.ModelRef{}

		return w.runs.Get(ctx, runID, keyTraining, s.model)
	case StepEvaluation:
		s.metrics = &evaluate.Metrics{}

		return w.runs.Get(ctx, runID, keyEvaluation, s.metrics)
	}

	return errors.Wrapf(ErrUnknownStep, "%q", name)
}

// Draw renders the DAG with the status and duration of each step.
func (w *Workflow) Draw(d drawer.Drawer) error {
	order, err := w.Order()
	if err != nil {
		return err
	}
	for i, name := range order {
		err = d.AddStep(name)
		if err != nil {
			return errors.Wrapf(err, "unable to draw step %s", name)
		}
		if i > 0 {
			err = d.AddLink(order[i-1], name)
			if err != nil {
				return errors.Wrapf(err, "unable to draw link to %s", name)
			}
		}
	}

	for _, name := range order {
		label := string(w.Status(name))
		if mt := w.msr.GetMetric(name); mt != nil && mt.Count() > 0 {
			label += ", " + mt.AVGDuration().String()
		}
		err = d.SetLabel(name, label)
		if err != nil {
			return errors.Wrapf(err, "unable to label step %s", name)
		}
	}

	return errors.Wrap(d.Draw(), "unable to draw workflow")
}
