// Package app wires the gemstone components from a configuration.
package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/config"
	"github.com/askiada/gemstone-pipeline/internal/evaluate"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/ingest"
	"github.com/askiada/gemstone-pipeline/internal/predict"
	"github.com/askiada/gemstone-pipeline/internal/regress"
	"github.com/askiada/gemstone-pipeline/internal/tracking"
	"github.com/askiada/gemstone-pipeline/internal/workflow"
)

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     *artifact.FileStore
	Tracker   tracking.Tracker
	Workflow  *workflow.Workflow
	Predictor *predict.Pipeline
}

type options struct {
	s3 artifact.PutObjectAPI
}

// Option customises New.
type Option func(*options)

// WithS3Client replaces the client built from the AWS credential chain.
func WithS3Client(client artifact.PutObjectAPI) Option {
	return func(o *options) {
		o.s3 = client
	}
}

// New builds every component. Close releases the tracker.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	store := artifact.NewFileStore(cfg.Artifacts.Root)
	tracker, err := tracking.Open(cfg.Tracking.URI, logger.Named("tracking"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to open tracker")
	}

	candidates, err := regress.Candidates(cfg.Training.Candidates, cfg.Training.Params())
	if err != nil {
		tracker.Close()

		return nil, err
	}

	stages := workflow.Stages{
		Ingest: ingest.New(ingest.FileSource{Path: cfg.Ingestion.Source}, store, ingest.Config{
			TestFraction: cfg.Ingestion.TestFraction,
			Seed:         cfg.Ingestion.Seed,
			RandomSplit:  cfg.Ingestion.RandomSplit,
			Concurrency:  cfg.Ingestion.Concurrency,
			GraphFile:    cfg.Ingestion.GraphFile,
		}, logger.Named(ingest.StageName)),
		Transform: features.NewTransformer(store, features.NewEncoder(), logger.Named(features.StageName)),
		Train:     regress.NewTrainer(store, candidates, cfg.Training.MinRows, logger.Named(regress.StageName)),
		Evaluate:  evaluate.NewEvaluator(store, tracker, cfg.Tracking.RegisteredModel, logger.Named(evaluate.StageName)),
	}
	if cfg.Remote.Bucket != "" {
		client := o.s3
		if client == nil {
			client, err = artifact.NewS3Client(ctx, cfg.Remote.Region)
			if err != nil {
				tracker.Close()

				return nil, err
			}
		}
		stages.Push = artifact.NewS3Pusher(client, cfg.Remote.Bucket, cfg.Remote.Prefix, logger.Named(workflow.StepPush))
	}

	lock := workflow.NewRunLock(cfg.Artifacts.Root, cfg.Schedule.StaleAfter, logger)
	wf, err := workflow.New(stages, store, workflow.NewFileRunContext(cfg.Artifacts.Root), lock, logger.Named("workflow"))
	if err != nil {
		tracker.Close()

		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Tracker:   tracker,
		Workflow:  wf,
		Predictor: predict.NewPipeline(store, logger.Named("predict")),
	}, nil
}

// Scheduler runs the workflow on the configured schedule.
func (a *App) Scheduler() (*workflow.Scheduler, error) {
	return workflow.NewScheduler(a.Workflow, workflow.SchedulerConfig{
		Spec:       a.Config.Schedule.Cron,
		Retries:    a.Config.Schedule.Retries,
		RetryDelay: a.Config.Schedule.RetryDelay,
	}, a.Logger.Named("scheduler"))
}

// Server serves predictions.
func (a *App) Server() *predict.Server {
	return predict.NewServer(a.Predictor, a.Logger.Named("server"))
}

func (a *App) Close() error {
	return a.Tracker.Close()
}
