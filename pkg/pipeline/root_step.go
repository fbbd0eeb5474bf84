package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/gemstone-pipeline/pkg/pipeline/model"
)

// AddRootStep adds a producer. stepFn must stop sending once ctx is done; the
// output channel is closed when it returns.
func AddRootStep[O any](p *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption[O]) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}

	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.RootStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: make(chan O),
	}
	for _, opt := range opts {
		opt(step)
	}
	for _, opt := range p.opts {
		err := opt.PrepareStep(model.StartStep, step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare step function")
		}
	}

	p.spawn(name, func(ctx context.Context) error {
		defer close(step.Output)

		return stepFn(ctx, step.Output)
	})

	return step, nil
}
