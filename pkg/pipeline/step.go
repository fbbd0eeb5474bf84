package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/gemstone-pipeline/pkg/pipeline/model"
)

func sequentialOneToOneFn[I any, O any](ctx context.Context, p *Pipeline, goIdx int, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	for {
		start := time.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		case in, ok := <-input.Output:
			if !ok {
				return nil
			}
			startFn := time.Now()
			out, err := oneToOneFn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "go routine %d", goIdx)
			}
			endFn := time.Since(startFn)

			// check the context again so that no goroutine keeps feeding a
			// cancelled pipeline
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
			case output.Output <- out:
			}

			err = p.onStepOutput(input.Details, output.Details, time.Since(start)-endFn, endFn)
			if err != nil {
				return err
			}
		}
	}
}

func concurrentOneToOneFn[I any, O any](ctx context.Context, p *Pipeline, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(output.Details.Concurrent)
	// each consumer stops as soon as one of them fails
	for goIdx := 0; goIdx < output.Details.Concurrent; goIdx++ {
		errGrp.Go(func() error {
			return sequentialOneToOneFn(dCtx, p, goIdx, input, output, oneToOneFn)
		})
	}

	return errGrp.Wait()
}

func oneToOne[I any, O any](ctx context.Context, p *Pipeline, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	if output.Details.Concurrent <= 1 {
		output.Details.Concurrent = 1

		return sequentialOneToOneFn(ctx, p, 0, input, output, oneToOneFn)
	}

	return concurrentOneToOneFn(ctx, p, input, output, oneToOneFn)
}

// AddStepOneToOne adds a step that maps every input element to exactly one
// output element. With StepConcurrency the output order is not preserved.
func AddStepOneToOne[I any, O any](p *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.NormalStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: make(chan O),
	}
	for _, opt := range opts {
		opt(step)
	}
	for _, opt := range p.opts {
		err := opt.PrepareStep(input.Details, step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare step function")
		}
	}

	p.spawn(name, func(ctx context.Context) error {
		defer close(step.Output)

		return oneToOne(ctx, p, input, step, oneToOneFn)
	})

	return step, nil
}
