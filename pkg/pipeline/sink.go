package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/gemstone-pipeline/pkg/pipeline/model"
)

// AddSink adds a terminal step calling sinkFn for every element of input.
func AddSink[I any](p *Pipeline, name string, input *model.Step[I], sinkFn func(ctx context.Context, input I) error) error {
	if p == nil {
		return ErrPipelineMustBeSet
	}
	if input == nil {
		return ErrInputMustBeSet
	}
	step := &model.StepInfo{
		Type:       model.SinkStepType,
		Name:       name,
		Concurrent: 1,
	}
	for _, opt := range p.opts {
		err := opt.PrepareSink(input.Details, step)
		if err != nil {
			return errors.Wrap(err, "unable to run prepare sink function")
		}
	}

	p.spawn(name, func(ctx context.Context) error {
		for {
			startIter := time.Now()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case in, ok := <-input.Output:
				if !ok {
					return p.afterSink(step)
				}
				startFn := time.Now()
				err := sinkFn(ctx, in)
				if err != nil {
					return err
				}
				endFn := time.Since(startFn)

				err = p.onSinkOutput(input.Details, step, time.Since(startIter)-endFn, endFn)
				if err != nil {
					return err
				}
			}
		}
	})

	return nil
}
