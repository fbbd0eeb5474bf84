package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/gemstone-pipeline/pkg/pipeline/model"
)

// Pipeline is a graph of steps. Steps are declared with the Add* functions and
// only start once Run is called.
type Pipeline struct {
	errs      *errorRegistry
	opts      []model.PipelineOption
	startTime time.Time
	goFn      []func(ctx context.Context)
	started   bool
}

// New creates a new pipeline and initialises every option.
func New(opts ...model.PipelineOption) (*Pipeline, error) {
	pipe := &Pipeline{
		errs: &errorRegistry{},
		opts: opts,
	}

	for _, opt := range opts {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

// ErrAlreadyStarted is returned when Run is called twice on the same pipeline.
var ErrAlreadyStarted = errors.New("pipeline already started")

// Run starts every step and waits for the pipeline to drain. It returns the
// first error raised by a step, prefixed with the step name. The other steps
// are cancelled through ctx before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.startTime = time.Now()

	dCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, fn := range p.goFn {
		go fn(dCtx)
	}

	err := p.errs.wait()
	if err != nil {
		return err
	}

	return p.finishRun()
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}

// spawn registers a step body. The body runs in its own goroutine during Run
// and its error, if any, is reported under name.
func (p *Pipeline) spawn(name string, body func(ctx context.Context) error) {
	errC := p.errs.register(name)
	p.goFn = append(p.goFn, func(ctx context.Context) {
		defer close(errC)
		err := body(ctx)
		if err != nil {
			errC <- err
		}
	})
}

func (p *Pipeline) onStepOutput(parent, step *model.StepInfo, iteration, computation time.Duration) error {
	for _, opt := range p.opts {
		err := opt.OnStepOutput(parent, step, iteration, computation)
		if err != nil {
			return errors.Wrap(err, "unable to run on step output function")
		}
	}

	return nil
}

func (p *Pipeline) onSplitterOutput(parent, step *model.StepInfo, iteration, computation time.Duration) error {
	for _, opt := range p.opts {
		err := opt.OnSplitterOutput(parent, step, iteration, computation)
		if err != nil {
			return errors.Wrap(err, "unable to run on splitter output function")
		}
	}

	return nil
}

func (p *Pipeline) onSinkOutput(parent, step *model.StepInfo, iteration, computation time.Duration) error {
	for _, opt := range p.opts {
		err := opt.OnSinkOutput(parent, step, iteration, computation)
		if err != nil {
			return errors.Wrap(err, "unable to run on sink output function")
		}
	}

	return nil
}

func (p *Pipeline) afterSink(step *model.StepInfo) error {
	total := time.Since(p.startTime)
	for _, opt := range p.opts {
		err := opt.AfterSink(step, total)
		if err != nil {
			return errors.Wrap(err, "unable to run after sink function")
		}
	}

	return nil
}
