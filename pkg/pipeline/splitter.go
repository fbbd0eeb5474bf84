package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/gemstone-pipeline/pkg/pipeline/model"
)

// Splitter copies every input element to a set of branches. A branch keeps an
// element only when its SplitterFn returns true.
type Splitter[I any] struct {
	mu            sync.Mutex
	currIdx       int
	mainStep      *model.Step[I]
	splittedSteps []*model.Step[I]
	bufferSize    int
	Total         int
}

// Get returns the next unclaimed branch, in the order the functions were given.
func (s *Splitter[I]) Get() (*model.Step[I], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currIdx >= len(s.splittedSteps) {
		return nil, false
	}
	step := s.splittedSteps[s.currIdx]
	s.currIdx++

	return step, true
}

// SplitterFn decides whether an element goes to a branch.
type SplitterFn[I any] func(input I) (bool, error)

func keepAll[I any](I) (bool, error) { return true, nil }

// AddSplitter broadcasts every element to total branches.
func AddSplitter[I any](p *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	if total <= 0 {
		return nil, ErrSplitterTotal
	}
	fns := make([]SplitterFn[I], total)
	for i := range fns {
		fns[i] = keepAll[I]
	}

	return AddSplitterFn(p, name, input, fns, opts...)
}

// AddSplitterFn adds a splitter with one branch per function.
func AddSplitterFn[I any](p *Pipeline, name string, input *model.Step[I], fns []SplitterFn[I], opts ...SplitterOption[I]) (*Splitter[I], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}
	total := len(fns)
	if total == 0 {
		return nil, ErrSplitterTotal
	}
	splitter := &Splitter[I]{
		Total: total,
		mainStep: &model.Step[I]{
			Details: &model.StepInfo{
				Type:       model.SplitterStepType,
				Name:       name,
				Concurrent: 1,
			},
		},
		bufferSize: 1,
	}
	for _, opt := range opts {
		opt(splitter)
	}
	if splitter.bufferSize <= 0 {
		splitter.bufferSize = 1
	}

	splitter.splittedSteps = make([]*model.Step[I], total)
	for i := range total {
		splitter.splittedSteps[i] = &model.Step[I]{
			Details: splitter.mainStep.Details,
			Output:  make(chan I),
		}
	}

	for _, opt := range p.opts {
		err := opt.PrepareSplitter(input.Details, splitter.mainStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare splitter function")
		}
	}

	p.spawn(name, func(ctx context.Context) error {
		return runSplitter(ctx, p, input, splitter, fns)
	})

	return splitter, nil
}

func runSplitter[I any](ctx context.Context, p *Pipeline, input *model.Step[I], splitter *Splitter[I], fns []SplitterFn[I]) error {
	errGrp, dCtx := errgroup.WithContext(ctx)

	buffers := make([]chan I, splitter.Total)
	for i := range buffers {
		buffers[i] = make(chan I, splitter.bufferSize)
	}

	for i, buf := range buffers {
		branch := splitter.splittedSteps[i]
		keep := fns[i]
		errGrp.Go(func() error {
			defer close(branch.Output)

			for elem := range buf {
				ok, err := keep(elem)
				if err != nil {
					return errors.Wrapf(err, "unable to run splitter function %d", i)
				}
				if !ok {
					continue
				}
				select {
				case <-dCtx.Done():
					return dCtx.Err()
				case branch.Output <- elem:
				}
			}

			return nil
		})
	}

	errGrp.Go(func() error {
		defer func() {
			for _, buf := range buffers {
				close(buf)
			}
		}()

		for {
			startIter := time.Now()
			select {
			case <-dCtx.Done():
				return dCtx.Err()
			case entry, ok := <-input.Output:
				if !ok {
					return nil
				}
				startFn := time.Now()
				for _, buf := range buffers {
					select {
					case <-dCtx.Done():
						return dCtx.Err()
					case buf <- entry:
					}
				}
				endFn := time.Since(startFn)

				err := p.onSplitterOutput(input.Details, splitter.mainStep.Details, time.Since(startIter)-endFn, endFn)
				if err != nil {
					return err
				}
			}
		}
	})

	return errGrp.Wait()
}
