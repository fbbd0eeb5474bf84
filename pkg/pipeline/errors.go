package pipeline

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrPipelineMustBeSet = errors.New("p must be set")
	ErrInputMustBeSet    = errors.New("input must be set")
	ErrSplitterTotal     = errors.New("total must be greater than 0")
)

// errorRegistry keeps one error channel per step. Every channel is buffered
// so a step can report its error and exit even if nobody listens anymore.
type errorRegistry struct {
	mu   sync.Mutex
	list []*errorChan
}

func (r *errorRegistry) register(name string) chan error {
	errC := make(chan error, 1)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, newErrorChan(name, errC))

	return errC
}

// wait blocks until every registered channel is closed and returns early on
// the first error.
func (r *errorRegistry) wait() error {
	r.mu.Lock()
	list := r.list
	r.mu.Unlock()

	for err := range mergeErrors(list...) {
		if err != nil {
			return err
		}
	}

	return nil
}

type errorChan struct {
	c    <-chan error
	name string
}

func newErrorChan(name string, c <-chan error) *errorChan {
	return &errorChan{
		c:    c,
		name: name,
	}
}

// mergeErrors merges multiple channels of errors.
// Based on https://blog.golang.org/pipelines.
func mergeErrors(cs ...*errorChan) <-chan error {
	var wg sync.WaitGroup
	// One slot per channel: a step reports at most one error, so the merge
	// never blocks when the reader stops early.
	out := make(chan error, len(cs))

	output := func(c *errorChan) {
		defer wg.Done()
		if c.c == nil {
			return
		}
		for n := range c.c {
			out <- errors.Wrap(n, c.name)
		}
	}
	wg.Add(len(cs))
	for _, c := range cs {
		go output(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
