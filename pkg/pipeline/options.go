package pipeline

import "github.com/askiada/gemstone-pipeline/pkg/pipeline/model"

type StepOption[O any] func(s *model.Step[O])

// StepConcurrency sets how many goroutines run the step function.
func StepConcurrency[O any](concurrent int) StepOption[O] {
	return func(s *model.Step[O]) {
		s.Details.Concurrent = concurrent
	}
}

// StepBufferSize sets the capacity of the step output channel.
func StepBufferSize[O any](size int) StepOption[O] {
	return func(s *model.Step[O]) {
		s.Output = make(chan O, size)
	}
}

type SplitterOption[I any] func(s *Splitter[I])

// SplitterBufferSize sets the capacity of each branch buffer.
func SplitterBufferSize[I any](bufferSize int) SplitterOption[I] {
	return func(s *Splitter[I]) {
		s.bufferSize = bufferSize
	}
}
