package model

import "time"

// PipelineOption hooks into the lifecycle of a pipeline. Prepare* methods run
// while the graph is being built, On* methods run every time an element leaves
// a step, and Finish runs once after a successful run.
type PipelineOption interface {
	// New initialises the option before any step is added.
	New() error

	stepHooks
	splitterHooks
	sinkHooks

	// Finish runs after every step has returned without error.
	Finish() error
}

type stepHooks interface {
	// PrepareStep runs when a root or normal step is added.
	PrepareStep(parentStep, step *StepInfo) error
	// OnStepOutput runs every time the step pushes an element downstream.
	OnStepOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
}

type splitterHooks interface {
	// PrepareSplitter runs when a splitter is added.
	PrepareSplitter(parentStep, splitterStep *StepInfo) error
	// OnSplitterOutput runs every time the splitter routes an element.
	OnSplitterOutput(parentStep, splitterStep *StepInfo, iterationDuration, computationDuration time.Duration) error
}

type sinkHooks interface {
	// PrepareSink runs when a sink is added.
	PrepareSink(parentStep, step *StepInfo) error
	// OnSinkOutput runs every time the sink consumes an element.
	OnSinkOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
	// AfterSink runs once the sink input is drained.
	AfterSink(step *StepInfo, totalDuration time.Duration) error
}
