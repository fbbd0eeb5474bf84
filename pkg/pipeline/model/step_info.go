package model

// StepType identifies the role a step plays in the graph.
type StepType string

const (
	RootStepType     StepType = "root"
	NormalStepType   StepType = "step"
	SplitterStepType StepType = "splitter"
	SinkStepType     StepType = "sink"
)

// StepInfo describes a step to pipeline options (drawers, measures).
type StepInfo struct {
	Type       StepType
	Name       string
	Concurrent int
}

// StartStep and EndStep are virtual steps framing every pipeline graph.
// Root steps hang off StartStep and sinks feed EndStep.
var (
	StartStep = &StepInfo{Name: "start"}
	EndStep   = &StepInfo{Name: "end"}
)

// Step is a typed output of a pipeline step. Downstream steps consume Output.
type Step[O any] struct {
	Output  chan O
	Details *StepInfo
}
