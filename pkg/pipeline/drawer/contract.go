package drawer

import (
	"time"

	"github.com/askiada/gemstone-pipeline/pkg/pipeline/measure"
)

// Drawer is an interface that defines the methods for drawing a pipeline.
type Drawer interface {
	// AddStep adds a step to the pipeline drawer.
	AddStep(stepName string) error
	// AddLink adds a link between parent and children steps.
	AddLink(parentStepName, childrenStepName string) error
	// Draw writes the pipeline graph.
	Draw() error
	// SetTotalTime labels the step with the time elapsed since startTime.
	SetTotalTime(stepName string, startTime time.Time) error
	// SetLabel attaches a free-form label to the step.
	SetLabel(stepName, label string) error
	// AddMeasure adds a measure to the pipeline drawer.
	AddMeasure(measure measure.Measure) error
}
