package measure

import (
	"sort"
	"sync"
	"time"
)

// DefaultMeasure keeps one metric per step name.
type DefaultMeasure struct {
	mu    sync.RWMutex
	steps map[string]Metric
}

func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		steps: make(map[string]Metric),
	}
}

// AddMetric creates the metric for name, or returns the existing one.
func (m *DefaultMeasure) AddMetric(name string, concurrent int) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mt, ok := m.steps[name]; ok {
		return mt
	}
	if concurrent < 1 {
		concurrent = 1
	}
	mt := &DefaultMetric{
		allTransports: make(map[string]*transportInfo),
		concurrent:    concurrent,
	}
	m.steps[name] = mt

	return mt
}

func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.steps[name]
}

func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Metric, len(m.steps))
	for name, mt := range m.steps {
		out[name] = mt
	}

	return out
}

// StepReport summarises one step.
type StepReport struct {
	Name    string
	Count   int64
	Average time.Duration
	Total   time.Duration
}

// Report lists every step that processed at least one element or recorded a
// total duration, sorted by name.
func Report(msr Measure) []StepReport {
	var out []StepReport
	for name, mt := range msr.AllMetrics() {
		if mt.Count() == 0 && mt.GetTotalDuration() == 0 {
			continue
		}
		out = append(out, StepReport{
			Name:    name,
			Count:   mt.Count(),
			Average: mt.AVGDuration(),
			Total:   mt.GetTotalDuration(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

var _ Measure = (*DefaultMeasure)(nil)
