package measure

import (
	"sync"
	"time"
)

type transportInfo struct {
	elapsed time.Duration
	total   int64
}

type DefaultMetric struct {
	mu            sync.Mutex
	allTransports map[string]*transportInfo
	endDuration   time.Duration
	stepElapsed   time.Duration
	total         int64
	concurrent    int
}

func (mt *DefaultMetric) AddDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.total++
	mt.stepElapsed += elapsed
}

func (mt *DefaultMetric) Count() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.total
}

func (mt *DefaultMetric) SetTotalDuration(endDuration time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.endDuration = endDuration
}

func (mt *DefaultMetric) GetTotalDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.endDuration
}

func (mt *DefaultMetric) AddTransportDuration(inputStepName string, elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	ch, ok := mt.allTransports[inputStepName]
	if !ok {
		ch = &transportInfo{}
		mt.allTransports[inputStepName] = ch
	}
	ch.elapsed += elapsed
	ch.total++
}

func (mt *DefaultMetric) AVGDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.total == 0 {
		return 0
	}

	return round(time.Duration(float64(mt.stepElapsed) / float64(mt.total)))
}

// AVGTransportDuration returns, per input step, the average time spent
// waiting on the channel, divided by the step concurrency.
func (mt *DefaultMetric) AVGTransportDuration() map[string]time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make(map[string]time.Duration, len(mt.allTransports))
	for name, ch := range mt.allTransports {
		if ch.total == 0 {
			continue
		}
		out[name] = round(time.Duration(float64(ch.elapsed) / float64(ch.total) / float64(mt.concurrent)))
	}

	return out
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		return d.Round(time.Minute)
	case d > time.Minute:
		return d.Round(time.Second)
	case d > time.Second:
		return d.Round(time.Millisecond)
	case d > time.Millisecond:
		return d.Round(time.Microsecond)
	}

	return d
}
