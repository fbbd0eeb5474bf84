// Package tracking records evaluation runs and, where the backend supports
// it, versions the selected model.
package tracking

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrUnknownScheme is returned by Open for an unsupported tracking URI.
var ErrUnknownScheme = errors.New("unknown tracking scheme")

// Run is one tracked evaluation.
type Run struct {
	ID      string             `json:"id" yaml:"id"`
	Time    time.Time          `json:"time" yaml:"time"`
	Model   string             `json:"model" yaml:"model"`
	Metrics map[string]float64 `json:"metrics" yaml:"metrics"`
	// Version is set once the model of the run has been registered.
	Version int `json:"version,omitempty" yaml:"version,omitempty"`
}

// Tracker stores metrics per run.
type Tracker interface {
	LogMetrics(ctx context.Context, runID, model string, metrics map[string]float64) error
	Runs(ctx context.Context) ([]Run, error)
	Close() error
}

// Registry is implemented by trackers that keep a model registry.
type Registry interface {
	// RegisterModel records a new version of name produced by runID.
	RegisterModel(ctx context.Context, runID, name string) (int, error)
}

// Open returns the tracker for uri: "sqlite://<path>", "file://<dir>" or
// "log". An empty uri means "log".
func Open(uri string, logger *zap.Logger) (Tracker, error) {
	switch {
	case uri == "" || uri == "log":
		return NewLogTracker(logger), nil
	case strings.HasPrefix(uri, "sqlite://"):
		return NewSQLiteTracker(strings.TrimPrefix(uri, "sqlite://"))
	case strings.HasPrefix(uri, "file://"):
		return NewFileTracker(strings.TrimPrefix(uri, "file://"))
	default:
		return nil, errors.Wrapf(ErrUnknownScheme, "%q", uri)
	}
}

func sortRuns(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].Time.Equal(runs[j].Time) {
			return runs[i].ID < runs[j].ID
		}

		return runs[i].Time.Before(runs[j].Time)
	})
}

func copyMetrics(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
