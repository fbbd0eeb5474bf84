package tracking

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const metricsFile = "metrics.yaml"

// FileTracker keeps one YAML document per run under <dir>/runs/<id>/. It has
// no model registry.
type FileTracker struct {
	dir string
}

func NewFileTracker(dir string) (*FileTracker, error) {
	if dir == "" {
		return nil, errors.New("file tracker needs a directory")
	}
	err := os.MkdirAll(filepath.Join(dir, "runs"), 0o755)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", dir)
	}

	return &FileTracker{dir: dir}, nil
}

func (f *FileTracker) runDir(runID string) string {
	return filepath.Join(f.dir, "runs", runID)
}

func (f *FileTracker) LogMetrics(ctx context.Context, runID, model string, metrics map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if runID == "" || filepath.Base(runID) != runID {
		return errors.Errorf("invalid run id %q", runID)
	}

	blob, err := yaml.Marshal(Run{ID: runID, Time: time.Now().UTC(), Model: model, Metrics: metrics})
	if err != nil {
		return errors.Wrap(err, "unable to encode run")
	}
	dir := f.runDir(runID)
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", dir)
	}
	err = os.WriteFile(filepath.Join(dir, metricsFile), blob, 0o600)
	if err != nil {
		return errors.Wrap(err, "unable to write run")
	}

	return nil
}

func (f *FileTracker) Runs(ctx context.Context) ([]Run, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, "runs"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to list runs")
	}

	runs := make([]Run, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(f.runDir(entry.Name()), metricsFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read run %s", entry.Name())
		}
		var run Run
		err = yaml.Unmarshal(blob, &run)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to decode run %s", entry.Name())
		}
		runs = append(runs, run)
	}
	sortRuns(runs)

	return runs, nil
}

func (f *FileTracker) Close() error { return nil }
