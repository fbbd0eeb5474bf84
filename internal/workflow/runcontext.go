package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoValue is returned when a run has no value for a key.
var ErrNoValue = errors.New("no value in run context")

// RunContext is the key/value bundle store shared by the steps of one run.
type RunContext interface {
	Put(ctx context.Context, runID, key string, v any) error
	Get(ctx context.Context, runID, key string, v any) error
}

// MemoryRunContext keeps bundles for the life of the process.
type MemoryRunContext struct {
	mu   sync.RWMutex
	runs map[string]map[string][]byte
}

func NewMemoryRunContext() *MemoryRunContext {
	return &MemoryRunContext{runs: make(map[string]map[string][]byte)}
}

func (m *MemoryRunContext) Put(_ context.Context, runID, key string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "unable to encode %s", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[runID] == nil {
		m.runs[runID] = make(map[string][]byte)
	}
	m.runs[runID][key] = blob

	return nil
}

func (m *MemoryRunContext) Get(_ context.Context, runID, key string, v any) error {
	m.mu.RLock()
	blob, ok := m.runs[runID][key]
	m.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNoValue, "run %s key %s", runID, key)
	}

	return errors.Wrapf(json.Unmarshal(blob, v), "unable to decode %s", key)
}

// FileRunContext stores bundles as JSON files under <root>/runs/<run id>/, so
// that steps of one run can execute in separate processes.
type FileRunContext struct {
	root string
}

func NewFileRunContext(root string) *FileRunContext {
	return &FileRunContext{root: root}
}

func (f *FileRunContext) path(runID, key string) (string, error) {
	if runID == "" || filepath.Base(runID) != runID || filepath.Base(key) != key {
		return "", errors.Errorf("invalid run context entry %q/%q", runID, key)
	}

	return filepath.Join(f.root, "runs", runID, key+".json"), nil
}

func (f *FileRunContext) Put(ctx context.Context, runID, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(runID, key)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "unable to encode %s", key)
	}

	dir := filepath.Dir(path)
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+key+"-*")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	_, err = tmp.Write(blob)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", key)
	}

	return errors.Wrapf(os.Rename(tmp.Name(), path), "unable to store %s", key)
}

func (f *FileRunContext) Get(ctx context.Context, runID, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(runID, key)
	if err != nil {
		return err
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrNoValue, "run %s key %s", runID, key)
	}
	if err != nil {
		return errors.Wrapf(err, "unable to read %s", path)
	}

	return errors.Wrapf(json.Unmarshal(blob, v), "unable to decode %s", key)
}
