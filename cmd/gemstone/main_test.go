package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/gemstone-pipeline/internal/testutil"
	"github.com/askiada/gemstone-pipeline/internal/workflow"
)

func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	source := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(source, testutil.GemstonesCSV(150, 5), 0o600))

	cfg := fmt.Sprintf(`artifacts:
  root: %s
ingestion:
  source: %s
tracking:
  uri: sqlite://%s
logging:
  level: error
`, filepath.Join(dir, "artifacts"), source, filepath.Join(dir, "tracking.db"))
	path := filepath.Join(dir, "gemstone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())

	return out.String(), err
}

var selectedRun = regexp.MustCompile(`run (\S+) selected (\S+):`)

func TestTrainPredictAndRuns(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t)
	out, err := execute(t, "train", "--config", cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "MODEL"))
	match := selectedRun.FindStringSubmatch(out)
	require.Len(t, match, 3)
	runID := match[1]

	out, err = execute(t, "predict", "--config", cfg,
		"--carat", "1.52", "--cut", "Premium", "--color", "F", "--clarity", "VS2",
		"--depth", "62.2", "--table", "58", "--x", "7.27", "--y", "7.33", "--z", "4.55")
	require.NoError(t, err)
	price, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	require.NoError(t, err)
	assert.Greater(t, price, 0.0)

	out, err = execute(t, "step", workflow.StepEvaluation, "--config", cfg, "--run-id", runID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepEvaluation+": success\n", out)

	out, err = execute(t, "runs", "--config", cfg)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	assert.Equal(t, runID, fields[0])
	assert.Equal(t, "2", fields[4], "re-evaluating registers a new version")

	out, err = execute(t, "runs", "--config", cfg, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "id: "+runID)
}

func TestPredictMissingField(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t)
	_, err := execute(t, "train", "--config", cfg)
	require.NoError(t, err)

	_, err = execute(t, "predict", "--config", cfg, "--carat", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, err = execute(t, "predict", "--config", cfg, "--input", "x.csv", "--carat", "1")
	require.Error(t, err)
}

func TestPredictInput(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t)
	_, err := execute(t, "train", "--config", cfg)
	require.NoError(t, err)

	input := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(input, []byte(testutil.FourRows), 0o600))

	out, err := execute(t, "predict", "--config", cfg, "--input", input)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestGraph(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "graph", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "strict digraph {")
	assert.Contains(t, out, fmt.Sprintf("%q -> %q", workflow.StepIngestion, workflow.StepTransformation))
	assert.Contains(t, out, "pending")
}

func TestStepUnknown(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "step", "nope", "--config", writeConfig(t), "--run-id", "r1")
	require.ErrorIs(t, err, workflow.ErrUnknownStep)
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gemstone.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingestion:\n  test_fraction: 2\n"), 0o600))

	_, err := execute(t, "version", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_fraction")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "gemstone dev\n", out)
}
