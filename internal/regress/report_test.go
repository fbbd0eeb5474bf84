package regress_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/gemstone-pipeline/internal/regress"
)

func TestReport(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	err := regress.Report(buf, []regress.CandidateScore{
		{Name: "linear", Train: regress.Scores{RMSE: 1, MAE: 0.5, R2: 0.99}, Test: regress.Scores{RMSE: 2, MAE: 1, R2: 0.98}},
		{Name: "elasticnet(alpha=1,l1_ratio=0.5)", Test: regress.Scores{RMSE: 3}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "MODEL"))
	assert.Contains(t, lines[1], "linear")
	assert.Contains(t, lines[1], "0.9900")
	assert.Contains(t, lines[2], "3.0000")
	assert.Equal(t, strings.Index(lines[0], "TRAIN RMSE"), strings.Index(lines[1], "1.0000"))
}
