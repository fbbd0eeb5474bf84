package dataset_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/gemstone-pipeline/internal/dataset"
)

const sample = `id,carat,cut,price
0,1.52,Premium,13619
1,2.03,Very Good,13387
`

func TestReadCSV(t *testing.T) {
	t.Parallel()

	table, err := dataset.ReadCSV(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "carat", "cut", "price"}, table.Header)
	assert.Equal(t, 2, table.Len())

	cut, err := table.Column("cut")
	require.NoError(t, err)
	assert.Equal(t, []string{"Premium", "Very Good"}, cut)

	_, err = table.Column("color")
	require.ErrorIs(t, err, dataset.ErrMissingColumn)
}

func TestReadCSVEmpty(t *testing.T) {
	t.Parallel()

	_, err := dataset.ReadCSV(strings.NewReader(""))
	require.ErrorIs(t, err, dataset.ErrEmptyTable)
}

func TestReadCSVRagged(t *testing.T) {
	t.Parallel()

	_, err := dataset.ReadCSV(strings.NewReader("a,b\n1\n"))
	require.Error(t, err)
}

func TestTableBytesRoundTrip(t *testing.T) {
	t.Parallel()

	table, err := dataset.ParseCSV([]byte(sample))
	require.NoError(t, err)
	blob, err := table.Bytes()
	require.NoError(t, err)
	assert.Equal(t, sample, string(blob))
}

func TestTableDrop(t *testing.T) {
	t.Parallel()

	table, err := dataset.ParseCSV([]byte(sample))
	require.NoError(t, err)
	dropped := table.Drop("id", "unknown")
	assert.Equal(t, []string{"carat", "cut", "price"}, dropped.Header)
	assert.Equal(t, []string{"1.52", "Premium", "13619"}, dropped.Rows[0])
	assert.Equal(t, []string{"id", "carat", "cut", "price"}, table.Header)
}

func TestIsMissing(t *testing.T) {
	t.Parallel()

	for _, cell := range []string{"", " ", "NA", "NaN", "nan", "null"} {
		assert.True(t, dataset.IsMissing(cell), cell)
	}
	for _, cell := range []string{"0", "Fair", "1.5"} {
		assert.False(t, dataset.IsMissing(cell), cell)
	}
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()

	err := dataset.Record{Carat: dataset.Float(1)}.Validate()
	require.ErrorIs(t, err, dataset.ErrMissingField)
	assert.Contains(t, err.Error(), "depth")
	assert.Contains(t, err.Error(), "clarity")
	assert.NotContains(t, err.Error(), "carat,")

	rec := dataset.Record{
		Carat: dataset.Float(math.NaN()), Depth: dataset.Float(1), Table: dataset.Float(1),
		X: dataset.Float(1), Y: dataset.Float(1), Z: dataset.Float(1),
		Cut: dataset.String(" "), Color: dataset.String("E"), Clarity: dataset.String("IF"),
	}
	err = rec.Validate()
	require.ErrorIs(t, err, dataset.ErrMissingField)
	assert.Contains(t, err.Error(), "carat, cut")

	rec.Carat = dataset.Float(math.Inf(1))
	rec.Cut = dataset.String("Ideal")
	rec.Z = dataset.Float(math.Inf(-1))
	err = rec.Validate()
	require.ErrorIs(t, err, dataset.ErrNonFinite)
	assert.Contains(t, err.Error(), "carat, z")

	rec.Carat = dataset.Float(1)
	rec.Z = dataset.Float(1)
	require.NoError(t, rec.Validate())
}

func TestRecordAsTable(t *testing.T) {
	t.Parallel()

	rec := dataset.Record{
		Carat: dataset.Float(0.3), Depth: dataset.Float(62.1), Table: dataset.Float(58),
		X: dataset.Float(4.27), Y: dataset.Float(4.29), Z: dataset.Float(2.66),
		Cut: dataset.String("Ideal"), Color: dataset.String("E"), Clarity: dataset.String("VS1"),
	}
	table, err := rec.AsTable()
	require.NoError(t, err)
	assert.Equal(t, dataset.FeatureColumns(), table.Header)
	assert.Equal(t, [][]string{{"0.3", "62.1", "58", "4.27", "4.29", "2.66", "Ideal", "E", "VS1"}}, table.Rows)
}
