package features_test

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/ingest"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
	"github.com/askiada/gemstone-pipeline/internal/testutil"
)

type bytesSource []byte

func (s bytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s)), nil
}

func (bytesSource) String() string { return "memory" }

func ingested(t *testing.T, csv []byte) (artifact.Store, ingest.Partitions) {
	t.Helper()

	store := artifact.NewMemoryStore()
	parts, err := ingest.New(bytesSource(csv), store, ingest.DefaultConfig(), zap.NewNop()).Ingest(t.Context())
	require.NoError(t, err)

	return store, parts
}

func TestTransform(t *testing.T) {
	t.Parallel()

	store, parts := ingested(t, testutil.GemstonesCSV(40, 5))
	tr := features.NewTransformer(store, features.NewEncoder(), zap.NewNop())

	m, err := tr.Transform(t.Context(), parts)
	require.NoError(t, err)

	trainRows, trainCols := m.Train.Dims()
	testRows, testCols := m.Test.Dims()
	assert.Equal(t, 30, trainRows)
	assert.Equal(t, 10, testRows)
	assert.Equal(t, 10, trainCols)
	assert.Equal(t, 10, testCols)

	// the target is appended untouched
	x, y := features.Split(m.Train)
	_, xCols := x.Dims()
	assert.Equal(t, 9, xCols)
	for _, price := range y {
		assert.InDelta(t, math.Round(price), price, 0)
	}

	// train features are standardised
	for j := range xCols {
		col := mat.Col(nil, j, x)
		var sum float64
		for _, v := range col {
			sum += v
		}
		assert.InDelta(t, 0, sum/float64(len(col)), 1e-9)
	}

	loaded := &features.FittedEncoder{}
	require.NoError(t, artifact.Load(t.Context(), store, artifact.Encoder, loaded))
	assert.Len(t, loaded.Columns(), 9)
}

func TestTransformMissingTarget(t *testing.T) {
	t.Parallel()

	table := testutil.Gemstones(8, 1).Drop("price")
	blob, err := table.Bytes()
	require.NoError(t, err)
	store, parts := ingested(t, blob)

	_, err = features.NewTransformer(store, features.NewEncoder(), zap.NewNop()).Transform(t.Context(), parts)
	require.ErrorIs(t, err, features.ErrMissingColumn)
	assert.True(t, stageerr.Is(err, stageerr.Transformation))

	_, err = store.Get(t.Context(), artifact.Encoder)
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestTransformMissingFeatureColumn(t *testing.T) {
	t.Parallel()

	table := testutil.Gemstones(8, 1).Drop("clarity")
	blob, err := table.Bytes()
	require.NoError(t, err)
	store, parts := ingested(t, blob)

	_, err = features.NewTransformer(store, features.NewEncoder(), zap.NewNop()).Transform(t.Context(), parts)
	require.ErrorIs(t, err, features.ErrMissingColumn)
}

func TestTransformRejectsMissingPrice(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		price string
		want  error
	}{
		"blank":    {price: "", want: features.ErrMissingTarget},
		"nan":      {price: "NaN", want: features.ErrMissingTarget},
		"infinite": {price: "Inf", want: features.ErrInvalidValue},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			csv := testutil.CSVWith(testutil.FourRows, map[string]string{"0/price": tc.price, "1/price": tc.price, "2/price": tc.price, "3/price": tc.price})
			store, parts := ingested(t, []byte(csv))
			require.NoError(t, store.Put(t.Context(), artifact.Encoder, []byte("previous")))

			_, err := features.NewTransformer(store, features.NewEncoder(), zap.NewNop()).Transform(t.Context(), parts)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, stageerr.Is(err, stageerr.Transformation))

			blob, err := store.Get(t.Context(), artifact.Encoder)
			require.NoError(t, err)
			assert.Equal(t, []byte("previous"), blob)
		})
	}
}

func TestTransformPartitionsNotIngested(t *testing.T) {
	t.Parallel()

	store := artifact.NewMemoryStore()
	_, err := features.NewTransformer(store, features.NewEncoder(), zap.NewNop()).Transform(t.Context(), ingest.Partitions{
		Train: artifact.Train, Test: artifact.Test,
	})
	require.ErrorIs(t, err, artifact.ErrNotFound)
	assert.True(t, stageerr.Is(err, stageerr.Transformation))
}
