package ingest

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

var (
	ErrEmptySource      = errors.New("source has no rows")
	ErrNotEnoughRows    = errors.New("not enough rows to split")
	ErrInvalidTestRatio = errors.New("test fraction must be in (0, 1)")
)

// testCount returns how many of n rows go to the test partition. The count is
// rounded up and both partitions keep at least one row.
func testCount(n int, fraction float64) (int, error) {
	if fraction <= 0 || fraction >= 1 || math.IsNaN(fraction) {
		return 0, errors.Wrapf(ErrInvalidTestRatio, "got %v", fraction)
	}
	if n == 0 {
		return 0, ErrEmptySource
	}
	if n < 2 {
		return 0, errors.Wrapf(ErrNotEnoughRows, "got %d row", n)
	}

	nTest := int(math.Ceil(float64(n) * fraction))
	if nTest >= n {
		nTest = n - 1
	}

	return nTest, nil
}

// testMembership picks nTest of n row indexes uniformly without replacement.
func testMembership(n, nTest int, seed int64) []bool {
	inTest := make([]bool, n)
	perm := rand.New(rand.NewSource(seed)).Perm(n) //nolint:gosec // sampling, not security
	for _, idx := range perm[:nTest] {
		inTest[idx] = true
	}

	return inTest
}
