package regress

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownCandidate is returned for an estimator name that is not registered.
var ErrUnknownCandidate = errors.New("unknown candidate")

// Estimator fits a Model. x must not be modified.
type Estimator interface {
	Name() string
	Fit(x *mat.Dense, y []float64) (*Model, error)
}

// Params configure the regularised estimators.
type Params struct {
	Alpha   float64
	L1Ratio float64
	MaxIter int
	Tol     float64
}

func DefaultParams() Params {
	return Params{Alpha: 1, L1Ratio: 0.5, MaxIter: 1000, Tol: 1e-4}
}

var registry = map[string]func(Params) Estimator{
	"linear":     func(Params) Estimator { return Linear{} },
	"ridge":      func(p Params) Estimator { return Ridge{Alpha: p.Alpha} },
	"lasso":      func(p Params) Estimator { return ElasticNet{name: "lasso", Alpha: p.Alpha, L1Ratio: 1, MaxIter: p.MaxIter, Tol: p.Tol} },
	"elasticnet": func(p Params) Estimator { return ElasticNet{name: "elasticnet", Alpha: p.Alpha, L1Ratio: p.L1Ratio, MaxIter: p.MaxIter, Tol: p.Tol} },
	"mean":       func(Params) Estimator { return Mean{} },
}

// DefaultCandidates mirrors the usual linear model comparison.
var DefaultCandidates = []string{"linear", "lasso", "ridge", "elasticnet"}

// Names lists the registered estimators.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)

	return out
}

// Candidates builds the estimators in the given order.
func Candidates(names []string, p Params) ([]Estimator, error) {
	out := make([]Estimator, 0, len(names))
	for _, name := range names {
		build, ok := registry[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownCandidate, "%q", name)
		}
		out = append(out, build(p))
	}

	return out, nil
}

// center returns x and y minus their column means.
func center(x *mat.Dense, y []float64) (xc *mat.Dense, yc, xMean []float64, yMean float64) {
	r, c := x.Dims()
	xc = mat.DenseCopyOf(x)
	xMean = make([]float64, c)
	for j := range c {
		col := mat.Col(nil, j, x)
		xMean[j] = stat.Mean(col, nil)
		floats.AddConst(-xMean[j], col)
		xc.SetCol(j, col)
	}
	yMean = stat.Mean(y, nil)
	yc = make([]float64, r)
	copy(yc, y)
	floats.AddConst(-yMean, yc)

	return xc, yc, xMean, yMean
}

func intercept(xMean, coef []float64, yMean float64) float64 {
	return yMean - floats.Dot(xMean, coef)
}

func checkShape(x *mat.Dense, y []float64) error {
	r, _ := x.Dims()
	if r != len(y) {
		return errors.Wrapf(ErrShapeMismatch, "%d rows but %d targets", r, len(y))
	}

	return nil
}

// Linear is ordinary least squares. Rank deficient problems get the minimum
// norm solution.
type Linear struct{}

func (Linear) Name() string { return "linear" }

func (l Linear) Fit(x *mat.Dense, y []float64) (*Model, error) {
	err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	xc, yc, xMean, yMean := center(x, y)
	_, c := x.Dims()
	coef := make([]float64, c)

	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return nil, errors.New("svd factorisation failed")
	}
	if rank := svd.Rank(1e-10); rank > 0 {
		var w mat.VecDense
		svd.SolveVecTo(&w, mat.NewVecDense(len(yc), yc), rank)
		for j := range coef {
			coef[j] = w.AtVec(j)
		}
	}

	return &Model{Name: l.Name(), Coef: coef, Intercept: intercept(xMean, coef, yMean)}, nil
}

// Ridge is least squares with an L2 penalty Alpha * ||w||^2.
type Ridge struct {
	Alpha float64
}

func (Ridge) Name() string { return "ridge" }

func (rd Ridge) Fit(x *mat.Dense, y []float64) (*Model, error) {
	err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	if rd.Alpha <= 0 {
		return Linear{}.fitAs(rd.Name(), x, y)
	}
	xc, yc, xMean, yMean := center(x, y)
	_, c := x.Dims()

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := range c {
		gram.SetSym(j, j, gram.At(j, j)+rd.Alpha)
	}
	var xty mat.VecDense
	xty.MulVec(xc.T(), mat.NewVecDense(len(yc), yc))

	var chol mat.Cholesky
	if !chol.Factorize(&gram) {
		return nil, errors.New("ridge system is not positive definite")
	}
	var w mat.VecDense
	err = chol.SolveVecTo(&w, &xty)
	if err != nil {
		return nil, errors.Wrap(err, "unable to solve ridge system")
	}

	coef := make([]float64, c)
	for j := range coef {
		coef[j] = w.AtVec(j)
	}

	return &Model{Name: rd.Name(), Coef: coef, Intercept: intercept(xMean, coef, yMean)}, nil
}

func (l Linear) fitAs(name string, x *mat.Dense, y []float64) (*Model, error) {
	m, err := l.Fit(x, y)
	if err != nil {
		return nil, err
	}
	m.Name = name

	return m, nil
}

// ElasticNet minimises
//
//	1/(2n) ||y - Xw||^2 + Alpha*L1Ratio*||w||_1 + Alpha*(1-L1Ratio)/2*||w||^2
//
// by cyclic coordinate descent. L1Ratio 1 is the lasso.
type ElasticNet struct {
	name    string
	Alpha   float64
	L1Ratio float64
	MaxIter int
	Tol     float64
}

func (e ElasticNet) Name() string {
	if e.name == "" {
		return "elasticnet"
	}

	return e.name
}

func (e ElasticNet) Fit(x *mat.Dense, y []float64) (*Model, error) {
	err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	xc, yc, xMean, yMean := center(x, y)
	r, c := x.Dims()
	n := float64(r)

	maxIter := e.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	l1 := n * e.Alpha * e.L1Ratio
	l2 := n * e.Alpha * (1 - e.L1Ratio)

	cols := make([][]float64, c)
	norms := make([]float64, c)
	for j := range c {
		cols[j] = mat.Col(nil, j, xc)
		norms[j] = floats.Dot(cols[j], cols[j])
	}

	coef := make([]float64, c)
	residual := make([]float64, r)
	copy(residual, yc)

	for range maxIter {
		maxDelta, maxCoef := 0.0, 0.0
		for j := range c {
			if norms[j] == 0 {
				continue
			}
			old := coef[j]
			rho := floats.Dot(cols[j], residual) + norms[j]*old
			coef[j] = softThreshold(rho, l1) / (norms[j] + l2)
			if delta := coef[j] - old; delta != 0 {
				floats.AddScaled(residual, -delta, cols[j])
				maxDelta = math.Max(maxDelta, math.Abs(delta))
			}
			maxCoef = math.Max(maxCoef, math.Abs(coef[j]))
		}
		if maxCoef == 0 || maxDelta <= e.Tol*maxCoef {
			break
		}
	}

	return &Model{Name: e.Name(), Coef: coef, Intercept: intercept(xMean, coef, yMean)}, nil
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

// Mean always predicts the mean of the training target.
type Mean struct{}

func (Mean) Name() string { return "mean" }

func (m Mean) Fit(x *mat.Dense, y []float64) (*Model, error) {
	err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	_, c := x.Dims()

	return &Model{Name: m.Name(), Coef: make([]float64, c), Intercept: stat.Mean(y, nil)}, nil
}
