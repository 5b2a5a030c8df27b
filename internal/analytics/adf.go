package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// adfMinLength is the smallest series the lag-1 test can fit: three regressors
// (constant, level, lagged difference) over n-2 usable observations, plus one
// residual degree of freedom.
const adfMinLength = 6

// ADF runs an augmented Dickey-Fuller unit-root test with a constant term and
// one lagged difference (matching the common maxlag=1 setup). It returns the
// tau statistic and the MacKinnon approximate p-value; a small p-value rejects
// the unit root, i.e. the series looks stationary.
func ADF(series []float64) (stat, pvalue float64, err error) {
	n := len(series)
	if n < adfMinLength {
		return 0, 0, fmt.Errorf("adf needs at least %d observations, got %d: %w", adfMinLength, n, ErrInsufficientData)
	}

	// regression: diff[t] = a + g*series[t-1] + b*diff[t-1]
	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = series[i] - series[i-1]
	}

	rows := n - 2
	design := make([][]float64, rows)
	target := make([]float64, rows)
	for t := 0; t < rows; t++ {
		design[t] = []float64{1, series[t+1], diff[t]}
		target[t] = diff[t+1]
	}

	coeffs, stderrs, err := olsFit(design, target)
	if err != nil {
		return 0, 0, fmt.Errorf("adf regression: %w", err)
	}
	// an (almost) exact fit leaves no residual variance to form the statistic
	if stderrs[1] < 1e-10 || math.IsNaN(stderrs[1]) {
		return 0, 0, fmt.Errorf("adf regression is degenerate: %w", ErrInsufficientData)
	}

	stat = coeffs[1] / stderrs[1]
	return stat, mackinnonP(stat), nil
}

// MacKinnon (1994) approximate asymptotic p-value surface for the
// constant-only regression.
var (
	tauMaxC  = 2.74
	tauMinC  = -18.83
	tauStarC = -1.61
	// polynomial coefficients in ascending order of the tau statistic
	tauSmallPC = []float64{2.1659, 1.4412, 0.038269}
	tauLargePC = []float64{1.7339, 0.93202, -0.12745, -0.0024174}
)

func mackinnonP(stat float64) float64 {
	if stat > tauMaxC {
		return 1.0
	}
	if stat < tauMinC {
		return 0.0
	}
	coeffs := tauLargePC
	if stat <= tauStarC {
		coeffs = tauSmallPC
	}
	return distuv.UnitNormal.CDF(polyval(coeffs, stat))
}

func polyval(coeffs []float64, x float64) float64 {
	sum := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		sum = sum*x + coeffs[i]
	}
	return sum
}

// olsFit solves the least-squares problem for the given design matrix and
// returns coefficient estimates with their standard errors. An exact fit
// (as many observations as regressors) yields well-defined coefficients but
// leaves no residual degrees of freedom, so the standard errors are NaN.
func olsFit(design [][]float64, target []float64) (coeffs, stderrs []float64, err error) {
	rows := len(design)
	if rows == 0 {
		return nil, nil, fmt.Errorf("empty design matrix: %w", ErrInsufficientData)
	}
	cols := len(design[0])
	if rows < cols {
		return nil, nil, fmt.Errorf("need at least as many observations (%d) as regressors (%d): %w", rows, cols, ErrInsufficientData)
	}

	x := mat.NewDense(rows, cols, nil)
	for i, row := range design {
		x.SetRow(i, row)
	}
	y := mat.NewVecDense(rows, target)

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, nil, fmt.Errorf("singular design matrix: %w", ErrInsufficientData)
	}

	// residual variance
	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	rss := 0.0
	for i := 0; i < rows; i++ {
		r := target[i] - fitted.AtVec(i)
		rss += r * r
	}
	sigma2 := math.NaN()
	if rows > cols {
		sigma2 = rss / float64(rows-cols)
	}

	// covariance of the estimates: sigma2 * (X'X)^-1
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, nil, fmt.Errorf("singular normal equations: %w", ErrInsufficientData)
	}

	coeffs = make([]float64, cols)
	stderrs = make([]float64, cols)
	for j := 0; j < cols; j++ {
		coeffs[j] = beta.AtVec(j)
		stderrs[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}
	return coeffs, stderrs, nil
}
