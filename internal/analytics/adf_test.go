package analytics

import (
	"errors"
	"math"
	"testing"
)

func TestADFTooShort(t *testing.T) {
	_, _, err := ADF([]float64{1, 2})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestADFRejectsUnitRootForMeanRevertingSeries(t *testing.T) {
	// noisy oscillation around 0.5: strongly mean-reverting
	series := []float64{
		0.0, 1.0, 0.2, 0.9, 0.1, 1.1, 0.3, 0.8, 0.05, 1.05,
		0.15, 0.95, 0.06, 1.02, 0.22, 0.85, 0.12, 0.98, 0.28, 0.9,
	}
	stat, pvalue, err := ADF(series)
	if err != nil {
		t.Fatalf("ADF returned error: %v", err)
	}
	if stat >= -2 {
		t.Fatalf("expected strongly negative tau for mean-reverting series, got %.4f", stat)
	}
	if pvalue >= 0.05 {
		t.Fatalf("expected rejection of the unit root, got p=%.4f", pvalue)
	}
}

func TestADFDegenerateSeries(t *testing.T) {
	// perfectly periodic series fits the regression exactly, leaving no
	// residual variance to form the statistic
	series := []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
	_, _, err := ADF(series)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected degenerate fit to surface ErrInsufficientData, got %v", err)
	}
}

func TestMacKinnonBoundaries(t *testing.T) {
	if p := mackinnonP(5.0); p != 1.0 {
		t.Fatalf("expected p=1 above tau max, got %.4f", p)
	}
	if p := mackinnonP(-25.0); p != 0.0 {
		t.Fatalf("expected p=0 below tau min, got %.4f", p)
	}
	if pLow, pHigh := mackinnonP(-5.0), mackinnonP(-1.0); pLow >= pHigh {
		t.Fatalf("expected p to grow with tau: p(-5)=%.4f p(-1)=%.4f", pLow, pHigh)
	}
	// the classic 5% critical value for the constant-only regression sits
	// near -2.86; the surface should place it close to p=0.05
	if p := mackinnonP(-2.86); math.Abs(p-0.05) > 0.01 {
		t.Fatalf("expected p near 0.05 at tau=-2.86, got %.4f", p)
	}
}

func TestOLSFitRecoversCoefficients(t *testing.T) {
	// target = 1 + 2*a - 3*b with tiny deterministic noise
	design := [][]float64{
		{1, 0, 0}, {1, 1, 0}, {1, 0, 1}, {1, 1, 1}, {1, 2, 1}, {1, 1, 2}, {1, 3, 2},
	}
	noise := []float64{0.001, -0.001, 0.002, -0.002, 0.001, -0.001, 0.0}
	target := make([]float64, len(design))
	for i, row := range design {
		target[i] = 1 + 2*row[1] - 3*row[2] + noise[i]
	}

	coeffs, stderrs, err := olsFit(design, target)
	if err != nil {
		t.Fatalf("olsFit returned error: %v", err)
	}
	want := []float64{1, 2, -3}
	for j := range want {
		if math.Abs(coeffs[j]-want[j]) > 0.01 {
			t.Fatalf("coeff %d = %.4f, want %.4f", j, coeffs[j], want[j])
		}
		if stderrs[j] <= 0 {
			t.Fatalf("stderr %d not positive: %.6f", j, stderrs[j])
		}
	}
}

func TestOLSFitExactFit(t *testing.T) {
	// rows == cols: coefficients solve exactly, standard errors are undefined
	design := [][]float64{{1, 1}, {1, 2}}
	coeffs, stderrs, err := olsFit(design, []float64{3, 5})
	if err != nil {
		t.Fatalf("olsFit returned error: %v", err)
	}
	if math.Abs(coeffs[0]-1) > 1e-9 || math.Abs(coeffs[1]-2) > 1e-9 {
		t.Fatalf("expected coeffs [1 2], got %v", coeffs)
	}
	for j, se := range stderrs {
		if !math.IsNaN(se) {
			t.Fatalf("stderr %d should be NaN without residual degrees of freedom, got %.6f", j, se)
		}
	}
}

func TestOLSFitUnderdetermined(t *testing.T) {
	design := [][]float64{{1, 2, 3}, {1, 3, 4}}
	_, _, err := olsFit(design, []float64{1, 2})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
