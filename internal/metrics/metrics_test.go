package metrics

import (
	"math"
	"testing"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestSharpeRatio(t *testing.T) {
	returns := []float64{0.1, -0.05, 0.1, -0.05}
	got := SharpeRatio(returns, 0)

	// mean 0.025, sample stddev sqrt(0.0225/3) ~ 0.0866.
	if !approx(got, 0.288675, 1e-4) {
		t.Errorf("SharpeRatio = %v, want ~0.2887", got)
	}
}

func TestSharpeRatioRiskFree(t *testing.T) {
	returns := []float64{0.1, -0.05, 0.1, -0.05}
	stddev := math.Sqrt(0.0225 / 3)
	want := (0.025 - 0.01) / stddev
	if got := SharpeRatio(returns, 0.01); !approx(got, want, 1e-9) {
		t.Errorf("SharpeRatio(rf=0.01) = %v, want %v", got, want)
	}
}

func TestSharpeRatioDegenerate(t *testing.T) {
	cases := map[string][]float64{
		"nil":           nil,
		"single":        {0.5},
		"zero variance": {0.02, 0.02, 0.02},
	}
	for name, returns := range cases {
		got := SharpeRatio(returns, 0)
		if got != 0 || math.IsNaN(got) {
			t.Errorf("%s: SharpeRatio = %v, want exactly 0", name, got)
		}
	}
}

func TestMaxDrawdown(t *testing.T) {
	equity := []float64{100, 110, 90, 120, 80, 100}
	// Peak 120 to trough 80.
	if got := MaxDrawdown(equity); !approx(got, 1.0/3.0, 1e-9) {
		t.Errorf("MaxDrawdown = %v, want ~0.3333", got)
	}
}

func TestMaxDrawdownEdges(t *testing.T) {
	if got := MaxDrawdown(nil); got != 0 {
		t.Errorf("MaxDrawdown(nil) = %v, want 0", got)
	}
	if got := MaxDrawdown([]float64{1, 2, 3}); got != 0 {
		t.Errorf("MaxDrawdown(rising) = %v, want 0", got)
	}
	// A zero peak must not produce NaN or Inf.
	got := MaxDrawdown([]float64{0, 0, 0})
	if got != 0 || math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("MaxDrawdown(zeros) = %v, want 0", got)
	}
	if got := MaxDrawdown([]float64{0, 10, 5}); !approx(got, 0.5, 1e-9) {
		t.Errorf("MaxDrawdown(0,10,5) = %v, want 0.5", got)
	}
}

func TestTotalReturnAndWinRate(t *testing.T) {
	if got := TotalReturn(1000, 1100); !approx(got, 0.1, 1e-12) {
		t.Errorf("TotalReturn = %v, want 0.1", got)
	}
	if got := TotalReturn(0, 10); got != 0 {
		t.Errorf("TotalReturn(0, 10) = %v, want 0", got)
	}
	if got := WinRate([]float64{0.1, -0.2, 0.3, 0}); got != 0.5 {
		t.Errorf("WinRate = %v, want 0.5", got)
	}
	if got := WinRate(nil); got != 0 {
		t.Errorf("WinRate(nil) = %v, want 0", got)
	}
}
