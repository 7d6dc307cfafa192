package indicators

import "math"

// Rolling operations over dense columns. Undefined entries are NaN; the
// panel layer is responsible for never letting NaN reach a decision.

// RollingMean returns the n-window trailing mean per row. A row is defined
// only when its whole window is defined: the first n-1 rows are NaN, as is
// any row whose window still contains a NaN. NaN entries do not poison later
// windows, so a column with a NaN prefix (a late listing) becomes defined
// once n clean values have accumulated.
func RollingMean(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(xs) < n {
		return out
	}

	sum := 0.0
	valid := 0
	for i, x := range xs {
		if !math.IsNaN(x) {
			sum += x
			valid++
		}
		if i >= n {
			if left := xs[i-n]; !math.IsNaN(left) {
				sum -= left
				valid--
			}
		}
		if i >= n-1 && valid == n {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// Shift returns the column displaced forward by k rows; the first k rows are
// NaN. Shift(xs, 1) is the mandatory point-in-time lag: a value used for a
// decision at day t must come from day t-1 or earlier.
func Shift(xs []float64, k int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
		} else {
			out[i] = xs[i-k]
		}
	}
	return out
}

// CumMax returns the running maximum.
func CumMax(xs []float64) []float64 {
	out := make([]float64, len(xs))
	best := math.Inf(-1)
	for i, x := range xs {
		if x > best {
			best = x
		}
		out[i] = best
	}
	return out
}

// PctChange returns the row-on-row fractional change; the first row is NaN,
// as is any row whose predecessor is zero or NaN.
func PctChange(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(xs); i++ {
		prev := xs[i-1]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(xs[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = xs[i]/prev - 1
	}
	return out
}

// ForwardFill replaces NaN entries with the last preceding defined value.
// Leading NaNs remain NaN.
func ForwardFill(xs []float64) []float64 {
	out := make([]float64, len(xs))
	last := math.NaN()
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = last
			continue
		}
		out[i] = x
		last = x
	}
	return out
}

// ZeroFill replaces NaN entries with zero.
func ZeroFill(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = 0
		} else {
			out[i] = x
		}
	}
	return out
}

// DropNaN returns the defined entries in order.
func DropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}
