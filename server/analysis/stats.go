package analysis

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// Mean of xs; 0 for an empty slice.
func Mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

// Median of xs; 0 for an empty slice. Even lengths average the middle pair.
func Median(xs []int) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	s := append([]int(nil), xs...)
	sort.Ints(s)
	if n%2 == 1 {
		return float64(s[n/2])
	}
	return float64(s[n/2-1]+s[n/2]) / 2
}

// Positive keeps the scores above zero.
func Positive(xs []int) []int {
	var out []int
	for _, x := range xs {
		if x > 0 {
			out = append(out, x)
		}
	}
	return out
}

// --------- CI helpers ---------

// WilsonCI95 for a Bernoulli rate (e.g. agreement) from successes/total.
func WilsonCI95(successes, total int) (low, hi float64) {
	if total <= 0 {
		return 0, 1
	}
	z := 1.96
	n := float64(total)
	p := float64(successes) / n
	den := 1 + (z*z)/n
	center := p + (z*z)/(2*n)
	half := z * math.Sqrt((p*(1-p))/n+(z*z)/(4*n*n))
	return (center - half) / den, (center + half) / den
}

// BootstrapCI95 for the mean of vals, resampling B times.
func BootstrapCI95(r *rand.Rand, vals []int, B int) (low, hi float64) {
	n := len(vals)
	if n == 0 || B <= 1 {
		return 0, 0
	}
	res := make([]float64, B)
	for b := 0; b < B; b++ {
		sum := 0
		for i := 0; i < n; i++ {
			sum += vals[r.Intn(n)]
		}
		res[b] = float64(sum) / float64(n)
	}
	sort.Float64s(res)
	l := int(0.025 * float64(B-1))
	h := int(0.975 * float64(B-1))
	return res[l], res[h]
}
