package forecast

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// seedStream is the second PCG word; the model seed selects the first
const seedStream = 0x9e3779b97f4a7c15

const progressStep = 50

// intervals returns scaled lower/upper bounds for each scaled time.
//
// Each sample draws future trend changes (Poisson count at the historical
// changepoint rate, Laplace magnitudes at the mean fitted |delta|) plus
// Gaussian observation noise. In-sample dates only carry noise. With zero
// samples the bounds fall back to the analytic Gaussian noise interval.
func (p *Predictor) intervals(m *Model, ts, yhat []float64) (lower, upper []float64) {
	n := len(ts)
	lower = make([]float64, n)
	upper = make([]float64, n)
	width := m.opts.IntervalWidth

	total := m.opts.UncertaintySamples
	if total == 0 {
		z := distuv.UnitNormal.Quantile((1 + width) / 2)
		for i := range yhat {
			lower[i] = yhat[i] - z*m.sigma
			upper[i] = yhat[i] + z*m.sigma
		}
		return lower, upper
	}

	// every draw of the run comes off one PCG stream
	src := rand.NewPCG(m.opts.Seed, seedStream)
	rng := rand.New(src)
	magnitude := distuv.Laplace{Mu: 0, Scale: m.cpScale, Src: src}
	samples := make([][]float64, n)
	for i := range samples {
		samples[i] = make([]float64, total)
	}

	tMax := ts[n-1]
	rate := float64(len(m.layout.changepoints))
	simulate := tMax > 1 && rate > 0 && m.cpScale > 0
	count := distuv.Poisson{Lambda: rate * (tMax - 1), Src: src}

	var cps, deltas []float64
	for s := 0; s < total; s++ {
		cps, deltas = cps[:0], deltas[:0]
		if simulate {
			k := int(count.Rand())
			for j := 0; j < k; j++ {
				cps = append(cps, 1+rng.Float64()*(tMax-1))
				deltas = append(deltas, magnitude.Rand())
			}
		}

		for i, t := range ts {
			dev := 0.0
			for j, c := range cps {
				if t > c {
					dev += deltas[j] * (t - c)
				}
			}
			samples[i][s] = yhat[i] + dev + rng.NormFloat64()*m.sigma
		}

		if p.onProgress != nil && ((s+1)%progressStep == 0 || s+1 == total) {
			p.onProgress(s+1, total)
		}
	}

	qLo, qHi := (1-width)/2, (1+width)/2
	for i, xs := range samples {
		sort.Float64s(xs)
		lower[i] = stat.Quantile(qLo, stat.Empirical, xs, nil)
		upper[i] = stat.Quantile(qHi, stat.Empirical, xs, nil)
	}
	return lower, upper
}
