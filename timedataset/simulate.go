package timedataset

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
)

// GenerateT returns n evenly spaced times ending one interval before now, truncated to the minute.
func GenerateT(n int, interval time.Duration, nowFunc func() time.Time) []time.Time {
	t := make([]time.Time, 0, n)
	ct := time.Unix(nowFunc().Unix()/60*60, 0).Add(-time.Duration(n) * interval).UTC()
	for i := 0; i < n; i++ {
		t = append(t, ct.Add(interval*time.Duration(i)))
	}
	return t
}

type Series []float64

func (s Series) Add(src Series) Series {
	floats.Add(s, src)
	return s
}

func GenerateConstY(n int, val float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, val)
	}
	return Series(y)
}

// GenerateWaveY generates a sine wave with the given period in number of samples
func GenerateWaveY(n int, amp, period, phase float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, amp*math.Sin(2.0*math.Pi/period*float64(i)+phase))
	}
	return Series(y)
}

// GenerateRandomWalk generates a reproducible random walk whose increments follow an AR(1)
// process with coefficient phi, i.e. an ARIMA(1,1,0) path.
func GenerateRandomWalk(n int, start, phi, scale float64, seed uint64) Series {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	y := make([]float64, 0, n)
	level := start
	var diff float64
	for i := 0; i < n; i++ {
		if i > 0 {
			diff = phi*diff + rng.NormFloat64()*scale
			level += diff
		}
		y = append(y, level)
	}
	return Series(y)
}
