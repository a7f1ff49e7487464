package timedataset

import (
	"math"
	"time"
)

type TimeSlice []time.Time

// Span returns the first and last time of t[start:stop]. ok is false for an empty range or one
// outside the slice.
func (t TimeSlice) Span(start, stop int) (first, last time.Time, ok bool) {
	if start < 0 || stop > len(t) || start >= stop {
		return first, last, false
	}
	return t[start], t[stop-1], true
}

// EstimateFreq returns the most common spacing between consecutive points, preferring the
// smallest spacing on ties. Patient diaries are usually daily.
func (t TimeSlice) EstimateFreq() (time.Duration, error) {
	if len(t) < 2 {
		return 0, ErrCannotInferFreq
	}

	frequencies := make(map[time.Duration]int)
	for i := 1; i < len(t); i++ {
		delta := t[i].Sub(t[i-1])
		frequencies[delta] += 1
	}

	var maxCnt int
	maxDelta := time.Duration(math.MaxInt64)

	for delta, cnt := range frequencies {
		if cnt > maxCnt || (cnt == maxCnt && delta < maxDelta) {
			maxCnt = cnt
			maxDelta = delta
		}
	}
	return maxDelta, nil
}
