package timedataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2014, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestSpan(t *testing.T) {
	diary := TimeSlice{day(1), day(2), day(3), day(4)}

	testData := map[string]struct {
		tSlice        TimeSlice
		start, stop   int
		expectedFirst time.Time
		expectedLast  time.Time
		ok            bool
	}{
		"nil time slice": {start: 0, stop: 1},
		"whole diary":    {tSlice: diary, start: 0, stop: 4, expectedFirst: day(1), expectedLast: day(4), ok: true},
		"single day":     {tSlice: diary, start: 2, stop: 3, expectedFirst: day(3), expectedLast: day(3), ok: true},
		"empty range":    {tSlice: diary, start: 2, stop: 2},
		"past end":       {tSlice: diary, start: 2, stop: 5},
		"negative start": {tSlice: diary, start: -1, stop: 2},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			first, last, ok := td.tSlice.Span(td.start, td.stop)
			assert.Equal(t, td.ok, ok)
			assert.Equal(t, td.expectedFirst, first)
			assert.Equal(t, td.expectedLast, last)
		})
	}
}

func TestEstimateFreq(t *testing.T) {
	testData := map[string]struct {
		tSlice   TimeSlice
		expected time.Duration
		err      error
	}{
		"nil time slice": {
			err: ErrCannotInferFreq,
		},
		"single point": {
			tSlice: TimeSlice{day(1)},
			err:    ErrCannotInferFreq,
		},
		"daily diary": {
			tSlice:   TimeSlice{day(1), day(2), day(3)},
			expected: 24 * time.Hour,
		},
		"daily diary with a gap": {
			tSlice:   TimeSlice{day(1), day(2), day(3), day(6), day(7)},
			expected: 24 * time.Hour,
		},
		"tied counts prefer smaller spacing": {
			tSlice:   TimeSlice{day(1), day(3), day(4)},
			expected: 24 * time.Hour,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			freq, err := td.tSlice.EstimateFreq()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.expected, freq)
		})
	}
}
