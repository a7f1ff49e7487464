package series

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aouyang1/go-moodarima/timedataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2014, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestPatientID(t *testing.T) {
	testData := map[string]struct {
		patient  int
		expected string
	}{
		"single digit": {7, "07"},
		"two digits":   {33, "33"},
		"three digits": {101, "101"},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.expected, PatientID(td.patient))
		})
	}
}

func TestParseTime(t *testing.T) {
	testData := map[string]struct {
		in       string
		expected time.Time
		err      error
	}{
		"date":           {"2014-03-21", day(21), nil},
		"date time":      {"2014-03-21 13:30:00", day(21).Add(13*time.Hour + 30*time.Minute), nil},
		"rfc3339":        {"2014-03-21T02:00:00+02:00", day(21), nil},
		"sqlite default": {"2014-03-21 00:00:00+00:00", day(21), nil},
		"slashes":        {"2014/03/21", day(21), nil},
		"us":             {"03/21/2014", day(21), nil},
		"garbage":        {"yesterday", time.Time{}, ErrInvalidTime},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := parseTime(td.in)
			if td.err != nil {
				require.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, td.expected.Equal(res), "expected %s got %s", td.expected, res)
		})
	}
}

func TestReadCSV(t *testing.T) {
	testData := map[string]struct {
		in       string
		t        []time.Time
		mood     []float64
		nextMood []float64
		err      error
	}{
		"sorted with extra columns": {
			in: `,activity,mood,next_mood
2014-03-21,0.3,6.0,6.2
2014-03-22,0.1,6.2,6.4
2014-03-23,0.2,6.4,NA
`,
			t:        []time.Time{day(21), day(22), day(23)},
			mood:     []float64{6.0, 6.2, 6.4},
			nextMood: []float64{6.2, 6.4, math.NaN()},
		},
		"unsorted rows": {
			in: `date,next_mood,mood
2014-03-23,,6.4
2014-03-21,6.2,6.0
2014-03-22,6.4,6.2
`,
			t:        []time.Time{day(21), day(22), day(23)},
			mood:     []float64{6.0, 6.2, 6.4},
			nextMood: []float64{6.2, 6.4, math.NaN()},
		},
		"missing mood column": {
			in: `,next_mood
2014-03-21,6.2
`,
			err: ErrMissingColumn,
		},
		"mood as index column": {
			in: `mood,next_mood
6.0,6.2
`,
			err: ErrMissingColumn,
		},
		"bad date": {
			in: `,mood,next_mood
someday,6.0,6.2
`,
			err: ErrInvalidTime,
		},
		"bad value": {
			in: `,mood,next_mood
2014-03-21,happy,6.2
`,
			err: ErrInvalidValue,
		},
		"duplicate time": {
			in: `,mood,next_mood
2014-03-21,6.0,6.2
2014-03-21,6.2,6.4
`,
			err: timedataset.ErrNonMonotonic,
		},
		"header only": {
			in:  ",mood,next_mood\n",
			err: timedataset.ErrNoTrainingData,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			ds, err := ReadCSV(strings.NewReader(td.in))
			if td.err != nil {
				require.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.t, ds.T)
			assertFloats(t, td.mood, ds.Mood)
			assertFloats(t, td.nextMood, ds.NextMood)
		})
	}
}

func assertFloats(t *testing.T, expected, actual []float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		if math.IsNaN(expected[i]) {
			assert.True(t, math.IsNaN(actual[i]), "index %d expected NaN got %g", i, actual[i])
			continue
		}
		assert.InDelta(t, expected[i], actual[i], 1e-12, "index %d", i)
	}
}

func TestCSVProviderLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p07.csv"), []byte(`,mood,next_mood
2014-03-21,6.0,6.2
2014-03-22,6.2,6.4
2014-03-23,6.4,
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p08.csv"), []byte("not,a\nmood,file\n"), 0o644))

	p := NewCSVProvider(dir)
	assert.Equal(t, filepath.Join(dir, "p07.csv"), p.Path(7))

	testData := map[string]struct {
		patient int
		n       int
		err     error
	}{
		"existing": {patient: 7, n: 3},
		"missing":  {patient: 9, err: ErrDataUnavailable},
		"malformed": {
			patient: 8,
			err:     ErrDataUnavailable,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			ds, err := p.Load(context.Background(), td.patient)
			if td.err != nil {
				require.ErrorIs(t, err, td.err)
				assert.Contains(t, err.Error(), PatientID(td.patient))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.n, ds.Len())
			require.NoError(t, ds.CheckShift(1e-9))
		})
	}
}

func TestCSVProviderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVProvider(t.TempDir()).Load(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDataUnavailable)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	ds, err := timedataset.NewMoodDatasetFromMood(
		[]time.Time{day(21), day(22), day(23)},
		[]float64{6.0, 6.25, 7.125},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	assert.Equal(t, `,mood,next_mood
2014-03-21 00:00:00,6,6.25
2014-03-22 00:00:00,6.25,7.125
2014-03-23 00:00:00,7.125,NA
`, buf.String())

	res, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds.T, res.T)
	assertFloats(t, ds.Mood, res.Mood)
	assertFloats(t, ds.NextMood, res.NextMood)
}
