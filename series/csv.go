package series

import (
	"cmp"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aouyang1/go-moodarima/timedataset"
)

const DefaultPattern = "p%02d.csv"

// CSVProvider reads one file per patient from Dir, named by Pattern formatted with the patient
// index. Each file has a header row, the time index in the first column and mood and next_mood
// columns located by name.
type CSVProvider struct {
	Dir     string
	Pattern string
}

// NewCSVProvider returns a provider for dir using the p01.csv naming
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir, Pattern: DefaultPattern}
}

// Path returns the file holding a patient's series
func (p *CSVProvider) Path(patient int) string {
	pattern := p.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	return filepath.Join(p.Dir, fmt.Sprintf(pattern, patient))
}

// Load implements Provider
func (p *CSVProvider) Load(ctx context.Context, patient int) (*timedataset.MoodDataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path(patient))
	if err != nil {
		return nil, unavailable(patient, err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, unavailable(patient, err)
	}
	return ds, nil
}

type row struct {
	t        time.Time
	mood     float64
	nextMood float64
}

// ReadCSV parses a patient series and sorts it ascending by time
func ReadCSV(r io.Reader) (*timedataset.MoodDataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read header, %w", err)
	}

	moodIdx, nextIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.Trim(h, "\""))) {
		case ColMood:
			moodIdx = i
		case ColNextMood:
			nextIdx = i
		}
	}
	if moodIdx < 1 {
		return nil, fmt.Errorf("%q, %w", ColMood, ErrMissingColumn)
	}
	if nextIdx < 1 {
		return nil, fmt.Errorf("%q, %w", ColNextMood, ErrMissingColumn)
	}

	var rows []row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read line %d, %w", line, err)
		}

		t, err := parseTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d, %w", line, err)
		}
		mood, err := parseValue(record[moodIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d column %s, %w", line, ColMood, err)
		}
		nextMood, err := parseValue(record[nextIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d column %s, %w", line, ColNextMood, err)
		}
		rows = append(rows, row{t: t, mood: mood, nextMood: nextMood})
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		return cmp.Compare(a.t.UnixNano(), b.t.UnixNano())
	})

	t := make([]time.Time, 0, len(rows))
	mood := make([]float64, 0, len(rows))
	nextMood := make([]float64, 0, len(rows))
	for _, r := range rows {
		t = append(t, r.t)
		mood = append(mood, r.mood)
		nextMood = append(nextMood, r.nextMood)
	}
	return timedataset.NewMoodDataset(t, mood, nextMood)
}

// WriteCSV writes a series in the layout ReadCSV expects
func WriteCSV(w io.Writer, ds *timedataset.MoodDataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"", ColMood, ColNextMood}); err != nil {
		return err
	}
	for i := 0; i < ds.Len(); i++ {
		record := []string{
			ds.T[i].Format("2006-01-02 15:04:05"),
			formatValue(ds.Mood[i]),
			formatValue(ds.NextMood[i]),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
