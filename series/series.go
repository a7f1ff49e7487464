// Package series loads patient mood series from storage. A patient whose data is missing or
// unreadable is reported with ErrDataUnavailable so the caller can skip it.
package series

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aouyang1/go-moodarima/timedataset"
)

var (
	ErrDataUnavailable = errors.New("patient data unavailable")
	ErrMissingColumn   = errors.New("required column missing")
	ErrInvalidTime     = errors.New("unable to parse time index")
	ErrInvalidValue    = errors.New("unable to parse numeric value")
	ErrInvalidTable    = errors.New("invalid table name")
	ErrUnknownDriver   = errors.New("unknown sql driver")
)

const (
	ColMood     = "mood"
	ColNextMood = "next_mood"
)

// Provider loads one patient's series sorted ascending by time
type Provider interface {
	Load(ctx context.Context, patient int) (*timedataset.MoodDataset, error)
}

// PatientID formats a patient index as a zero padded two digit identifier
func PatientID(patient int) string {
	return fmt.Sprintf("%02d", patient)
}

// timeLayouts are tried in order when parsing a time index
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006/01/02",
	"01/02/2006",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q, %w", s, ErrInvalidTime)
}

// parseValue treats empty and NA style cells as missing
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q, %w", s, ErrInvalidValue)
	}
	return v, nil
}

// unavailable wraps err so that it matches ErrDataUnavailable
func unavailable(patient int, err error) error {
	return fmt.Errorf("patient %s, %w, %w", PatientID(patient), ErrDataUnavailable, err)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
