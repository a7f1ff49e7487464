package moodarima

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aouyang1/go-moodarima/backtest"
	"github.com/aouyang1/go-moodarima/cohort"
	"github.com/aouyang1/go-moodarima/split"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// PatientStatus is the outcome of evaluating one patient
type PatientStatus string

const (
	StatusEvaluated PatientStatus = "evaluated"
	StatusSkipped   PatientStatus = "skipped"
	StatusFailed    PatientStatus = "failed"
)

// PatientResult is the outcome of one patient for one lag order. Reason is set for skipped
// patients and MSE and Result for evaluated ones.
type PatientResult struct {
	Patient int              `json:"patient"`
	ID      string           `json:"id"`
	Status  PatientStatus    `json:"status"`
	Reason  string           `json:"reason,omitempty"`
	MSE     float64          `json:"mse"`
	Result  *backtest.Result `json:"result,omitempty"`
}

// LagResult summarizes one lag order over the cohort
type LagResult struct {
	Lag         int             `json:"lag"`
	Mode        split.Mode      `json:"mode"`
	Patients    []PatientResult `json:"patients"`
	Contributed int             `json:"contributed"`
	Skipped     int             `json:"skipped"`
	Summary     *cohort.Summary `json:"summary"`
}

// TablePrint writes the cohort summary followed by the per patient outcomes
func (l LagResult) TablePrint(w io.Writer, prefix, indent string) error {
	if _, err := fmt.Fprintf(w, "%sLag %d (%s):\n", prefix, l.Lag, l.Mode); err != nil {
		return err
	}
	if l.Summary != nil {
		if err := l.Summary.TablePrint(w, prefix+indent, indent); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%s%sPatients:\n", prefix, indent); err != nil {
		return err
	}
	tbl := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	rowPrefix := prefix + indentExpand(indent, 2)
	if _, err := fmt.Fprintf(tbl, "%sID\tStatus\tMSE\tSteps\t\n", rowPrefix); err != nil {
		return err
	}
	for _, p := range l.Patients {
		mse, steps := "-", "-"
		if p.Status == StatusEvaluated && p.Result != nil {
			mse = fmt.Sprintf("%.4f", p.MSE)
			steps = fmt.Sprintf("%d", p.Result.Evaluated)
		}
		if _, err := fmt.Fprintf(tbl, "%s%s\t%s\t%s\t%s\t\n", rowPrefix, p.ID, p.Status, mse, steps); err != nil {
			return err
		}
	}
	return tbl.Flush()
}

// Report of a full run over every lag order
type Report struct {
	RunID     uuid.UUID     `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Options   *Options      `json:"options"`
	Results   []*LagResult  `json:"results"`
}

// Means returns the cohort mean of every lag order in run order
func (r *Report) Means() []float64 {
	means := make([]float64, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Summary == nil {
			continue
		}
		means = append(means, res.Summary.Mean)
	}
	return means
}

// WriteText writes the summary lines of every lag order followed by the list of means
func (r *Report) WriteText(w io.Writer) error {
	for _, res := range r.Results {
		if res.Summary == nil {
			continue
		}
		for _, line := range res.Summary.Lines(res.Lag) {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "Patients: %d contributed, %d skipped\n", res.Contributed, res.Skipped); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, FormatMeans(r.Means()))
	return err
}

// WriteJSON writes the indented report
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("unable to encode report, %w", err)
	}
	return nil
}

// ReadReport decodes a report written by WriteJSON
func ReadReport(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("unable to decode report, %w", err)
	}
	return &r, nil
}

// FormatMeans formats means as a bracketed list, e.g. [0.1234, 0.5678]
func FormatMeans(means []float64) string {
	out := make([]string, len(means))
	for i, m := range means {
		out[i] = fmt.Sprintf("%.4f", m)
	}
	return "[" + strings.Join(out, ", ") + "]"
}

func indentExpand(indent string, growth int) string {
	return strings.Repeat(indent, growth)
}
