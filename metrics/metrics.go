// Package metrics exposes prometheus collectors for model fits and patient evaluations
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "moodarima"

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics records fit and patient counts. A nil *Metrics discards everything.
type Metrics struct {
	fits        *prometheus.CounterVec
	fitDuration *prometheus.HistogramVec
	patients    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fits_total",
				Help:      "Total number of ARIMA fits by lag order and outcome.",
			},
			[]string{"lag", "outcome"},
		),
		fitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fit_duration_seconds",
				Help:      "ARIMA fit duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"lag"},
		),
		patients: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patients_total",
				Help:      "Total number of patients by lag order and evaluation status.",
			},
			[]string{"lag", "status"},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.fits, m.fitDuration, m.patients} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("unable to register collector, %w", err)
		}
	}
	return m, nil
}

// ObserveFit records one fit of the given lag order
func (m *Metrics) ObserveFit(lag int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	l := strconv.Itoa(lag)
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	m.fits.WithLabelValues(l, outcome).Inc()
	m.fitDuration.WithLabelValues(l).Observe(elapsed.Seconds())
}

// ObservePatient records the final status of one patient for the given lag order
func (m *Metrics) ObservePatient(lag int, status string) {
	if m == nil {
		return
	}
	m.patients.WithLabelValues(strconv.Itoa(lag), status).Inc()
}

// WriteTextfile writes everything g gathers in the node exporter textfile format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("unable to write metrics to %s, %w", path, err)
	}
	return nil
}
