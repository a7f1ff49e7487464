package moodarima

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/aouyang1/go-moodarima/backtest"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var ErrEmptyReport = errors.New("report has no results to plot")

// PlotReport renders an html page with the cohort interval of every lag order, the per patient
// mean squared errors and the walk forward forecasts of every evaluated patient.
func PlotReport(path string, r *Report) error {
	if r == nil || len(r.Results) == 0 {
		return ErrEmptyReport
	}

	page := components.NewPage()
	page.AddCharts(LineCohort(r))
	for _, res := range r.Results {
		page.AddCharts(BarPatientMSE(res))
	}
	for _, res := range r.Results {
		for _, p := range res.Patients {
			if p.Status != StatusEvaluated || p.Result == nil {
				continue
			}
			page.AddCharts(LineBacktest(fmt.Sprintf("Patient %s (k=%d)", p.ID, res.Lag), p.Result))
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create plot file, %w", err)
	}
	defer file.Close()
	if err := page.Render(file); err != nil {
		return fmt.Errorf("unable to render plot, %w", err)
	}
	return nil
}

// LineCohort generates an echart line chart of the cohort mean and confidence bounds per lag order
func LineCohort(r *Report) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: "Cohort MSE",
			},
		),
	)

	lags := make([]string, 0, len(r.Results))
	lineDataMean := make([]opts.LineData, 0, len(r.Results))
	lineDataUpper := make([]opts.LineData, 0, len(r.Results))
	lineDataLower := make([]opts.LineData, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Summary == nil {
			continue
		}
		lags = append(lags, fmt.Sprintf("k=%d", res.Lag))
		lineDataMean = append(lineDataMean, opts.LineData{Value: res.Summary.Mean})
		lineDataUpper = append(lineDataUpper, opts.LineData{Value: res.Summary.Upper})
		lineDataLower = append(lineDataLower, opts.LineData{Value: res.Summary.Lower})
	}

	line.SetXAxis(lags).
		AddSeries("Mean", lineDataMean).
		AddSeries("Upper", lineDataUpper).
		AddSeries("Lower", lineDataLower)
	return line
}

// BarPatientMSE generates an echart bar chart of the mean squared error of every contributing patient
func BarPatientMSE(res *LagResult) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title:    fmt.Sprintf("Patient MSE (k=%d)", res.Lag),
				Subtitle: fmt.Sprintf("%d contributed, %d skipped", res.Contributed, res.Skipped),
			},
		),
	)

	ids := make([]string, 0, len(res.Patients))
	barData := make([]opts.BarData, 0, len(res.Patients))
	for _, p := range res.Patients {
		if p.Status != StatusEvaluated {
			continue
		}
		ids = append(ids, p.ID)
		barData = append(barData, opts.BarData{Value: p.MSE})
	}

	bar.SetXAxis(ids).AddSeries("MSE", barData)
	return bar
}

// LineBacktest generates an echart line chart of the actual values and the one step ahead forecasts
// of a walk forward backtest
func LineBacktest(title string, res *backtest.Result) *charts.Line {
	t := make([]time.Time, len(res.Steps))
	actual := make([]float64, len(res.Steps))
	forecast := make([]float64, len(res.Steps))
	for i, s := range res.Steps {
		t[i] = s.Time
		actual[i] = s.Actual
		forecast[i] = s.Forecast
	}
	return LineTSeries(title, []string{"Actual", "Forecast"}, t, [][]float64{actual, forecast})
}

// LineTSeries generates an echart multi-line chart for some arbitrary time/value combination. Every
// series in y must have the same length as t. Points where any series is NaN are dropped.
func LineTSeries(title string, seriesName []string, t []time.Time, y [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	keep := make([]bool, len(t))
	filteredT := make([]string, 0, len(t))
	for j := range t {
		keep[j] = true
		for i := range y {
			if math.IsNaN(y[i][j]) {
				keep[j] = false
				break
			}
		}
		if keep[j] {
			filteredT = append(filteredT, t[j].Format(time.DateOnly))
		}
	}

	lineData := make([][]opts.LineData, len(y))
	for i := range y {
		lineData[i] = make([]opts.LineData, 0, len(filteredT))
		for j := range y[i] {
			if !keep[j] {
				continue
			}
			lineData[i] = append(lineData[i], opts.LineData{Value: y[i][j]})
		}
	}

	line = line.SetXAxis(filteredT)
	for i, series := range seriesName {
		line = line.AddSeries(series, lineData[i])
	}
	return line
}
