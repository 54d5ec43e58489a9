package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/model"
)

const dateAxis = "2006-01-02"

// missing is the value echarts treats as a gap in a line series.
const missing = "-"

// RenderDashboard writes an HTML page charting r: history with the forecast
// band and baseline, the component decomposition when present and the
// in-sample residuals when accuracy was computed.
func RenderDashboard(w io.Writer, r *model.Result) error {
	page := components.NewPage()
	page.PageTitle = "Case forecast"
	page.AddCharts(forecastChart(r))
	if len(r.Components) > 0 {
		page.AddCharts(componentsChart(r.Components))
	}
	if r.Accuracy.Available && len(r.Accuracy.Residuals) > 0 {
		page.AddCharts(residualChart(r.Accuracy.Residuals))
	}
	if err := page.Render(w); err != nil {
		return eris.Wrap(err, "report: render dashboard")
	}
	return nil
}

func forecastChart(r *model.Result) *charts.Line {
	n, h := len(r.Observations), len(r.Forecast)
	axis := make([]string, 0, n+h)
	history := make([]opts.LineData, 0, n+h)
	point := make([]opts.LineData, 0, n+h)
	lower := make([]opts.LineData, 0, n+h)
	upper := make([]opts.LineData, 0, n+h)

	for i, p := range r.Observations {
		axis = append(axis, p.Date.Format(dateAxis))
		history = append(history, opts.LineData{Value: p.Cases})
		// The forecast line starts on the last observation so the two join.
		if i == n-1 && h > 0 {
			point = append(point, opts.LineData{Value: p.Cases})
		} else {
			point = append(point, opts.LineData{Value: missing})
		}
		lower = append(lower, opts.LineData{Value: missing})
		upper = append(upper, opts.LineData{Value: missing})
	}
	for _, p := range r.Forecast {
		axis = append(axis, p.Date.Format(dateAxis))
		history = append(history, opts.LineData{Value: missing})
		point = append(point, opts.LineData{Value: p.PointEstimate})
		lower = append(lower, opts.LineData{Value: p.LowerBound})
		upper = append(upper, opts.LineData{Value: p.UpperBound})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1000px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Weekly cases",
			Subtitle: fmt.Sprintf("%d weeks observed, %d forecast; quality %d/100", n, h, r.Quality.Score),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "cases"}),
	)
	line.SetXAxis(axis).
		AddSeries("observed", history).
		AddSeries("forecast", point,
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "baseline", YAxis: r.Baseline}),
		).
		AddSeries("lower", lower, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"})).
		AddSeries("upper", upper, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	return line
}

func componentsChart(comps []model.ComponentPoint) *charts.Line {
	axis := make([]string, len(comps))
	trend := make([]opts.LineData, len(comps))
	seasonal := make([]opts.LineData, len(comps))
	regressors := make([]opts.LineData, len(comps))
	var hasRegressors bool
	for i, c := range comps {
		axis[i] = c.Date.Format(dateAxis)
		trend[i] = opts.LineData{Value: c.Trend}
		seasonal[i] = opts.LineData{Value: c.Seasonal}
		regressors[i] = opts.LineData{Value: c.Regressors}
		hasRegressors = hasRegressors || c.Regressors != 0
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1000px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Components"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	line.SetXAxis(axis).
		AddSeries("trend", trend).
		AddSeries("seasonal", seasonal)
	if hasRegressors {
		line.AddSeries("regressors", regressors)
	}
	return line
}

func residualChart(res []model.Residual) *charts.Scatter {
	data := make([]opts.ScatterData, len(res))
	for i, r := range res {
		data[i] = opts.ScatterData{Name: r.Date.Format(dateAxis), Value: []float64{r.Predicted, r.Residual}}
	}

	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1000px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Residuals", Subtitle: "actual minus predicted"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "predicted", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "residual"}),
	)
	sc.AddSeries("residual", data, charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "zero", YAxis: 0}))
	return sc
}
