package dashclient

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const defaultChartHeight = "360px"

// Series names shown in the chart legends.
const (
	seriesFlow     = "Flow (L/min)"
	seriesPressure = "Press (bar)"
	seriesCount    = "Count"
)

// ChartPoint is an individual labeled value.
type ChartPoint struct {
	Label string
	Value float64
}

// ChartSeries is a set of values plotted under one legend entry.
type ChartSeries struct {
	Name   string
	Points []ChartPoint
}

// ChartBundle holds the two derived projections: a line-series of flow and
// pressure keyed by equipment name, and a bar-series of counts keyed by
// equipment type.
type ChartBundle struct {
	Labels       []string
	Parameters   []ChartSeries
	Distribution ChartSeries
}

// DeriveCharts projects a selection and its statistics into chart
// datasets. Pure function: nil when either input is absent, so stale
// charts can never outlive the data they were derived from.
func DeriveCharts(selected *SelectedUpload, stats *StatsSummary) *ChartBundle {
	if selected == nil || stats == nil {
		return nil
	}

	labels := make([]string, len(selected.Records))
	flow := make([]ChartPoint, len(selected.Records))
	pressure := make([]ChartPoint, len(selected.Records))
	for i, rec := range selected.Records {
		labels[i] = rec.EquipmentName
		flow[i] = ChartPoint{Label: rec.EquipmentName, Value: rec.Flowrate}
		pressure[i] = ChartPoint{Label: rec.EquipmentName, Value: rec.Pressure}
	}

	distribution := ChartSeries{Name: seriesCount}
	for _, bucket := range stats.TypeDistribution {
		distribution.Points = append(distribution.Points, ChartPoint{
			Label: bucket.EquipmentType,
			Value: float64(bucket.Count),
		})
	}

	return &ChartBundle{
		Labels: labels,
		Parameters: []ChartSeries{
			{Name: seriesFlow, Points: flow},
			{Name: seriesPressure, Points: pressure},
		},
		Distribution: distribution,
	}
}

// ChartHTML carries the rendered markup for both dashboard charts.
type ChartHTML struct {
	Parameters   string
	Distribution string
}

// ChartRenderer turns derived datasets into echarts markup.
type ChartRenderer struct {
	cache RenderCache
	theme string
}

// ChartRendererOption customizes renderer behavior.
type ChartRendererOption func(*ChartRenderer)

// WithRenderCache injects a render cache.
func WithRenderCache(cache RenderCache) ChartRendererOption {
	return func(r *ChartRenderer) {
		r.cache = cache
	}
}

// WithTheme selects the UI theme ("dark" or "light") the charts follow.
func WithTheme(theme string) ChartRendererOption {
	return func(r *ChartRenderer) {
		r.theme = theme
	}
}

// NewChartRenderer builds a renderer, dark-themed by default.
func NewChartRenderer(options ...ChartRendererOption) *ChartRenderer {
	r := &ChartRenderer{theme: ThemeDark}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Render produces the parameter-trend line chart and the type-distribution
// bar chart for the bundle.
func (r *ChartRenderer) Render(bundle *ChartBundle) (ChartHTML, error) {
	if bundle == nil {
		return ChartHTML{}, fmt.Errorf("dashclient: no chart data to render")
	}

	parameters, err := r.cached("parameters", bundle, func() (string, error) {
		return r.renderLineChart(bundle)
	})
	if err != nil {
		return ChartHTML{}, err
	}
	distribution, err := r.cached("distribution", bundle, func() (string, error) {
		return r.renderBarChart(bundle)
	})
	if err != nil {
		return ChartHTML{}, err
	}
	return ChartHTML{Parameters: parameters, Distribution: distribution}, nil
}

func (r *ChartRenderer) cached(kind string, bundle *ChartBundle, render func() (string, error)) (string, error) {
	if r.cache == nil {
		return render()
	}
	key := fmt.Sprintf("%s:%s:%s", kind, r.theme, bundleHash(bundle))
	return r.cache.GetOrRender(key, render)
}

func (r *ChartRenderer) renderLineChart(bundle *ChartBundle) (string, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(r.globalChartOptions("Parameter Trends")...)
	line.SetXAxis(bundle.Labels)
	for _, s := range bundle.Parameters {
		line.AddSeries(s.Name, toLineData(s.Points))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return renderChart(line)
}

func (r *ChartRenderer) renderBarChart(bundle *ChartBundle) (string, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(r.globalChartOptions("Type Distribution")...)
	labels := make([]string, len(bundle.Distribution.Points))
	for i, point := range bundle.Distribution.Points {
		labels[i] = point.Label
	}
	bar.SetXAxis(labels)
	bar.AddSeries(bundle.Distribution.Name, toBarData(bundle.Distribution.Points))
	return renderChart(bar)
}

func (r *ChartRenderer) globalChartOptions(title string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  r.echartsTheme(),
			Width:  "100%",
			Height: defaultChartHeight,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

func (r *ChartRenderer) echartsTheme() string {
	if strings.EqualFold(r.theme, ThemeLight) {
		return types.ThemeWalden
	}
	return types.ThemeWesteros
}

func renderChart(renderable interface{ Render(io.Writer) error }) (string, error) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toLineData(points []ChartPoint) []opts.LineData {
	data := make([]opts.LineData, len(points))
	for i, point := range points {
		data[i] = opts.LineData{Name: point.Label, Value: point.Value}
	}
	return data
}

func toBarData(points []ChartPoint) []opts.BarData {
	data := make([]opts.BarData, len(points))
	for i, point := range points {
		data[i] = opts.BarData{Name: point.Label, Value: point.Value}
	}
	return data
}

// bundleHash returns a deterministic key for the bundle contents.
func bundleHash(bundle *ChartBundle) string {
	b, err := json.Marshal(bundle)
	if err != nil {
		return "invalid"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
