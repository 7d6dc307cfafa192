package analytics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// RenderEquityChart renders the strategy curve against an optional benchmark
// curve as a PNG line chart. Both curves are normalised to 100 at their first
// point so different capital bases compare directly.
func RenderEquityChart(title string, equity, benchmark []domain.EquityPoint) ([]byte, error) {
	strategy := dedupe(equity)
	if len(strategy) < 2 {
		return nil, fmt.Errorf("need at least 2 equity points, got %d", len(strategy))
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: "Strategy",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("2563eb"),
				StrokeWidth: 2.5,
			},
			XValues: daysOf(strategy),
			YValues: normalised(strategy),
		},
	}

	if bench := dedupe(benchmark); len(bench) >= 2 {
		series = append(series, chart.TimeSeries{
			Name: "Benchmark",
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"),
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: daysOf(bench),
			YValues: normalised(bench),
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderDrawdownChart renders the underwater curve, the running drawdown from
// the peak, as a PNG area-less line chart.
func RenderDrawdownChart(title string, equity []domain.EquityPoint) ([]byte, error) {
	curve := dedupe(equity)
	if len(curve) < 2 {
		return nil, fmt.Errorf("need at least 2 equity points, got %d", len(curve))
	}

	drawdowns := make([]float64, len(curve))
	peak := curve[0].Value
	for i, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			drawdowns[i] = (p.Value/peak - 1) * 100
		}
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 300,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.1f%%", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: "Drawdown",
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("dc2626"),
					StrokeWidth: 2.0,
				},
				XValues: daysOf(curve),
				YValues: drawdowns,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func daysOf(curve []domain.EquityPoint) []time.Time {
	out := make([]time.Time, len(curve))
	for i, p := range curve {
		out[i] = p.Day.Time()
	}
	return out
}

func normalised(curve []domain.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	base := curve[0].Value
	for i, p := range curve {
		if base > 0 {
			out[i] = p.Value / base * 100
		}
	}
	return out
}
