/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"io"
	"math"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	histogramWidth  = 800
	histogramHeight = 400
)

var (
	colorBars   = drawing.Color{R: 135, G: 206, B: 235, A: 178}
	colorEdge   = drawing.ColorBlack
	colorCenter = drawing.ColorFromHex("2e8b57")
	colorActual = drawing.ColorFromHex("d62728")
)

func intFormatter(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(math.Round(f), 'f', 0, 64)
	}
	return ""
}

// referenceLine is a vertical line from the x axis to top at x.
func referenceLine(name string, x, top float64, col drawing.Color, dash []float64) chart.ContinuousSeries {
	return chart.ContinuousSeries{
		Name:    name,
		XValues: []float64{x, x},
		YValues: []float64{0, top},
		Style: chart.Style{
			StrokeColor:     col,
			StrokeWidth:     2,
			StrokeDashArray: dash,
		},
	}
}

// histogramOutline traces the bars as a single closed step path so the
// series fill draws them.
func histogramOutline(edges []float64, counts []int) ([]float64, []float64) {
	xs := make([]float64, 0, 4*len(counts))
	ys := make([]float64, 0, 4*len(counts))

	for i, c := range counts {
		xs = append(xs, edges[i], edges[i], edges[i+1], edges[i+1])
		ys = append(ys, 0, float64(c), float64(c), 0)
	}

	return xs, ys
}

// renderHistogram writes a PNG of the guess distribution with mean and
// median lines, plus the true count when the summary carries it.
func renderHistogram(w io.Writer, s Summary, bins int) error {
	if s.Count == 0 {
		return ErrNoGuesses
	}

	edges := binEdges(s.Values, bins)
	counts := binCounts(s.Values, edges)

	tallest := 0
	for _, c := range counts {
		tallest = max(tallest, c)
	}
	top := float64(tallest) * 1.1

	xs, ys := histogramOutline(edges, counts)

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "Guesses",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: colorEdge,
				StrokeWidth: 1,
				FillColor:   colorBars,
			},
		},
		referenceLine(fmt.Sprintf("Mean: %.0f", s.Mean), s.Mean, top, colorCenter, nil),
		referenceLine(fmt.Sprintf("Median: %.0f", s.Median), s.Median, top, colorCenter, []float64{2, 4}),
	}

	if s.TrueCount != nil {
		tc := float64(*s.TrueCount)
		series = append(series, referenceLine(fmt.Sprintf("Actual: %d", *s.TrueCount), tc, top, colorActual, []float64{8, 6}))
	}

	graph := chart.Chart{
		Title:  "Distribution of Guesses",
		Width:  histogramWidth,
		Height: histogramHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: chart.XAxis{
			Name:           "Guesses",
			ValueFormatter: intFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Frequency",
			Range:          &chart.ContinuousRange{Min: 0, Max: top},
			ValueFormatter: intFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}
