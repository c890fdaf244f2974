package api

import (
	"bytes"
	"image/color"
	"strconv"

	"github.com/ayusman/fingercount/internal/store"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Histogram chart size.
const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

var barColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}

// renderHistogram draws counts as a bar chart and returns the PNG bytes.
func renderHistogram(title string, counts [store.MaxCount + 1]int) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Fingers"
	p.Y.Label.Text = "Events"

	values := make(plotter.Values, len(counts))
	names := make([]string, len(counts))
	for i, n := range counts {
		values[i] = float64(n)
		names[i] = strconv.Itoa(i)
	}

	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return nil, err
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)

	p.Add(bars)
	p.NominalX(names...)
	p.Y.Min = 0

	w, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
