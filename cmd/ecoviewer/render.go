package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	png "image/png"
	"math"
	"strings"

	fyne "fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/dialog"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/stats"
)

type chartRange int

const (
	rangeEarly chartRange = iota
	rangeLate
)

// serialPalette assigns one stable color per plot position so a serial keeps
// its color on both the early and late chart.
var serialPalette = []drawing.Color{
	{R: 31, G: 119, B: 180, A: 255},  // blue
	{R: 255, G: 127, B: 14, A: 255},  // orange
	{R: 44, G: 160, B: 44, A: 255},   // green
	{R: 214, G: 39, B: 40, A: 255},   // red
	{R: 148, G: 103, B: 189, A: 255}, // purple
	{R: 140, G: 86, B: 75, A: 255},   // brown
	{R: 227, G: 119, B: 194, A: 255}, // pink
	{R: 127, G: 127, B: 127, A: 255}, // gray
	{R: 188, G: 189, B: 34, A: 255},  // olive
	{R: 23, G: 190, B: 207, A: 255},  // cyan
}

func serialColor(i int) drawing.Color {
	return serialPalette[i%len(serialPalette)]
}

// seriesStyle renders a serial's raw samples as a thin line with small dots.
func seriesStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 1.5,
		StrokeColor: col,
		DotWidth:    2,
		DotColor:    col,
	}
}

// meanStyle renders the dashed mean overlay in the serial's color.
func meanStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth:     1.5,
		StrokeColor:     col,
		StrokeDashArray: []float64{6, 4},
	}
}

// sigmaStyle renders the dotted mean±sigma overlays, lighter than the mean.
func sigmaStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth:     1.0,
		StrokeColor:     col.WithAlpha(160),
		StrokeDashArray: []float64{2, 4},
	}
}

// screenshotWidthOverride forces a fixed chart width when rendering headless,
// so screenshot tests can assert exact dimensions.
var screenshotWidthOverride int

// chartSize computes a chart size from the current window width so charts use
// the available X-axis space.
func chartSize(state *uiState) (int, int) {
	if state == nil || state.window == nil || state.window.Canvas() == nil {
		w := 1100
		if screenshotWidthOverride > 0 {
			w = screenshotWidthOverride
		}
		return w, int(float32(w) * 0.33)
	}
	sz := state.window.Canvas().Size()
	// ~95% of the available width, minus a small margin for scrollbars
	w := int(sz.Width*0.95) - 12
	if w < 800 {
		w = 800
	}
	h := int(float32(w) * 0.33)
	if h < 280 {
		h = 280
	}
	if h > 520 {
		h = 520
	}
	return w, h
}

// rangeTitle names one chart: "<METRIC> 1–<split>" or "<METRIC> <split+1>+".
func rangeTitle(res *stats.Result, rng chartRange) string {
	if rng == rangeEarly {
		return fmt.Sprintf("%s 1–%d", res.Metric, res.Split)
	}
	return fmt.Sprintf("%s %d+", res.Metric, res.Split+1)
}

// renderRangeChart draws one of the two synchronized charts: per-serial
// sample series plus dashed mean and dotted mean±sigma overlays. Colors are
// keyed off plot order so both charts agree. Never returns nil; render
// failures fall back to a blank image so the UI still updates.
func renderRangeChart(state *uiState, rng chartRange) image.Image {
	cw, chh := chartSize(state)
	if state == nil || state.result == nil {
		return blank(cw, chh)
	}
	res := state.result
	list := res.Early
	if rng == rangeLate {
		list = res.Late
	}

	series := []chart.Series{}
	minY := math.MaxFloat64
	maxY := -math.MaxFloat64
	for i, ser := range list {
		if len(ser.Points) == 0 {
			continue
		}
		col := serialColor(i)
		xs := make([]float64, len(ser.Points))
		ys := make([]float64, len(ser.Points))
		for j, p := range ser.Points {
			xs[j] = p.Count
			ys[j] = p.Value
			if p.Value < minY {
				minY = p.Value
			}
			if p.Value > maxY {
				maxY = p.Value
			}
		}
		// go-chart refuses a zero-width X range; pad single points.
		if len(xs) == 1 {
			xs = append(xs, xs[0]+1)
			ys = append(ys, ys[0])
		}
		name := ser.Serial
		if ser.Overlay != nil {
			name = fmt.Sprintf("%s (mean %.3f)", ser.Serial, ser.Overlay.Mean)
		}
		series = append(series, chart.ContinuousSeries{Name: name, XValues: xs, YValues: ys, Style: seriesStyle(col)})
		if o := ser.Overlay; o != nil {
			x0, x1 := xs[0], xs[len(xs)-1]
			for _, line := range []struct {
				v  float64
				st chart.Style
			}{
				{o.Mean, meanStyle(col)},
				{o.Upper(), sigmaStyle(col)},
				{o.Lower(), sigmaStyle(col)},
			} {
				// Unnamed series stay out of the legend.
				series = append(series, chart.ContinuousSeries{
					XValues: []float64{x0, x1},
					YValues: []float64{line.v, line.v},
					Style:   line.st,
				})
				if line.v < minY {
					minY = line.v
				}
				if line.v > maxY {
					maxY = line.v
				}
			}
		}
	}
	if len(series) == 0 {
		return blank(cw, chh)
	}

	var yAxisRange *chart.ContinuousRange
	var yTicks []chart.Tick
	if state.useRelative {
		if maxY <= minY {
			maxY = minY + 1
		}
		nMin, nMax := niceAxisBounds(minY, maxY)
		yAxisRange = &chart.ContinuousRange{Min: nMin, Max: nMax}
		yTicks = niceTicks(nMin, nMax, 6)
	} else {
		// Absolute mode: baseline at 0 with a nice rounded max
		if maxY <= 0 {
			maxY = 1
		}
		_, nMax := niceAxisBounds(0, maxY)
		yAxisRange = &chart.ContinuousRange{Min: 0, Max: nMax}
		yTicks = niceTicks(0, nMax, 6)
	}

	padBottom := 28
	if state.showHints {
		padBottom += 18
	}
	ch := chart.Chart{
		Title:      rangeTitle(res, rng),
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: padBottom}},
		XAxis:      chart.XAxis{Name: "SampleCount"},
		YAxis:      chart.YAxis{Name: string(res.Metric), Range: yAxisRange, Ticks: yTicks},
		Series:     series,
	}
	ch.Width = cw
	ch.Height = chh
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		fmt.Printf("[viewer] %s chart render error: %v; showing blank fallback\n", rangeName(rng), err)
		return blank(cw, chh)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		fmt.Printf("[viewer] %s chart decode error: %v; showing blank fallback\n", rangeName(rng), err)
		return blank(cw, chh)
	}
	if state.showHints {
		return drawHint(img, rangeHint(rng))
	}
	return img
}

func rangeName(rng chartRange) string {
	if rng == rangeEarly {
		return "early"
	}
	return "late"
}

func rangeHint(rng chartRange) string {
	if rng == rangeEarly {
		return "Hint: early samples include warm-up; expect wider spread than the late range."
	}
	return "Hint: late samples show settled behavior; drifting means suggest unstable units."
}

// niceAxisBounds pads [min,max] by 5% and rounds both ends to the span's
// order of magnitude.
func niceAxisBounds(min, max float64) (float64, float64) {
	if math.IsNaN(min) || math.IsNaN(max) {
		return min, max
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	pad := span * 0.05
	if pad <= 0 {
		pad = 1
	}
	a := min - pad
	b := max + pad
	mag := math.Pow(10, math.Floor(math.Log10(span)))
	if !math.IsInf(mag, 0) && mag > 0 {
		a = math.Floor(a/mag) * mag
		b = math.Ceil(b/mag) * mag
	}
	return a, b
}

// niceTicks generates up to n tick marks between [min, max] using nice
// increments (1, 2, 2.5, 5, 10 scaled by power of ten).
func niceTicks(min, max float64, n int) []chart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) {
		return nil
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(n-1))))
	candidates := []float64{1, 2, 2.5, 5, 10}
	bestStep := mag
	bestScore := math.MaxFloat64
	for _, c := range candidates {
		step := c * mag
		count := math.Ceil((max - min) / step)
		if count < 2 {
			count = 2
		}
		score := math.Abs(count - float64(n))
		if score < bestScore {
			bestScore = score
			bestStep = step
		}
	}
	start := math.Floor(min/bestStep) * bestStep
	end := math.Ceil(max/bestStep) * bestStep
	ticks := []chart.Tick{}
	for v := start; v <= end+bestStep/2; v += bestStep {
		ticks = append(ticks, chart.Tick{Value: v, Label: formatTick(v)})
		if len(ticks) > n+2 {
			break
		}
	}
	return ticks
}

func formatTick(v float64) string {
	if v == 0 {
		return "0"
	}
	av := math.Abs(v)
	switch {
	case av >= 1000:
		return fmt.Sprintf("%.0f", v)
	case av >= 100:
		return fmt.Sprintf("%.0f", v)
	case av >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.3f", v)
	}
}

// drawHint draws a small hint string onto the image near the bottom-left.
func drawHint(img image.Image, text string) image.Image {
	if img == nil || strings.TrimSpace(text) == "" {
		return img
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	pad := 6
	face := basicfont.Face7x13
	textCol := image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	shadowCol := image.NewUniform(color.RGBA{R: 0, G: 0, B: 0, A: 180})
	dr := &font.Drawer{Dst: rgba, Src: textCol, Face: face}
	tw := dr.MeasureString(text).Ceil()
	x := b.Min.X + 8
	y := b.Max.Y - 6
	// Semi-opaque dark background for readability on busy charts.
	bg := image.NewUniform(color.RGBA{R: 0, G: 0, B: 0, A: 200})
	rect := image.Rect(x-pad, y-face.Metrics().Ascent.Ceil()-pad, x+tw+pad, y+pad/2)
	draw.Draw(rgba, rect, bg, image.Point{}, draw.Over)
	drShadow := &font.Drawer{Dst: rgba, Src: shadowCol, Face: face, Dot: fixed.Point26_6{X: fixed.I(x + 1), Y: fixed.I(y + 1)}}
	drShadow.DrawString(text)
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(text)
	return rgba
}

func blank(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 18, G: 18, B: 18, A: 255})
		}
	}
	return img
}

// exportChartPNG saves the currently rendered chart image via a save dialog.
func exportChartPNG(state *uiState, img *canvas.Image, defaultName string) {
	if state == nil || state.window == nil || img == nil || img.Image == nil {
		dialog.ShowInformation("Export", "No chart to export.", state.window)
		return
	}
	fs := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		defer wc.Close()
		_ = png.Encode(wc, img.Image)
	}, state.window)
	fs.SetFileName(defaultName)
	fs.Show()
}
