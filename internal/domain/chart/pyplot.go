package chart

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	defaultFigWidth  = 6.4
	defaultFigHeight = 4.8
	maxFigInches     = 7.0
	barWidth         = vg.Length(14)
)

// canvas is the state behind one render's pyplot module. It starts empty
// and is reset by figure, subplots and close.
type canvas struct {
	plot   *plot.Plot
	width  vg.Length
	height vg.Length
	series int
	grid   bool

	// drawn keeps every series with its label; they only reach the plot's
	// legend once legend() has been called.
	drawn         []drawnSeries
	legend        bool
	legendApplied bool
}

type drawnSeries struct {
	label string
	thumb plot.Thumbnailer
}

func newCanvas() *canvas {
	c := &canvas{}
	c.reset(defaultFigWidth, defaultFigHeight)
	return c
}

func (c *canvas) reset(w, h float64) {
	c.plot = plot.New()
	c.width = vg.Length(clampInches(w)) * vg.Inch
	c.height = vg.Length(clampInches(h)) * vg.Inch
	c.series = 0
	c.grid = false
	c.drawn = nil
	c.legend = false
	c.legendApplied = false
}

func (c *canvas) track(label string, thumb plot.Thumbnailer) {
	c.drawn = append(c.drawn, drawnSeries{label: label, thumb: thumb})
}

func (c *canvas) applyLegend() {
	if !c.legend || c.legendApplied {
		return
	}
	for _, d := range c.drawn {
		if d.label != "" {
			c.plot.Legend.Add(d.label, d.thumb)
		}
	}
	c.legendApplied = true
}

func clampInches(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return defaultFigWidth
	}
	return math.Min(v, maxFigInches)
}

func (c *canvas) nextColor() color.Color {
	col := plotutil.Color(c.series)
	c.series++
	return col
}

// kwarg returns the named keyword argument, or nil. Keywords the canvas does
// not understand are ignored.
func kwarg(kwargs []starlark.Tuple, name string) starlark.Value {
	for _, kv := range kwargs {
		if k, ok := starlark.AsString(kv[0]); ok && k == name {
			return kv[1]
		}
	}
	return nil
}

func kwString(kwargs []starlark.Tuple, name string) string {
	if v := kwarg(kwargs, name); v != nil {
		if s, ok := starlark.AsString(v); ok {
			return s
		}
	}
	return ""
}

func argOrKwarg(args starlark.Tuple, kwargs []starlark.Tuple, i int, name string) starlark.Value {
	if i < len(args) {
		return args[i]
	}
	return kwarg(kwargs, name)
}

func figsize(kwargs []starlark.Tuple) (float64, float64, error) {
	v := kwarg(kwargs, "figsize")
	if v == nil {
		return defaultFigWidth, defaultFigHeight, nil
	}
	size, err := floats("figsize", v)
	if err != nil {
		return 0, 0, err
	}
	if len(size) != 2 {
		return 0, 0, fmt.Errorf("figsize: expected (width, height)")
	}
	return size[0], size[1], nil
}

type canvasFunc func(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func (c *canvas) builtin(name string, fn canvasFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		v, err := fn(c, args, kwargs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if v == nil {
			v = starlark.None
		}
		return v, nil
	})
}

func (c *canvas) module() *starlarkstruct.Module {
	members := starlark.StringDict{
		"figure":       c.builtin("figure", pltFigure),
		"subplots":     c.builtin("subplots", pltSubplots),
		"title":        c.builtin("title", setTitle),
		"xlabel":       c.builtin("xlabel", setXLabel),
		"ylabel":       c.builtin("ylabel", setYLabel),
		"xticks":       c.builtin("xticks", xticks),
		"yticks":       c.builtin("yticks", ignore),
		"tight_layout": c.builtin("tight_layout", ignore),
		"close":        c.builtin("close", pltClose),
		"show": c.builtin("show", func(*canvas, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return nil, fmt.Errorf("figures cannot be shown, save them to a buffer with savefig")
		}),
	}
	for name, fn := range axesFuncs {
		members[name] = c.builtin(name, fn)
	}
	return &starlarkstruct.Module{Name: "pyplot", Members: members}
}

// axesFuncs are available both as plt.<name> and on the axes returned by
// subplots.
var axesFuncs = map[string]canvasFunc{
	"bar":     bar,
	"barh":    barh,
	"plot":    line,
	"scatter": scatter,
	"legend":  legend,
	"grid":    grid,
	"savefig": savefig,
}

func (c *canvas) axes() *starlarkstruct.Struct {
	members := starlark.StringDict{
		"set_title":   c.builtin("set_title", setTitle),
		"set_xlabel":  c.builtin("set_xlabel", setXLabel),
		"set_ylabel":  c.builtin("set_ylabel", setYLabel),
		"tick_params": c.builtin("tick_params", ignore),
	}
	for name, fn := range axesFuncs {
		members[name] = c.builtin(name, fn)
	}
	return starlarkstruct.FromStringDict(starlark.String("Axes"), members)
}

func (c *canvas) figure() *starlarkstruct.Struct {
	return starlarkstruct.FromStringDict(starlark.String("Figure"), starlark.StringDict{
		"savefig":      c.builtin("savefig", savefig),
		"tight_layout": c.builtin("tight_layout", ignore),
	})
}

func ignore(*canvas, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, nil
}

func pltFigure(c *canvas, _ starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	w, h, err := figsize(kwargs)
	if err != nil {
		return nil, err
	}
	c.reset(w, h)
	return c.figure(), nil
}

func pltSubplots(c *canvas, _ starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	w, h, err := figsize(kwargs)
	if err != nil {
		return nil, err
	}
	c.reset(w, h)
	return starlark.Tuple{c.figure(), c.axes()}, nil
}

func pltClose(c *canvas, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	c.reset(defaultFigWidth, defaultFigHeight)
	return starlark.None, nil
}

func text(args starlark.Tuple, kwargs []starlark.Tuple, name string) (string, error) {
	v := argOrKwarg(args, kwargs, 0, name)
	if v == nil {
		return "", fmt.Errorf("missing %s", name)
	}
	if s, ok := starlark.AsString(v); ok {
		return s, nil
	}
	return v.String(), nil
}

func setTitle(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := text(args, kwargs, "label")
	if err != nil {
		return nil, err
	}
	c.plot.Title.Text = s
	return starlark.None, nil
}

func setXLabel(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := text(args, kwargs, "xlabel")
	if err != nil {
		return nil, err
	}
	c.plot.X.Label.Text = s
	return starlark.None, nil
}

func setYLabel(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := text(args, kwargs, "ylabel")
	if err != nil {
		return nil, err
	}
	c.plot.Y.Label.Text = s
	return starlark.None, nil
}

// xticks honours rotation= and an explicit label list.
func xticks(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if v := kwarg(kwargs, "rotation"); v != nil {
		if deg, ok := starlark.AsFloat(v); ok {
			c.plot.X.Tick.Label.Rotation = deg * math.Pi / 180
			if deg != 0 {
				c.plot.X.Tick.Label.XAlign = -1
			}
		}
	}
	if v := argOrKwarg(args, kwargs, 1, "labels"); v != nil {
		if names, ok := labels(v); ok {
			c.plot.NominalX(names...)
		}
	}
	return starlark.None, nil
}

// legend shows the labels given to bar, plot and scatter, or assigns the
// labels passed to it to the series in drawing order. loc picks the corner.
func legend(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if v := argOrKwarg(args, kwargs, 0, "labels"); v != nil {
		names, ok := labels(v)
		if !ok {
			return nil, fmt.Errorf("labels: expected a sequence, got %s", v.Type())
		}
		for i := range c.drawn {
			if i < len(names) {
				c.drawn[i].label = names[i]
			}
		}
	}
	loc := kwString(kwargs, "loc")
	c.plot.Legend.Top = !strings.Contains(loc, "lower")
	c.plot.Legend.Left = strings.Contains(loc, "left")
	c.legend = true
	return starlark.None, nil
}

func grid(c *canvas, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	if !c.grid {
		c.plot.Add(plotter.NewGrid())
		c.grid = true
	}
	return starlark.None, nil
}

// categories returns the category labels and bar heights of a bar call.
func categories(args starlark.Tuple, kwargs []starlark.Tuple, xName, hName string) ([]string, plotter.Values, error) {
	xs := argOrKwarg(args, kwargs, 0, xName)
	hs := argOrKwarg(args, kwargs, 1, hName)
	if xs == nil || hs == nil {
		return nil, nil, fmt.Errorf("expected %s and %s", xName, hName)
	}
	names, ok := labels(xs)
	if !ok {
		return nil, nil, fmt.Errorf("%s: expected a sequence, got %s", xName, xs.Type())
	}
	values, err := floats(hName, hs)
	if err != nil {
		return nil, nil, err
	}
	if len(names) != len(values) {
		return nil, nil, fmt.Errorf("%s has %d values but %s has %d", xName, len(names), hName, len(values))
	}
	return names, values, nil
}

func (c *canvas) addBars(names []string, values plotter.Values, horizontal bool, kwargs []starlark.Tuple) error {
	bars, err := plotter.NewBarChart(values, barWidth)
	if err != nil {
		return err
	}
	bars.Horizontal = horizontal
	bars.LineStyle.Width = 0
	bars.Offset = vg.Length(c.series) * barWidth
	bars.Color = c.nextColor()
	c.plot.Add(bars)
	if horizontal {
		c.plot.NominalY(names...)
	} else {
		c.plot.NominalX(names...)
	}
	c.track(kwString(kwargs, "label"), bars)
	return nil
}

func bar(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	names, values, err := categories(args, kwargs, "x", "height")
	if err != nil {
		return nil, err
	}
	return starlark.None, c.addBars(names, values, false, kwargs)
}

func barh(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	names, values, err := categories(args, kwargs, "y", "width")
	if err != nil {
		return nil, err
	}
	return starlark.None, c.addBars(names, values, true, kwargs)
}

// points reads x and y for plot and scatter. Non-numeric x values become
// category positions 0..n-1.
func (c *canvas) points(args starlark.Tuple, kwargs []starlark.Tuple) (plotter.XYs, error) {
	xv := argOrKwarg(args, kwargs, 0, "x")
	yv := argOrKwarg(args, kwargs, 1, "y")
	if xv == nil {
		return nil, fmt.Errorf("expected x and y")
	}
	if yv == nil {
		// plot(y) uses positions as x.
		yv, xv = xv, nil
	}
	ys, err := floats("y", yv)
	if err != nil {
		return nil, err
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	if xv != nil {
		if numeric, err := floats("x", xv); err == nil {
			xs = numeric
		} else if names, ok := labels(xv); ok {
			c.plot.NominalX(names...)
		} else {
			return nil, err
		}
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("x has %d values but y has %d", len(xs), len(ys))
	}
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X, pts[i].Y = xs[i], ys[i]
	}
	return pts, nil
}

func line(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	pts, err := c.points(args, kwargs)
	if err != nil {
		return nil, err
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	l.Color = c.nextColor()
	c.plot.Add(l)
	c.track(kwString(kwargs, "label"), l)
	return starlark.None, nil
}

func scatter(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	pts, err := c.points(args, kwargs)
	if err != nil {
		return nil, err
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = c.nextColor()
	c.plot.Add(s)
	c.track(kwString(kwargs, "label"), s)
	return starlark.None, nil
}

// savefig renders the current figure into an io.BytesIO. Writing to a path
// is refused.
func savefig(c *canvas, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	target := argOrKwarg(args, kwargs, 0, "fname")
	buf, ok := target.(*bytesBuffer)
	if !ok {
		return nil, fmt.Errorf("figures can only be saved to an io.BytesIO buffer")
	}
	format := kwString(kwargs, "format")
	if format == "" {
		format = "png"
	}
	switch format {
	case "png", "svg":
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	c.applyLegend()
	w, err := c.plot.WriterTo(c.width, c.height, format)
	if err != nil {
		return nil, err
	}
	if _, err := w.WriteTo(&buf.buf); err != nil {
		return nil, err
	}
	return starlark.None, nil
}
