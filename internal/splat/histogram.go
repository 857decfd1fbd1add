package splat

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
)

// DefaultHistogramBins is used when WriteScaleHistogram is given bins <= 0.
const DefaultHistogramBins = 50

// WriteScaleHistogram renders a PNG histogram of every scale-like value in c.
// Non-finite values are skipped.
func WriteScaleHistogram(w io.Writer, c *Cloud, bins int) error {
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	idx := c.FieldsWithRole(RoleScaleLike)
	if len(idx) == 0 {
		return fmt.Errorf("%w: point cloud has no scale or radius fields", georef.ErrMissingField)
	}

	var vals plotter.Values
	names := make([]string, 0, len(idx))
	for _, i := range idx {
		names = append(names, c.Fields[i].Name)
		for _, v := range c.Columns[i] {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return fmt.Errorf("%w: no finite scale values to plot", georef.ErrValidation)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Splat scales (%d values)", len(vals))
	p.X.Label.Text = fmt.Sprintf("value of %v", names)
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteScaleHistogramFile renders the histogram and writes it to path.
func WriteScaleHistogramFile(fsys fsutil.FileSystem, path string, c *Cloud, bins int) error {
	var buf bytes.Buffer
	if err := WriteScaleHistogram(&buf, c, bins); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), 0644); err != nil {
		return err
	}
	monitoring.Logf("splat: wrote scale histogram to %s", path)
	return nil
}
