// Package report renders HTML diagnostics for correspondence fits.
package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
)

// AssetsHost serves the echarts JavaScript referenced by rendered pages.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// WriteResidualReport renders a page with the per-correspondence residuals of
// fit (length and per-axis components) as a bar chart and the transform parameters as a second chart. labels
// names each correspondence; missing labels default to "p<i>".
func WriteResidualReport(w io.Writer, fit georef.Fit, labels []string) error {
	if len(fit.Residuals) == 0 {
		return fmt.Errorf("%w: fit has no residuals", georef.ErrInsufficientData)
	}
	if len(labels) > len(fit.Residuals) {
		return fmt.Errorf("%w: %d labels for %d residuals", georef.ErrValidation, len(labels), len(fit.Residuals))
	}

	x := make([]string, len(fit.Residuals))
	norms := make([]opts.BarData, len(fit.Residuals))
	var axes [3][]opts.BarData
	for i, r := range fit.Residuals {
		if i < len(labels) && labels[i] != "" {
			x[i] = labels[i]
		} else {
			x[i] = fmt.Sprintf("p%d", i)
		}
		norms[i] = opts.BarData{Value: r.Norm()}
		for k := range axes {
			axes[k] = append(axes[k], opts.BarData{Value: r[k]})
		}
	}

	subtitle := fmt.Sprintf("RMSE %.4g (%s), max %.4g, n=%d", fit.RMSE, fit.Quality, fit.MaxResidual(), len(fit.Residuals))
	if fit.Reflected {
		subtitle += ", reflection corrected"
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Georeference fit", Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Correspondence residuals", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "residual", NameLocation: "middle", NameGap: 40}),
	)
	bar.SetXAxis(x).
		AddSeries("|r|", norms,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("dx", axes[0]).
		AddSeries("dy", axes[1]).
		AddSeries("dz", axes[2])

	t := fit.Transform
	params := charts.NewBar()
	params.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Transform", Subtitle: fmt.Sprintf("scale %.6g", t.Scale)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	params.SetXAxis([]string{"t.x", "t.y", "t.z"}).
		AddSeries("translation", []opts.BarData{
			{Value: t.Translation[0]},
			{Value: t.Translation[1]},
			{Value: t.Translation[2]},
		})

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(bar, params)
	return page.Render(w)
}

// WriteResidualReportFile renders the report into path.
func WriteResidualReportFile(fsys fsutil.FileSystem, path string, fit georef.Fit, labels []string) error {
	var buf bytes.Buffer
	if err := WriteResidualReport(&buf, fit, labels); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), 0644); err != nil {
		return err
	}
	monitoring.Logf("report: wrote residual report %s", path)
	return nil
}
