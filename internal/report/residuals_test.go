package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func squareFit(t *testing.T) georef.Fit {
	t.Helper()
	fit, err := georef.ExampleCorrespondences(37.7694, -122.4862, 42).Estimate()
	require.NoError(t, err)
	return fit
}

func TestWriteResidualReport(t *testing.T) {
	fit := squareFit(t)

	var buf bytes.Buffer
	require.NoError(t, WriteResidualReport(&buf, fit, []string{"corner-a"}))
	html := buf.String()

	assert.True(t, strings.Contains(html, "<html"), "output is not an HTML page")
	assert.Contains(t, html, "Correspondence residuals")
	assert.Contains(t, html, "corner-a")
	assert.Contains(t, html, "p1", "unlabelled points get a default name")
	assert.Contains(t, html, string(fit.Quality))
}

func TestWriteResidualReport_Errors(t *testing.T) {
	err := WriteResidualReport(&bytes.Buffer{}, georef.Fit{}, nil)
	assert.ErrorIs(t, err, georef.ErrInsufficientData)

	fit := squareFit(t)
	labels := make([]string, len(fit.Residuals)+1)
	err = WriteResidualReport(&bytes.Buffer{}, fit, labels)
	assert.ErrorIs(t, err, georef.ErrValidation)
}

func TestWriteResidualReportFile(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteResidualReportFile(fs, "/out/fit.html", squareFit(t), nil))
	assert.True(t, fs.Exists("/out/fit.html"))

	assert.Error(t, WriteResidualReportFile(fs, "/out/empty.html", georef.Fit{}, nil))
	assert.False(t, fs.Exists("/out/empty.html"))
}
