package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/enrol-audit-api/internal/models"
)

func TestExportServiceBuildDataset(t *testing.T) {
	svc := NewExportService()

	rows := sampleReportRows()
	rows[0].ActorUserID = 0
	data := svc.BuildDataset(rows)

	require.Len(t, data.Rows, 1)
	assert.Equal(t, exportHeaders, data.Headers)
	assert.Equal(t, "Alice Archer", data.Rows[0]["User"])
	assert.Equal(t, "Enrolment created", data.Rows[0]["Change"])
	assert.Equal(t, "Unknown", data.Rows[0]["Changed By"])
}

func TestExportServiceRenderCSV(t *testing.T) {
	svc := NewExportService()

	payload, ext, err := svc.Render(models.ExportFormatCSV, svc.BuildDataset(sampleReportRows()))
	require.NoError(t, err)
	assert.Equal(t, "csv", ext)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Observed At")
	assert.Contains(t, lines[1], "Course 101")
	assert.Contains(t, lines[1], "Bob Builder")
}

func TestExportServiceRenderPDF(t *testing.T) {
	svc := NewExportService()

	payload, ext, err := svc.Render(models.ExportFormatPDF, svc.BuildDataset(sampleReportRows()))
	require.NoError(t, err)
	assert.Equal(t, "pdf", ext)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportServiceRenderRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService()

	_, _, err := svc.Render("xlsx", svc.BuildDataset(nil))
	require.Error(t, err)
}
