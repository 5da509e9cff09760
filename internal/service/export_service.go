package service

import (
	"fmt"
	"time"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/pkg/export"
)

var exportHeaders = []string{"Observed At", "Course", "User", "Change", "Status", "Changed By"}

// ExportService renders audit report rows into downloadable documents.
type ExportService struct {
	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewExportService constructs ExportService.
func NewExportService() *ExportService {
	return &ExportService{csv: export.NewCSVExporter(), pdf: export.NewPDFExporter()}
}

// BuildDataset flattens report rows into the tabular export layout.
func (s *ExportService) BuildDataset(records []models.AuditRecordDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		actor := record.ActorName
		if record.ActorUserID == 0 {
			actor = "Unknown"
		}
		rows = append(rows, map[string]string{
			"Observed At": record.ObservedAt.UTC().Format(time.RFC3339),
			"Course":      record.CourseName,
			"User":        record.UserFirstName + " " + record.UserLastName,
			"Change":      record.ChangeKind.Description(),
			"Status":      string(record.Status),
			"Changed By":  actor,
		})
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}

// Render produces the document bytes and file extension for a format.
func (s *ExportService) Render(format models.ExportFormat, data export.Dataset) ([]byte, string, error) {
	switch format {
	case models.ExportFormatCSV:
		payload, err := s.csv.Render(data)
		return payload, "csv", err
	case models.ExportFormatPDF:
		payload, err := s.pdf.Render(data, "Enrolment audit report")
		return payload, "pdf", err
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}
