package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/report-portal/internal/models"
)

func TestRenderProducesPDF(t *testing.T) {
	exporter := NewPDFExporter()

	report := &models.Report{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
		Metadata: models.Metadata{
			Institution: models.Institution{Name: "Campus University"},
			Department:  "Engineering",
		},
		Sections: models.Sections{
			{Title: "Introduction", Content: "Opening remarks for the year."},
			{Title: "Trends", Charts: []models.Chart{{Kind: models.ChartBar}}},
		},
	}

	data, err := exporter.Render(report)
	require.NoError(t, err)
	assert.True(t, len(data) > 500)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestRenderRequiresReport(t *testing.T) {
	exporter := NewPDFExporter()
	_, err := exporter.Render(nil)
	assert.Error(t, err)
}
