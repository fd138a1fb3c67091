package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:     "Pending publish requests",
		Generated: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Columns:   []string{"Path", "Requester"},
		Rows: [][]string{
			{"/drafts/a", "author@x.com"},
			{"/drafts/b, with comma", "other@x.com"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Path", "Requester"}, records[0])
	assert.Equal(t, "/drafts/b, with comma", records[2][0])
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"only one"})

	_, err := NewCSVExporter().Render(data)
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(data)
	assert.Error(t, err)
	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	empty := sampleDataset()
	empty.Rows = nil
	out, err = NewPDFExporter().Render(empty)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestFilenameAndContentType(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "publish-requests_acme-site_20240501_100000.csv", Filename("publish-requests", []string{"acme", "site"}, at, FormatCSV))
	assert.Equal(t, "report_20240501_100000.pdf", Filename("report", []string{" ", "/"}, at, FormatPDF))
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
}
