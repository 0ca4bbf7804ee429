package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "QR Attendance",
		Meta:    []string{"Division: FY-A", "Date: 2026-10-17"},
		Headers: []string{"No", "Roll Number", "Name"},
		Rows: []map[string]string{
			{"No": "1", "Roll Number": "11", "Name": "Asha Rao"},
			{"No": "2", "Roll Number": "12", "Name": "Ben, Kay"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "No,Roll Number,Name\n1,11,Asha Rao\n2,12,\"Ben, Kay\"\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestColumnWidths(t *testing.T) {
	assert.Equal(t, []float64{190}, columnWidths(1, 190))
	widths := columnWidths(3, 190)
	assert.InDelta(t, 190, widths[0]+widths[1]+widths[2], 0.001)
	assert.Equal(t, 12.0, widths[0])
}
