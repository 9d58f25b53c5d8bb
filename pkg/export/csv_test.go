package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	table := Table{
		Title:   "Stock Recap",
		Columns: []string{"Supply ID", "Name", "Stock"},
		Rows: [][]string{
			{"supply-1", "Kertas A4", "20"},
			{"supply-2", "Spidol"},
		},
	}

	data, err := RenderCSV(table)
	require.NoError(t, err)

	expected := "Supply ID,Name,Stock\n" +
		"supply-1,Kertas A4,20\n" +
		"supply-2,Spidol,\n"
	assert.Equal(t, expected, string(data))
}

func TestRenderCSVRequiresColumns(t *testing.T) {
	_, err := RenderCSV(Table{})
	assert.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	table := Table{
		Title:   "Stock Recap",
		Columns: []string{"Supply ID", "Name", "Stock"},
		Rows:    [][]string{{"supply-1", "Kertas A4", "20"}},
	}

	data, err := RenderPDF(table)
	require.NoError(t, err)
	assert.True(t, len(data) > 0)
	assert.Equal(t, "%PDF", string(data[:4]))
}
