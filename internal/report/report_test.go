package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"facet/internal/classify"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "comments.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadComments_ReadsColumnByHeader(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"id", "comment", "annotator"},
		{"1", "WiFi was slow but the venue was beautiful.", "a"},
		{"2", "", "b"},
		{"3", "  Great speakers.  ", "c"},
	})

	comments, err := LoadComments(path, "comment")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"WiFi was slow but the venue was beautiful.",
		"Great speakers.",
	}, comments)
}

func TestLoadComments_MissingColumnErrors(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"id", "text"}, {"1", "x"}})
	_, err := LoadComments(path, "comment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "comment" not found`)
}

func TestWriteRecordsCSVAndXLSX(t *testing.T) {
	records := []classify.Record{
		{
			Comment:         "WiFi was slow.",
			Category:        "Event Experience & Technology",
			Stage1Excerpt:   "WiFi was slow",
			Stage1Sentiment: "negative",
		},
	}
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "out.csv")
	require.NoError(t, WriteRecordsCSV(csvPath, records))
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "original_comment,category")
	assert.Contains(t, string(raw), "WiFi was slow.")

	xlsxPath := filepath.Join(dir, "out.xlsx")
	require.NoError(t, WriteRecordsXLSX(xlsxPath, records))
	f, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "original_comment", rows[0][0])
	assert.Equal(t, "WiFi was slow.", rows[1][0])
}

func TestWriteTreesJSON_RoundTrips(t *testing.T) {
	tree := classify.NewTree(0, "Great speakers.")
	path := filepath.Join(t.TempDir(), "trees.json")
	require.NoError(t, WriteTreesJSON(path, []*classify.Tree{tree}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var back []*classify.Tree
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back, 1)
	assert.Equal(t, "Great speakers.", back[0].Comment)
}

func TestNewRunName(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "run_2026-08-30_10-30-00_stage2", NewRunName(2, now))
}
