package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"facet/internal/classify"
)

// WriteTreesJSON serializes every classification tree as a single JSON
// document whose span records carry stable ids and parent links.
func WriteTreesJSON(path string, trees []*classify.Tree) error {
	raw, err := json.MarshalIndent(trees, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// WriteRecordsCSV writes the flattened rows with a header line.
func WriteRecordsCSV(path string, records []classify.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(classify.RecordHeader()); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r.Values()); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteRecordsXLSX writes the flattened rows to a workbook, one row per
// leaf span.
func WriteRecordsXLSX(path string, records []classify.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := toAny(classify.RecordHeader())
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := toAny(r.Values())
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// RunMetadata captures the configuration a result set was produced
// under, written next to the results for traceability.
type RunMetadata struct {
	RunName    string    `json:"run_name"`
	Timestamp  time.Time `json:"timestamp"`
	MaxStage   int       `json:"max_stage"`
	BatchSize  int       `json:"batch_size"`
	Model      string    `json:"model"`
	InputFile  string    `json:"input_file"`
	Hierarchy  string    `json:"hierarchy_path"`
	Templates  string    `json:"templates_dir"`
	ResultsDir string    `json:"results_dir"`
}

// NewRunName derives a timestamped run directory name.
func NewRunName(maxStage int, now time.Time) string {
	return fmt.Sprintf("run_%s_stage%d", now.Format("2006-01-02_15-04-05"), maxStage)
}

// Save writes the metadata JSON under dir.
func (m RunMetadata) Save(dir string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "run_metadata.json"), raw, 0o644)
}
