package dashclient

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	sheetRows    = "Equipment"
	sheetSummary = "Summary"
)

// WorkbookExporter writes the selected upload to a local XLSX workbook:
// one sheet of raw rows, one sheet of the computed summary. Offline
// counterpart of the server-side PDF report.
type WorkbookExporter struct {
	saver FileSaver
}

// NewWorkbookExporter builds an exporter writing through saver.
func NewWorkbookExporter(saver FileSaver) *WorkbookExporter {
	if saver == nil {
		saver = DirFileSaver{}
	}
	return &WorkbookExporter{saver: saver}
}

// Export writes upload_<id>.xlsx and returns the path written. Requires a
// committed selection with its statistics.
func (e *WorkbookExporter) Export(selected *SelectedUpload, stats *StatsSummary) (string, error) {
	if selected == nil || stats == nil {
		return "", fmt.Errorf("dashclient: no selection to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeRowsSheet(f, selected.Records); err != nil {
		return "", err
	}
	if err := writeSummarySheet(f, stats); err != nil {
		return "", err
	}
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("dashclient: build workbook: %w", err)
	}
	name := fmt.Sprintf("upload_%d.xlsx", selected.ID)
	path, err := e.saver.Save(name, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("dashclient: save workbook %s: %w", name, err)
	}
	return path, nil
}

func writeRowsSheet(f *excelize.File, records []EquipmentRecord) error {
	if _, err := f.NewSheet(sheetRows); err != nil {
		return fmt.Errorf("dashclient: create rows sheet: %w", err)
	}
	header := []any{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}
	if err := f.SetSheetRow(sheetRows, "A1", &header); err != nil {
		return err
	}
	for i, rec := range records {
		row := []any{rec.EquipmentName, rec.EquipmentType, rec.Flowrate, rec.Pressure, rec.Temperature}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetRows, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, stats *StatsSummary) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("dashclient: create summary sheet: %w", err)
	}
	rows := [][]any{
		{"Metric", "Value"},
		{"Total Records", stats.TotalCount},
		{"Average Flowrate", stats.Averages.Flowrate},
		{"Average Pressure", stats.Averages.Pressure},
		{"Average Temperature", stats.Averages.Temperature},
	}
	for _, bucket := range stats.TypeDistribution {
		rows = append(rows, []any{"Count: " + bucket.EquipmentType, bucket.Count})
	}
	for i := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheetSummary, cell, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}
