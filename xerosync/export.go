package xerosync

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExportLogsExcel writes the filtered sync logs as an xlsx workbook.
func ExportLogsExcel(ctx context.Context, store Store, filter LogFilter, w io.Writer) error {
	if filter.Limit <= 0 {
		filter.Limit = 5000
	}
	entries, _, err := store.ListLogs(ctx, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Sync Logs"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headings := []string{"Id", "Timestamp", "Entity", "Direction", "Status",
		"Processed", "Succeeded", "Failed", "DurationMs", "Message", "Error"}
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheet, cell, h)
	}

	for row, entry := range entries {
		values := []interface{}{
			entry.ID,
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			string(entry.Entity),
			string(entry.Direction),
			string(entry.Status),
			entry.RecordsProcessed,
			entry.RecordsSucceeded,
			entry.RecordsFailed,
			entry.DurationMs,
			entry.Message,
			entry.ErrorMessage,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			f.SetCellValue(sheet, cell, v)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
