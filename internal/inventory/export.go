package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// AlertExportHeader lists the export columns in order.
var AlertExportHeader = []string{"Store", "Product Name", "SKU", "Category", "Current Stock", "Minimum Stock", "Shortage", "Alert Level", "Last Updated"}

const exportTimeLayout = "2006-01-02 15:04:05"

func alertRow(a Alert) []string {
	return []string{
		a.StoreName,
		a.ProductName,
		a.SKU,
		a.Category,
		strconv.FormatInt(a.Quantity, 10),
		strconv.FormatInt(a.MinimumStock, 10),
		strconv.FormatInt(a.Shortage, 10),
		string(a.Level),
		formatExportTime(a.UpdatedAt),
	}
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(exportTimeLayout)
}

// WriteAlertsCSV serialises alerts as UTF-8 CSV with a byte order mark so
// spreadsheet tools detect the encoding.
func WriteAlertsCSV(w io.Writer, alerts []Alert) error {
	bom := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	writer := csv.NewWriter(bom)
	if err := writer.Write(AlertExportHeader); err != nil {
		return err
	}
	for _, a := range alerts {
		if err := writer.Write(alertRow(a)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bom.Close()
}

const alertSheet = "Low Stock"

// WriteAlertsXLSX renders alerts as a single sheet workbook.
func WriteAlertsXLSX(w io.Writer, alerts []Alert) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", alertSheet); err != nil {
		return err
	}
	for col, title := range AlertExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(alertSheet, cell, title); err != nil {
			return err
		}
	}
	for i, a := range alerts {
		row := i + 2
		values := []any{a.StoreName, a.ProductName, a.SKU, a.Category, a.Quantity, a.MinimumStock, a.Shortage, string(a.Level), formatExportTime(a.UpdatedAt)}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(alertSheet, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}
	_, err := f.WriteTo(w)
	return err
}
