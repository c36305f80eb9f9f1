package inventory_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/retailstock/internal/inventory"
)

var sampleAlerts = []inventory.Alert{
	{StoreName: "Alpha", ProductName: "Kopi, Arabica", SKU: "K-1", Category: "beverage", Quantity: 0, MinimumStock: 12,
		Shortage: 12, Level: inventory.AlertCritical, UpdatedAt: time.Date(2026, 5, 2, 14, 3, 9, 0, time.UTC)},
	{StoreName: "Bravo", ProductName: "Tea", SKU: "T-1", Category: "beverage", Quantity: 4, MinimumStock: 5,
		Shortage: 1, Level: inventory.AlertWarning},
}

func TestWriteAlertsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, inventory.WriteAlertsCSV(&buf, sampleAlerts))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}), "csv must start with a UTF-8 BOM")

	rows, err := csv.NewReader(bytes.NewReader(raw[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, inventory.AlertExportHeader, rows[0])
	require.Equal(t, []string{"Alpha", "Kopi, Arabica", "K-1", "beverage", "0", "12", "12", "critical", "2026-05-02 14:03:09"}, rows[1])
	require.Equal(t, "", rows[2][8])
}

func TestWriteAlertsXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, inventory.WriteAlertsXLSX(&buf, sampleAlerts))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Low Stock")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "Alert Level", rows[0][7])
	require.Equal(t, "Bravo", rows[2][0])
	require.Equal(t, "4", rows[2][4])
}
