// Package export writes booking history to spreadsheet form.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"servifind/internal/models"
)

const sheetName = "Bookings"

var columns = []string{"Booking ID", "Provider", "Service", "Date", "Slot", "Payment Status"}

// Bookings writes the user's booking history as an XLSX workbook.
func Bookings(bookings []models.Booking, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheetName, start, end, style)
	}

	for row, b := range bookings {
		values := []any{b.ID, b.ProviderID, b.ServiceID, b.Date, b.Slot, string(b.PaymentStatus)}
		for col, val := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, val); err != nil {
				return fmt.Errorf("write row %d: %w", row+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
