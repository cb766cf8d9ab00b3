package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/models"
	"inkbook/internal/repository"

	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var exportHeader = []string{
	"ID", "Date", "Time", "City", "Client", "Email", "Phone", "Tattoo", "Body location",
	"Deposit (EUR)", "Method", "Status", "Payment", "Reference",
}

type ExportService struct {
	bookings BookingStore
}

func NewExportService(bookings BookingStore) *ExportService {
	return &ExportService{bookings: bookings}
}

// Bookings renders the filtered bookings as a spreadsheet and returns the
// file body with its content type.
func (s *ExportService) Bookings(ctx context.Context, format string, filter repository.BookingFilter) ([]byte, string, error) {
	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list bookings: %w", err)
	}

	switch format {
	case FormatCSV:
		data, err := exportBookingsCSV(bookings)
		return data, "text/csv; charset=utf-8", err
	case FormatXLSX, "excel", "":
		data, err := exportBookingsXLSX(bookings)
		return data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	default:
		verr := apperrors.NewValidationError()
		verr.Add("format", "use csv or xlsx")
		return nil, "", verr
	}
}

func exportRow(b models.Booking) []any {
	return []any{
		b.ID,
		b.BookingDate.String(),
		b.BookingTime,
		b.CityName,
		b.ClientName,
		b.ClientEmail,
		b.ClientPhone,
		b.TattooType,
		b.BodyLocation,
		b.DepositAmount,
		b.PaymentMethod,
		b.Status,
		b.PaymentStatus,
		paymentReference(b),
	}
}

func paymentReference(b models.Booking) string {
	for _, ref := range []*string{b.PaymentIntentID, b.PixPaymentID, b.ManualReference} {
		if ref != nil {
			return *ref
		}
	}
	return ""
}

func exportBookingsCSV(bookings []models.Booking) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write(exportHeader)
	for _, b := range bookings {
		row := exportRow(b)
		record := make([]string, len(row))
		for i, v := range row {
			switch t := v.(type) {
			case float64:
				record[i] = strconv.FormatFloat(t, 'f', 2, 64)
			default:
				record[i] = fmt.Sprint(t)
			}
		}
		_ = w.Write(record)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportBookingsXLSX(bookings []models.Booking) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Bookings"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	for c, v := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for r, b := range bookings {
		for c, v := range exportRow(b) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "D", 12)
	_ = f.SetColWidth(sheet, "E", "G", 24)
	_ = f.SetColWidth(sheet, "H", "I", 16)
	_ = f.SetColWidth(sheet, "J", "M", 14)
	_ = f.SetColWidth(sheet, "N", "N", 38)

	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", last, style)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
