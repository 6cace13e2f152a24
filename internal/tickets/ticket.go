// Package tickets renders the printable slip handed to walk-in patients.
package tickets

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"clinic-frontdesk-server/internal/models"
)

// Render returns a one page A6 PDF for item. The item's Patient is printed
// when preloaded.
func Render(item *models.QueueItem, clinicName string, loc *time.Location) ([]byte, error) {
	if item == nil {
		return nil, fmt.Errorf("render ticket: nil queue item")
	}
	if loc == nil {
		loc = time.Local
	}

	pdf := gofpdf.New("P", "mm", "A6", "")
	pdf.SetMargins(8, 8, 8)
	pdf.SetTitle(fmt.Sprintf("Queue ticket %s-%03d", item.QueueDay, item.QueueNumber), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, clinicName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, "Walk-in queue ticket", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 40)
	pdf.CellFormat(0, 20, fmt.Sprintf("%03d", item.QueueNumber), "1", 1, "C", false, 0, "")
	pdf.Ln(3)

	detail(pdf, "Date", item.QueueDay)
	if item.Patient != nil {
		detail(pdf, "Patient", item.Patient.FullName())
	}
	detail(pdf, "Priority", strings.ToUpper(string(item.Priority)))
	detail(pdf, "Status", strings.ReplaceAll(string(item.Status), "_", " "))
	detail(pdf, "Joined", item.CreatedAt.In(loc).Format("15:04"))
	if item.Status == models.QueueWaiting {
		detail(pdf, "Est. wait", fmt.Sprintf("%d min", item.EstimatedWaitTime))
	}
	if item.Reason != "" {
		detail(pdf, "Reason", item.Reason)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "I", 8)
	pdf.MultiCell(0, 4, "Please wait until your number is called. Urgent cases may be seen first.", "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render ticket: %w", err)
	}
	return buf.Bytes(), nil
}

func detail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(25, 6, label, "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, value, "", 1, "", false, 0, "")
}
