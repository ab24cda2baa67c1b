// Package receipt renders the printable PDF receipt of a declaration.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	"github.com/xelth-com/commissariat/internal/models"
)

const qrSize = 35.0

// Render builds the receipt PDF. The QR code encodes the receipt download
// link, or the receipt number when no link was recorded.
func Render(d *models.Declaration) ([]byte, error) {
	if d.ReceiptNumber == "" {
		return nil, fmt.Errorf("declaration %s has no receipt number", d.ID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("Receipt "+d.ReceiptNumber, true)
	pdf.AddPage()

	// Core fonts are cp1252; translate UTF-8 input
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	qrContent := d.ReceiptURL
	if qrContent == "" {
		qrContent = d.ReceiptNumber
	}
	qrPng, err := qrcode.Encode(qrContent, qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("qr", imgOptions, bytes.NewReader(qrPng))
	pageW, _ := pdf.GetPageSize()
	pdf.ImageOptions("qr", pageW-20-qrSize, 20, qrSize, qrSize, false, imgOptions, 0, "")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr("Declaration receipt"), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, tr("No. "+d.ReceiptNumber), "", 1, "L", false, 0, "")
	issued := d.CreatedAt
	if d.ReceiptIssuedAt != nil {
		issued = *d.ReceiptIssuedAt
	}
	pdf.CellFormat(0, 7, tr("Issued "+issued.Format("02/01/2006 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(12)

	section := func(title string) {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, tr(title), "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.Ln(1)
	}
	row := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 6, tr(value), "", "L", false)
	}

	if d.Station != nil {
		section("Station")
		row("Name", d.Station.Name)
		row("Address", strings.TrimSpace(d.Station.Address+", "+d.Station.City))
		row("Phone", d.Station.Phone)
	}

	if d.Owner != nil {
		section("Declarant")
		row("Name", d.Owner.FirstName+" "+d.Owner.LastName)
		row("Email", d.Owner.Email)
	}

	section("Declaration")
	row("Reference", d.ID)
	row("Type", kindLabel(d.Kind))
	row("Status", string(d.Status))
	row("Incident date", d.IncidentDate.Format("02/01/2006 15:04"))
	row("Location", d.Location)
	row("Description", d.Description)

	switch v := d.Details.(type) {
	case models.ObjectDetails:
		section("Object")
		row("Name", v.ObjectName)
		row("Category", v.ObjectCategory)
		row("Brand", v.ObjectBrand)
		row("Model", v.ObjectModel)
		row("Serial number", v.SerialNumber)
		row("Color", v.Color)
		if v.EstimatedValue != nil {
			row("Estimated value", v.EstimatedValue.StringFixed(2))
		}
		row("Marks", v.IdentificationMarks)
	case models.PersonDetails:
		section("Missing person")
		row("Name", v.FirstName+" "+v.LastName)
		row("Date of birth", formatDate(v.DateOfBirth))
		row("Gender", v.Gender)
		row("Height", fmt.Sprintf("%.0f cm", v.Height))
		row("Weight", fmt.Sprintf("%.0f kg", v.Weight))
		row("Hair color", v.HairColor)
		row("Eye color", v.EyeColor)
		row("Clothing", v.ClothingDescription)
		row("Last seen", v.LastSeenLocation)
		row("Marks", v.DistinguishingMarks)
		row("Medical", v.MedicalConditions)
		row("Contact", v.ContactInfo)
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.MultiCell(0, 4, tr("Keep this receipt. Present it at the station for any follow-up on this declaration."), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the download name of a receipt
func FileName(d *models.Declaration) string {
	return fmt.Sprintf("receipt-%s.pdf", d.ReceiptNumber)
}

func kindLabel(k models.Kind) string {
	switch k {
	case models.KindObject:
		return "Lost object"
	case models.KindPerson:
		return "Missing person"
	default:
		return string(k)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}
