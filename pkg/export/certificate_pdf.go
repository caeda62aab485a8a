package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateSigner is one roster line rendered on the completion report.
type CertificateSigner struct {
	Name     string
	SignerID string
	SignedAt time.Time
}

// CertificateReport holds everything the PDF renderer needs.
type CertificateReport struct {
	CertificateID string
	DocumentName  string
	ContentHash   string
	GeneratedAt   time.Time
	ExpiresAt     time.Time
	Signers       []CertificateSigner
}

// CertificatePDFRenderer renders signing completion certificates.
type CertificatePDFRenderer struct{}

// NewCertificatePDFRenderer constructs the renderer.
func NewCertificatePDFRenderer() *CertificatePDFRenderer {
	return &CertificatePDFRenderer{}
}

// Render produces the certificate report as PDF bytes.
func (r *CertificatePDFRenderer) Render(report CertificateReport) ([]byte, error) {
	if report.CertificateID == "" {
		return nil, fmt.Errorf("certificate id required")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	meta := [][2]string{
		{"Certificate ID", report.CertificateID},
		{"Document", report.DocumentName},
		{"Content Hash (SHA-256)", report.ContentHash},
		{"Generated", report.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Valid Until", report.ExpiresAt.UTC().Format(time.RFC3339)},
	}
	for _, kv := range meta {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(55, 8, kv[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, kv[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 10, "Signers", "", 1, "", false, 0, "")

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 8, "Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 8, "Signer ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 8, "Signed At", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, signer := range report.Signers {
		pdf.CellFormat(70, 7, signer.Name, "1", 0, "", false, 0, "")
		pdf.CellFormat(55, 7, signer.SignerID, "1", 0, "", false, 0, "")
		pdf.CellFormat(55, 7, signer.SignedAt.UTC().Format(time.RFC3339), "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
