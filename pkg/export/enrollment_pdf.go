package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// EnrollmentDependent is one covered dependent rendered in the proposal.
type EnrollmentDependent struct {
	Name         string
	TaxID        string
	Relationship string
	BirthDate    *time.Time
}

// EnrollmentStepLine is one row of the step checklist.
type EnrollmentStepLine struct {
	Label       string
	Completed   bool
	CompletedAt *time.Time
}

// EnrollmentDocument aggregates everything printed on the proposal PDF.
type EnrollmentDocument struct {
	Protocol        string
	GeneratedAt     time.Time
	Name            string
	TaxID           string
	Email           string
	Phone           string
	Address         string
	Organization    string
	PlanDescription string
	MonthlyPrice    float64
	Dependents      []EnrollmentDependent
	Steps           []EnrollmentStepLine
	SignaturePNG    []byte
}

// EnrollmentPDFExporter renders enrollment proposals.
type EnrollmentPDFExporter struct{}

// NewEnrollmentPDFExporter constructs the exporter.
func NewEnrollmentPDFExporter() *EnrollmentPDFExporter {
	return &EnrollmentPDFExporter{}
}

// Render produces the proposal PDF for one approved enrollment.
func (e *EnrollmentPDFExporter) Render(doc EnrollmentDocument) ([]byte, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("enrollment pdf requires a holder name")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	translate := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, translate("Proposta de Adesão - Brasil Saúde"), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, translate(fmt.Sprintf("Protocolo %s - emitida em %s", doc.Protocol, doc.GeneratedAt.Format("02/01/2006 15:04"))), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	sectionTitle(pdf, translate("Titular"))
	fieldRow(pdf, translate, "Nome", doc.Name)
	fieldRow(pdf, translate, "CPF", doc.TaxID)
	fieldRow(pdf, translate, "E-mail", doc.Email)
	fieldRow(pdf, translate, "Telefone", doc.Phone)
	if doc.Address != "" {
		fieldRow(pdf, translate, "Endereço", doc.Address)
	}
	if doc.Organization != "" {
		fieldRow(pdf, translate, "Órgão", doc.Organization)
	}
	pdf.Ln(4)

	sectionTitle(pdf, translate("Plano contratado"))
	fieldRow(pdf, translate, "Plano", doc.PlanDescription)
	fieldRow(pdf, translate, "Mensalidade", fmt.Sprintf("R$ %.2f", doc.MonthlyPrice))
	pdf.Ln(4)

	if len(doc.Dependents) > 0 {
		sectionTitle(pdf, translate("Dependentes"))
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(70, 7, translate("Nome"), "1", 0, "", false, 0, "")
		pdf.CellFormat(40, 7, "CPF", "1", 0, "", false, 0, "")
		pdf.CellFormat(40, 7, translate("Parentesco"), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, translate("Nascimento"), "1", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, dep := range doc.Dependents {
			birth := ""
			if dep.BirthDate != nil {
				birth = dep.BirthDate.Format("02/01/2006")
			}
			pdf.CellFormat(70, 7, translate(dep.Name), "1", 0, "", false, 0, "")
			pdf.CellFormat(40, 7, dep.TaxID, "1", 0, "", false, 0, "")
			pdf.CellFormat(40, 7, translate(dep.Relationship), "1", 0, "", false, 0, "")
			pdf.CellFormat(30, 7, birth, "1", 1, "", false, 0, "")
		}
		pdf.Ln(4)
	}

	if len(doc.Steps) > 0 {
		sectionTitle(pdf, translate("Etapas concluídas"))
		pdf.SetFont("Arial", "", 9)
		for _, step := range doc.Steps {
			mark := "[ ]"
			suffix := ""
			if step.Completed {
				mark = "[x]"
				if step.CompletedAt != nil {
					suffix = " - " + step.CompletedAt.Format("02/01/2006 15:04")
				}
			}
			pdf.CellFormat(0, 6, translate(fmt.Sprintf("%s %s%s", mark, step.Label, suffix)), "", 1, "", false, 0, "")
		}
		pdf.Ln(4)
	}

	if len(doc.SignaturePNG) > 0 {
		sectionTitle(pdf, translate("Assinatura do titular"))
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(doc.SignaturePNG))
		pdf.ImageOptions("signature", 15, pdf.GetY(), 60, 0, true, opts, 0, "")
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render enrollment pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, title, "B", 1, "", false, 0, "")
	pdf.Ln(1)
}

func fieldRow(pdf *gofpdf.Fpdf, translate func(string) string, label, value string) {
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, translate(label), "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, translate(value), "", 1, "", false, 0, "")
}
