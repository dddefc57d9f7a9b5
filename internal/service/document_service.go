package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/export"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/storage"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListByLead(ctx context.Context, leadID string) ([]models.Document, error)
	FindLatestByLead(ctx context.Context, leadID string, docType models.DocumentType) (*models.Document, error)
}

type stepLister interface {
	ListByLead(ctx context.Context, leadID string) ([]models.EnrollmentStep, error)
}

// DocumentService generates, stores and serves enrollment proposal PDFs.
// Files live on disk; the database keeps only metadata, and downloads go
// through short-lived signed tokens.
type DocumentService struct {
	documents  documentStore
	leads      leadReader
	dependents dependentLister
	steps      stepLister
	activities activityWriter
	exporter   *export.EnrollmentPDFExporter
	files      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
}

// NewDocumentService constructs DocumentService.
func NewDocumentService(documents documentStore, leads leadReader, dependents dependentLister, steps stepLister, activities activityWriter, files *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		documents:  documents,
		leads:      leads,
		dependents: dependents,
		steps:      steps,
		activities: activities,
		exporter:   export.NewEnrollmentPDFExporter(),
		files:      files,
		signer:     signer,
		logger:     logger,
	}
}

// GenerateEnrollmentPDF renders a fresh proposal for the lead, stores it and
// records the metadata row.
func (s *DocumentService) GenerateEnrollmentPDF(ctx context.Context, leadID string) (*models.Document, []byte, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	dependents, err := s.dependents.ListByLead(ctx, leadID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dependents")
	}
	steps, err := s.steps.ListByLead(ctx, leadID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list steps")
	}

	content, err := s.exporter.Render(s.buildDocument(lead, dependents, steps))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render enrollment pdf")
	}

	filename := fmt.Sprintf("%s/proposta-%d.pdf", leadID, time.Now().UTC().Unix())
	relPath, err := s.files.Save(filename, content)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store enrollment pdf")
	}

	doc := &models.Document{
		LeadID:      leadID,
		Type:        models.DocumentEnrollmentPDF,
		DisplayName: fmt.Sprintf("Proposta de Adesão - %s.pdf", lead.Name),
		StoragePath: relPath,
		MimeType:    "application/pdf",
		SizeBytes:   int64(len(content)),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}

	if s.activities != nil {
		details, _ := json.Marshal(map[string]interface{}{"document_id": doc.ID, "size_bytes": doc.SizeBytes})
		entry := &models.ActivityLog{
			LeadID:      leadID,
			Type:        models.ActivityDocumentCreated,
			Description: fmt.Sprintf("Documento gerado: %s", doc.DisplayName),
			Details:     details,
		}
		if err := s.activities.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record document activity", zap.String("lead_id", leadID), zap.Error(err))
		}
	}

	return doc, content, nil
}

// EnsureEnrollmentPDF returns the lead's latest proposal, generating one when
// none exists yet. The third return value is a signed download URL.
func (s *DocumentService) EnsureEnrollmentPDF(ctx context.Context, leadID string) (*models.Document, []byte, string, error) {
	doc, err := s.documents.FindLatestByLead(ctx, leadID, models.DocumentEnrollmentPDF)
	switch {
	case err == nil:
		content, readErr := s.files.Read(doc.StoragePath)
		if readErr == nil {
			url := s.signedURL(doc)
			return doc, content, url, nil
		}
		s.logger.Warn("stored pdf unreadable, regenerating",
			zap.String("document_id", doc.ID), zap.Error(readErr))
	case err != sql.ErrNoRows:
		return nil, nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	doc, content, err := s.GenerateEnrollmentPDF(ctx, leadID)
	if err != nil {
		return nil, nil, "", err
	}
	return doc, content, s.signedURL(doc), nil
}

// ListByLead returns the lead's document metadata, newest first, each with a
// fresh signed URL.
func (s *DocumentService) ListByLead(ctx context.Context, leadID string) ([]models.Document, map[string]string, error) {
	if _, err := s.leads.FindByID(ctx, leadID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	docs, err := s.documents.ListByLead(ctx, leadID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	urls := make(map[string]string, len(docs))
	for i := range docs {
		urls[docs[i].ID] = s.signedURL(&docs[i])
	}
	return docs, urls, nil
}

// SignedURLByID returns a fresh signed download URL for a document.
func (s *DocumentService) SignedURLByID(ctx context.Context, documentID string) (string, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	url := s.signedURL(doc)
	if url == "" {
		return "", appErrors.Clone(appErrors.ErrInternal, "failed to sign download url")
	}
	return url, nil
}

// Download validates a signed token and returns the document with its bytes.
func (s *DocumentService) Download(ctx context.Context, token string) (*models.Document, []byte, error) {
	documentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.StoragePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match the document")
	}

	content, err := s.files.Read(doc.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document")
	}
	return doc, content, nil
}

func (s *DocumentService) signedURL(doc *models.Document) string {
	if s.signer == nil {
		return ""
	}
	url, _, err := s.signer.Generate(doc.ID, doc.StoragePath)
	if err != nil {
		s.logger.Warn("failed to sign document url", zap.String("document_id", doc.ID), zap.Error(err))
		return ""
	}
	return url
}

func (s *DocumentService) buildDocument(lead *models.Lead, dependents []models.Dependent, steps []models.EnrollmentStep) export.EnrollmentDocument {
	deps := make([]export.EnrollmentDependent, 0, len(dependents))
	for _, dep := range dependents {
		deps = append(deps, export.EnrollmentDependent{
			Name:         dep.Name,
			TaxID:        dep.TaxID,
			Relationship: dep.Relationship,
			BirthDate:    dep.BirthDate,
		})
	}

	byStep := make(map[models.Step]models.EnrollmentStep, len(steps))
	var signature []byte
	for _, row := range steps {
		byStep[row.Step] = row
		if len(row.SignatureData) > 0 {
			signature = row.SignatureData
		}
	}
	lines := make([]export.EnrollmentStepLine, 0, len(models.StepOrder))
	for _, step := range models.StepOrder {
		line := export.EnrollmentStepLine{Label: stepLabel(step)}
		if row, ok := byStep[step]; ok {
			line.Completed = row.Completed
			line.CompletedAt = row.CompletionDate
		}
		lines = append(lines, line)
	}

	street := strings.TrimSpace(lead.AddressStreet)
	if lead.AddressNumber != "" {
		street = strings.TrimSpace(street + ", " + lead.AddressNumber)
	}
	address := strings.Join(nonEmpty(street, lead.AddressCity, lead.AddressState, lead.AddressZip), " - ")

	return export.EnrollmentDocument{
		Protocol:        lead.ID,
		GeneratedAt:     time.Now().UTC(),
		Name:            lead.Name,
		TaxID:           lead.TaxID,
		Email:           lead.Email,
		Phone:           lead.Phone,
		Address:         address,
		Organization:    lead.Organization,
		PlanDescription: models.PlanDescription(lead.PlanType, lead.HasDental, len(dependents)),
		MonthlyPrice:    models.MonthlyPrice(lead.PlanType, lead.HasDental, len(dependents)),
		Dependents:      deps,
		Steps:           lines,
		SignaturePNG:    signature,
	}
}

func stepLabel(step models.Step) string {
	switch step {
	case models.StepPersonalData:
		return "Dados pessoais"
	case models.StepDependentsData:
		return "Dependentes"
	case models.StepPlanSelection:
		return "Escolha do plano"
	case models.StepDocuments:
		return "Documentos"
	case models.StepPayment:
		return "Pagamento"
	case models.StepAnalysis:
		return "Análise"
	case models.StepApproval:
		return "Aprovação"
	default:
		return string(step)
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
