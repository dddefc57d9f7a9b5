package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

// DocumentRepository handles metadata for generated documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, lead_id, type, display_name, storage_path, mime_type, size_bytes, created_at`

// Create inserts document metadata.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (id, lead_id, type, display_name, storage_path, mime_type, size_bytes, created_at)
        VALUES (:id, :lead_id, :type, :display_name, :storage_path, :mime_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID returns a document by identifier.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1 LIMIT 1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document by id: %w", err)
	}
	return &doc, nil
}

// ListByLead returns documents for a lead, newest first.
func (r *DocumentRepository) ListByLead(ctx context.Context, leadID string) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE lead_id = $1 ORDER BY created_at DESC`, documentColumns)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, leadID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// FindLatestByLead returns the most recent document of the given type.
func (r *DocumentRepository) FindLatestByLead(ctx context.Context, leadID string, docType models.DocumentType) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE lead_id = $1 AND type = $2 ORDER BY created_at DESC LIMIT 1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, leadID, docType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest document: %w", err)
	}
	return &doc, nil
}
