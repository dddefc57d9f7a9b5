package models

import "time"

// DocumentType classifies generated documents.
type DocumentType string

// DocumentEnrollmentPDF is the only document type currently produced.
const DocumentEnrollmentPDF DocumentType = "ENROLLMENT_PDF"

// Document is metadata for a generated file; the bytes live in file storage.
type Document struct {
	ID          string       `db:"id" json:"id"`
	LeadID      string       `db:"lead_id" json:"lead_id"`
	Type        DocumentType `db:"type" json:"type"`
	DisplayName string       `db:"display_name" json:"display_name"`
	StoragePath string       `db:"storage_path" json:"-"`
	MimeType    string       `db:"mime_type" json:"mime_type"`
	SizeBytes   int64        `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
