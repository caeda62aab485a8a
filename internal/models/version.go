package models

import "time"

// DocumentVersion is one row of the append-only content history of a document.
// Version numbers are dense starting at 0 (the original upload); exactly one
// version per document carries IsCurrent.
type DocumentVersion struct {
	ID                string    `db:"id" json:"id"`
	DocumentID        string    `db:"document_id" json:"document_id"`
	VersionNumber     int       `db:"version_number" json:"version_number"`
	StorageKey        string    `db:"storage_key" json:"-"`
	FileName          string    `db:"file_name" json:"file_name"`
	ContentType       string    `db:"content_type" json:"content_type"`
	SizeBytes         int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy        string    `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt        time.Time `db:"uploaded_at" json:"uploaded_at"`
	ChangeDescription *string   `db:"change_description" json:"change_description,omitempty"`
	IsCurrent         bool      `db:"is_current" json:"is_current"`
}
