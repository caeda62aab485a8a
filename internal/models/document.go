package models

import "time"

// SignatureStatus is the document-level signing state machine.
type SignatureStatus string

const (
	SignatureStatusDraft           SignatureStatus = "DRAFT"
	SignatureStatusSentForSigning  SignatureStatus = "SENT_FOR_SIGNING"
	SignatureStatusPartiallySigned SignatureStatus = "PARTIALLY_SIGNED"
	SignatureStatusFullySigned     SignatureStatus = "FULLY_SIGNED"
	SignatureStatusCancelled       SignatureStatus = "CANCELLED"
)

// DocumentType declares what kind of artifact was uploaded.
type DocumentType string

const (
	DocumentTypeContract  DocumentType = "CONTRACT"
	DocumentTypeInvoice   DocumentType = "INVOICE"
	DocumentTypeProtocol  DocumentType = "PROTOCOL"
	DocumentTypeStatement DocumentType = "STATEMENT"
	DocumentTypeOther     DocumentType = "OTHER"
)

// Document represents one uploaded artifact scoped to an ownership group.
// StorageKey is immutable once set; new content creates a DocumentVersion and
// the denormalized file columns here mirror the current version.
type Document struct {
	ID          string          `db:"id" json:"id"`
	GroupID     string          `db:"group_id" json:"group_id"`
	Type        DocumentType    `db:"type" json:"type"`
	FileName    string          `db:"file_name" json:"file_name"`
	ContentType string          `db:"content_type" json:"content_type"`
	SizeBytes   int64           `db:"size_bytes" json:"size_bytes"`
	StorageKey  string          `db:"storage_key" json:"-"`
	Description string          `db:"description" json:"description"`
	UploadedBy  string          `db:"uploaded_by" json:"uploaded_by"`
	Status      SignatureStatus `db:"status" json:"status"`
	SigningMode *SigningMode    `db:"signing_mode" json:"signing_mode,omitempty"`
	Deleted     bool            `db:"deleted" json:"-"`
	DeletedAt   *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// DocumentFilter constrains document listing queries.
type DocumentFilter struct {
	GroupID        string
	Status         []SignatureStatus
	Type           DocumentType
	UploadedBy     string
	IncludeDeleted bool
	Limit          int
	Offset         int
}
