package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docsign-api/internal/models"
)

// VersionRepository persists the append-only version history of documents.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository constructs the repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

const versionColumns = `id, document_id, version_number, storage_key, file_name, content_type,
       size_bytes, uploaded_by, uploaded_at, change_description, is_current`

// ListByDocument returns the version history ordered by version number.
func (r *VersionRepository) ListByDocument(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	const query = `SELECT ` + versionColumns + ` FROM document_versions
	WHERE document_id = $1 ORDER BY version_number`
	var versions []models.DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, documentID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// GetByNumber fetches a single version row.
func (r *VersionRepository) GetByNumber(ctx context.Context, documentID string, versionNumber int) (*models.DocumentVersion, error) {
	const query = `SELECT ` + versionColumns + ` FROM document_versions
	WHERE document_id = $1 AND version_number = $2`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, documentID, versionNumber); err != nil {
		return nil, err
	}
	return &version, nil
}

// AddVersionParams describes a new current version plus an optional synthetic
// version 0 for documents that predate version tracking.
type AddVersionParams struct {
	Version   *models.DocumentVersion
	Bootstrap *models.DocumentVersion
}

// AddVersion appends a version in one transaction: the document row is locked,
// the bootstrap row is inserted when history is empty, the next dense version
// number is allocated, every other row loses is_current, and the document's
// denormalized file columns are refreshed to mirror the new current version.
func (r *VersionRepository) AddVersion(ctx context.Context, params AddVersionParams) (*models.DocumentVersion, error) {
	version := params.Version
	if version == nil {
		return nil, fmt.Errorf("version required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin version transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var docID string
	if err := tx.GetContext(ctx, &docID,
		`SELECT id FROM documents WHERE id = $1 FOR UPDATE`, version.DocumentID); err != nil {
		return nil, fmt.Errorf("lock document for versioning: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM document_versions WHERE document_id = $1`, version.DocumentID); err != nil {
		return nil, fmt.Errorf("count versions: %w", err)
	}

	const insert = `INSERT INTO document_versions
	(id, document_id, version_number, storage_key, file_name, content_type, size_bytes, uploaded_by, uploaded_at, change_description, is_current)
	VALUES (:id, :document_id, :version_number, :storage_key, :file_name, :content_type, :size_bytes, :uploaded_by, :uploaded_at, :change_description, :is_current)`

	if count == 0 && params.Bootstrap != nil {
		bootstrap := params.Bootstrap
		if bootstrap.ID == "" {
			bootstrap.ID = uuid.NewString()
		}
		bootstrap.VersionNumber = 0
		bootstrap.IsCurrent = false
		if _, err := tx.NamedExecContext(ctx, insert, bootstrap); err != nil {
			return nil, fmt.Errorf("insert bootstrap version: %w", err)
		}
	}

	var maxNumber int
	if err := tx.GetContext(ctx, &maxNumber,
		`SELECT COALESCE(MAX(version_number), -1) FROM document_versions WHERE document_id = $1`, version.DocumentID); err != nil {
		return nil, fmt.Errorf("resolve next version number: %w", err)
	}

	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	version.VersionNumber = maxNumber + 1
	version.IsCurrent = true
	if version.UploadedAt.IsZero() {
		version.UploadedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE document_versions SET is_current = FALSE WHERE document_id = $1 AND is_current = TRUE`,
		version.DocumentID); err != nil {
		return nil, fmt.Errorf("clear current version: %w", err)
	}

	if _, err := tx.NamedExecContext(ctx, insert, version); err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	const updateDoc = `UPDATE documents
	SET file_name = $2, content_type = $3, size_bytes = $4, storage_key = $5, updated_at = $6
	WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateDoc, version.DocumentID,
		version.FileName, version.ContentType, version.SizeBytes, version.StorageKey, version.UploadedAt); err != nil {
		return nil, fmt.Errorf("mirror current version onto document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit version transaction: %w", err)
	}
	return version, nil
}

// CreateInitial inserts version 0 for a brand-new document upload.
func (r *VersionRepository) CreateInitial(ctx context.Context, version *models.DocumentVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	version.VersionNumber = 0
	version.IsCurrent = true
	if version.UploadedAt.IsZero() {
		version.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO document_versions
	(id, document_id, version_number, storage_key, file_name, content_type, size_bytes, uploaded_by, uploaded_at, change_description, is_current)
	VALUES (:id, :document_id, :version_number, :storage_key, :file_name, :content_type, :size_bytes, :uploaded_by, :uploaded_at, :change_description, :is_current)`
	if _, err := r.db.NamedExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("create initial version: %w", err)
	}
	return nil
}
