package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docsign-api/internal/models"
)

// CertificateRepository persists completion certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateColumns = `id, certificate_id, document_id, content_hash, signer_roster,
       generated_at, expires_at, revoked, revoked_at, revocation_reason, generated_by`

// Create inserts a freshly issued certificate.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.SigningCertificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	const query = `INSERT INTO signing_certificates
	(id, certificate_id, document_id, content_hash, signer_roster, generated_at, expires_at, revoked, revoked_at, revocation_reason, generated_by)
	VALUES (:id, :certificate_id, :document_id, :content_hash, :signer_roster, :generated_at, :expires_at, :revoked, :revoked_at, :revocation_reason, :generated_by)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// GetByCertificateID fetches a certificate by its public identifier.
func (r *CertificateRepository) GetByCertificateID(ctx context.Context, certificateID string) (*models.SigningCertificate, error) {
	const query = `SELECT ` + certificateColumns + ` FROM signing_certificates WHERE certificate_id = $1`
	var cert models.SigningCertificate
	if err := r.db.GetContext(ctx, &cert, query, certificateID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListByDocument returns the certificates issued for a document, newest first.
func (r *CertificateRepository) ListByDocument(ctx context.Context, documentID string) ([]models.SigningCertificate, error) {
	const query = `SELECT ` + certificateColumns + ` FROM signing_certificates
	WHERE document_id = $1 ORDER BY generated_at DESC`
	var certs []models.SigningCertificate
	if err := r.db.SelectContext(ctx, &certs, query, documentID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

// Revoke flags a certificate revoked with a reason. Revocation is one-way; a
// second revocation of the same certificate leaves the first reason in place.
func (r *CertificateRepository) Revoke(ctx context.Context, certificateID, reason string, revokedAt time.Time) error {
	const query = `UPDATE signing_certificates
	SET revoked = TRUE, revoked_at = $2, revocation_reason = $3
	WHERE certificate_id = $1 AND revoked = FALSE`
	result, err := r.db.ExecContext(ctx, query, certificateID, revokedAt, reason)
	if err != nil {
		return fmt.Errorf("revoke certificate: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check revoke rows: %w", err)
	}
	if rows == 0 {
		// distinguish missing from already revoked
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM signing_certificates WHERE certificate_id = $1)`, certificateID); err != nil {
			return fmt.Errorf("check certificate existence: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}
