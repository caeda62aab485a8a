package dto

import (
	"time"

	"github.com/noah-isme/docsign-api/internal/models"
)

// VerifyCertificateRequest optionally supplies a content hash to cross-check.
type VerifyCertificateRequest struct {
	Hash string `form:"hash" json:"hash"`
}

// RevokeCertificateRequest records why a certificate is withdrawn.
type RevokeCertificateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CertificateResponse combines stored metadata with the signer roster.
type CertificateResponse struct {
	ID            string               `json:"id"`
	CertificateID string               `json:"certificateId"`
	DocumentID    string               `json:"documentId"`
	ContentHash   string               `json:"contentHash"`
	GeneratedAt   time.Time            `json:"generatedAt"`
	ExpiresAt     time.Time            `json:"expiresAt"`
	Revoked       bool                 `json:"revoked"`
	Signers       []models.RosterEntry `json:"signers"`
}
