package models

import "time"

// SigningCertificate is the proof-of-completion artifact generated once a
// document reaches FULLY_SIGNED. The content hash is immutable after
// generation; a revoked certificate is never un-revoked.
type SigningCertificate struct {
	ID               string     `db:"id" json:"id"`
	CertificateID    string     `db:"certificate_id" json:"certificate_id"`
	DocumentID       string     `db:"document_id" json:"document_id"`
	ContentHash      string     `db:"content_hash" json:"content_hash"`
	SignerRoster     []byte     `db:"signer_roster" json:"-"`
	GeneratedAt      time.Time  `db:"generated_at" json:"generated_at"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	Revoked          bool       `db:"revoked" json:"revoked"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevocationReason *string    `db:"revocation_reason" json:"revocation_reason,omitempty"`
	GeneratedBy      string     `db:"generated_by" json:"generated_by"`
}

// RosterEntry is one signer line serialized into a certificate's roster.
type RosterEntry struct {
	SignerID string    `json:"signer_id"`
	Name     string    `json:"name"`
	SignedAt time.Time `json:"signed_at"`
}

// CertificateVerification is the result of re-verifying a certificate.
type CertificateVerification struct {
	CertificateID    string  `json:"certificate_id"`
	IsValid          bool    `json:"is_valid"`
	HashMatches      bool    `json:"hash_matches"`
	IsRevoked        bool    `json:"is_revoked"`
	IsExpired        bool    `json:"is_expired"`
	RevocationReason *string `json:"revocation_reason,omitempty"`
}
