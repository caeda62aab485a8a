package models

import "time"

// SigningMode controls whether signers may sign in any order or must follow
// their assigned sequence.
type SigningMode string

const (
	SigningModeParallel   SigningMode = "PARALLEL"
	SigningModeSequential SigningMode = "SEQUENTIAL"
)

// SignerStatus is the per-signature state within the document workflow.
type SignerStatus string

const (
	SignerStatusSentForSigning SignerStatus = "SENT_FOR_SIGNING"
	SignerStatusCompleted      SignerStatus = "COMPLETED"
	SignerStatusCancelled      SignerStatus = "CANCELLED"
)

// DocumentSignature is one row per (document, signer) pair, created in bulk
// when a document is sent for signing. SignOrder is a dense 1..N sequence
// assigned at creation, also in parallel mode. SignedAt is non-nil iff the
// status is COMPLETED.
type DocumentSignature struct {
	ID             string       `db:"id" json:"id"`
	DocumentID     string       `db:"document_id" json:"document_id"`
	SignerID       string       `db:"signer_id" json:"signer_id"`
	SignOrder      int          `db:"sign_order" json:"sign_order"`
	Status         SignerStatus `db:"status" json:"status"`
	SigningMode    SigningMode  `db:"signing_mode" json:"signing_mode"`
	Token          string       `db:"token" json:"-"`
	TokenExpiresAt time.Time    `db:"token_expires_at" json:"token_expires_at"`
	SignedAt       *time.Time   `db:"signed_at" json:"signed_at,omitempty"`
	PayloadKey     *string      `db:"payload_key" json:"-"`
	IPAddress      *string      `db:"ip_address" json:"-"`
	DeviceInfo     *string      `db:"device_info" json:"-"`
	DueDate        *time.Time   `db:"due_date" json:"due_date,omitempty"`
	Message        *string      `db:"message" json:"message,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}
