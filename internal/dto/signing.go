package dto

import (
	"time"

	"github.com/noah-isme/docsign-api/internal/models"
)

// SendForSigningRequest starts the signing workflow for a document.
type SendForSigningRequest struct {
	SignerIDs  []string           `json:"signerIds" validate:"required,min=1,dive,required"`
	Mode       models.SigningMode `json:"mode" validate:"required,oneof=PARALLEL SEQUENTIAL"`
	DueDate    *time.Time         `json:"dueDate"`
	Message    string             `json:"message"`
	ExpiryDays int                `json:"expiryDays" validate:"omitempty,min=1,max=365"`
}

// SignDocumentRequest carries the bearer token and the captured signature.
type SignDocumentRequest struct {
	Token            string `json:"token" validate:"required"`
	SignaturePayload string `json:"signaturePayload" validate:"required"`
	IP               string `json:"-"`
	DeviceInfo       string `json:"-"`
}

// SignerStatusItem is one line of the per-signer breakdown.
type SignerStatusItem struct {
	SignerID  string              `json:"signerId"`
	SignOrder int                 `json:"signOrder"`
	Status    models.SignerStatus `json:"status"`
	SignedAt  *time.Time          `json:"signedAt,omitempty"`
}

// SignatureStatusResponse summarises a document's signing progress.
type SignatureStatusResponse struct {
	DocumentID  string                 `json:"documentId"`
	Status      models.SignatureStatus `json:"status"`
	Mode        models.SigningMode     `json:"mode"`
	Total       int                    `json:"total"`
	Signed      int                    `json:"signed"`
	Percentage  float64                `json:"percentage"`
	Signers     []SignerStatusItem     `json:"signers"`
}
