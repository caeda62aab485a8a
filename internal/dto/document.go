package dto

import "github.com/noah-isme/docsign-api/internal/models"

// CreateDocumentRequest contains metadata submitted alongside a file upload.
type CreateDocumentRequest struct {
	GroupID     string              `form:"groupId" json:"groupId"`
	Type        models.DocumentType `form:"type" json:"type"`
	Description string              `form:"description" json:"description"`
}

// DocumentQuery mirrors supported listing filters.
type DocumentQuery struct {
	GroupID        string
	Status         []models.SignatureStatus
	Type           models.DocumentType
	IncludeDeleted bool
	Limit          int
	Offset         int
}
