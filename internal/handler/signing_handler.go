package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docsign-api/internal/dto"
	"github.com/noah-isme/docsign-api/internal/models"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
	"github.com/noah-isme/docsign-api/pkg/response"
)

type signingService interface {
	SendForSigning(ctx context.Context, documentID string, req dto.SendForSigningRequest, requesterID string) ([]models.DocumentSignature, error)
	SignDocument(ctx context.Context, documentID string, req dto.SignDocumentRequest, callerID string) (*models.DocumentSignature, error)
	GetSignatureStatus(ctx context.Context, documentID, callerID string) (*dto.SignatureStatusResponse, error)
	ExportSignatures(ctx context.Context, documentID, callerID string) ([]byte, error)
	CancelSigning(ctx context.Context, documentID, callerID string) error
}

// SigningHandler manages the signing workflow HTTP endpoints.
type SigningHandler struct {
	service signingService
}

// NewSigningHandler constructs the handler.
func NewSigningHandler(service signingService) *SigningHandler {
	return &SigningHandler{service: service}
}

// Send godoc
// @Summary Send a document for signing
// @Tags Signing
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.SendForSigningRequest true "Signer list and mode"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/send [post]
func (h *SigningHandler) Send(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SendForSigningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid signing request"))
		return
	}
	signatures, err := h.service.SendForSigning(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, signatures, nil)
}

// Sign godoc
// @Summary Apply a token-authenticated signature
// @Tags Signing
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.SignDocumentRequest true "Token and captured signature"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/sign [post]
func (h *SigningHandler) Sign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SignDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid signature payload"))
		return
	}
	req.IP = c.ClientIP()
	req.DeviceInfo = c.Request.UserAgent()

	signature, err := h.service.SignDocument(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signature, nil)
}

// Status godoc
// @Summary Get signing progress
// @Tags Signing
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/signatures [get]
func (h *SigningHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.service.GetSignatureStatus(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Export godoc
// @Summary Export the signature ledger as CSV
// @Tags Signing
// @Produce text/csv
// @Param id path string true "Document ID"
// @Success 200 {string} string "CSV content"
// @Router /documents/{id}/signatures/export [get]
func (h *SigningHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	data, err := h.service.ExportSignatures(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"signatures-"+c.Param("id")+".csv\"")
	c.Data(http.StatusOK, "text/csv", data)
}

// Cancel godoc
// @Summary Cancel an in-flight signing workflow
// @Tags Signing
// @Produce json
// @Param id path string true "Document ID"
// @Success 204
// @Router /documents/{id}/signing [delete]
func (h *SigningHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.CancelSigning(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
