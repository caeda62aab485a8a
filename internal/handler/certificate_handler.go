package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docsign-api/internal/dto"
	"github.com/noah-isme/docsign-api/internal/models"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
	"github.com/noah-isme/docsign-api/pkg/response"
)

type certificateService interface {
	Generate(ctx context.Context, documentID, callerID string) (*models.SigningCertificate, []byte, error)
	Verify(ctx context.Context, certificateID string, req dto.VerifyCertificateRequest) (*models.CertificateVerification, error)
	Revoke(ctx context.Context, certificateID string, req dto.RevokeCertificateRequest, callerID string) error
	ListForDocument(ctx context.Context, documentID, callerID string) ([]dto.CertificateResponse, error)
}

// CertificateHandler manages certificate HTTP endpoints.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(service certificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Generate godoc
// @Summary Generate a completion certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Document ID"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/certificate [post]
func (h *CertificateHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, pdf, err := h.service.Generate(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if strings.Contains(c.GetHeader("Accept"), "application/pdf") && len(pdf) > 0 {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.pdf\"", cert.CertificateID))
		c.Data(http.StatusCreated, "application/pdf", pdf)
		return
	}
	response.JSON(c, http.StatusCreated, cert, nil)
}

// ListForDocument godoc
// @Summary List certificates issued for a document
// @Tags Certificates
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/certificates [get]
func (h *CertificateHandler) ListForDocument(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	certs, err := h.service.ListForDocument(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, certs, nil)
}

// Verify godoc
// @Summary Verify a certificate
// @Tags Certificates
// @Produce json
// @Param certificateId path string true "Certificate ID"
// @Param hash query string false "Content hash to cross-check"
// @Success 200 {object} response.Envelope
// @Router /certificates/{certificateId}/verify [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("certificateId"), dto.VerifyCertificateRequest{
		Hash: strings.TrimSpace(c.Query("hash")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Revoke godoc
// @Summary Revoke a certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param certificateId path string true "Certificate ID"
// @Param payload body dto.RevokeCertificateRequest true "Revocation reason"
// @Success 204
// @Router /certificates/{certificateId} [delete]
func (h *CertificateHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RevokeCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "revocation reason is required"))
		return
	}
	if err := h.service.Revoke(c.Request.Context(), c.Param("certificateId"), req, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
