package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docsign-api/internal/dto"
	"github.com/noah-isme/docsign-api/internal/models"
	"github.com/noah-isme/docsign-api/internal/service"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
	"github.com/noah-isme/docsign-api/pkg/response"
)

type versionService interface {
	UploadNewVersion(ctx context.Context, documentID string, upload service.Upload, changeDescription, callerID string) (*models.DocumentVersion, error)
	GetVersions(ctx context.Context, documentID, callerID string) ([]models.DocumentVersion, error)
	DownloadVersion(ctx context.Context, documentID string, versionNumber int, callerID string) (*models.DocumentVersion, io.ReadCloser, error)
}

// VersionHandler manages version history HTTP endpoints.
type VersionHandler struct {
	service versionService
}

// NewVersionHandler constructs the handler.
func NewVersionHandler(service versionService) *VersionHandler {
	return &VersionHandler{service: service}
}

// Upload godoc
// @Summary Upload a new document version
// @Tags Versions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Document ID"
// @Param changeDescription formData string false "Change description"
// @Param file formData file true "Replacement content"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/versions [post]
func (h *VersionHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UploadVersionRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	version, err := h.service.UploadNewVersion(c.Request.Context(), c.Param("id"), service.Upload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		SizeBytes:   fileHeader.Size,
		Content:     src,
	}, req.ChangeDescription, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, version, nil)
}

// List godoc
// @Summary List the version history of a document
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions [get]
func (h *VersionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	versions, err := h.service.GetVersions(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// Download godoc
// @Summary Download a specific version's content
// @Tags Versions
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param number path int true "Version number"
// @Success 200 {file} binary
// @Router /documents/{id}/versions/{number}/download [get]
func (h *VersionHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version number"))
		return
	}
	version, reader, err := h.service.DownloadVersion(c.Request.Context(), c.Param("id"), number, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", version.FileName))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, version.SizeBytes, version.ContentType, reader, nil)
}
