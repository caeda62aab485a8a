package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docsign-api/internal/dto"
	"github.com/noah-isme/docsign-api/internal/models"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
	"github.com/noah-isme/docsign-api/pkg/storage"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string, includeDeleted bool) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type initialVersionCreator interface {
	CreateInitial(ctx context.Context, version *models.DocumentVersion) error
}

// Upload carries one incoming file alongside its transport metadata.
type Upload struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	Content     io.Reader
}

// UploadLimits constrains accepted content.
type UploadLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// DocumentService manages the document lifecycle around the signing workflow:
// upload, retrieval, listing, download and soft deletion.
type DocumentService struct {
	documents  documentStore
	versions   initialVersionCreator
	membership membershipResolver
	blobs      storage.BlobStore
	scanner    Scanner
	audit      auditLogger
	logger     *zap.Logger
	limits     UploadLimits
}

// NewDocumentService constructs the service.
func NewDocumentService(
	documents documentStore,
	versions initialVersionCreator,
	membership membershipResolver,
	blobs storage.BlobStore,
	scanner Scanner,
	audit auditLogger,
	logger *zap.Logger,
	limits UploadLimits,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scanner == nil {
		scanner = PassthroughScanner{}
	}
	return &DocumentService{
		documents:  documents,
		versions:   versions,
		membership: membership,
		blobs:      blobs,
		scanner:    scanner,
		audit:      audit,
		logger:     logger,
		limits:     limits,
	}
}

// Create stores a new document in DRAFT along with its version-0 history row.
func (s *DocumentService) Create(ctx context.Context, req dto.CreateDocumentRequest, upload Upload, callerID string) (*models.Document, error) {
	if strings.TrimSpace(req.GroupID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group id is required")
	}

	member, err := s.membership.IsMember(ctx, req.GroupID, callerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a member of the group")
	}

	content, err := s.acceptUpload(ctx, upload)
	if err != nil {
		return nil, err
	}

	storageKey := "documents/" + uuid.NewString()
	if _, err := s.blobs.Put(storageKey, bytes.NewReader(content), upload.ContentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document content")
	}

	docType := req.Type
	if docType == "" {
		docType = models.DocumentTypeOther
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		GroupID:     req.GroupID,
		Type:        docType,
		FileName:    upload.FileName,
		ContentType: upload.ContentType,
		SizeBytes:   int64(len(content)),
		StorageKey:  storageKey,
		Description: req.Description,
		UploadedBy:  callerID,
		Status:      models.SignatureStatusDraft,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist document")
	}

	if err := s.versions.CreateInitial(ctx, &models.DocumentVersion{
		DocumentID:    doc.ID,
		VersionNumber: 0,
		StorageKey:    storageKey,
		FileName:      upload.FileName,
		ContentType:   upload.ContentType,
		SizeBytes:     int64(len(content)),
		UploadedBy:    callerID,
		IsCurrent:     true,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record initial version")
	}

	s.emitDocumentAudit(ctx, callerID, models.AuditActionDocumentUpload, doc.ID)
	return doc, nil
}

// Get returns a visible document to members of its group.
func (s *DocumentService) Get(ctx context.Context, documentID, callerID string) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if err := s.requireMember(ctx, doc.GroupID, callerID); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the caller's group documents, soft-deleted ones excluded.
func (s *DocumentService) List(ctx context.Context, query dto.DocumentQuery, callerID string) ([]models.Document, error) {
	if strings.TrimSpace(query.GroupID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group id is required")
	}
	if err := s.requireMember(ctx, query.GroupID, callerID); err != nil {
		return nil, err
	}

	docs, err := s.documents.List(ctx, models.DocumentFilter{
		GroupID: query.GroupID,
		Status:  query.Status,
		Type:    query.Type,
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// Download streams the current content of a document.
func (s *DocumentService) Download(ctx context.Context, documentID, callerID string) (*models.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, documentID, callerID)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.blobs.Get(doc.StorageKey)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document content")
	}
	return doc, reader, nil
}

// Delete soft-deletes a document. Fully signed documents are immutable records
// and cannot be deleted. Only the uploader or a group admin may delete.
func (s *DocumentService) Delete(ctx context.Context, documentID, callerID string) error {
	doc, err := s.documents.GetByID(ctx, documentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	if doc.UploadedBy != callerID {
		role, err := s.membership.RoleOf(ctx, doc.GroupID, callerID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve caller role")
		}
		if role != models.GroupRoleAdmin {
			return appErrors.Clone(appErrors.ErrUnauthorized, "only the uploader or a group admin may delete")
		}
	}

	if doc.Status == models.SignatureStatusFullySigned {
		return appErrors.Clone(appErrors.ErrInvalidOperation, "fully signed documents cannot be deleted")
	}

	if err := s.documents.SoftDelete(ctx, documentID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}

	s.emitDocumentAudit(ctx, callerID, models.AuditActionDocumentDelete, documentID)
	return nil
}

func (s *DocumentService) requireMember(ctx context.Context, groupID, callerID string) error {
	member, err := s.membership.IsMember(ctx, groupID, callerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a member of the document's group")
	}
	return nil
}

// acceptUpload buffers, bounds and scans incoming content.
func (s *DocumentService) acceptUpload(ctx context.Context, upload Upload) ([]byte, error) {
	if upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file content is required")
	}
	if s.limits.MaxFileSizeBytes > 0 && upload.SizeBytes > s.limits.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}
	if len(s.limits.AllowedMIMEs) > 0 && !mimeAllowed(upload.ContentType, s.limits.AllowedMIMEs) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}

	limit := s.limits.MaxFileSizeBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	content, err := io.ReadAll(io.LimitReader(upload.Content, limit+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	if len(content) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty files are rejected")
	}
	if int64(len(content)) > limit {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}

	clean, err := s.scanner.Scan(ctx, upload.FileName, bytes.NewReader(content))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malware scan failed")
	}
	if !clean {
		s.logger.Warn("rejected upload after malware scan", zap.String("file_name", upload.FileName))
		return nil, appErrors.Clone(appErrors.ErrValidation, "file failed the malware scan")
	}
	return content, nil
}

func mimeAllowed(contentType string, allowed []string) bool {
	for _, mime := range allowed {
		if strings.EqualFold(mime, contentType) {
			return true
		}
	}
	return false
}

func (s *DocumentService) emitDocumentAudit(ctx context.Context, callerID, action, documentID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &callerID,
		Action:     action,
		Resource:   "document",
		ResourceID: &documentID,
		IPAddress:  "system",
		UserAgent:  "document-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
